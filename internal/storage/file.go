package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/dreamware/varstore/internal/document"
)

// FileStore keeps one JSON file per location.
//
// Writes go to a temporary file in the target directory which is then
// renamed over the document, so readers see either the old or the new
// content. Concurrent writers to one location still race: the last rename
// wins.
type FileStore struct {
	log zerolog.Logger
}

// NewFileStore creates a file-backed store.
func NewFileStore(logger zerolog.Logger) *FileStore {
	return &FileStore{log: logger}
}

// Load reads and decodes the document at location.
func (f *FileStore) Load(location string) (document.Map, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return document.Map{}, nil
		}
		return nil, &Error{Kind: ErrIO, Op: "load", Location: location, Err: err}
	}

	doc, err := document.UnmarshalMap(data)
	if err != nil {
		return nil, &Error{Kind: ErrParse, Op: "load", Location: location, Err: err}
	}
	return doc, nil
}

// Persist writes doc as indented JSON.
func (f *FileStore) Persist(location string, doc document.Map) error {
	data, err := document.MarshalIndent(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", location, err)
	}

	dir := filepath.Dir(location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Kind: ErrIO, Op: "persist", Location: location, Err: err}
	}

	if err := writeFileAtomic(location, data); err != nil {
		return &Error{Kind: ErrIO, Op: "persist", Location: location, Err: err}
	}

	f.log.Debug().Str("location", location).Int("bytes", len(data)).Msg("document persisted")
	return nil
}

// List returns the *.json files in dir. Hidden and temporary files are skipped.
func (f *FileStore) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &Error{Kind: ErrIO, Op: "list", Location: dir, Err: err}
	}

	locations := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		locations = append(locations, filepath.Join(dir, name))
	}
	slices.Sort(locations)
	return locations, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
