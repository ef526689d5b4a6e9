package storage

import (
	"errors"
	"fmt"

	"github.com/dreamware/varstore/internal/document"
)

// Error kinds. Match with errors.Is.
var (
	// ErrIO covers read, write and directory-creation failures.
	ErrIO = errors.New("io error")
	// ErrParse is returned when a stored document is not a valid JSON object.
	ErrParse = errors.New("parse error")
)

// Error describes a failed store operation on one location.
type Error struct {
	Kind     error  // ErrIO or ErrParse
	Op       string // load, persist or list
	Location string // offending path
	Err      error  // underlying cause
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Location, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Store loads and persists whole documents by location.
// Implementations keep no document state between calls.
type Store interface {
	// Load returns the document at location.
	// A location with no document yet yields an empty Map and no error.
	Load(location string) (document.Map, error)

	// Persist replaces the document at location, creating the parent
	// directory if needed.
	Persist(location string, doc document.Map) error

	// List returns the document locations directly inside dir, sorted.
	// A missing dir yields no locations and no error.
	List(dir string) ([]string, error)
}

// Get loads the document at location and resolves keyPath in it.
// An empty keyPath returns the whole document.
func Get(s Store, location, keyPath string) (document.Lookup, error) {
	doc, err := s.Load(location)
	if err != nil {
		return document.NotFound, err
	}
	return doc.Lookup(keyPath), nil
}

// Set writes value at keyPath, persists the full document and returns it.
func Set(s Store, location, keyPath string, value document.Value) (document.Map, error) {
	doc, err := s.Load(location)
	if err != nil {
		return nil, err
	}

	doc.Set(keyPath, value)

	if err := s.Persist(location, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes keyPath and persists the result. A path that does not
// resolve leaves the document unchanged, but it is still written back, so a
// delete on a location with no file yet leaves an empty document there.
func Delete(s Store, location, keyPath string) (document.Map, error) {
	doc, err := s.Load(location)
	if err != nil {
		return nil, err
	}

	doc.Delete(keyPath)

	if err := s.Persist(location, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
