package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/varstore/internal/document"
)

// MemoryStore implements Store in memory.
// Documents are held in their encoded form so every Load decodes a fresh
// copy, the same as reading a file.
type MemoryStore struct {
	mu   sync.RWMutex      // Protects data; does not serialize load/persist cycles
	data map[string][]byte // Encoded documents by location
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Load decodes the document stored at location.
// Returns an empty Map when nothing is stored there.
func (m *MemoryStore) Load(location string) (document.Map, error) {
	m.mu.RLock()
	raw, exists := m.data[filepath.Clean(location)]
	m.mu.RUnlock()

	if !exists {
		return document.Map{}, nil
	}

	doc, err := document.UnmarshalMap(raw)
	if err != nil {
		return nil, &Error{Kind: ErrParse, Op: "load", Location: location, Err: err}
	}
	return doc, nil
}

// Persist encodes doc and replaces whatever was stored at location.
func (m *MemoryStore) Persist(location string, doc document.Map) error {
	data, err := document.MarshalIndent(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", location, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[filepath.Clean(location)] = data
	return nil
}

// List returns the stored locations whose parent is dir.
func (m *MemoryStore) List(dir string) ([]string, error) {
	dir = filepath.Clean(dir)

	m.mu.RLock()
	defer m.mu.RUnlock()

	locations := make([]string, 0)
	for location := range m.data {
		if filepath.Dir(location) == dir && strings.HasSuffix(location, ".json") {
			locations = append(locations, location)
		}
	}
	slices.Sort(locations)
	return locations, nil
}

// Len reports how many documents are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
