package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dreamware/varstore/internal/document"
)

// stores returns one instance of every Store implementation plus a
// directory to place locations in.
func stores(t *testing.T) map[string]struct {
	store Store
	dir   string
} {
	return map[string]struct {
		store Store
		dir   string
	}{
		"file":   {store: NewFileStore(zerolog.Nop()), dir: t.TempDir()},
		"memory": {store: NewMemoryStore(), dir: "/mem/workflows/wf1"},
	}
}

// TestStoreContract runs the shared Store behavior against every backend
func TestStoreContract(t *testing.T) {
	for name, tc := range stores(t) {
		store, dir := tc.store, tc.dir

		t.Run(name+"/load of missing location is empty", func(t *testing.T) {
			doc, err := store.Load(filepath.Join(dir, "missing.json"))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if doc == nil || len(doc) != 0 {
				t.Errorf("Expected empty document, got %v", doc)
			}
		})

		t.Run(name+"/persist and load", func(t *testing.T) {
			loc := filepath.Join(dir, "persist.json")
			want := document.Map{"count": document.Number("1"), "user": document.Map{"name": document.String("Alice")}}

			if err := store.Persist(loc, want); err != nil {
				t.Fatalf("Failed to persist: %v", err)
			}

			got, err := store.Load(loc)
			if err != nil {
				t.Fatalf("Failed to load: %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(want) {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})

		t.Run(name+"/load returns an independent copy", func(t *testing.T) {
			loc := filepath.Join(dir, "copy.json")
			if err := store.Persist(loc, document.Map{"a": document.Number("1")}); err != nil {
				t.Fatalf("Failed to persist: %v", err)
			}

			first, _ := store.Load(loc)
			first["a"] = document.String("changed")

			second, _ := store.Load(loc)
			if second["a"] != document.Number("1") {
				t.Errorf("Mutating a loaded document leaked into the store: %v", second)
			}
		})

		t.Run(name+"/list", func(t *testing.T) {
			listDir := filepath.Join(dir, "listing")
			for _, file := range []string{"b.json", "a.json", "workflow-data.json"} {
				if err := store.Persist(filepath.Join(listDir, file), document.Map{}); err != nil {
					t.Fatalf("Failed to persist %s: %v", file, err)
				}
			}

			got, err := store.List(listDir)
			if err != nil {
				t.Fatalf("Failed to list: %v", err)
			}
			want := []string{
				filepath.Join(listDir, "a.json"),
				filepath.Join(listDir, "b.json"),
				filepath.Join(listDir, "workflow-data.json"),
			}
			if fmt.Sprint(got) != fmt.Sprint(want) {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})

		t.Run(name+"/list of missing directory", func(t *testing.T) {
			got, err := store.List(filepath.Join(dir, "nope"))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(got) != 0 {
				t.Errorf("Expected no locations, got %v", got)
			}
		})
	}
}

// TestOperations covers Get, Set and Delete over a location
func TestOperations(t *testing.T) {
	for name, tc := range stores(t) {
		store, dir := tc.store, tc.dir

		t.Run(name+"/nested creation", func(t *testing.T) {
			loc := filepath.Join(dir, "nested.json")

			doc, err := Set(store, loc, "a.b.c", document.Number("1"))
			if err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			want := document.Map{"a": document.Map{"b": document.Map{"c": document.Number("1")}}}
			if fmt.Sprint(doc) != fmt.Sprint(want) {
				t.Errorf("Expected %v, got %v", want, doc)
			}

			loaded, _ := store.Load(loc)
			if fmt.Sprint(loaded) != fmt.Sprint(want) {
				t.Errorf("Persisted document %v differs from returned %v", loaded, want)
			}
		})

		t.Run(name+"/round trip", func(t *testing.T) {
			loc := filepath.Join(dir, "roundtrip.json")
			value := document.Map{"list": document.List{document.Number("1"), document.Null{}}}

			if _, err := Set(store, loc, "x.y", value); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, err := Get(store, loc, "x.y")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !got.Found || fmt.Sprint(got.Value) != fmt.Sprint(value) {
				t.Errorf("Expected %v, got %+v", value, got)
			}
		})

		t.Run(name+"/non-map override", func(t *testing.T) {
			loc := filepath.Join(dir, "override.json")
			if err := store.Persist(loc, document.Map{"a": document.Number("5")}); err != nil {
				t.Fatalf("Failed to persist: %v", err)
			}

			doc, err := Set(store, loc, "a.b", document.Number("1"))
			if err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			want := document.Map{"a": document.Map{"b": document.Number("1")}}
			if fmt.Sprint(doc) != fmt.Sprint(want) {
				t.Errorf("Expected %v, got %v", want, doc)
			}
		})

		t.Run(name+"/get missing path", func(t *testing.T) {
			loc := filepath.Join(dir, "missing-path.json")
			if err := store.Persist(loc, document.Map{"a": document.Number("1")}); err != nil {
				t.Fatalf("Failed to persist: %v", err)
			}

			got, err := Get(store, loc, "a.b.c")
			if err != nil {
				t.Fatalf("Expected absence, got error %v", err)
			}
			if got.Found {
				t.Errorf("Expected NotFound, got %+v", got)
			}
		})

		t.Run(name+"/get whole document", func(t *testing.T) {
			got, err := Get(store, filepath.Join(dir, "never-written.json"), "")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !got.Found || fmt.Sprint(got.Value) != fmt.Sprint(document.Map{}) {
				t.Errorf("Expected empty document, got %+v", got)
			}
		})

		t.Run(name+"/delete existing key", func(t *testing.T) {
			loc := filepath.Join(dir, "delete.json")
			if _, err := Set(store, loc, "user.name", document.String("Alice")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if _, err := Set(store, loc, "user.age", document.Number("30")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			doc, err := Delete(store, loc, "user.name")
			if err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			want := document.Map{"user": document.Map{"age": document.Number("30")}}
			if fmt.Sprint(doc) != fmt.Sprint(want) {
				t.Errorf("Expected %v, got %v", want, doc)
			}

			loaded, _ := store.Load(loc)
			if fmt.Sprint(loaded) != fmt.Sprint(want) {
				t.Errorf("Delete was not persisted: %v", loaded)
			}
		})

		t.Run(name+"/delete is idempotent", func(t *testing.T) {
			loc := filepath.Join(dir, "idempotent.json")
			before := document.Map{"a": document.Number("1")}
			if err := store.Persist(loc, before); err != nil {
				t.Fatalf("Failed to persist: %v", err)
			}

			for _, keyPath := range []string{"missing", "x.y.z", "a.b"} {
				doc, err := Delete(store, loc, keyPath)
				if err != nil {
					t.Fatalf("Delete %q failed: %v", keyPath, err)
				}
				if fmt.Sprint(doc) != fmt.Sprint(before) {
					t.Errorf("Delete %q changed document to %v", keyPath, doc)
				}
			}
		})

		t.Run(name+"/delete through missing path persists the document", func(t *testing.T) {
			loc := filepath.Join(dir, "untouched.json")

			for _, keyPath := range []string{"x.y", "missing"} {
				doc, err := Delete(store, loc, keyPath)
				if err != nil {
					t.Fatalf("Delete %q failed: %v", keyPath, err)
				}
				if len(doc) != 0 {
					t.Errorf("Delete %q returned %v, want empty document", keyPath, doc)
				}
			}

			loaded, err := store.Load(loc)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(loaded) != 0 {
				t.Errorf("Expected empty document, got %v", loaded)
			}

			locations, _ := store.List(dir)
			found := false
			for _, l := range locations {
				if l == loc {
					found = true
				}
			}
			if !found {
				t.Errorf("Delete did not persist %s", loc)
			}
		})
	}
}

// TestFileStoreErrors covers the error kinds surfaced by the file backend
func TestFileStoreErrors(t *testing.T) {
	store := NewFileStore(zerolog.Nop())

	t.Run("corrupt document is a parse error", func(t *testing.T) {
		loc := filepath.Join(t.TempDir(), "corrupt.json")
		if err := os.WriteFile(loc, []byte("{bad json"), 0o644); err != nil {
			t.Fatal(err)
		}

		_, err := store.Load(loc)
		if !errors.Is(err, ErrParse) {
			t.Fatalf("Expected ErrParse, got %v", err)
		}

		var storeErr *Error
		if !errors.As(err, &storeErr) || storeErr.Location != loc {
			t.Errorf("Expected error to carry location %s, got %v", loc, err)
		}

		// Set must not silently reset the document
		if _, err := Set(store, loc, "a", document.Number("1")); !errors.Is(err, ErrParse) {
			t.Errorf("Expected Set to fail with ErrParse, got %v", err)
		}
		raw, _ := os.ReadFile(loc)
		if string(raw) != "{bad json" {
			t.Errorf("Corrupt document was rewritten: %q", raw)
		}
	})

	t.Run("array root is a parse error", func(t *testing.T) {
		loc := filepath.Join(t.TempDir(), "array.json")
		if err := os.WriteFile(loc, []byte("[1,2]"), 0o644); err != nil {
			t.Fatal(err)
		}

		if _, err := store.Load(loc); !errors.Is(err, ErrParse) {
			t.Errorf("Expected ErrParse, got %v", err)
		}
	})

	t.Run("unwritable location is an io error", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		err := store.Persist(filepath.Join(blocker, "sub", "doc.json"), document.Map{})
		if !errors.Is(err, ErrIO) {
			t.Errorf("Expected ErrIO, got %v", err)
		}
	})

	t.Run("unreadable location is an io error", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "is-a-dir.json")
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}

		if _, err := store.Load(dir); !errors.Is(err, ErrIO) {
			t.Errorf("Expected ErrIO, got %v", err)
		}
	})
}

// TestFileStorePersist checks the on-disk format and directory handling
func TestFileStorePersist(t *testing.T) {
	store := NewFileStore(zerolog.Nop())

	t.Run("indented json", func(t *testing.T) {
		loc := filepath.Join(t.TempDir(), "doc.json")
		if err := store.Persist(loc, document.Map{"count": document.Number("1")}); err != nil {
			t.Fatalf("Failed to persist: %v", err)
		}

		raw, err := os.ReadFile(loc)
		if err != nil {
			t.Fatal(err)
		}
		if string(raw) != "{\n  \"count\": 1\n}" {
			t.Errorf("Unexpected file content %q", raw)
		}
	})

	t.Run("recreates removed directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "workflows", "wf1")
		loc := filepath.Join(dir, "workflow-data.json")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.RemoveAll(dir); err != nil {
			t.Fatal(err)
		}

		if err := store.Persist(loc, document.Map{"x": document.String("a")}); err != nil {
			t.Fatalf("Persist did not recreate directory: %v", err)
		}
		if _, err := os.Stat(loc); err != nil {
			t.Errorf("Document missing after persist: %v", err)
		}
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		dir := t.TempDir()
		loc := filepath.Join(dir, "doc.json")
		for i := 0; i < 3; i++ {
			if err := store.Persist(loc, document.Map{"i": document.Number(fmt.Sprint(i))}); err != nil {
				t.Fatalf("Failed to persist: %v", err)
			}
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("Expected only the document in %s, got %d entries", dir, len(entries))
		}
	})

	t.Run("list skips temp and hidden files", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"e1.json", ".e2.json.123.tmp", ".hidden.json", "notes.txt"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
			t.Fatal(err)
		}

		got, err := store.List(dir)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(got) != 1 || got[0] != filepath.Join(dir, "e1.json") {
			t.Errorf("Expected only e1.json, got %v", got)
		}
	})
}

// TestConcurrentWriters documents last-writer-wins: the document stays
// valid JSON and holds one of the written values.
func TestConcurrentWriters(t *testing.T) {
	for name, tc := range stores(t) {
		store, dir := tc.store, tc.dir

		t.Run(name, func(t *testing.T) {
			loc := filepath.Join(dir, "contested.json")
			numWriters := 20

			var wg sync.WaitGroup
			wg.Add(numWriters)
			for i := 0; i < numWriters; i++ {
				go func(id int) {
					defer wg.Done()
					if _, err := Set(store, loc, "winner", document.Number(fmt.Sprint(id))); err != nil {
						t.Errorf("Writer %d failed: %v", id, err)
					}
				}(i)
			}
			wg.Wait()

			got, err := Get(store, loc, "winner")
			if err != nil {
				t.Fatalf("Document unreadable after concurrent writes: %v", err)
			}
			if !got.Found {
				t.Error("Expected some writer to win")
			}
		})
	}
}

// TestMemoryStoreLen tests the document count
func TestMemoryStoreLen(t *testing.T) {
	store := NewMemoryStore()
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d documents", store.Len())
	}

	store.Persist("/a/b.json", document.Map{})
	store.Persist("/a/c.json", document.Map{})
	store.Persist("/a/b.json", document.Map{"x": document.Bool(true)})

	if store.Len() != 2 {
		t.Errorf("Expected 2 documents, got %d", store.Len())
	}
}

// TestStoreInterface verifies both backends satisfy Store
func TestStoreInterface(t *testing.T) {
	var _ Store = (*FileStore)(nil)
	var _ Store = (*MemoryStore)(nil)
}
