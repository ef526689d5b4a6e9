// Package storage loads, mutates and persists the JSON documents behind each
// workflow and execution scope.
//
// # Overview
//
// A document lives at a location (a file path produced by package location).
// Every operation reloads the document, applies one change and, for
// mutations, rewrites the whole document. Nothing is cached between calls.
//
//	┌─────────────────────────────────────┐
//	│     vars.Service / operation        │
//	└─────────────────────────────────────┘
//	                 │  Get / Set / Delete
//	                 ▼
//	┌─────────────────────────────────────┐
//	│        Store interface              │
//	│    (Load, Persist, List)            │
//	└─────────────────────────────────────┘
//	          │                 │
//	          ▼                 ▼
//	     ┌─────────┐       ┌─────────┐
//	     │  File   │       │ Memory  │
//	     │  Store  │       │  Store  │
//	     └─────────┘       └─────────┘
//
// # Operations
//
// Get(store, location, keyPath):
//   - Empty keyPath returns the whole document
//   - A path that does not resolve yields document.NotFound, not an error
//
// Set(store, location, keyPath, value):
//   - Missing or non-map intermediates are replaced by empty maps
//   - The full document is persisted and returned
//
// Delete(store, location, keyPath):
//   - Removes the final key from the map it resolves to
//   - A path that does not resolve changes nothing; the document is still
//     written back unchanged
//
// # Absence
//
// A location without a document loads as an empty map. This is the normal
// state of a scope that has never been written.
//
// # Error Handling
//
// ErrIO: read, write or directory creation failed
//   - Carries the offending location
//   - Never retried
//
// ErrParse: the stored content is not a JSON object
//   - Carries the offending location
//   - The document is left untouched; it is never reset to empty
//
// Both kinds arrive wrapped in *Error:
//
//	doc, err := storage.Set(store, loc, "user.name", document.String("Alice"))
//	if errors.Is(err, storage.ErrParse) {
//	    // corrupt document at loc
//	}
//
// # Concurrency
//
// There is no locking across a load/persist cycle. Two writers to the same
// location race and the last persist wins. FileStore renames a temporary
// file into place, so a reader never observes a partially written document.
// Directory creation is create-if-missing and safe to race.
package storage
