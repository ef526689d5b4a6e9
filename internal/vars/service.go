package vars

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dreamware/varstore/internal/document"
	"github.com/dreamware/varstore/internal/location"
	"github.com/dreamware/varstore/internal/storage"
)

// ErrInvalidRef is returned when a Ref cannot name a document.
var ErrInvalidRef = errors.New("invalid document reference")

// Ref names one scoped document.
type Ref struct {
	Scope       location.Scope
	WorkflowID  string
	ExecutionID string // Only used for execution scope
}

// WorkflowRef refers to the document shared by every execution of workflowID.
func WorkflowRef(workflowID string) Ref {
	return Ref{Scope: location.ScopeWorkflow, WorkflowID: workflowID}
}

// ExecutionRef refers to the document of a single execution.
func ExecutionRef(workflowID, executionID string) Ref {
	return Ref{Scope: location.ScopeExecution, WorkflowID: workflowID, ExecutionID: executionID}
}

// Validate checks the scope and that every identifier used in the path is a
// single, non-empty path element.
func (r Ref) Validate() error {
	switch r.Scope {
	case location.ScopeWorkflow:
	case location.ScopeExecution:
		if err := checkID("execution id", r.ExecutionID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidRef, r.Scope)
	}
	return checkID("workflow id", r.WorkflowID)
}

func checkID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRef, field)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`+"\x00") {
		return fmt.Errorf("%w: %s %q is not a valid path element", ErrInvalidRef, field, id)
	}
	return nil
}

// OperationStats counts calls per operation since the Service was created.
type OperationStats struct {
	Gets      uint64 `json:"gets"`
	Sets      uint64 `json:"sets"`
	Deletes   uint64 `json:"deletes"`
	Snapshots uint64 `json:"snapshots"`
}

// Service is the scoped get/set/delete API over a Store.
// It holds no document state; every call goes to the store.
type Service struct {
	resolver *location.Resolver
	store    storage.Store
	log      zerolog.Logger
	stats    OperationStats
}

// New creates a Service resolving locations with resolver and keeping
// documents in store.
func New(resolver *location.Resolver, store storage.Store, logger zerolog.Logger) *Service {
	return &Service{
		resolver: resolver,
		store:    store,
		log:      logger,
	}
}

// DataDir returns the base directory documents are resolved under.
func (s *Service) DataDir() string {
	return s.resolver.Base()
}

// Locate validates ref and returns the location of its document.
func (s *Service) Locate(ref Ref) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return s.resolver.Resolve(ref.Scope, ref.WorkflowID, ref.ExecutionID), nil
}

// Get returns the value at keyPath, or the whole document when keyPath is
// empty.
func (s *Service) Get(ref Ref, keyPath string) (document.Lookup, error) {
	atomic.AddUint64(&s.stats.Gets, 1)

	loc, err := s.Locate(ref)
	if err != nil {
		return document.NotFound, err
	}
	return storage.Get(s.store, loc, keyPath)
}

// Set writes value at keyPath and returns the full updated document.
func (s *Service) Set(ref Ref, keyPath string, value document.Value) (document.Map, error) {
	atomic.AddUint64(&s.stats.Sets, 1)

	loc, err := s.Locate(ref)
	if err != nil {
		return nil, err
	}

	doc, err := storage.Set(s.store, loc, keyPath, value)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("scope", ref.Scope.String()).
		Str("workflow_id", ref.WorkflowID).
		Str("execution_id", ref.ExecutionID).
		Str("key", keyPath).
		Msg("set")
	return doc, nil
}

// Delete removes keyPath and returns the full resulting document.
func (s *Service) Delete(ref Ref, keyPath string) (document.Map, error) {
	atomic.AddUint64(&s.stats.Deletes, 1)

	loc, err := s.Locate(ref)
	if err != nil {
		return nil, err
	}

	doc, err := storage.Delete(s.store, loc, keyPath)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("scope", ref.Scope.String()).
		Str("workflow_id", ref.WorkflowID).
		Str("execution_id", ref.ExecutionID).
		Str("key", keyPath).
		Msg("delete")
	return doc, nil
}

// Stats returns a point-in-time copy of the operation counters.
func (s *Service) Stats() OperationStats {
	return OperationStats{
		Gets:      atomic.LoadUint64(&s.stats.Gets),
		Sets:      atomic.LoadUint64(&s.stats.Sets),
		Deletes:   atomic.LoadUint64(&s.stats.Deletes),
		Snapshots: atomic.LoadUint64(&s.stats.Snapshots),
	}
}
