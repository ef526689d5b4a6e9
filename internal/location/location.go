// Package location derives where a scoped document lives on disk.
//
// Layout under the base directory:
//
//	<base>/workflows/<workflowId>/workflow-data.json   workflow scope
//	<base>/workflows/<workflowId>/<executionId>.json   execution scope
package location

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Scope selects which document of a workflow an operation targets.
type Scope string

const (
	// ScopeWorkflow is one document shared by every execution of a workflow.
	ScopeWorkflow Scope = "workflow"
	// ScopeExecution is one document per execution.
	ScopeExecution Scope = "execution"
)

const (
	// WorkflowsDir is the directory under the base holding one folder per workflow.
	WorkflowsDir = "workflows"
	// WorkflowFile is the file name of the workflow-scoped document.
	WorkflowFile = "workflow-data.json"
	// Ext is the extension of every document file.
	Ext = ".json"
)

// ErrUnknownScope is returned by ParseScope for anything but the two scopes.
var ErrUnknownScope = errors.New("unknown scope")

// ParseScope accepts "workflow" or "execution", ignoring case and
// surrounding whitespace.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeWorkflow:
		return ScopeWorkflow, nil
	case ScopeExecution:
		return ScopeExecution, nil
	default:
		return "", fmt.Errorf("%w %q (want %q or %q)", ErrUnknownScope, s, ScopeWorkflow, ScopeExecution)
	}
}

func (s Scope) String() string { return string(s) }

// Resolver maps identifiers to document locations below a fixed base.
type Resolver struct {
	base       string
	createDirs bool // MkdirAll the workflow directory on every resolve
	log        zerolog.Logger
}

// NewResolver returns a Resolver rooted at base. The base is fixed for the
// lifetime of the Resolver.
func NewResolver(base string, logger zerolog.Logger) *Resolver {
	return &Resolver{base: filepath.Clean(base), createDirs: true, log: logger}
}

// SetCreateDirs controls whether resolving a location creates its workflow
// directory. Stores that keep nothing on disk turn it off.
func (r *Resolver) SetCreateDirs(create bool) {
	r.createDirs = create
}

// Base returns the configured base directory.
func (r *Resolver) Base() string { return r.base }

// WorkflowDir returns the directory shared by all documents of a workflow.
// It does not create it.
func (r *Resolver) WorkflowDir(workflowID string) string {
	return filepath.Join(r.base, WorkflowsDir, workflowID)
}

// WorkflowPath ensures the workflow directory exists and returns the
// location of the workflow-scoped document.
func (r *Resolver) WorkflowPath(workflowID string) string {
	dir := r.ensureDir(workflowID)
	return filepath.Join(dir, WorkflowFile)
}

// ExecutionPath ensures the workflow directory exists and returns the
// location of the document for one execution.
func (r *Resolver) ExecutionPath(workflowID, executionID string) string {
	dir := r.ensureDir(workflowID)
	return filepath.Join(dir, executionID+Ext)
}

// Resolve dispatches on scope. Any scope other than ScopeWorkflow resolves
// to the execution document.
func (r *Resolver) Resolve(scope Scope, workflowID, executionID string) string {
	if scope == ScopeWorkflow {
		return r.WorkflowPath(workflowID)
	}
	return r.ExecutionPath(workflowID, executionID)
}

// ensureDir never fails: a directory that cannot be created surfaces as an
// I/O error when the document is written.
func (r *Resolver) ensureDir(workflowID string) string {
	dir := r.WorkflowDir(workflowID)
	if !r.createDirs {
		return dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.log.Debug().Err(err).Str("dir", dir).Msg("could not create workflow directory")
	}
	return dir
}

// ExecutionID reports the execution a document file name belongs to.
// The workflow document and non-document files report false.
func ExecutionID(name string) (string, bool) {
	if name == WorkflowFile || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Ext) {
		return "", false
	}
	id := strings.TrimSuffix(name, Ext)
	if id == "" {
		return "", false
	}
	return id, true
}
