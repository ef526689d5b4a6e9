package vars

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/dreamware/varstore/internal/document"
	"github.com/dreamware/varstore/internal/location"
)

// View selects which documents of a workflow a Snapshot includes.
type View string

const (
	ViewAll       View = "all"
	ViewWorkflow  View = "workflow"
	ViewExecution View = "execution"
)

// ParseView accepts "all", "workflow" or "execution". Empty means all.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ViewAll, nil
	case ViewAll, ViewWorkflow, ViewExecution:
		return v, nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

func (v View) includesWorkflow() bool   { return v == ViewAll || v == ViewWorkflow }
func (v View) includesExecutions() bool { return v == ViewAll || v == ViewExecution }

// Snapshot is a read-only copy of the documents stored for one workflow.
type Snapshot struct {
	WorkflowID string
	View       View
	Workflow   document.Map            // Empty when no workflow document exists
	Executions map[string]document.Map // Keyed by execution ID
}

// Snapshot reads the workflow document and every execution document of
// workflowID, limited to view.
func (s *Service) Snapshot(workflowID string, view View) (Snapshot, error) {
	atomic.AddUint64(&s.stats.Snapshots, 1)

	if err := checkID("workflow id", workflowID); err != nil {
		return Snapshot{}, err
	}
	if view == "" {
		view = ViewAll
	}

	snap := Snapshot{WorkflowID: workflowID, View: view}

	if view.includesWorkflow() {
		doc, err := s.store.Load(s.resolver.WorkflowPath(workflowID))
		if err != nil {
			return Snapshot{}, err
		}
		snap.Workflow = doc
	}

	if view.includesExecutions() {
		locations, err := s.store.List(s.resolver.WorkflowDir(workflowID))
		if err != nil {
			return Snapshot{}, err
		}

		snap.Executions = make(map[string]document.Map, len(locations))
		for _, loc := range locations {
			id, ok := location.ExecutionID(filepath.Base(loc))
			if !ok {
				continue
			}
			doc, err := s.store.Load(loc)
			if err != nil {
				return Snapshot{}, err
			}
			snap.Executions[id] = doc
		}
	}

	s.log.Debug().
		Str("workflow_id", workflowID).
		Str("view", string(view)).
		Int("executions", len(snap.Executions)).
		Msg("snapshot")
	return snap, nil
}

// Plain renders the snapshot with untyped values for encoders such as
// YAML. Sections outside the view are left out.
func (s Snapshot) Plain() map[string]any {
	out := map[string]any{
		"workflow_id": s.WorkflowID,
		"view":        string(s.View),
	}
	if s.View.includesWorkflow() {
		out["workflow"] = document.Plain(orEmpty(s.Workflow))
	}
	if s.View.includesExecutions() {
		executions := make(map[string]any, len(s.Executions))
		for id, doc := range s.Executions {
			executions[id] = document.Plain(orEmpty(doc))
		}
		out["executions"] = executions
	}
	return out
}

// MarshalJSON keeps number text intact, which Plain does not.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"workflow_id": s.WorkflowID,
		"view":        s.View,
	}
	if s.View.includesWorkflow() {
		out["workflow"] = orEmpty(s.Workflow)
	}
	if s.View.includesExecutions() {
		executions := s.Executions
		if executions == nil {
			executions = map[string]document.Map{}
		}
		out["executions"] = executions
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a snapshot produced by MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		WorkflowID string                     `json:"workflow_id"`
		View       View                       `json:"view"`
		Workflow   json.RawMessage            `json:"workflow"`
		Executions map[string]json.RawMessage `json:"executions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	snap := Snapshot{WorkflowID: raw.WorkflowID, View: raw.View}
	if len(raw.Workflow) > 0 {
		doc, err := document.UnmarshalMap(raw.Workflow)
		if err != nil {
			return fmt.Errorf("workflow document: %w", err)
		}
		snap.Workflow = doc
	}
	if raw.Executions != nil {
		snap.Executions = make(map[string]document.Map, len(raw.Executions))
		for id, msg := range raw.Executions {
			doc, err := document.UnmarshalMap(msg)
			if err != nil {
				return fmt.Errorf("execution %s: %w", id, err)
			}
			snap.Executions[id] = doc
		}
	}
	*s = snap
	return nil
}

func orEmpty(m document.Map) document.Map {
	if m == nil {
		return document.Map{}
	}
	return m
}
