// Package operation runs batches of {operation, scope, key, value} items
// against the scoped store, the way a host workflow runtime invokes the
// plugin once per input record.
package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/varstore/internal/document"
	"github.com/dreamware/varstore/internal/location"
	"github.com/dreamware/varstore/internal/vars"
)

// Operation is the action applied by one item.
type Operation string

const (
	OpGet    Operation = "get"
	OpSet    Operation = "set"
	OpDelete Operation = "delete"
)

const (
	// DefaultWorkflowID is used when the host supplies no workflow ID.
	DefaultWorkflowID = "default"
	// DefaultScope applies to items that name no scope.
	DefaultScope = location.ScopeExecution
)

var (
	ErrKeyRequired          = errors.New("key is required")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Item is one input record.
type Item struct {
	Operation string `json:"operation"`
	Scope     string `json:"scope,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     any    `json:"value,omitempty"`
}

// Batch is a list of items sharing the identifiers supplied by the host.
type Batch struct {
	WorkflowID     string `json:"workflow_id,omitempty"`
	ExecutionID    string `json:"execution_id,omitempty"`
	ContinueOnFail bool   `json:"continue_on_fail,omitempty"`
	Items          []Item `json:"items"`
}

// Result is the output record for one item. A failed item run with
// ContinueOnFail carries only Item and Error.
type Result struct {
	Item        int            `json:"item"`
	Operation   Operation      `json:"operation,omitempty"`
	Scope       location.Scope `json:"scope,omitempty"`
	Key         string         `json:"key,omitempty"`
	Result      document.Value `json:"result,omitempty"` // nil when a get found nothing
	FilePath    string         `json:"file_path,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"` // execution scope only
	Error       string         `json:"error,omitempty"`
}

// UnmarshalJSON decodes the result value into the document union.
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	var raw struct {
		plain
		Result json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Result(raw.plain)
	r.Result = nil
	if len(raw.Result) > 0 {
		v, err := document.Unmarshal(raw.Result)
		if err != nil {
			return fmt.Errorf("result: %w", err)
		}
		r.Result = v
	}
	return nil
}

// ItemError stops a batch that is not run with ContinueOnFail.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Runner applies batches to a vars.Service.
type Runner struct {
	svc *vars.Service
	log zerolog.Logger
	now func() time.Time
}

// NewRunner creates a Runner over svc.
func NewRunner(svc *vars.Service, logger zerolog.Logger) *Runner {
	return &Runner{svc: svc, log: logger, now: time.Now}
}

// Run processes the items of b in order. Without ContinueOnFail the first
// failing item stops the batch and the results gathered so far are
// returned with an *ItemError.
func (r *Runner) Run(b Batch) ([]Result, error) {
	if b.WorkflowID == "" {
		b.WorkflowID = DefaultWorkflowID
	}
	if b.ExecutionID == "" {
		b.ExecutionID = "exec-" + strconv.FormatInt(r.now().UnixMilli(), 10)
	}

	results := make([]Result, 0, len(b.Items))
	for i, item := range b.Items {
		res, err := r.runItem(b, i, item)
		if err != nil {
			if !b.ContinueOnFail {
				return results, &ItemError{Index: i, Err: err}
			}
			r.log.Warn().Err(err).Int("item", i).Msg("item failed, continuing")
			results = append(results, Result{Item: i, Error: err.Error()})
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runItem(b Batch, index int, item Item) (Result, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(item.Operation)))
	switch op {
	case OpGet, OpSet, OpDelete:
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedOperation, item.Operation)
	}

	scope := DefaultScope
	if item.Scope != "" {
		parsed, err := location.ParseScope(item.Scope)
		if err != nil {
			return Result{}, err
		}
		scope = parsed
	}

	if op != OpGet && item.Key == "" {
		return Result{}, fmt.Errorf("%s: %w", op, ErrKeyRequired)
	}

	ref := vars.Ref{Scope: scope, WorkflowID: b.WorkflowID, ExecutionID: b.ExecutionID}
	loc, err := r.svc.Locate(ref)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Item:       index,
		Operation:  op,
		Scope:      scope,
		Key:        item.Key,
		FilePath:   loc,
		WorkflowID: b.WorkflowID,
	}
	if scope == location.ScopeExecution {
		res.ExecutionID = b.ExecutionID
	}

	switch op {
	case OpGet:
		lookup, err := r.svc.Get(ref, item.Key)
		if err != nil {
			return Result{}, err
		}
		if lookup.Found {
			res.Result = lookup.Value
		}
	case OpSet:
		value, err := ParseValue(item.Value)
		if err != nil {
			return Result{}, err
		}
		doc, err := r.svc.Set(ref, item.Key, value)
		if err != nil {
			return Result{}, err
		}
		res.Result = doc
	case OpDelete:
		doc, err := r.svc.Delete(ref, item.Key)
		if err != nil {
			return Result{}, err
		}
		res.Result = doc
	}
	return res, nil
}
