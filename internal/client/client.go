// Package client talks to a running varsd over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dreamware/varstore/internal/document"
	"github.com/dreamware/varstore/internal/location"
	"github.com/dreamware/varstore/internal/operation"
	"github.com/dreamware/varstore/internal/vars"
)

// DefaultTimeout bounds every request made by a Client unless changed with
// SetTimeout.
const DefaultTimeout = 5 * time.Second

// keyNotFound is the error message varsd sends when a key does not resolve.
// Other 404s, such as an unknown route, stay errors.
const keyNotFound = "key not found"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string // "error" field of the body, if any
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// Client is a varsd client. The zero value is not usable; call New.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the server at baseURL, e.g. "http://localhost:8090".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout changes the per-request timeout. Zero leaves requests bounded
// only by their context.
func (c *Client) SetTimeout(d time.Duration) {
	c.http.Timeout = d
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.http.Timeout }

// Health returns nil when the server answers /health with 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Get returns the value at key in ref's document. A key that does not
// resolve yields document.NotFound and no error.
func (c *Client) Get(ctx context.Context, ref vars.Ref, key string) (document.Lookup, error) {
	resp, err := c.do(ctx, http.MethodGet, c.dataURL(ref, key), nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound && se.Message == keyNotFound {
			return document.NotFound, nil
		}
		return document.NotFound, err
	}
	defer resp.Body.Close()

	v, err := document.Decode(resp.Body)
	if err != nil {
		return document.NotFound, fmt.Errorf("decode value: %w", err)
	}
	return document.Found(v), nil
}

// Set stores text at key. Text holding a JSON object or array is stored as
// a structure, anything else as a string. The updated document is returned.
func (c *Client) Set(ctx context.Context, ref vars.Ref, key, text string) (document.Map, error) {
	resp, err := c.do(ctx, http.MethodPut, c.dataURL(ref, key), strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	return decodeMap(resp)
}

// Delete removes key and returns the resulting document.
func (c *Client) Delete(ctx context.Context, ref vars.Ref, key string) (document.Map, error) {
	resp, err := c.do(ctx, http.MethodDelete, c.dataURL(ref, key), nil)
	if err != nil {
		return nil, err
	}
	return decodeMap(resp)
}

// Snapshot fetches the documents of workflowID limited to view.
func (c *Client) Snapshot(ctx context.Context, workflowID string, view vars.View) (vars.Snapshot, error) {
	u := c.baseURL + "/workflows/" + url.PathEscape(workflowID) + "/snapshot"
	if view != "" {
		u += "?" + url.Values{"view": {string(view)}}.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return vars.Snapshot{}, err
	}
	defer resp.Body.Close()

	var snap vars.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return vars.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Execute runs a batch on the server. When the server stops the batch the
// results completed before the failing item are returned with the error.
func (c *Client) Execute(ctx context.Context, batch operation.Batch) ([]operation.Result, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Results []operation.Result `json:"results"`
		Error   string             `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode}
		}
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if resp.StatusCode >= 300 {
		return out.Results, &StatusError{Code: resp.StatusCode, Message: out.Error}
	}
	return out.Results, nil
}

func (c *Client) dataURL(ref vars.Ref, key string) string {
	u := c.baseURL + "/workflows/" + url.PathEscape(ref.WorkflowID)
	if ref.Scope == location.ScopeExecution {
		u += "/executions/" + url.PathEscape(ref.ExecutionID)
	}
	u += "/data"
	if key != "" {
		u += "?" + url.Values{"key": {key}}.Encode()
	}
	return u
}

// do sends a request and turns non-2xx responses into *StatusError.
func (c *Client) do(ctx context.Context, method, u string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var eb struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) != nil {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: eb.Error}
	}
	return resp, nil
}

func decodeMap(resp *http.Response) (document.Map, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	doc, err := document.UnmarshalMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
