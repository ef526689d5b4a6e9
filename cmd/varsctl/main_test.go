package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// localEnv points the local backend at a fresh data directory.
func localEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{"VARS_CONFIG", "VARS_STORE", "VARS_LOG_OUTPUT", "VARS_LOG_FILE", "VARS_LOG_FORMAT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("VARS_DATA_DIR", dir)
	t.Setenv("VARS_LOG_LEVEL", "error")
	return dir
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestLocalSetGetDelete(t *testing.T) {
	dir := localEnv(t)

	out, err := runCmd(t, "", "set", "wf1", "user", `{"name":"Alice"}`, "--execution=e1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":{"name":"Alice"}}`, out)

	out, err = runCmd(t, "", "get", "wf1", "user.name", "--execution=e1")
	require.NoError(t, err)
	assert.JSONEq(t, `"Alice"`, out)

	_, err = os.Stat(filepath.Join(dir, "workflows", "wf1", "e1.json"))
	assert.NoError(t, err)

	out, err = runCmd(t, "", "delete", "wf1", "user.name", "--execution=e1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":{}}`, out)

	_, err = runCmd(t, "", "get", "wf1", "user.name", "--execution=e1")
	assert.ErrorIs(t, err, errNotFound)
}

func TestLocalWorkflowScope(t *testing.T) {
	dir := localEnv(t)

	_, err := runCmd(t, "", "set", "wf1", "count", "1")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "workflows", "wf1", "workflow-data.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":"1"}`, string(raw))

	out, err := runCmd(t, "", "get", "wf1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":"1"}`, out)
}

func TestLocalSnapshotYAML(t *testing.T) {
	localEnv(t)

	_, err := runCmd(t, "", "set", "wf1", "count", "1")
	require.NoError(t, err)
	_, err = runCmd(t, "", "set", "wf1", "step", "fetch", "--execution=e1")
	require.NoError(t, err)

	out, err := runCmd(t, "", "snapshot", "wf1", "--format=yaml")
	require.NoError(t, err)

	var snap map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "wf1", snap["workflow_id"])
	assert.Equal(t, map[string]any{"count": "1"}, snap["workflow"])
	assert.Equal(t, map[string]any{"e1": map[string]any{"step": "fetch"}}, snap["executions"])
}

func TestLocalExec(t *testing.T) {
	localEnv(t)

	batch := `{"workflow_id":"wf1","execution_id":"e1","items":[
		{"operation":"set","scope":"workflow","key":"n","value":5},
		{"operation":"get","scope":"workflow","key":"n"}
	]}`
	out, err := runCmd(t, batch, "exec")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, float64(5), results[1]["result"])
}

func TestExecStopsOnError(t *testing.T) {
	localEnv(t)

	batch := `{"workflow_id":"wf1","items":[{"operation":"set","value":"x"}]}`
	out, err := runCmd(t, batch, "exec")
	assert.Error(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestRemoteGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflows/wf1/executions/e1/data" || r.URL.Query().Get("key") != "a" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"key not found"}`))
			return
		}
		w.Write([]byte(`{"b":[1,2]}`))
	}))
	defer server.Close()

	out, err := runCmd(t, "", "get", "wf1", "a", "--execution=e1", "--server="+server.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":[1,2]}`, out)

	_, err = runCmd(t, "", "get", "wf1", "z", "--server="+server.URL)
	assert.ErrorIs(t, err, errNotFound)
}

func TestRemoteTimeout(t *testing.T) {
	b, closer, err := openBackend("http://127.0.0.1:1", 30*time.Second)
	require.NoError(t, err)
	defer closer.Close()

	r, ok := b.(remote)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, r.Timeout())
}

func TestLocalMemoryStore(t *testing.T) {
	dir := localEnv(t)
	t.Setenv("VARS_STORE", "memory")

	out, err := runCmd(t, "", "set", "wf1", "a", "x", "--execution=e1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x"}`, out)
	assert.NoDirExists(t, filepath.Join(dir, "workflows"))
}

func TestUsageErrors(t *testing.T) {
	localEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"rename", "wf1"}},
		{"missing key", []string{"set", "wf1"}},
		{"bad format", []string{"get", "wf1", "--format=xml"}},
		{"bad timeout", []string{"get", "wf1", "--timeout=soon"}},
		{"bad view", []string{"snapshot", "wf1", "--view=some"}},
		{"invalid workflow id", []string{"get", ".."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}
