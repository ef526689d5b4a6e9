// Package main implements varsd, the HTTP front-end of varstore. It exposes
// scoped get/set/delete on workflow and execution documents and the batch
// item contract used by host workflow runtimes.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                 varsd                    │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health        - Data dir health     │
//	│    /info          - Data dir and stats  │
//	│    /workflows/*   - Scoped documents    │
//	│    /execute       - Item batches        │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    vars.Service     - Scoped API        │
//	│    operation.Runner - Item batches      │
//	│    storage.Store    - File or memory    │
//	│    health.Monitor   - Data dir probes   │
//	└─────────────────────────────────────────┘
//
// Configuration (see package config):
//   - VARS_DATA_DIR: Base directory (default: ./.vars-data)
//   - VARS_LISTEN: Listen address (default: ":8090")
//   - VARS_STORE: file or memory (default: file)
//   - VARS_HEALTH_INTERVAL: Data dir probe period (default: 10s)
//   - VARS_LOG_LEVEL, VARS_LOG_FORMAT, VARS_LOG_OUTPUT, VARS_LOG_FILE
//   - VARS_CONFIG: Optional YAML file with the same settings
//
// Example usage:
//
//	VARS_DATA_DIR=/var/lib/varstore ./varsd
//
//	# Workflow scope
//	curl -X PUT 'localhost:8090/workflows/wf1/data?key=count' -d '1'
//	curl 'localhost:8090/workflows/wf1/data?key=count'
//
//	# Execution scope
//	curl -X PUT 'localhost:8090/workflows/wf1/executions/e1/data?key=user' \
//	  -d '{"name":"Alice"}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/varstore/internal/config"
	"github.com/dreamware/varstore/internal/health"
	"github.com/dreamware/varstore/internal/location"
	"github.com/dreamware/varstore/internal/logging"
	"github.com/dreamware/varstore/internal/operation"
	"github.com/dreamware/varstore/internal/storage"
	"github.com/dreamware/varstore/internal/vars"
)

// maxBodyBytes bounds request bodies for PUT and /execute.
const maxBodyBytes = 8 << 20

// Server bundles what the handlers need.
type Server struct {
	svc     *vars.Service
	runner  *operation.Runner
	monitor *health.Monitor // nil for the memory store
	store   string          // configured backend name, reported by /info
	log     zerolog.Logger
}

// NewServer wires a Server around svc. monitor may be nil, in which case
// /health always reports OK.
func NewServer(svc *vars.Service, monitor *health.Monitor, storeName string, logger zerolog.Logger) *Server {
	return &Server{
		svc:     svc,
		runner:  operation.NewRunner(svc, logger),
		monitor: monitor,
		store:   storeName,
		log:     logger,
	}
}

// Routes returns the HTTP handler with request logging applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/execute", s.handleExecute)

	// Path: /workflows/{workflowID}/...
	mux.HandleFunc("/workflows/", s.handleWorkflowRequest)

	return s.withRequestLog(mux)
}

func main() {
	// No logger until the config is loaded
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("config")
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("logger")
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, monitor := openService(cfg, logger)
	if monitor != nil {
		monitor.Start(ctx)
		defer monitor.Stop()
	}
	server := NewServer(svc, monitor, cfg.Store, logger)

	s := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second, // Prevent slowloris attacks
	}

	go func() {
		logger.Info().
			Str("listen", cfg.Listen).
			Str("data_dir", cfg.DataDir).
			Str("store", cfg.Store).
			Msg("varsd listening")
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	logger.Info().Msg("varsd stopped")
}

// openService wires the resolver and store selected by cfg. Only the file
// store gets a health monitor; the memory store leaves the data directory
// alone.
func openService(cfg *config.Config, logger zerolog.Logger) (*vars.Service, *health.Monitor) {
	resolver := location.NewResolver(cfg.DataDir, logger)
	if cfg.Store == config.StoreMemory {
		resolver.SetCreateDirs(false)
		return vars.New(resolver, storage.NewMemoryStore(), logger), nil
	}
	monitor := health.NewMonitor(cfg.DataDir, cfg.HealthInterval, logger)
	return vars.New(resolver, storage.NewFileStore(logger), logger), monitor
}

// handleWorkflowRequest routes every /workflows/ path.
//
//	/workflows/{wf}/data                      workflow scope
//	/workflows/{wf}/executions/{ex}/data      execution scope
//	/workflows/{wf}/snapshot                  read-only aggregate
//
// The key path is taken from the "key" query parameter.
func (s *Server) handleWorkflowRequest(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/workflows/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "data":
		s.handleDocument(vars.WorkflowRef(parts[0]), w, r)
	case len(parts) == 4 && parts[1] == "executions" && parts[3] == "data":
		s.handleDocument(vars.ExecutionRef(parts[0], parts[2]), w, r)
	case len(parts) == 2 && parts[1] == "snapshot":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleSnapshot(parts[0], w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleDocument(ref vars.Ref, w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	switch r.Method {
	case http.MethodGet:
		s.handleGet(ref, key, w, r)
	case http.MethodPut:
		s.handleSet(ref, key, w, r)
	case http.MethodDelete:
		s.handleDelete(ref, key, w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGet returns the value at key, or the whole document without a key.
//
// Response:
//   - 200 OK: JSON value
//   - 404 Not Found: key path does not resolve
func (s *Server) handleGet(ref vars.Ref, key string, w http.ResponseWriter, r *http.Request) {
	lookup, err := s.svc.Get(ref, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !lookup.Found {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "key not found"})
		return
	}
	writeJSON(w, http.StatusOK, lookup.Value)
}

// handleSet stores the request body at key. The body is treated as text:
// JSON objects and arrays are stored as structures, anything else as a
// string.
//
// Response:
//   - 200 OK: full updated document
//   - 400 Bad Request: missing key or unreadable body
func (s *Server) handleSet(ref vars.Ref, key string, w http.ResponseWriter, r *http.Request) {
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: operation.ErrKeyRequired.Error()})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body"})
		return
	}

	value, err := operation.ParseValue(string(body))
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := s.svc.Set(ref, key, value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDelete removes key. Deleting a missing path succeeds and returns
// the unchanged document.
func (s *Server) handleDelete(ref vars.Ref, key string, w http.ResponseWriter, r *http.Request) {
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: operation.ErrKeyRequired.Error()})
		return
	}

	doc, err := s.svc.Delete(ref, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleSnapshot returns the workflow and execution documents of a workflow.
// Query: view=all|workflow|execution
func (s *Server) handleSnapshot(workflowID string, w http.ResponseWriter, r *http.Request) {
	view, err := vars.ParseView(r.URL.Query().Get("view"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	snap, err := s.svc.Snapshot(workflowID, view)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// executeResponse is returned by POST /execute. On a stopped batch Item
// names the failing item and Results holds the items completed before it.
type executeResponse struct {
	Results []operation.Result `json:"results"`
	Error   string             `json:"error,omitempty"`
	Item    *int               `json:"item,omitempty"`
}

// handleExecute runs a batch of items.
//
// Endpoint: POST /execute
//
// Request body:
//
//	{
//	  "workflow_id": "wf1",
//	  "execution_id": "e1",
//	  "continue_on_fail": false,
//	  "items": [{"operation": "set", "scope": "workflow", "key": "count", "value": "1"}]
//	}
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var batch operation.Batch
	if err := dec.Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid batch: " + err.Error()})
		return
	}

	results, err := s.runner.Run(batch)
	if err != nil {
		var itemErr *operation.ItemError
		if !errors.As(err, &itemErr) {
			writeError(w, r, err)
			return
		}
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("batch stopped")
		writeJSON(w, statusFor(err), executeResponse{Results: results, Error: err.Error(), Item: &itemErr.Index})
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Results: results})
}

// handleHealth answers 200 while the data directory is writable and 503
// once the monitor has marked it unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := http.StatusOK
	if !s.monitor.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, s.monitor.Report())
}

// handleInfo reports configuration, operation counters and, for the file
// store, the data directory health.
func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	response := struct {
		DataDir string              `json:"data_dir"`
		Store   string              `json:"store"`
		Stats   vars.OperationStats `json:"stats"`
		Health  *health.Report      `json:"health,omitempty"`
	}{
		DataDir: s.svc.DataDir(),
		Store:   s.store,
		Stats:   s.svc.Stats(),
	}
	if s.monitor != nil {
		report := s.monitor.Report()
		response.Health = &report
	}
	writeJSON(w, http.StatusOK, response)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vars.ErrInvalidRef),
		errors.Is(err, location.ErrUnknownScope),
		errors.Is(err, operation.ErrKeyRequired),
		errors.Is(err, operation.ErrUnsupportedOperation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrParse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog tags every request with an ID (taken from X-Request-ID or
// generated) and logs one line when it completes.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		logger := s.log.With().Str("request_id", requestID).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
