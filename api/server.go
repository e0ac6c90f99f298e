package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/orchestrator"
	"github.com/neelabh-labs/agentorch/resilience"
)

// QueryRequest is the open request body for POST /v1/query, per spec.md
// §6: "{query, session_id?, validate_input?, stream?, metadata?,
// operation?, operands?, data?, filters?, max_results?, keywords?}". The
// fields beyond Stream/SessionID are forwarded into the orchestrator's
// open request map unchanged (spec.md §9: no static schema at the
// orchestrator boundary), so this struct exists only to pull out the
// handful of fields the HTTP layer itself needs to act on.
type QueryRequest struct {
	Query         string                 `json:"query"`
	SessionID     string                 `json:"session_id,omitempty"`
	ValidateInput bool                   `json:"validate_input,omitempty"`
	Stream        bool                   `json:"stream,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Operation     string                 `json:"operation,omitempty"`
	Operands      []interface{}          `json:"operands,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Filters       map[string]interface{} `json:"filters,omitempty"`
	MaxResults    int                    `json:"max_results,omitempty"`
	Keywords      []string               `json:"keywords,omitempty"`
}

// queryResponse reshapes orchestrator.Envelope into the public
// `{success, data, request_id, session_id?, metadata?, errors?}` wire
// shape from spec.md §6 — the Envelope itself carries request_id and
// timestamp nested under `_metadata` (spec.md §4.7's internal shape); the
// HTTP boundary promotes request_id and session_id to top level.
type queryResponse struct {
	Success   bool                   `json:"success"`
	Data      map[string]interface{} `json:"data"`
	RequestID string                 `json:"request_id"`
	SessionID string                 `json:"session_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Errors    map[string]string      `json:"errors,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Server is a thin net/http adapter over orchestrator.Controller, per
// SPEC_FULL.md §13.
type Server struct {
	Controller *orchestrator.Controller
	Registry   *agentcore.Registry
	Breaker    *resilience.CircuitBreaker
	Metrics    MetricsHandler
	Logger     agentcore.Logger
	DevMode    bool
}

// MetricsHandler exposes the Prometheus scrape endpoint. telemetry.PromMetrics
// implements this via its Handler method.
type MetricsHandler interface {
	Handler() http.Handler
}

// NewServer wires a Server and its mux. logger may be nil (defaults to a
// no-op logger, matching agentcore.NoOpLogger's role elsewhere).
func NewServer(controller *orchestrator.Controller, registry *agentcore.Registry, breaker *resilience.CircuitBreaker, metrics MetricsHandler, logger agentcore.Logger, devMode bool) *Server {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &Server{
		Controller: controller,
		Registry:   registry,
		Breaker:    breaker,
		Metrics:    metrics,
		Logger:     logger,
		DevMode:    devMode,
	}
}

// Handler builds the full middleware-wrapped mux: CORS -> logging ->
// recovery -> routes, matching the teacher's Recovery(innermost) ->
// Logging -> CORS(outermost) layering in core/tool.go's Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/query", s.handleQuery)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = recoveryMiddleware(s.Logger)(handler)
	handler = loggingMiddleware(s.Logger, s.DevMode)(handler)
	handler = corsMiddleware(handler)
	return handler
}

// correlationID reads X-Correlation-ID from the request, or allocates a
// fresh request id if absent, per spec.md §6: "Correlation header:
// X-Correlation-ID read on intake and echoed on response; request id
// exposed as X-Request-ID."
func correlationID(r *http.Request) string {
	if id := r.Header.Get("X-Correlation-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	correlation := correlationID(r)
	w.Header().Set("X-Correlation-ID", correlation)

	request := requestToMap(req)

	if req.Stream {
		s.streamQuery(w, r, request, correlation, req.SessionID)
		return
	}

	env := s.Controller.HandleQuery(r.Context(), request, correlation, req.SessionID)
	w.Header().Set("X-Request-ID", correlation)
	w.Header().Set("Content-Type", "application/json")
	if !env.Success {
		w.WriteHeader(http.StatusOK) // orchestrator failures are still well-formed envelopes, not transport errors
	}
	resp := toQueryResponse(env, correlation, req.SessionID)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Logger.Error("api: failed to encode query response", map[string]interface{}{"error": err.Error(), "request_id": correlation})
	}
}

// requestToMap turns the typed QueryRequest back into the open map the
// orchestrator expects (spec.md §9), merging the handler-level fields
// with whatever free-form metadata/data the caller attached.
func requestToMap(req QueryRequest) map[string]interface{} {
	m := map[string]interface{}{"query": req.Query}
	if req.SessionID != "" {
		m["session_id"] = req.SessionID
	}
	if req.ValidateInput {
		m["validate_input"] = req.ValidateInput
	}
	if req.Metadata != nil {
		m["metadata"] = req.Metadata
	}
	if req.Operation != "" {
		m["operation"] = req.Operation
	}
	if req.Operands != nil {
		m["operands"] = req.Operands
	}
	if req.Data != nil {
		m["data"] = req.Data
	}
	if req.Filters != nil {
		m["filters"] = req.Filters
	}
	if req.MaxResults != 0 {
		m["max_results"] = req.MaxResults
	}
	if req.Keywords != nil {
		m["keywords"] = req.Keywords
	}
	return m
}

func toQueryResponse(env orchestrator.Envelope, requestID, sessionID string) queryResponse {
	resp := queryResponse{
		Success:   env.Success,
		Data:      env.Data,
		RequestID: requestID,
		SessionID: sessionID,
		Metadata:  env.Metadata,
		Errors:    env.Errors,
		Error:     env.Error,
	}
	if rid, ok := env.Metadata["request_id"].(string); ok && rid != "" {
		resp.RequestID = rid
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "agentorch"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{}
	if s.Registry != nil {
		stats["registry"] = s.Registry.Stats()
	}
	if s.Breaker != nil {
		stats["circuit_breaker"] = s.Breaker.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
