// Package api is the thin REST adapter over orchestrator.Controller from
// SPEC_FULL.md §13: a real net/http server (the teacher ships one via
// core.BaseAgent.Start/core.BaseTool.Start rather than leaving HTTP as an
// unimplemented interface) exposing POST /v1/query (JSON and SSE modes),
// GET /health, GET /stats, and GET /metrics.
package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/neelabh-labs/agentorch/agentcore"
)

// responseWriter wraps http.ResponseWriter to capture the status code for
// logging and to forward Flush for SSE streaming. Grounded on the
// teacher's core/middleware.go responseWriter.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Flush lets SSE handlers call flusher.Flush() through the wrapper.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// loggingMiddleware mirrors core.LoggingMiddleware's log-errors-and-slow-
// requests-only behavior outside development mode.
func loggingMiddleware(logger agentcore.Logger, devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			shouldLog := devMode || wrapped.statusCode >= 400 || duration > time.Second
			if !shouldLog {
				return
			}

			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}
			switch {
			case wrapped.statusCode >= 500:
				logger.Error("api: request error", fields)
			case wrapped.statusCode >= 400:
				logger.Warn("api: request client error", fields)
			case duration > time.Second:
				logger.Warn("api: request slow", fields)
			default:
				logger.Info("api: request", fields)
			}
		})
	}
}

// recoveryMiddleware mirrors core.RecoveryMiddleware: converts a panic in
// any handler into a 500 instead of crashing the process.
func recoveryMiddleware(logger agentcore.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("api: handler panic recovered", map[string]interface{}{
						"panic":      fmt.Sprintf("%v", err),
						"path":       r.URL.Path,
						"method":     r.Method,
						"stack":      string(debug.Stack()),
						"remote_ip":  r.RemoteAddr,
					})
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware is a permissive CORS layer, matching the teacher's default
// of allowing browser-based UI clients (ui/transports/sse.go sets the same
// Access-Control-Allow-Origin: * for its SSE handler).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
