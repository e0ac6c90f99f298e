// Package agentcore defines the uniform agent contract, the concurrent
// registry that indexes agents by name and capability, and the small set of
// cross-cutting interfaces (logging, telemetry, metrics) that every other
// package in this module depends on.
package agentcore

import (
	"context"
	"sync"
	"time"
)

// Logger is the structured logging contract used across the module. It
// intentionally has no dependency on a specific backend so embedding
// applications can bridge it to zap, zerolog, or anything else.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// ComponentAwareLogger can scope itself to a named component, producing log
// lines that carry a stable "component" field (e.g. "reasoning/rule",
// "resilience/breaker").
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. Used as the default when no logger is
// configured, and in tests that don't care about log output.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}

func (l NoOpLogger) WithComponent(string) Logger { return l }

var _ ComponentAwareLogger = NoOpLogger{}

// Span is a single unit of tracing work. Implementations wrap an OpenTelemetry
// span (see telemetry.Tracer) but the interface keeps callers decoupled from
// the concrete tracing SDK.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpSpan is returned by NoOpTelemetry and satisfies Span without doing
// anything.
type NoOpSpan struct{}

func (NoOpSpan) End()                                  {}
func (NoOpSpan) SetAttribute(string, interface{})      {}
func (NoOpSpan) RecordError(error)                     {}

// Telemetry starts spans. A no-op implementation is always available so
// tracing is optional without special-casing call sites.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// NoOpTelemetry never actually traces anything.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoOpSpan{}
}

// MetricsRegistry is the minimal surface the orchestrator needs from a
// metrics backend: counters, gauges, and histograms keyed by name plus a
// label set. telemetry.PromMetrics is the production implementation.
type MetricsRegistry interface {
	IncrCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// NoOpMetrics discards every observation.
type NoOpMetrics struct{}

func (NoOpMetrics) IncrCounter(string, map[string]string)            {}
func (NoOpMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (NoOpMetrics) SetGauge(string, float64, map[string]string)      {}

var (
	globalMetrics      MetricsRegistry = NoOpMetrics{}
	globalMetricsMutex sync.RWMutex
)

// SetGlobalMetricsRegistry installs the process-wide metrics registry. Like
// the teacher's core.SetMetricsRegistry, this exists so packages that can't
// import each other directly (avoiding import cycles) can still emit to a
// shared backend configured once at startup.
func SetGlobalMetricsRegistry(m MetricsRegistry) {
	globalMetricsMutex.Lock()
	defer globalMetricsMutex.Unlock()
	globalMetrics = m
}

// GlobalMetricsRegistry returns the process-wide metrics registry, or a
// no-op implementation if none has been installed.
func GlobalMetricsRegistry() MetricsRegistry {
	globalMetricsMutex.RLock()
	defer globalMetricsMutex.RUnlock()
	return globalMetrics
}

// AgentResponse is returned by every Agent.Call. It never carries a raw Go
// error — transport and timeout failures are translated into
// Success=false/Error=<text> so the boundary discipline in SPEC_FULL.md §10.2
// holds uniformly.
type AgentResponse struct {
	Success       bool                   `json:"success"`
	Data          map[string]interface{} `json:"data"`
	Error         string                 `json:"error,omitempty"`
	AgentName     string                 `json:"agent_name"`
	ExecutionTime float64                `json:"execution_time"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// WrapScalar wraps a non-mapping result as {"result": value}, per spec.md §3.
func WrapScalar(value interface{}) map[string]interface{} {
	if m, ok := value.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"result": value}
}

// ReservedKeys are stripped from request input before it reaches an agent's
// transport, per spec.md §4.1.
var ReservedKeys = map[string]bool{
	"tool":       true,
	"agent":      true,
	"timeout":    true,
	"request_id": true,
}

// StripReserved returns a shallow copy of input with reserved orchestrator
// meta-keys removed.
func StripReserved(input map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(input))
	for k, v := range input {
		if ReservedKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}
