package telemetry

import (
	"context"

	"github.com/neelabh-labs/agentorch/agentcore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer implements agentcore.Telemetry over an OpenTelemetry TracerProvider,
// carrying the per-request span tree named in spec.md §2 ("Cross-cutting:
// per-request correlation id, span tree...") and §5.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps an existing TracerProvider's named tracer. Build a
// provider during startup (for example with NewSDKTracerProvider) and pass
// its Tracer(serviceName) here.
func NewTracer(tr trace.Tracer) *Tracer {
	return &Tracer{tracer: tr}
}

// NewDefaultTracer builds a Tracer backed by the global OTel TracerProvider,
// which is a no-op until an SDK provider (see NewSDKTracerProvider) is
// installed via otel.SetTracerProvider.
func NewDefaultTracer(serviceName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(serviceName)}
}

// NewSDKTracerProvider builds a real span-emitting TracerProvider with the
// given span processor (e.g. an OTLP gRPC exporter batch processor), mirrors
// the teacher's telemetry/otel.go bootstrap.
func NewSDKTracerProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(opts...)
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return ""
}

// StartSpan implements agentcore.Telemetry.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, agentcore.Span) {
	newCtx, span := t.tracer.Start(ctx, name)
	return newCtx, otelSpan{span: span}
}

var _ agentcore.Telemetry = (*Tracer)(nil)
