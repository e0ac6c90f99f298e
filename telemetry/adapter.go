package telemetry

import "github.com/neelabh-labs/agentorch/agentcore"

// LoggerAdapter satisfies agentcore.ComponentAwareLogger by wrapping a
// StructuredLogger, translating WithComponent's *StructuredLogger return
// into the interface-typed agentcore.Logger the rest of the module depends
// on.
type LoggerAdapter struct {
	*StructuredLogger
}

// NewLoggerAdapter wraps serviceName's structured logger for use anywhere an
// agentcore.ComponentAwareLogger is expected.
func NewLoggerAdapter(serviceName string) *LoggerAdapter {
	return &LoggerAdapter{StructuredLogger: NewStructuredLogger(serviceName)}
}

// WithComponent returns a component-scoped agentcore.Logger.
func (a *LoggerAdapter) WithComponent(component string) agentcore.Logger {
	return &LoggerAdapter{StructuredLogger: a.StructuredLogger.WithComponent(component)}
}

var _ agentcore.ComponentAwareLogger = (*LoggerAdapter)(nil)
