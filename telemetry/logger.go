// Package telemetry provides the concrete logging, metrics, and tracing
// backends that implement the interfaces declared in agentcore. It depends
// on no other package in this module besides agentcore, so it can be
// initialized first during startup, mirroring the teacher's
// telemetry module's architectural separation from core.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// StructuredLogger is the production Logger implementation: JSON format
// under Kubernetes, text format for local development, rate-limited error
// logging to avoid flooding during sustained failures. Grounded on the
// teacher's telemetry.TelemetryLogger.
type StructuredLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer
	mu          sync.RWMutex

	errorLimiter *RateLimiter
}

var (
	structuredLoggerSingleton *StructuredLogger
	structuredLoggerOnce      sync.Once
)

// NewStructuredLogger returns the process-wide structured logger for
// serviceName, created once via sync.Once so every caller shares rate
// limiting and configuration.
func NewStructuredLogger(serviceName string) *StructuredLogger {
	structuredLoggerOnce.Do(func() {
		structuredLoggerSingleton = createStructuredLogger(serviceName)
	})
	return structuredLoggerSingleton
}

func createStructuredLogger(serviceName string) *StructuredLogger {
	level := os.Getenv("AGENTORCH_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}

	debug := os.Getenv("AGENTORCH_DEBUG") == "true" || strings.ToUpper(level) == "DEBUG"

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("AGENTORCH_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	return &StructuredLogger{
		level:        strings.ToUpper(level),
		debug:        debug,
		serviceName:  serviceName,
		format:       format,
		output:       os.Stdout,
		errorLimiter: NewRateLimiter(time.Second),
	}
}

// WithComponent returns a logger that tags every line with component,
// matching the teacher's "agent/<name>" naming convention generalized to
// "reasoning/rule", "resilience/breaker", and so on.
func (l *StructuredLogger) WithComponent(component string) *StructuredLogger {
	clone := *l
	clone.component = component
	return &clone
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

func (l *StructuredLogger) shouldLog(level string) bool {
	return levelRank[level] >= levelRank[l.level]
}

func (l *StructuredLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *StructuredLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.serviceName,
		"message":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.output, "%s [%s] %s (log marshal error: %v)\n", timestamp, level, msg, err)
		return
	}
	fmt.Fprintln(l.output, string(data))
}

func (l *StructuredLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", timestamp, level, l.serviceName)
	if l.component != "" {
		fmt.Fprintf(&b, "/%s", l.component)
	}
	fmt.Fprintf(&b, ": %s", msg)
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintln(l.output, b.String())
}

// RateLimiter is a minimal "at most one event per interval" limiter, used to
// keep error logging from flooding output during sustained failures.
type RateLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

// NewRateLimiter builds a limiter allowing one Allow()==true per interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Allow reports whether an event may proceed now, updating internal state
// if so.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}
