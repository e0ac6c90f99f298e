package resilience

import (
	"sync"
	"time"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/config"
)

// BreakerState mirrors the teacher's CircuitState enum shape
// (resilience/circuit_breaker.go: closed/open/half-open with a String()
// method), but the transition counters below follow the Python original's
// simpler consecutive-counter design (utils/retry.py:CircuitBreaker) per
// the Open Question decision in DESIGN.md — it is the closer match to
// spec.md §4.5's wording.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breakerEntry is the per-agent state named in spec.md §3
// ("CircuitBreaker state"): consecutive failure_count, success_count, a
// boolean open flag, and an open_since timestamp.
type breakerEntry struct {
	failureCount int
	successCount int
	open         bool
	openSince    time.Time
}

// CircuitBreaker gates per-agent availability (C6), per spec.md §4.5.
type CircuitBreaker struct {
	mu      sync.Mutex
	entries map[string]*breakerEntry
	cfg     config.CircuitBreakerConfig
	logger  agentcore.Logger
}

// NewCircuitBreaker builds a breaker keyed by agent name.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, logger agentcore.Logger) *CircuitBreaker {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &CircuitBreaker{entries: make(map[string]*breakerEntry), cfg: cfg, logger: logger}
}

func (b *CircuitBreaker) entryFor(name string) *breakerEntry {
	e, ok := b.entries[name]
	if !ok {
		e = &breakerEntry{}
		b.entries[name] = e
	}
	return e
}

// IsOpen reports whether agentName's breaker currently excludes it from
// dispatch. An open breaker whose cool-down has elapsed transitions to
// half-open (implicit, per spec.md §4.5) and is reported as available.
func (b *CircuitBreaker) IsOpen(agentName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryFor(agentName)
	if !e.open {
		return false
	}
	cooldown := time.Duration(b.cfg.TimeoutSeconds * float64(time.Second))
	if time.Since(e.openSince) >= cooldown {
		// Half-open: allow a probe through; state formally flips to
		// closed only once success_threshold probes succeed.
		return false
	}
	return true
}

// State reports the breaker's current named state for GET /stats.
func (b *CircuitBreaker) State(agentName string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryFor(agentName)
	if !e.open {
		return StateClosed
	}
	cooldown := time.Duration(b.cfg.TimeoutSeconds * float64(time.Second))
	if time.Since(e.openSince) >= cooldown {
		return StateHalfOpen
	}
	return StateOpen
}

// RecordSuccess resets the failure counter; in half-open state, increments
// the consecutive success counter and closes the breaker once
// success_threshold is reached.
func (b *CircuitBreaker) RecordSuccess(agentName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryFor(agentName)
	e.failureCount = 0

	if !e.open {
		return
	}

	e.successCount++
	if e.successCount >= b.cfg.SuccessThreshold {
		e.open = false
		e.successCount = 0
		e.failureCount = 0
		b.logger.Info("resilience: circuit breaker closed", map[string]interface{}{"agent": agentName})
	}
}

// RecordFailure increments the consecutive failure counter and opens the
// breaker once failure_threshold is reached (or re-opens immediately if a
// half-open probe fails).
func (b *CircuitBreaker) RecordFailure(agentName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryFor(agentName)
	e.successCount = 0

	cooldown := time.Duration(b.cfg.TimeoutSeconds * float64(time.Second))
	halfOpenProbe := e.open && time.Since(e.openSince) >= cooldown
	if halfOpenProbe {
		e.openSince = timeNow()
		b.logger.Warn("resilience: circuit breaker probe failed, reopening", map[string]interface{}{"agent": agentName})
		return
	}

	e.failureCount++
	if e.failureCount >= b.cfg.FailureThreshold && !e.open {
		e.open = true
		e.openSince = timeNow()
		b.logger.Warn("resilience: circuit breaker opened", map[string]interface{}{
			"agent": agentName, "failure_count": e.failureCount,
		})
	}
}

// Reset clears agentName's breaker state entirely.
func (b *CircuitBreaker) Reset(agentName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, agentName)
}

// Stats reports every tracked agent's breaker state, for GET /stats.
func (b *CircuitBreaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]interface{}, len(b.entries))
	for name, e := range b.entries {
		out[name] = map[string]interface{}{
			"state":         b.stateLocked(e).String(),
			"failure_count": e.failureCount,
			"success_count": e.successCount,
		}
	}
	return out
}

func (b *CircuitBreaker) stateLocked(e *breakerEntry) BreakerState {
	if !e.open {
		return StateClosed
	}
	cooldown := time.Duration(b.cfg.TimeoutSeconds * float64(time.Second))
	if time.Since(e.openSince) >= cooldown {
		return StateHalfOpen
	}
	return StateOpen
}

// timeNow is a seam kept separate from time.Now so tests can observe
// open_since stamping without depending on wall-clock timing.
var timeNow = time.Now
