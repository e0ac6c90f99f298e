// Package resilience implements the retry/fallback executor (C5) and
// circuit breaker (C6) from spec.md §4.5, grounded on the teacher's
// resilience package (state-enum circuit breaker, Retry/RetryWithCircuitBreaker
// shape) and, for the counter-based breaker semantics specifically, on the
// Python original's utils/retry.py.
package resilience

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/config"
)

// ErrRetriesExhausted is returned when every attempt at an agent call
// failed and no fallback recovered it.
var ErrRetriesExhausted = errors.New("resilience: retry attempts exhausted")

// Retrier runs a single agent call under the bounded-retry policy from
// spec.md §4.5, using cenkalti/backoff/v5 for exponential-backoff-with-
// jitter scheduling (the teacher hand-rolls this loop in
// resilience/retry.go; this module prefers the pack's own backoff/v5
// dependency instead of reimplementing jittered backoff).
type Retrier struct {
	cfg    config.RetryConfig
	logger agentcore.Logger
}

// NewRetrier builds a Retrier from the configured policy.
func NewRetrier(cfg config.RetryConfig, logger agentcore.Logger) *Retrier {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &Retrier{cfg: cfg, logger: logger}
}

// AttemptResult captures the outcome of one dispatch attempt, used by the
// retry-classification logic and by the caller to inspect attempt counts.
type AttemptResult struct {
	Response agentcore.AgentResponse
	Attempts int
}

// IsRetryable classifies a failed response per spec.md §4.5: error-text
// substrings "timeout"/"connection" gated by the retry_on_timeout and
// retry_on_connection_error toggles.
func (r *Retrier) IsRetryable(resp agentcore.AgentResponse) bool {
	if resp.Success {
		return false
	}
	lower := strings.ToLower(resp.Error)
	if r.cfg.RetryOnTimeout && strings.Contains(lower, "timeout") {
		return true
	}
	if r.cfg.RetryOnConnectionError && strings.Contains(lower, "connection") {
		return true
	}
	return false
}

// Execute dispatches call repeatedly per the retry policy, returning the
// last attempt's response and the number of attempts made. It never
// returns a Go error from the agent call itself — agentcore.Agent.Call
// already translates failures into AgentResponse — but does return an
// error if ctx is cancelled mid-backoff.
func (r *Retrier) Execute(ctx context.Context, call func(ctx context.Context) agentcore.AgentResponse) (AttemptResult, error) {
	maxAttempts := r.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	operation := func() (agentcore.AgentResponse, error) {
		attempts++
		resp := call(ctx)
		if resp.Success {
			return resp, nil
		}
		if attempts >= maxAttempts || !r.IsRetryable(resp) {
			// Return the failed response as a permanent (non-retried)
			// terminal value so the caller sees the real failure detail
			// instead of a generic backoff error.
			return resp, backoff.Permanent(errTerminal{resp: resp})
		}
		r.logger.Debug("resilience: retrying agent call", map[string]interface{}{
			"attempt": attempts, "max_attempts": maxAttempts, "error": resp.Error,
		})
		return resp, errRetry{resp: resp}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(r.cfg.BaseDelaySeconds * float64(time.Second))
	bo.MaxInterval = time.Duration(r.cfg.MaxDelaySeconds * float64(time.Second))
	if !r.cfg.ExponentialBackoff {
		bo.Multiplier = 1.0
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithBackOff(bo),
	)
	if err != nil {
		var term errTerminal
		if errors.As(err, &term) {
			return AttemptResult{Response: term.resp, Attempts: attempts}, nil
		}
		var retry errRetry
		if errors.As(err, &retry) {
			// Attempts exhausted via backoff's own max-tries accounting.
			return AttemptResult{Response: retry.resp, Attempts: attempts}, nil
		}
		return AttemptResult{Attempts: attempts}, err
	}
	return AttemptResult{Response: resp, Attempts: attempts}, nil
}

type errTerminal struct{ resp agentcore.AgentResponse }

func (e errTerminal) Error() string { return "resilience: terminal failure: " + e.resp.Error }

type errRetry struct{ resp agentcore.AgentResponse }

func (e errRetry) Error() string { return "resilience: retryable failure: " + e.resp.Error }
