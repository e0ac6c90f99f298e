package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/neelabh-labs/agentorch/agentcore"
)

// maxFallbackAttemptsPerAgent caps the number of times a single agent name
// may be the *source* of a fallback dispatch, preventing infinite fallback
// chains (A falls back to B, B falls back to A, ...). Grounded on the
// Python original's utils/retry.py:FallbackStrategy, which tracks
// `_fallback_attempts` per failed-agent-name with the same cap.
const maxFallbackAttemptsPerAgent = 3

// FallbackStrategy invokes a configured fallback agent, once and without
// retry, when the primary agent's retries are exhausted, per spec.md §4.5.
type FallbackStrategy struct {
	mu       sync.Mutex
	attempts map[string]int
	logger   agentcore.Logger
}

// NewFallbackStrategy builds an empty attempt counter, scoped to the
// lifetime of one controller/executor instance (in-process, and not reset
// between requests).
func NewFallbackStrategy(logger agentcore.Logger) *FallbackStrategy {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &FallbackStrategy{attempts: make(map[string]int), logger: logger}
}

// ShouldAttempt reports whether agentName is still permitted to trigger a
// fallback dispatch, and records the attempt if so.
func (f *FallbackStrategy) ShouldAttempt(agentName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts[agentName] >= maxFallbackAttemptsPerAgent {
		f.logger.Warn("resilience: fallback attempt cap reached", map[string]interface{}{
			"agent": agentName, "cap": maxFallbackAttemptsPerAgent,
		})
		return false
	}
	f.attempts[agentName]++
	return true
}

// Dispatch invokes the fallback agent once, without retry, and stamps
// metadata.fallback_from on the resulting response per spec.md §4.5.
func (f *FallbackStrategy) Dispatch(ctx context.Context, originalName string, fallback agentcore.Agent, input map[string]interface{}, timeout time.Duration) agentcore.AgentResponse {
	if !f.ShouldAttempt(originalName) {
		return agentcore.AgentResponse{
			Success:   false,
			Error:     "fallback attempt cap reached for " + originalName,
			AgentName: fallback.Name(),
		}
	}
	resp := fallback.Call(ctx, input, timeout)
	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	resp.Metadata["fallback_from"] = originalName
	return resp
}
