package resilience

import (
	"testing"
	"time"

	"github.com/neelabh-labs/agentorch/config"
	"github.com/stretchr/testify/assert"
)

func testBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, TimeoutSeconds: 0.05}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig(), nil)
	assert.False(t, cb.IsOpen("agent-a"))

	cb.RecordFailure("agent-a")
	cb.RecordFailure("agent-a")
	assert.False(t, cb.IsOpen("agent-a"), "below threshold, still closed")

	cb.RecordFailure("agent-a")
	assert.True(t, cb.IsOpen("agent-a"), "threshold reached, now open")
	assert.Equal(t, StateOpen, cb.State("agent-a"))
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig(), nil)
	cb.RecordFailure("agent-a")
	cb.RecordFailure("agent-a")
	cb.RecordSuccess("agent-a")
	cb.RecordFailure("agent-a")
	cb.RecordFailure("agent-a")
	assert.False(t, cb.IsOpen("agent-a"), "success reset the counter, two more failures isn't enough")
}

func TestCircuitBreakerHalfOpenAfterCooldownAndCloses(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig(), nil)
	for i := 0; i < 3; i++ {
		cb.RecordFailure("agent-a")
	}
	assert.True(t, cb.IsOpen("agent-a"))

	time.Sleep(70 * time.Millisecond)
	assert.False(t, cb.IsOpen("agent-a"), "cooldown elapsed, probe allowed through")
	assert.Equal(t, StateHalfOpen, cb.State("agent-a"))

	cb.RecordSuccess("agent-a")
	assert.Equal(t, StateHalfOpen, cb.State("agent-a"), "one success, threshold is 2")
	cb.RecordSuccess("agent-a")
	assert.Equal(t, StateClosed, cb.State("agent-a"))
}

func TestCircuitBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig(), nil)
	for i := 0; i < 3; i++ {
		cb.RecordFailure("agent-a")
	}
	time.Sleep(70 * time.Millisecond)
	assert.False(t, cb.IsOpen("agent-a"))

	cb.RecordFailure("agent-a")
	assert.True(t, cb.IsOpen("agent-a"), "failed probe reopens immediately")
}
