package resilience

import (
	"context"
	"testing"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrierExecuteSucceedsOnFirstTry(t *testing.T) {
	r := NewRetrier(retryConfigWithToggles(true, true), nil)
	calls := 0
	result, err := r.Execute(context.Background(), func(ctx context.Context) agentcore.AgentResponse {
		calls++
		return agentcore.AgentResponse{Success: true}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, result.Response.Success)
}

func TestRetrierExecuteStopsAfterMaxAttemptsOnRetryableFailure(t *testing.T) {
	cfg := retryConfigWithToggles(true, true)
	cfg.MaxAttempts = 3
	r := NewRetrier(cfg, nil)
	calls := 0
	result, err := r.Execute(context.Background(), func(ctx context.Context) agentcore.AgentResponse {
		calls++
		return agentcore.AgentResponse{Success: false, Error: "connection refused"}
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Attempts)
	assert.False(t, result.Response.Success)
}

func TestRetrierExecuteDoesNotRetryNonRetryableFailure(t *testing.T) {
	r := NewRetrier(retryConfigWithToggles(false, false), nil)
	calls := 0
	result, err := r.Execute(context.Background(), func(ctx context.Context) agentcore.AgentResponse {
		calls++
		return agentcore.AgentResponse{Success: false, Error: "agent reported invalid input"}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "non-retryable per the disabled toggles, no retry attempted")
	assert.Equal(t, 1, result.Attempts)
}
