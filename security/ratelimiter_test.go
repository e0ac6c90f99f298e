package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	r := NewRateLimiter(3, 60)
	assert.True(t, r.Allow("client-a"))
	assert.True(t, r.Allow("client-a"))
	assert.True(t, r.Allow("client-a"))
}

func TestRateLimiterBlocksAtLimit(t *testing.T) {
	r := NewRateLimiter(2, 60)
	assert.True(t, r.Allow("client-a"))
	assert.True(t, r.Allow("client-a"))
	assert.False(t, r.Allow("client-a"), "third request within window should be blocked")
}

func TestRateLimiterTracksIdentifiersIndependently(t *testing.T) {
	r := NewRateLimiter(1, 60)
	assert.True(t, r.Allow("client-a"))
	assert.True(t, r.Allow("client-b"))
	assert.False(t, r.Allow("client-a"))
}

func TestRateLimiterStaysBlockedForFullWindow(t *testing.T) {
	r := NewRateLimiter(1, 60)
	assert.True(t, r.Allow("client-a"))
	assert.False(t, r.Allow("client-a"))
	// still blocked, even though this is a fresh call past the count check;
	// the block persists for the full window rather than re-evaluating count.
	assert.False(t, r.Allow("client-a"))
}

func TestRateLimiterResetClearsState(t *testing.T) {
	r := NewRateLimiter(1, 60)
	assert.True(t, r.Allow("client-a"))
	assert.False(t, r.Allow("client-a"))

	r.Reset("client-a")
	assert.True(t, r.Allow("client-a"))
}

func TestRateLimiterDefaultsApplied(t *testing.T) {
	r := NewRateLimiter(0, 0)
	assert.Equal(t, 100, r.maxRequests)
}
