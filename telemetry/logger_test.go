package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsOncePerInterval(t *testing.T) {
	rl := NewRateLimiter(50 * time.Millisecond)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestStructuredLoggerWithComponentTagsLines(t *testing.T) {
	logger := &StructuredLogger{level: "DEBUG", debug: true, serviceName: "agentorch", format: "json", output: discard{}, errorLimiter: NewRateLimiter(time.Millisecond)}
	scoped := logger.WithComponent("reasoning/rule")
	assert.Equal(t, "reasoning/rule", scoped.component)
	scoped.Info("rule matched", map[string]interface{}{"rule": "r1"})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
