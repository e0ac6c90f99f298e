package agentcore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedisDiscovery(t *testing.T) (*miniredis.Miniredis, *RedisDiscovery) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	d, err := NewRedisDiscoveryWithNamespace("redis://"+mr.Addr(), "agentorch-test")
	require.NoError(t, err)

	t.Cleanup(func() {
		d.Close()
		mr.Close()
	})
	return mr, d
}

func TestRedisDiscoveryRegisterAndFindService(t *testing.T) {
	_, d := setupTestRedisDiscovery(t)
	ctx := context.Background()

	err := d.Register(ctx, &ServiceRegistration{
		ID: "svc-1", Name: "billing-agent", BaseURL: "http://billing:8080",
		Capabilities: []string{"billing_lookup", "refund"},
	})
	require.NoError(t, err)

	found, err := d.FindService(ctx, "billing-agent")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "http://billing:8080", found[0].BaseURL)
}

func TestRedisDiscoveryFindByCapability(t *testing.T) {
	_, d := setupTestRedisDiscovery(t)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, &ServiceRegistration{
		ID: "svc-1", Name: "billing-agent", BaseURL: "http://billing:8080",
		Capabilities: []string{"billing_lookup"},
	}))
	require.NoError(t, d.Register(ctx, &ServiceRegistration{
		ID: "svc-2", Name: "fraud-agent", BaseURL: "http://fraud:8080",
		Capabilities: []string{"fraud_check"},
	}))

	found, err := d.FindByCapability(ctx, "billing_lookup")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "billing-agent", found[0].Name)
}

func TestRedisDiscoveryUnregisterRemovesFromIndexes(t *testing.T) {
	_, d := setupTestRedisDiscovery(t)
	ctx := context.Background()

	require.NoError(t, d.Register(ctx, &ServiceRegistration{
		ID: "svc-1", Name: "billing-agent", BaseURL: "http://billing:8080",
		Capabilities: []string{"billing_lookup"},
	}))
	require.NoError(t, d.Unregister(ctx, "svc-1"))

	found, err := d.FindByCapability(ctx, "billing_lookup")
	require.NoError(t, err)
	assert.Empty(t, found)
}
