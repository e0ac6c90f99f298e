package policy

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neelabh-labs/agentorch/config"
)

func setupTestRedisHistory(t *testing.T) (*miniredis.Miniredis, *RedisActionHistory) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	h, err := NewRedisActionHistory("redis://"+mr.Addr(), "agentorch-test", 90)
	require.NoError(t, err)

	t.Cleanup(func() {
		h.Close()
		mr.Close()
	})
	return mr, h
}

func TestRedisActionHistoryRecordAndGet(t *testing.T) {
	_, h := setupTestRedisHistory(t)
	h.Record(UserAction{UserID: "u1", ActionType: "change_address", Category: CategoryAddressChange, Success: true})
	h.Record(UserAction{UserID: "u1", ActionType: "order_card", Category: CategoryCardOrder, Success: true})

	actions := h.Get("u1", nil, 0, 0, false)
	require.Len(t, actions, 2)
	assert.Equal(t, "order_card", actions[0].ActionType, "newest first")
}

func TestRedisActionHistoryHasRecentAndCount(t *testing.T) {
	_, h := setupTestRedisHistory(t)
	h.Record(UserAction{UserID: "u1", Category: CategoryAddressChange, Timestamp: time.Now().Add(-2 * time.Hour), Success: true})

	assert.True(t, h.HasRecent("u1", CategoryAddressChange, 24))
	assert.False(t, h.HasRecent("u1", CategoryAddressChange, 1))

	for i := 0; i < 3; i++ {
		h.Record(UserAction{UserID: "u1", Category: CategoryHighValueTransaction, Success: true})
	}
	assert.Equal(t, 3, h.Count("u1", CategoryHighValueTransaction, 0))
}

func TestRedisActionHistoryLastAction(t *testing.T) {
	_, h := setupTestRedisHistory(t)
	_, ok := h.LastAction("unknown", CategoryQuery)
	assert.False(t, ok)

	h.Record(UserAction{UserID: "u1", ActionType: "a", Category: CategoryQuery, Timestamp: time.Now().Add(-time.Hour), Success: true})
	h.Record(UserAction{UserID: "u1", ActionType: "b", Category: CategoryQuery, Timestamp: time.Now(), Success: true})

	last, ok := h.LastAction("u1", CategoryQuery)
	require.True(t, ok)
	assert.Equal(t, "b", last.ActionType)
}

func TestRedisActionHistoryUsableByTimedRestrictionEvaluator(t *testing.T) {
	_, h := setupTestRedisHistory(t)
	h.Record(UserAction{UserID: "u1", Category: CategoryAddressChange, Timestamp: time.Now().Add(-time.Hour), Success: true})

	e := NewTimedRestrictionEvaluator("r", true, []config.TimedRestrictionRule{
		{TriggerCategory: "address_change", BlockedCategories: []string{"card_order"}, BlockHours: 24},
	})
	result := e.Evaluate(context.Background(), "u1", CategoryCardOrder, nil, h)
	assert.False(t, result.Allowed, "RedisActionHistory satisfies the ActionHistory interface evaluators depend on")
}
