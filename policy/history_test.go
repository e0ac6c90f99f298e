package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserActionHistoryRecordAndGet(t *testing.T) {
	h := NewUserActionHistory(10, 90)
	h.Record(UserAction{UserID: "u1", ActionType: "change_address", Category: CategoryAddressChange, Success: true})
	h.Record(UserAction{UserID: "u1", ActionType: "order_card", Category: CategoryCardOrder, Success: true})
	h.Record(UserAction{UserID: "u2", ActionType: "order_card", Category: CategoryCardOrder, Success: true})

	actions := h.Get("u1", nil, 0, 0, false)
	require.Len(t, actions, 2)
	// newest first.
	assert.Equal(t, "order_card", actions[0].ActionType)
}

func TestUserActionHistoryFilterByCategoryAndSuccess(t *testing.T) {
	h := NewUserActionHistory(10, 90)
	h.Record(UserAction{UserID: "u1", Category: CategoryCardOrder, Success: true})
	h.Record(UserAction{UserID: "u1", Category: CategoryCardOrder, Success: false})
	h.Record(UserAction{UserID: "u1", Category: CategoryTransfer, Success: true})

	cardOrders := h.Get("u1", []ActionCategory{CategoryCardOrder}, 0, 0, true)
	assert.Len(t, cardOrders, 1)

	all := h.Get("u1", []ActionCategory{CategoryCardOrder}, 0, 0, false)
	assert.Len(t, all, 2)
}

func TestUserActionHistoryHasRecent(t *testing.T) {
	h := NewUserActionHistory(10, 90)
	h.Record(UserAction{UserID: "u1", Category: CategoryAddressChange, Timestamp: time.Now().Add(-2 * time.Hour), Success: true})

	assert.True(t, h.HasRecent("u1", CategoryAddressChange, 24))
	assert.False(t, h.HasRecent("u1", CategoryAddressChange, 1))
}

func TestUserActionHistoryCount(t *testing.T) {
	h := NewUserActionHistory(10, 90)
	for i := 0; i < 3; i++ {
		h.Record(UserAction{UserID: "u1", Category: CategoryHighValueTransaction, Success: true})
	}
	assert.Equal(t, 3, h.Count("u1", CategoryHighValueTransaction, 0))
}

func TestUserActionHistoryTrimsToMaxPerUser(t *testing.T) {
	h := NewUserActionHistory(2, 90)
	h.Record(UserAction{UserID: "u1", ActionType: "first", Success: true})
	h.Record(UserAction{UserID: "u1", ActionType: "second", Success: true})
	h.Record(UserAction{UserID: "u1", ActionType: "third", Success: true})

	actions := h.Get("u1", nil, 0, 0, false)
	require.Len(t, actions, 2)
	types := []string{actions[0].ActionType, actions[1].ActionType}
	assert.Contains(t, types, "second")
	assert.Contains(t, types, "third")
	assert.NotContains(t, types, "first")
}

func TestUserActionHistoryCleanupOld(t *testing.T) {
	h := NewUserActionHistory(10, 1)
	h.Record(UserAction{UserID: "u1", Timestamp: time.Now().Add(-48 * time.Hour), Success: true})
	h.Record(UserAction{UserID: "u1", Timestamp: time.Now(), Success: true})

	h.CleanupOld()
	actions := h.Get("u1", nil, 0, 0, false)
	require.Len(t, actions, 1)
}

func TestUserActionHistoryLastAction(t *testing.T) {
	h := NewUserActionHistory(10, 90)
	_, ok := h.LastAction("unknown", CategoryQuery)
	assert.False(t, ok)

	h.Record(UserAction{UserID: "u1", ActionType: "a", Category: CategoryQuery, Timestamp: time.Now().Add(-time.Hour), Success: true})
	h.Record(UserAction{UserID: "u1", ActionType: "b", Category: CategoryQuery, Timestamp: time.Now(), Success: true})

	last, ok := h.LastAction("u1", CategoryQuery)
	require.True(t, ok)
	assert.Equal(t, "b", last.ActionType)
}
