package policy

import (
	"sort"
	"sync"
	"time"
)

// ActionHistory is the accessor surface spec.md §4.9 requires of the
// action-history store: record/get/has_recent/count/cleanup_old. Both
// UserActionHistory (in-memory) and RedisActionHistory implement it, so
// evaluators depend on the interface rather than a concrete store.
type ActionHistory interface {
	Record(action UserAction)
	Get(userID string, categories []ActionCategory, sinceHours float64, limit int, successOnly bool) []UserAction
	HasRecent(userID string, category ActionCategory, withinHours float64) bool
	LastAction(userID string, category ActionCategory) (UserAction, bool)
	Count(userID string, category ActionCategory, sinceHours float64) int
	CleanupOld()
}

// UserActionHistory is an in-memory per-user ring with a max length and an
// age cap, grounded directly on the Python original's UserActionHistory
// (agent_orchestrator/evaluators/__init__.py).
type UserActionHistory struct {
	maxPerUser int
	maxAge     time.Duration

	mu      sync.Mutex
	history map[string][]UserAction
}

// NewUserActionHistory builds an in-memory history. maxPerUser<=0 defaults
// to 1000, maxAgeDays<=0 defaults to 90 — the Python original's defaults.
func NewUserActionHistory(maxPerUser int, maxAgeDays int) *UserActionHistory {
	if maxPerUser <= 0 {
		maxPerUser = 1000
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}
	return &UserActionHistory{
		maxPerUser: maxPerUser,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
		history:    make(map[string][]UserAction),
	}
}

// Record appends action to the user's history, trimming to maxPerUser from
// the front (oldest first) when exceeded.
func (h *UserActionHistory) Record(action UserAction) {
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.history[action.UserID], action)
	if len(entries) > h.maxPerUser {
		entries = entries[len(entries)-h.maxPerUser:]
	}
	h.history[action.UserID] = entries
}

// Get returns the user's actions filtered by category, recency, success,
// newest first, optionally capped to limit. An empty categories slice
// means "any category"; sinceHours<=0 means "no time filter"; limit<=0
// means "no limit".
func (h *UserActionHistory) Get(userID string, categories []ActionCategory, sinceHours float64, limit int, successOnly bool) []UserAction {
	h.mu.Lock()
	entries := append([]UserAction(nil), h.history[userID]...)
	h.mu.Unlock()

	var cutoff time.Time
	if sinceHours > 0 {
		cutoff = time.Now().Add(-time.Duration(sinceHours * float64(time.Hour)))
	}

	catSet := make(map[ActionCategory]bool, len(categories))
	for _, c := range categories {
		catSet[c] = true
	}

	filtered := entries[:0]
	for _, a := range entries {
		if !cutoff.IsZero() && a.Timestamp.Before(cutoff) {
			continue
		}
		if len(catSet) > 0 && !catSet[a.Category] {
			continue
		}
		if successOnly && !a.Success {
			continue
		}
		filtered = append(filtered, a)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// HasRecent reports whether the user has a successful action of category
// within the last withinHours.
func (h *UserActionHistory) HasRecent(userID string, category ActionCategory, withinHours float64) bool {
	return len(h.Get(userID, []ActionCategory{category}, withinHours, 0, true)) > 0
}

// LastAction returns the most recent successful action, optionally filtered
// by category (pass "" to match any category).
func (h *UserActionHistory) LastAction(userID string, category ActionCategory) (UserAction, bool) {
	var categories []ActionCategory
	if category != "" {
		categories = []ActionCategory{category}
	}
	actions := h.Get(userID, categories, 0, 1, true)
	if len(actions) == 0 {
		return UserAction{}, false
	}
	return actions[0], true
}

// Count returns how many successful actions of category the user has
// within sinceHours (sinceHours<=0 means all time).
func (h *UserActionHistory) Count(userID string, category ActionCategory, sinceHours float64) int {
	var categories []ActionCategory
	if category != "" {
		categories = []ActionCategory{category}
	}
	return len(h.Get(userID, categories, sinceHours, 0, true))
}

// CleanupOld drops actions older than maxAgeDays, and drops users left with
// no actions at all — mirrors the Python original's cleanup_old_actions.
func (h *UserActionHistory) CleanupOld() {
	cutoff := time.Now().Add(-h.maxAge)
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, actions := range h.history {
		kept := actions[:0]
		for _, a := range actions {
			if !a.Timestamp.Before(cutoff) {
				kept = append(kept, a)
			}
		}
		if len(kept) == 0 {
			delete(h.history, userID)
			continue
		}
		h.history[userID] = kept
	}
}
