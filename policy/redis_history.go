package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/neelabh-labs/agentorch/agentcore"
)

// RedisActionHistory is a Redis-backed ActionHistory, for deployments that
// run multiple orchestrator instances against a shared user-action history
// (the in-memory UserActionHistory is per-process). Grounded on the
// teacher's agentcore.RedisDiscovery connection idiom (redis.ParseURL +
// bounded ping) and its sorted-set sliding-window idiom from
// ui/security/redis_limiter.go, applied here to a per-user action log
// instead of a request-rate counter: each user's actions live in one ZSET
// keyed by namespace:actions:<user_id>, scored by the action's Unix-nano
// timestamp, with the JSON-encoded UserAction as the member.
type RedisActionHistory struct {
	client    *redis.Client
	namespace string
	maxAge    time.Duration
}

// NewRedisActionHistory connects to redisURL and returns a history bounded
// by maxAgeDays (<=0 defaults to 90, the same default as the in-memory
// store). maxPerUser has no Redis analogue — old entries are trimmed by
// age on every Record (CleanupOld is a no-op), not by count.
func NewRedisActionHistory(redisURL, namespace string, maxAgeDays int) (*RedisActionHistory, error) {
	if namespace == "" {
		namespace = "agentorch"
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, agentcore.NewFrameworkError("RedisActionHistory.connect", agentcore.KindConfiguration, "", "invalid redis URL", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, agentcore.NewFrameworkError("RedisActionHistory.connect", agentcore.KindTransport, "", "failed to connect to redis", err)
	}

	return &RedisActionHistory{client: client, namespace: namespace, maxAge: time.Duration(maxAgeDays) * 24 * time.Hour}, nil
}

func (h *RedisActionHistory) key(userID string) string {
	return fmt.Sprintf("%s:actions:%s", h.namespace, userID)
}

// Record stores action in the user's sorted set and drops anything already
// older than maxAge, so the set never grows unbounded.
func (h *RedisActionHistory) Record(action UserAction) {
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}
	data, err := json.Marshal(action)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := h.key(action.UserID)
	score := float64(action.Timestamp.UnixNano())
	h.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: data})
	cutoff := float64(time.Now().Add(-h.maxAge).UnixNano())
	h.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", cutoff))
}

// Get mirrors UserActionHistory.Get's filtering semantics over the Redis
// sorted set: ZRevRangeByScore already returns newest-first.
func (h *RedisActionHistory) Get(userID string, categories []ActionCategory, sinceHours float64, limit int, successOnly bool) []UserAction {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	min := "-inf"
	if sinceHours > 0 {
		cutoff := time.Now().Add(-time.Duration(sinceHours * float64(time.Hour)))
		min = fmt.Sprintf("%d", cutoff.UnixNano())
	}

	opts := &redis.ZRangeBy{Min: min, Max: "+inf"}
	raw, err := h.client.ZRevRangeByScore(ctx, h.key(userID), opts).Result()
	if err != nil {
		return nil
	}

	catSet := make(map[ActionCategory]bool, len(categories))
	for _, c := range categories {
		catSet[c] = true
	}

	out := make([]UserAction, 0, len(raw))
	for _, member := range raw {
		var a UserAction
		if json.Unmarshal([]byte(member), &a) != nil {
			continue
		}
		if len(catSet) > 0 && !catSet[a.Category] {
			continue
		}
		if successOnly && !a.Success {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (h *RedisActionHistory) HasRecent(userID string, category ActionCategory, withinHours float64) bool {
	return len(h.Get(userID, []ActionCategory{category}, withinHours, 0, true)) > 0
}

func (h *RedisActionHistory) LastAction(userID string, category ActionCategory) (UserAction, bool) {
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

func (h *RedisActionHistory) Count(userID string, category ActionCategory, sinceHours float64) int {
	var categories []ActionCategory
	if category != "" {
		categories = []ActionCategory{category}
	}
	return len(h.Get(userID, categories, sinceHours, 0, true))
}

// CleanupOld is a no-op beyond what Record already trims per key: without
// a server-side index of all user keys (this module doesn't maintain a
// SCAN-able set of user ids to bound cost), age-based eviction happens
// incrementally on every Record call instead of in one sweep.
func (h *RedisActionHistory) CleanupOld() {}

// Close releases the underlying Redis connection.
func (h *RedisActionHistory) Close() error {
	return h.client.Close()
}
