package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/neelabh-labs/agentorch/config"
)

// Evaluator is one policy rule, run by the Registry in configuration
// order, per spec.md §4.9. Grounded on the Python original's
// ActionEvaluator abstract base and its three concrete subclasses.
type Evaluator interface {
	Name() string
	Enabled() bool
	Evaluate(ctx context.Context, userID string, category ActionCategory, requestDetails map[string]interface{}, history ActionHistory) EvaluationResult
}

// TimedRestrictionEvaluator denies a blocked_category request when the user
// has a successful trigger_category action within block_hours.
type TimedRestrictionEvaluator struct {
	name         string
	enabled      bool
	restrictions []config.TimedRestrictionRule
}

// NewTimedRestrictionEvaluator builds the evaluator from its policy.yaml
// entry.
func NewTimedRestrictionEvaluator(name string, enabled bool, restrictions []config.TimedRestrictionRule) *TimedRestrictionEvaluator {
	return &TimedRestrictionEvaluator{name: name, enabled: enabled, restrictions: restrictions}
}

func (e *TimedRestrictionEvaluator) Name() string  { return e.name }
func (e *TimedRestrictionEvaluator) Enabled() bool { return e.enabled }

func (e *TimedRestrictionEvaluator) Evaluate(ctx context.Context, userID string, category ActionCategory, requestDetails map[string]interface{}, history ActionHistory) EvaluationResult {
	if !e.enabled {
		return Allow()
	}

	for _, r := range e.restrictions {
		if !containsCategory(r.BlockedCategories, string(category)) {
			continue
		}

		trigger := ActionCategory(r.TriggerCategory)
		last, ok := history.LastAction(userID, trigger)
		if !ok {
			continue
		}

		age := last.AgeHours()
		if age >= r.BlockHours {
			continue
		}

		hoursRemaining := r.BlockHours - age
		blockedUntil := last.Timestamp.Add(time.Duration(r.BlockHours * float64(time.Hour)))
		reason := fmt.Sprintf(
			"%s. Please wait %.1f more hours (since %s on %s)",
			nonEmpty(r.Reason, "Action temporarily blocked"),
			hoursRemaining, r.TriggerCategory, last.Timestamp.Format(time.RFC3339),
		)
		return EvaluationResult{
			Allowed: false, Reason: reason, EvaluatorName: e.name, BlockedUntil: &blockedUntil,
			Metadata: map[string]interface{}{
				"trigger_action":     r.TriggerCategory,
				"trigger_timestamp":  last.Timestamp,
				"hours_remaining":    hoursRemaining,
			},
		}
	}
	return Allow()
}

// RateLimitEvaluator denies once the count of successful category actions
// within window_hours reaches max_count.
type RateLimitEvaluator struct {
	name    string
	enabled bool
	limits  []config.RateLimitRule
}

func NewRateLimitEvaluator(name string, enabled bool, limits []config.RateLimitRule) *RateLimitEvaluator {
	return &RateLimitEvaluator{name: name, enabled: enabled, limits: limits}
}

func (e *RateLimitEvaluator) Name() string  { return e.name }
func (e *RateLimitEvaluator) Enabled() bool { return e.enabled }

func (e *RateLimitEvaluator) Evaluate(ctx context.Context, userID string, category ActionCategory, requestDetails map[string]interface{}, history ActionHistory) EvaluationResult {
	if !e.enabled {
		return Allow()
	}

	for _, l := range e.limits {
		if ActionCategory(l.Category) != category {
			continue
		}

		count := history.Count(userID, category, l.WindowHours)
		if count < l.MaxCount {
			continue
		}

		reason := fmt.Sprintf(
			"%s. You have performed %d %s action(s) in the last %.0f hours. Maximum allowed: %d.",
			nonEmpty(l.Reason, "Rate limit exceeded"), count, l.Category, l.WindowHours, l.MaxCount,
		)

		var blockedUntil *time.Time
		window := history.Get(userID, []ActionCategory{category}, l.WindowHours, l.MaxCount, true)
		if len(window) > 0 {
			oldest := window[len(window)-1]
			until := oldest.Timestamp.Add(time.Duration(l.WindowHours * float64(time.Hour)))
			blockedUntil = &until
		}

		return EvaluationResult{
			Allowed: false, Reason: reason, EvaluatorName: e.name, BlockedUntil: blockedUntil,
			Metadata: map[string]interface{}{
				"current_count": count, "max_count": l.MaxCount, "window_hours": l.WindowHours,
			},
		}
	}
	return Allow()
}

// ThresholdEvaluator denies when a named numeric field in the request
// exceeds max_value.
type ThresholdEvaluator struct {
	name       string
	enabled    bool
	thresholds []config.ThresholdRule
}

func NewThresholdEvaluator(name string, enabled bool, thresholds []config.ThresholdRule) *ThresholdEvaluator {
	return &ThresholdEvaluator{name: name, enabled: enabled, thresholds: thresholds}
}

func (e *ThresholdEvaluator) Name() string  { return e.name }
func (e *ThresholdEvaluator) Enabled() bool { return e.enabled }

func (e *ThresholdEvaluator) Evaluate(ctx context.Context, userID string, category ActionCategory, requestDetails map[string]interface{}, history ActionHistory) EvaluationResult {
	if !e.enabled {
		return Allow()
	}

	for _, th := range e.thresholds {
		if ActionCategory(th.Category) != category {
			continue
		}

		raw, ok := requestDetails[th.Field]
		if !ok {
			continue
		}
		value, ok := asFloat(raw)
		if !ok || value <= th.MaxValue {
			continue
		}

		reason := fmt.Sprintf(
			"%s. Provided %s: %v, Maximum allowed: %v.",
			nonEmpty(th.Reason, "Value exceeds threshold"), th.Field, raw, th.MaxValue,
		)
		return EvaluationResult{
			Allowed: false, Reason: reason, EvaluatorName: e.name,
			Metadata: map[string]interface{}{"field": th.Field, "value": value, "max_value": th.MaxValue},
		}
	}
	return Allow()
}

func containsCategory(categories []string, target string) bool {
	for _, c := range categories {
		if c == target {
			return true
		}
	}
	return false
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
