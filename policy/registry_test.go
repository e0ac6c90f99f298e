package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neelabh-labs/agentorch/config"
)

func TestRegistryAllowsWithNoEvaluators(t *testing.T) {
	r := NewRegistry(NewUserActionHistory(10, 90), &config.PolicyFileConfig{}, true, nil)
	decision := r.Evaluate(context.Background(), "u1", map[string]interface{}{"query": "order a card"})
	assert.True(t, decision.Allowed)
}

func TestRegistryDeniesAndStopsOnFirstDenial(t *testing.T) {
	history := NewUserActionHistory(10, 90)
	history.Record(UserAction{UserID: "u1", Category: CategoryAddressChange, Timestamp: time.Now().Add(-time.Hour), Success: true})

	cfg := &config.PolicyFileConfig{
		Evaluators: []config.PolicyEvaluatorDefinition{
			{
				Name: "address_change_restriction", Type: config.EvaluatorTimedRestriction, Enabled: true,
				Restrictions: []config.TimedRestrictionRule{
					{TriggerCategory: "address_change", BlockedCategories: []string{"card_order"}, BlockHours: 24, Reason: "blocked"},
				},
			},
		},
	}
	r := NewRegistry(history, cfg, true, nil)
	decision := r.Evaluate(context.Background(), "u1", map[string]interface{}{"query": "order a new card"})
	require.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "blocked")
	require.NotNil(t, decision.BlockedUntil)
}

func TestRegistrySkipsUnknownEvaluatorType(t *testing.T) {
	cfg := &config.PolicyFileConfig{
		Evaluators: []config.PolicyEvaluatorDefinition{{Name: "mystery", Type: "not_a_real_type", Enabled: true}},
	}
	r := NewRegistry(NewUserActionHistory(10, 90), cfg, true, nil)
	decision := r.Evaluate(context.Background(), "u1", map[string]interface{}{"query": "hello"})
	assert.True(t, decision.Allowed)
}

func TestRegistryRecordActionFeedsSubsequentEvaluation(t *testing.T) {
	history := NewUserActionHistory(10, 90)
	cfg := &config.PolicyFileConfig{
		Evaluators: []config.PolicyEvaluatorDefinition{
			{
				Name: "address_change_restriction", Type: config.EvaluatorTimedRestriction, Enabled: true,
				Restrictions: []config.TimedRestrictionRule{
					{TriggerCategory: "address_change", BlockedCategories: []string{"card_order"}, BlockHours: 24},
				},
			},
		},
	}
	r := NewRegistry(history, cfg, true, nil)

	before := r.Evaluate(context.Background(), "u1", map[string]interface{}{"query": "order a new card"})
	assert.True(t, before.Allowed)

	r.RecordAction("u1", "update_address", CategoryAddressChange, nil, "profile-agent", true)

	after := r.Evaluate(context.Background(), "u1", map[string]interface{}{"query": "order a new card"})
	assert.False(t, after.Allowed)
}

func TestCategoryFromRequestHonorsExplicitCategory(t *testing.T) {
	cat := CategoryFromRequest(map[string]interface{}{"action_category": "transfer"})
	assert.Equal(t, CategoryTransfer, cat)
}

func TestCategoryFromRequestHeuristicFromQuery(t *testing.T) {
	assert.Equal(t, CategoryCardOrder, CategoryFromRequest(map[string]interface{}{"query": "I want to order card"}))
	assert.Equal(t, CategoryHighValueTransaction, CategoryFromRequest(map[string]interface{}{"query": "transfer $10000 to savings"}))
	assert.Equal(t, CategoryQuery, CategoryFromRequest(map[string]interface{}{"query": "what is my balance"}))
	assert.Equal(t, CategoryOther, CategoryFromRequest(map[string]interface{}{"query": "xyzzy"}))
}
