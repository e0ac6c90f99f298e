package reasoning

import (
	"context"
	"testing"

	"github.com/neelabh-labs/agentorch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func highConfidenceRule() []config.RuleDefinition {
	return []config.RuleDefinition{
		{
			Name: "strong", Priority: 1, Logic: config.RuleOperatorAND, Enabled: true,
			Confidence: 0.95, TargetAgents: []string{"calculator"},
			Conditions: []config.RuleCondition{{Field: "operation", Operator: config.OperatorExists}},
		},
	}
}

func weakConfidenceRule() []config.RuleDefinition {
	return []config.RuleDefinition{
		{
			Name: "weak", Priority: 1, Logic: config.RuleOperatorAND, Enabled: true,
			Confidence: 0.4, TargetAgents: []string{"calculator"},
			Conditions: []config.RuleCondition{{Field: "operation", Operator: config.OperatorExists}},
		},
	}
}

type stubProvider struct {
	plan *AIPlan
	err  error
}

func (s *stubProvider) Name() string { return "stub" }
func (s *stubProvider) Reason(_ context.Context, _ map[string]interface{}, _ []AgentDescriptor) (*AIReasonResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.plan == nil {
		return &AIReasonResult{}, nil
	}
	return &AIReasonResult{Plan: s.plan}, nil
}

type panicIfCalledProvider struct{}

func (panicIfCalledProvider) Name() string { return "panic" }
func (panicIfCalledProvider) Reason(context.Context, map[string]interface{}, []AgentDescriptor) (*AIReasonResult, error) {
	panic("AI provider must not be consulted when rule confidence already meets the threshold")
}

func TestHybridReasonerSkipsAIWhenRuleConfidenceMeetsThreshold(t *testing.T) {
	rules := NewRuleEngine(highConfidenceRule(), nil)
	ai := NewAIReasoner(panicIfCalledProvider{}, nil)
	h := NewHybridReasoner(config.ReasoningModeHybrid, 0.7, rules, ai, nil)

	plan := h.Reason(context.Background(), map[string]interface{}{"operation": "add"}, nil)
	require.NotNil(t, plan)
	assert.Equal(t, MethodRule, plan.Method)
	assert.Equal(t, 0.95, plan.Confidence)
}

func TestHybridReasonerConsultsAIWhenRuleConfidenceLow(t *testing.T) {
	rules := NewRuleEngine(weakConfidenceRule(), nil)
	aiPlan := &AIPlan{Agents: []string{"search"}, Confidence: 0.85, Reasoning: "ai chose search"}
	ai := NewAIReasoner(&stubProvider{plan: aiPlan}, nil)
	h := NewHybridReasoner(config.ReasoningModeHybrid, 0.7, rules, ai, nil)

	plan := h.Reason(context.Background(), map[string]interface{}{"operation": "add"}, []AgentDescriptor{{Name: "search"}})
	require.NotNil(t, plan)
	assert.Equal(t, MethodHybrid, plan.Method)
	assert.Equal(t, []string{"search"}, plan.Agents)
}

func TestHybridReasonerFallsBackToRuleWithMultiplier(t *testing.T) {
	rules := NewRuleEngine(weakConfidenceRule(), nil)
	// AI returns a plan referencing an unknown agent -> invalid -> "no plan".
	aiPlan := &AIPlan{Agents: []string{"nonexistent"}, Confidence: 0.9}
	ai := NewAIReasoner(&stubProvider{plan: aiPlan}, nil)
	h := NewHybridReasoner(config.ReasoningModeHybrid, 0.7, rules, ai, nil)

	plan := h.Reason(context.Background(), map[string]interface{}{"operation": "add"}, []AgentDescriptor{{Name: "search"}})
	require.NotNil(t, plan)
	assert.Equal(t, MethodRuleFallback, plan.Method)
	assert.InDelta(t, 0.4*ruleFallbackConfidenceMultiplier, plan.Confidence, 0.0001)
}

func TestHybridReasonerReturnsNilWhenBothFail(t *testing.T) {
	rules := NewRuleEngine(nil, nil)
	ai := NewAIReasoner(&stubProvider{}, nil)
	h := NewHybridReasoner(config.ReasoningModeHybrid, 0.7, rules, ai, nil)

	plan := h.Reason(context.Background(), map[string]interface{}{"query": "nothing matches"}, nil)
	assert.Nil(t, plan)
}

func TestParameterKeyForSingleVsRepeatedOccurrence(t *testing.T) {
	assert.Equal(t, "weather", ParameterKeyFor("weather", 1, 1))
	assert.Equal(t, "weather_1", ParameterKeyFor("weather", 1, 2))
	assert.Equal(t, "weather_2", ParameterKeyFor("weather", 2, 2))
}
