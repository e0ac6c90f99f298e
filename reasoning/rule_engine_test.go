package reasoning

import (
	"testing"

	"github.com/neelabh-labs/agentorch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRules() []config.RuleDefinition {
	return []config.RuleDefinition{
		{
			Name: "arithmetic", Priority: 5, Logic: config.RuleOperatorAND, Enabled: true,
			Confidence: 0.9, TargetAgents: []string{"calculator"},
			Conditions: []config.RuleCondition{
				{Field: "operation", Operator: config.OperatorExists},
			},
		},
		{
			Name: "search_keyword", Priority: 10, Logic: config.RuleOperatorOR, Enabled: true,
			Confidence: 0.8, TargetAgents: []string{"search"},
			Conditions: []config.RuleCondition{
				{Field: "query", Operator: config.OperatorContains, Value: "search"},
				{Field: "query", Operator: config.OperatorContains, Value: "find"},
			},
		},
		{
			Name: "not_internal", Priority: 1, Logic: config.RuleOperatorNOT, Enabled: true,
			Confidence: 0.5, TargetAgents: []string{"fallback"},
			Conditions: []config.RuleCondition{
				{Field: "internal", Operator: config.OperatorEquals, Value: "true"},
			},
		},
		{
			Name: "disabled_rule", Priority: 99, Logic: config.RuleOperatorAND, Enabled: false,
			Confidence: 1.0, TargetAgents: []string{"never"},
			Conditions: []config.RuleCondition{{Field: "query", Operator: config.OperatorExists}},
		},
	}
}

func TestRuleEnginePriorityOrdering(t *testing.T) {
	engine := NewRuleEngine(sampleRules(), nil)
	matches := engine.Evaluate(map[string]interface{}{
		"operation": "add",
		"query":     "please search for cats",
	})
	require.Len(t, matches, 3, "arithmetic, search_keyword, and not_internal (internal field absent) all match")
	assert.Equal(t, "search_keyword", matches[0].RuleName, "priority 10 comes first")
	assert.Equal(t, "arithmetic", matches[1].RuleName, "priority 5 comes second")
}

func TestRuleEngineDisabledRuleNeverMatches(t *testing.T) {
	engine := NewRuleEngine(sampleRules(), nil)
	matches := engine.Evaluate(map[string]interface{}{"query": "anything"})
	for _, m := range matches {
		assert.NotEqual(t, "disabled_rule", m.RuleName)
	}
}

func TestRuleEngineNotLogicIsNANDAcrossAllConditions(t *testing.T) {
	engine := NewRuleEngine(sampleRules(), nil)

	// internal=true -> all(conditions)=true -> NOT matches false -> rule does NOT fire.
	matches := engine.Evaluate(map[string]interface{}{"internal": "true"})
	for _, m := range matches {
		assert.NotEqual(t, "not_internal", m.RuleName)
	}

	// internal=false -> all(conditions)=false -> NOT matches true -> rule fires.
	matches = engine.Evaluate(map[string]interface{}{"internal": "false"})
	found := false
	for _, m := range matches {
		if m.RuleName == "not_internal" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRuleEngineDottedPathResolution(t *testing.T) {
	rules := []config.RuleDefinition{
		{
			Name: "nested", Priority: 1, Logic: config.RuleOperatorAND, Enabled: true,
			Confidence: 1.0, TargetAgents: []string{"x"},
			Conditions: []config.RuleCondition{
				{Field: "user.profile.tier", Operator: config.OperatorEquals, Value: "gold"},
			},
		},
	}
	engine := NewRuleEngine(rules, nil)

	matches := engine.Evaluate(map[string]interface{}{
		"user": map[string]interface{}{"profile": map[string]interface{}{"tier": "gold"}},
	})
	assert.Len(t, matches, 1)

	matches = engine.Evaluate(map[string]interface{}{"user": map[string]interface{}{}})
	assert.Len(t, matches, 0)
}

func TestRuleEngineInvalidRegexDegradesToNoMatch(t *testing.T) {
	rules := []config.RuleDefinition{
		{
			Name: "bad_regex", Priority: 1, Logic: config.RuleOperatorAND, Enabled: true,
			Confidence: 1.0, TargetAgents: []string{"x"},
			Conditions: []config.RuleCondition{
				{Field: "query", Operator: config.OperatorRegex, Value: "("},
			},
		},
	}
	engine := NewRuleEngine(rules, nil)
	matches := engine.Evaluate(map[string]interface{}{"query": "anything"})
	assert.Len(t, matches, 0)
}

func TestRuleEngineGetBestMatchPicksHighestPriority(t *testing.T) {
	engine := NewRuleEngine(sampleRules(), nil)
	best, ok := engine.GetBestMatch(map[string]interface{}{
		"operation": "add",
		"query":     "search cats",
	})
	require.True(t, ok)
	assert.Equal(t, "search_keyword", best.RuleName)
}
