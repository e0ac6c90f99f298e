package reasoning

import (
	"context"
	"strconv"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/config"
)

// ReasoningMethod identifies how a Plan was produced, per spec.md §3.
type ReasoningMethod string

const (
	MethodRule         ReasoningMethod = "rule"
	MethodAI           ReasoningMethod = "ai"
	MethodHybrid       ReasoningMethod = "hybrid"
	MethodRuleFallback ReasoningMethod = "rule_fallback"
)

// ruleFallbackConfidenceMultiplier is applied whenever the hybrid reasoner
// falls back to a rule match after the AI path fails.
//
// The Python original (hybrid_reasoner.py) applies this only when the AI
// reasoner returns no plan at all, and leaves confidence unchanged when the
// AI *did* return a plan but it failed validation. spec.md §4.4 describes a
// single unified rule_fallback path without that asymmetry ("If the AI
// fails but a rule match exists, accept it with method=rule_fallback and
// multiply its confidence by 0.8"), so this implementation applies the
// multiplier uniformly to both cases. See DESIGN.md.
const ruleFallbackConfidenceMultiplier = 0.8

// Plan is the output of reasoning, per spec.md §3.
type Plan struct {
	Agents     []string
	Confidence float64
	Method     ReasoningMethod
	Parallel   bool
	Parameters map[string]map[string]interface{}
	Reasoning  string

	MatchedRules []string
	RawAIPlan    *AIPlan
}

// HybridReasoner composes the rule engine (C2) and AI reasoner (C3) per
// spec.md §4.4.
type HybridReasoner struct {
	mode                    config.ReasoningMode
	ruleConfidenceThreshold float64
	rules                   *RuleEngine
	ai                      *AIReasoner
	logger                  agentcore.Logger
}

// NewHybridReasoner wires the rule and AI reasoners under the configured
// mode.
func NewHybridReasoner(mode config.ReasoningMode, ruleConfidenceThreshold float64, rules *RuleEngine, ai *AIReasoner, logger agentcore.Logger) *HybridReasoner {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &HybridReasoner{
		mode:                    mode,
		ruleConfidenceThreshold: ruleConfidenceThreshold,
		rules:                   rules,
		ai:                      ai,
		logger:                  logger,
	}
}

// Reason produces a Plan for request given the currently available agents
// (already filtered by the circuit breaker per spec.md §4.8 step 5). A nil
// Plan means reasoning failed entirely (spec.md §7: Reasoning errors are
// terminal).
func (h *HybridReasoner) Reason(ctx context.Context, request map[string]interface{}, agents []AgentDescriptor) *Plan {
	switch h.mode {
	case config.ReasoningModeRule:
		return h.reasonRuleOnly(request)
	case config.ReasoningModeAI:
		return h.reasonAIOnly(ctx, request, agents)
	default:
		return h.reasonHybrid(ctx, request, agents)
	}
}

func (h *HybridReasoner) reasonRuleOnly(request map[string]interface{}) *Plan {
	match, ok := h.rules.GetBestMatch(request)
	if !ok {
		return nil
	}
	return planFromRuleMatch(match, MethodRule)
}

func (h *HybridReasoner) reasonAIOnly(ctx context.Context, request map[string]interface{}, agents []AgentDescriptor) *Plan {
	if h.ai == nil {
		return nil
	}
	result, err := h.ai.Reason(ctx, request, agents)
	if err != nil || result == nil {
		return nil
	}
	return planFromAIPlan(result.Plan, MethodAI)
}

func (h *HybridReasoner) reasonHybrid(ctx context.Context, request map[string]interface{}, agents []AgentDescriptor) *Plan {
	ruleMatch, haveRuleMatch := h.rules.GetBestMatch(request)

	if haveRuleMatch && ruleMatch.Confidence >= h.ruleConfidenceThreshold {
		return planFromRuleMatch(ruleMatch, MethodRule)
	}

	if h.ai != nil {
		result, err := h.ai.Reason(ctx, request, agents)
		if err == nil && result != nil && result.Plan != nil {
			return planFromAIPlan(result.Plan, MethodHybrid)
		}
	}

	if !haveRuleMatch {
		return nil
	}

	fallback := planFromRuleMatch(ruleMatch, MethodRuleFallback)
	fallback.Confidence *= ruleFallbackConfidenceMultiplier
	return fallback
}

func planFromRuleMatch(match RuleMatch, method ReasoningMethod) *Plan {
	return &Plan{
		Agents:       match.TargetAgents,
		Confidence:   match.Confidence,
		Method:       method,
		Parallel:     true,
		Parameters:   map[string]map[string]interface{}{},
		Reasoning:    "rule match: " + match.RuleName,
		MatchedRules: []string{match.RuleName},
	}
}

func planFromAIPlan(plan *AIPlan, method ReasoningMethod) *Plan {
	parallel := true
	if plan.Parallel != nil {
		parallel = *plan.Parallel
	}
	params := plan.Parameters
	if params == nil {
		params = map[string]map[string]interface{}{}
	}
	return &Plan{
		Agents:     plan.Agents,
		Confidence: plan.Confidence,
		Method:     method,
		Parallel:   parallel,
		Parameters: params,
		Reasoning:  plan.Reasoning,
		RawAIPlan:  plan,
	}
}

// ParameterKeyFor resolves the parameters key for the i-th (1-based)
// occurrence of agentName within an ordered-multiset plan, per spec.md
// §4.4: single occurrences use "name"; repeats use "name_k".
func ParameterKeyFor(agentName string, occurrence, totalOccurrences int) string {
	if totalOccurrences <= 1 {
		return agentName
	}
	return keyWithSuffix(agentName, occurrence)
}

func keyWithSuffix(name string, occurrence int) string {
	return name + "_" + strconv.Itoa(occurrence)
}
