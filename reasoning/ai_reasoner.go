package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neelabh-labs/agentorch/agentcore"
)

// AgentDescriptor is what the AI reasoner's prompt enumerates per
// available agent, per spec.md §4.3 ("name, capabilities, optional
// description").
type AgentDescriptor struct {
	Name         string
	Capabilities []string
	Description  string
}

// AIPlan is the raw JSON plan an AI provider is asked to emit, per
// spec.md §3 (Plan / ReasoningResult) restricted to the fields the model
// itself is responsible for.
type AIPlan struct {
	Agents     []string                          `json:"agents"`
	Reasoning  string                             `json:"reasoning"`
	Confidence float64                            `json:"confidence"`
	Parallel   *bool                              `json:"parallel,omitempty"`
	Parameters map[string]map[string]interface{} `json:"parameters,omitempty"`
}

// TokenUsage captures provider-reported token accounting for cost
// attribution, per spec.md §4.3.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIReasonResult is what an AIProvider returns for one reasoning call.
type AIReasonResult struct {
	Plan  *AIPlan
	Usage TokenUsage
}

// AIProvider is the abstraction over a language-model backend (hosted API,
// cloud inference service, or in-house gateway), per spec.md §4.3. Gateway
// implementations own their own retry policy; see reasoning/providers.
type AIProvider interface {
	// Reason asks the provider for a plan given the request and the
	// catalog of currently available agents. A nil *AIPlan with a nil
	// error means "no plan" (the provider could not or would not answer);
	// a non-nil error means a hard provider failure (network, auth, etc).
	Reason(ctx context.Context, request map[string]interface{}, agents []AgentDescriptor) (*AIReasonResult, error)
	// Name identifies the provider for logging/metrics (e.g. "openai",
	// "bedrock", "mock").
	Name() string
}

// AIReasoner wraps an AIProvider with plan validation and prompt framing,
// per spec.md §4.3. Parse failures, missing required fields, or unknown
// agent names in the plan all invalidate it — AIReasoner.Reason returns a
// nil plan rather than propagating a partially-usable one.
type AIReasoner struct {
	provider AIProvider
	logger   agentcore.Logger
}

// NewAIReasoner wraps provider for use by the hybrid reasoner.
func NewAIReasoner(provider AIProvider, logger agentcore.Logger) *AIReasoner {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &AIReasoner{provider: provider, logger: logger}
}

// Reason consults the AI provider and validates the resulting plan against
// the known agent set. A nil return means "no plan" per spec.md §4.3/§4.4.
func (r *AIReasoner) Reason(ctx context.Context, request map[string]interface{}, agents []AgentDescriptor) (*AIReasonResult, error) {
	if r.provider == nil {
		return nil, nil
	}
	result, err := r.provider.Reason(ctx, request, agents)
	if err != nil {
		r.logger.Warn("ai_reasoner: provider call failed", map[string]interface{}{"provider": r.provider.Name(), "error": err.Error()})
		return nil, nil
	}
	if result == nil || result.Plan == nil {
		return nil, nil
	}
	if !validatePlan(result.Plan, agents) {
		r.logger.Warn("ai_reasoner: plan failed validation, treating as no plan", map[string]interface{}{
			"provider": r.provider.Name(), "agents": result.Plan.Agents,
		})
		return nil, nil
	}
	return result, nil
}

func validatePlan(plan *AIPlan, agents []AgentDescriptor) bool {
	if plan == nil || len(plan.Agents) == 0 {
		return false
	}
	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a.Name] = true
	}
	for _, name := range plan.Agents {
		if !known[name] {
			return false
		}
	}
	return true
}

// ParsePlanJSON extracts a JSON plan from raw model output, accepting plans
// wrapped in a fenced code block (```json ... ``` or ``` ... ```), per
// spec.md §4.3. Returns an error if no valid JSON object can be found.
func ParsePlanJSON(raw string) (*AIPlan, error) {
	candidate := stripFence(raw)
	var plan AIPlan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		return nil, fmt.Errorf("reasoning: parse AI plan: %w", err)
	}
	if len(plan.Agents) == 0 {
		return nil, fmt.Errorf("reasoning: AI plan missing required field %q", "agents")
	}
	return &plan, nil
}

func stripFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(trimmed[:idx])
		if firstLine == "json" || firstLine == "" {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
