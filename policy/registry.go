package policy

import (
	"context"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/config"
	"github.com/neelabh-labs/agentorch/orchestrator"
)

// Registry runs its evaluators against an ActionHistory in configuration
// order, per spec.md §4.9. It satisfies orchestrator.PolicyGate, so a
// *Registry can be assigned directly to Controller.Policy.
//
// Grounded on the Python original's EvaluatorRegistry
// (agent_orchestrator/evaluators/registry.go): same load-from-config,
// run-in-order, log-and-continue-on-error, stop-on-first-denial shape.
type Registry struct {
	history         ActionHistory
	evaluators      []Evaluator
	stopOnFirstDeny bool
	logger          agentcore.Logger
}

// NewRegistry builds a Registry over history, wiring evaluators from cfg in
// file order. Unknown evaluator types are skipped with a warning, matching
// the Python original's "Unknown evaluator type" log-and-continue.
func NewRegistry(history ActionHistory, cfg *config.PolicyFileConfig, stopOnFirstDeny bool, logger agentcore.Logger) *Registry {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	r := &Registry{history: history, stopOnFirstDeny: stopOnFirstDeny, logger: logger}
	if cfg == nil {
		return r
	}
	for _, def := range cfg.Evaluators {
		switch def.Type {
		case config.EvaluatorTimedRestriction:
			r.evaluators = append(r.evaluators, NewTimedRestrictionEvaluator(def.Name, def.Enabled, def.Restrictions))
		case config.EvaluatorRateLimit:
			r.evaluators = append(r.evaluators, NewRateLimitEvaluator(def.Name, def.Enabled, def.Limits))
		case config.EvaluatorThreshold:
			r.evaluators = append(r.evaluators, NewThresholdEvaluator(def.Name, def.Enabled, def.Thresholds))
		default:
			logger.Warn("policy: unknown evaluator type, skipping", map[string]interface{}{"name": def.Name, "type": string(def.Type)})
		}
	}
	return r
}

// Register appends a custom evaluator, for callers that build one outside
// policy.yaml (the Python original's register_custom_evaluator_type, made
// instance-scoped since Go has no class-level registry mutation idiom).
func (r *Registry) Register(e Evaluator) {
	r.evaluators = append(r.evaluators, e)
}

// Evaluate runs every enabled evaluator in order, per spec.md §4.9:
// evaluator errors are impossible by construction here (Evaluate has no
// error return), so the only "log-and-continue" path is the unknown-type
// skip in NewRegistry. No evaluators configured allows by default.
func (r *Registry) Evaluate(ctx context.Context, userID string, request map[string]interface{}) orchestrator.PolicyDecision {
	category := CategoryFromRequest(request)
	for _, e := range r.evaluators {
		if !e.Enabled() {
			continue
		}
		result := e.Evaluate(ctx, userID, category, request, r.history)
		if !result.Allowed {
			r.logger.Warn("policy: action denied", map[string]interface{}{
				"user_id": userID, "evaluator": result.EvaluatorName, "reason": result.Reason,
			})
			if r.stopOnFirstDeny {
				return toDecision(result)
			}
		}
	}
	return orchestrator.PolicyDecision{Allowed: true}
}

// RecordAction records a successful (or failed) action to the history, so
// subsequent policy checks see it. Per spec.md §4.9: "After a successful
// action is carried out by the controller, the controller MAY record the
// action". Exposed here rather than auto-invoked, matching the Open
// Question decision in SPEC_FULL.md §14.3 (controller-level opt-in flag).
func (r *Registry) RecordAction(userID, actionType string, category ActionCategory, details map[string]interface{}, agentName string, success bool) {
	r.history.Record(UserAction{
		UserID: userID, ActionType: actionType, Category: category,
		Details: details, AgentName: agentName, Success: success,
	})
}

func toDecision(result EvaluationResult) orchestrator.PolicyDecision {
	return orchestrator.PolicyDecision{Allowed: result.Allowed, Reason: result.Reason, BlockedUntil: result.BlockedUntil}
}

// CategoryFromRequest maps a request's declared action_category (if
// present) or its query text / agent name to an ActionCategory, mirroring
// the Python original's map_query_to_action_category heuristics.
func CategoryFromRequest(request map[string]interface{}) ActionCategory {
	if cat, ok := request["action_category"].(string); ok && cat != "" {
		return ActionCategory(cat)
	}

	query, _ := request["query"].(string)
	agentName, _ := request["agent_name"].(string)
	return mapQueryToCategory(query, agentName)
}
