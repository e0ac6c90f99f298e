// Package policy implements the policy evaluator (C10) from spec.md §4.9:
// an action-history store plus stateless evaluators that deny a request
// when it collides with a user's recent or counted actions. Grounded on
// the Python original's agent_orchestrator/evaluators package, generalized
// to Go in the teacher's rule-engine idiom (reasoning.RuleEngine's
// config-ordered evaluation loop).
package policy

import "time"

// ActionCategory classifies a user action for policy evaluation, per
// spec.md §4.9.
type ActionCategory string

const (
	CategoryProfileChange        ActionCategory = "profile_change"
	CategoryAddressChange        ActionCategory = "address_change"
	CategoryPaymentMethodChange  ActionCategory = "payment_method_change"
	CategoryHighValueTransaction ActionCategory = "high_value_transaction"
	CategoryCardOrder            ActionCategory = "card_order"
	CategoryAccountClosure       ActionCategory = "account_closure"
	CategoryPasswordChange       ActionCategory = "password_change"
	CategoryTransfer             ActionCategory = "transfer"
	CategoryPurchase             ActionCategory = "purchase"
	CategoryQuery                ActionCategory = "query"
	CategoryOther                ActionCategory = "other"
)

// UserAction is a single recorded action against a user's history.
type UserAction struct {
	UserID     string                 `json:"user_id"`
	ActionType string                 `json:"action_type"`
	Category   ActionCategory         `json:"action_category"`
	Timestamp  time.Time              `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
	AgentName  string                 `json:"agent_name,omitempty"`
	Success    bool                   `json:"success"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// AgeHours is how long ago this action happened, in hours.
func (a UserAction) AgeHours() float64 {
	return time.Since(a.Timestamp).Hours()
}

// EvaluationResult is the outcome of a single evaluator or of the full
// registry run, per spec.md §4.9.
type EvaluationResult struct {
	Allowed       bool
	Reason        string
	EvaluatorName string
	BlockedUntil  *time.Time
	Metadata      map[string]interface{}
}

// Allow is the zero-friction "no objection" result every evaluator and the
// registry itself return when nothing is triggered.
func Allow() EvaluationResult {
	return EvaluationResult{Allowed: true}
}
