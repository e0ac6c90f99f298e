package policy

import "strings"

// mapQueryToCategory heuristically classifies a user query (and, as a
// fallback, an agent name) into an ActionCategory, mirroring the Python
// original's map_query_to_action_category
// (agent_orchestrator/evaluators/registry.py) keyword-by-keyword.
func mapQueryToCategory(query, agentName string) ActionCategory {
	q := strings.ToLower(query)

	if containsAny(q, "change address", "update address", "move", "relocate") {
		return CategoryAddressChange
	}
	if containsAny(q, "change password", "update password", "reset password") {
		return CategoryPasswordChange
	}
	if containsAny(q, "change payment", "update payment", "add card", "remove card") {
		return CategoryPaymentMethodChange
	}
	if containsAny(q, "order card", "request card", "new card") {
		return CategoryCardOrder
	}
	if containsAny(q, "transfer", "send money", "pay", "payment") {
		if containsAny(q, "$10000", "$5000", "10000", "5000", "large") {
			return CategoryHighValueTransaction
		}
		return CategoryTransfer
	}
	if containsAny(q, "buy", "purchase", "order") {
		return CategoryPurchase
	}
	if containsAny(q, "close account", "delete account", "cancel account") {
		return CategoryAccountClosure
	}

	if agentName != "" {
		a := strings.ToLower(agentName)
		if strings.Contains(a, "transaction") {
			return CategoryHighValueTransaction
		}
		if strings.Contains(a, "payment") || strings.Contains(a, "card") {
			return CategoryCardOrder
		}
	}

	if containsAny(q, "what", "how", "when", "where", "search", "find", "tell") {
		return CategoryQuery
	}
	return CategoryOther
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
