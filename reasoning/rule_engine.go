// Package reasoning implements the rule engine (C2), AI reasoner (C3), and
// hybrid reasoner (C4) from spec.md §4.2-4.4, grounded on the teacher's
// capability-matching and plan-construction idioms in
// orchestration/orchestrator.go, enriched with the exact matching semantics
// of the Python original's agent_orchestrator/reasoning/rule_engine.py.
package reasoning

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/config"
)

// RuleMatch is one rule's result against a request, per spec.md §3.
type RuleMatch struct {
	RuleName     string
	Confidence   float64
	TargetAgents []string
	Why          []string
}

// RuleEngine evaluates priority-ordered rules over request fields, per
// spec.md §4.2. Regex patterns are compiled once at load time and cached,
// grounded on rule_engine.py's `_compile_patterns` (cache key
// "{rule}_{field}_{value}") — a missing/invalid pattern degrades to "no
// match" rather than erroring, and is logged once at load.
type RuleEngine struct {
	mu      sync.RWMutex
	rules   []config.RuleDefinition
	pattern map[string]*regexp.Regexp
	logger  agentcore.Logger

	evaluations int64
	matches     int64
}

// NewRuleEngine compiles rules' regex conditions and returns a ready engine.
func NewRuleEngine(rules []config.RuleDefinition, logger agentcore.Logger) *RuleEngine {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	e := &RuleEngine{logger: logger}
	e.load(rules)
	return e
}

// Reload atomically swaps in a new rule set and recompiles patterns,
// supporting the SIGHUP hot-reload described in SPEC_FULL.md.
func (e *RuleEngine) Reload(rules []config.RuleDefinition) {
	e.load(rules)
}

func (e *RuleEngine) load(rules []config.RuleDefinition) {
	patterns := make(map[string]*regexp.Regexp)
	for _, rule := range rules {
		for _, cond := range rule.Conditions {
			if cond.Operator != config.OperatorRegex {
				continue
			}
			key := patternKey(rule.Name, cond.Field, cond.Value)
			expr := cond.Value
			if !cond.CaseSensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				e.logger.Warn("rule_engine: invalid regex pattern, rule will never match on this condition", map[string]interface{}{
					"rule": rule.Name, "field": cond.Field, "pattern": cond.Value, "error": err.Error(),
				})
				continue
			}
			patterns[key] = re
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = config.RulesFileConfig{Rules: rules}.GetSortedRules()
	e.pattern = patterns
}

func patternKey(rule, field, value string) string {
	return fmt.Sprintf("%s_%s_%s", rule, field, value)
}

// Evaluate returns every enabled rule whose conditions match, in descending
// priority order (ties broken by insertion order, per spec.md §4.2 and
// Testable Property 7). It never returns an error: a request is just a
// mapping to probe.
func (e *RuleEngine) Evaluate(request map[string]interface{}) []RuleMatch {
	e.mu.RLock()
	rules := e.rules
	patterns := e.pattern
	e.mu.RUnlock()

	e.mu.Lock()
	e.evaluations++
	e.mu.Unlock()

	var matches []RuleMatch
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		ok, why := evaluateRule(rule, request, patterns)
		if !ok {
			continue
		}
		matches = append(matches, RuleMatch{
			RuleName:     rule.Name,
			Confidence:   rule.Confidence,
			TargetAgents: rule.TargetAgents,
			Why:          why,
		})
	}

	if len(matches) > 0 {
		e.mu.Lock()
		e.matches++
		e.mu.Unlock()
	}
	return matches
}

// GetBestMatch returns the highest-priority match (ties keep the rule
// listed first — Evaluate is already priority-ordered).
func (e *RuleEngine) GetBestMatch(request map[string]interface{}) (RuleMatch, bool) {
	matches := e.Evaluate(request)
	if len(matches) == 0 {
		return RuleMatch{}, false
	}
	return matches[0], true
}

// GetHighConfidenceMatches filters Evaluate's results to those at or above
// threshold.
func (e *RuleEngine) GetHighConfidenceMatches(request map[string]interface{}, threshold float64) []RuleMatch {
	var out []RuleMatch
	for _, m := range e.Evaluate(request) {
		if m.Confidence >= threshold {
			out = append(out, m)
		}
	}
	return out
}

// Stats reports evaluation counters for GET /stats.
func (e *RuleEngine) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]interface{}{
		"rule_count":  len(e.rules),
		"evaluations": e.evaluations,
		"matches":     e.matches,
	}
}

// evaluateRule combines its conditions per rule.Logic. NOT is NAND across
// ALL conditions (!all(results)), not a per-condition negation — this
// mirrors rule_engine.py exactly, which is easy to get wrong by negating
// each condition individually instead.
func evaluateRule(rule config.RuleDefinition, request map[string]interface{}, patterns map[string]*regexp.Regexp) (bool, []string) {
	results := make([]bool, len(rule.Conditions))
	var why []string
	for i, cond := range rule.Conditions {
		ok := evaluateCondition(rule.Name, cond, request, patterns)
		results[i] = ok
		if ok {
			why = append(why, conditionWhy(cond))
		}
	}

	if len(results) == 0 {
		return false, nil
	}

	switch rule.Logic {
	case config.RuleOperatorOR:
		for _, r := range results {
			if r {
				return true, why
			}
		}
		return false, nil
	case config.RuleOperatorNOT:
		allTrue := true
		for _, r := range results {
			if !r {
				allTrue = false
				break
			}
		}
		matched := !allTrue
		if !matched {
			return false, nil
		}
		return true, why
	default: // AND
		for _, r := range results {
			if !r {
				return false, nil
			}
		}
		return true, why
	}
}

func conditionWhy(cond config.RuleCondition) string {
	return fmt.Sprintf("%s %s %q", cond.Field, cond.Operator, cond.Value)
}

func evaluateCondition(ruleName string, cond config.RuleCondition, request map[string]interface{}, patterns map[string]*regexp.Regexp) bool {
	value, found := resolveDottedPath(request, cond.Field)

	switch cond.Operator {
	case config.OperatorExists:
		return found && value != nil
	case config.OperatorRegex:
		if !found {
			return false
		}
		re, ok := patterns[patternKey(ruleName, cond.Field, cond.Value)]
		if !ok {
			return false
		}
		return re.MatchString(stringify(value))
	case config.OperatorContains:
		if !found {
			return false
		}
		haystack, needle := stringify(value), cond.Value
		if !cond.CaseSensitive {
			haystack, needle = strings.ToLower(haystack), strings.ToLower(needle)
		}
		return strings.Contains(haystack, needle)
	case config.OperatorEquals:
		if !found {
			return false
		}
		left, right := stringify(value), cond.Value
		if !cond.CaseSensitive {
			left, right = strings.ToLower(left), strings.ToLower(right)
		}
		return left == right
	default:
		return false
	}
}

// resolveDottedPath walks a.b.c through nested map[string]interface{}
// values; a missing intermediate key yields (nil, false).
func resolveDottedPath(request map[string]interface{}, field string) (interface{}, bool) {
	parts := strings.Split(field, ".")
	var cur interface{} = request
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
