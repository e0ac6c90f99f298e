// Package validation implements the response validator (C7) from
// spec.md §4.6, grounded directly on the Python original's
// agent_orchestrator/validation/response_validator.py for the exact
// four-layer algorithm and confidence-score formula, and on the teacher's
// ai package for the optional AI-hallucination gateway shape.
package validation

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/neelabh-labs/agentorch/agentcore"
)

// ValidationResult is the output of Validate, per spec.md §3.
type ValidationResult struct {
	IsValid               bool
	ConfidenceScore       float64
	HallucinationDetected bool
	Issues                []string
	Details               map[string]interface{}
}

// AIHallucinationChecker is the optional layer-4 gateway: a deterministic
// prompt that scores relevance/accuracy/consistency/completeness and
// flags hallucinations, per spec.md §4.6 item 4. A JSON parse failure
// degrades gracefully to "not detected" rather than erroring.
type AIHallucinationChecker interface {
	CheckHallucination(ctx context.Context, userQuery map[string]interface{}, agentResponses map[string]interface{}) (detected bool, raw string, err error)
}

// ResponseValidator runs the four ordered layers from spec.md §4.6.
type ResponseValidator struct {
	aiChecker           AIHallucinationChecker
	confidenceThreshold float64
	logger              agentcore.Logger
}

// NewResponseValidator builds a validator. aiChecker may be nil, in which
// case layer 4 is skipped entirely (graceful degradation per spec.md §9:
// "Missing AI provider → fall back to rule-only ... validation").
func NewResponseValidator(aiChecker AIHallucinationChecker, confidenceThreshold float64, logger agentcore.Logger) *ResponseValidator {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &ResponseValidator{aiChecker: aiChecker, confidenceThreshold: confidenceThreshold, logger: logger}
}

// Validate runs basic, consistency, rule-based-hallucination, and optional
// AI-hallucination checks in order, then computes the confidence score.
func (v *ResponseValidator) Validate(ctx context.Context, userQuery map[string]interface{}, agentResponses map[string]interface{}) ValidationResult {
	var issues []string
	details := map[string]interface{}{}

	basicValid, basicIssues := basicValidation(agentResponses)
	issues = append(issues, basicIssues...)
	details["basic_validation"] = map[string]interface{}{"passed": basicValid, "issues": basicIssues}

	consistencyValid, consistencyIssues := checkConsistency(agentResponses)
	issues = append(issues, consistencyIssues...)
	details["consistency_check"] = map[string]interface{}{"passed": consistencyValid, "issues": consistencyIssues}

	ruleHallucination, ruleIssues := ruleBasedHallucinationCheck(userQuery, agentResponses)
	details["rule_based_hallucination"] = map[string]interface{}{"detected": ruleHallucination, "issues": ruleIssues}

	aiHallucination := false
	if v.aiChecker != nil {
		detected, raw, err := v.aiChecker.CheckHallucination(ctx, userQuery, agentResponses)
		if err != nil {
			v.logger.Warn("validation: AI hallucination check failed, treating as not detected", map[string]interface{}{"error": err.Error()})
		} else {
			aiHallucination = detected
			details["ai_hallucination_raw"] = raw
		}
	}

	hallucinationDetected := ruleHallucination || aiHallucination
	if hallucinationDetected {
		issues = append(issues, "Potential hallucination detected in response")
	}

	confidence := calculateConfidence(basicValid, consistencyValid, hallucinationDetected, agentResponses)
	details["confidence_calculation"] = map[string]interface{}{
		"score": confidence, "threshold": v.confidenceThreshold, "meets_threshold": confidence >= v.confidenceThreshold,
	}

	isValid := basicValid && consistencyValid && !hallucinationDetected && confidence >= v.confidenceThreshold

	return ValidationResult{
		IsValid:               isValid,
		ConfidenceScore:       confidence,
		HallucinationDetected: hallucinationDetected,
		Issues:                issues,
		Details:               details,
	}
}

// basicValidation mirrors _basic_validation: non-empty responses plus
// per-agent-name schema hints (calculator needs "result", search needs
// "results", data_processor needs one of processed_data/filtered_results/
// aggregations).
func basicValidation(agentResponses map[string]interface{}) (bool, []string) {
	var issues []string
	if len(agentResponses) == 0 {
		return false, []string{"No agent responses to validate"}
	}

	for name, raw := range agentResponses {
		if isEmptyValue(raw) {
			issues = append(issues, name+": Empty response")
			continue
		}
		data, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if errVal, ok := data["error"]; ok && !isEmptyValue(errVal) {
			issues = append(issues, name+": Response contains error")
		}

		switch name {
		case "calculator":
			if _, ok := data["result"]; !ok {
				issues = append(issues, name+": Missing 'result' field")
			}
		case "search":
			if _, ok := data["results"]; !ok {
				issues = append(issues, name+": Missing 'results' field")
			}
		case "data_processor":
			if !hasAnyKey(data, "processed_data", "filtered_results", "aggregations") {
				issues = append(issues, name+": Missing expected data fields")
			}
		}
	}

	return len(issues) == 0, issues
}

// checkConsistency mirrors _check_consistency: numeric max/min ratio above
// 1000x flags inconsistency, and a downstream item count exceeding an
// upstream item count flags inconsistency.
func checkConsistency(agentResponses map[string]interface{}) (bool, []string) {
	var issues []string
	if len(agentResponses) <= 1 {
		return true, issues
	}

	numericResults := map[string]float64{}
	for name, raw := range agentResponses {
		data, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if result, ok := data["result"]; ok {
			if f, ok := asFloat(result); ok {
				numericResults[name] = f
			}
		}
	}
	if len(numericResults) > 1 {
		maxVal, minVal := math.Inf(-1), math.Inf(1)
		for _, v := range numericResults {
			if v > maxVal {
				maxVal = v
			}
			if v < minVal {
				minVal = v
			}
		}
		if maxVal > 0 && minVal > 0 && maxVal/minVal > 1000 {
			issues = append(issues, "Inconsistent numeric results across agents")
		}
	}

	var searchCount, processCount *int
	if searchData, ok := agentResponses["search"].(map[string]interface{}); ok {
		if results, ok := searchData["results"].([]interface{}); ok {
			n := len(results)
			searchCount = &n
		}
	}
	if processData, ok := agentResponses["data_processor"].(map[string]interface{}); ok {
		for _, field := range []string{"processed_data", "filtered_results", "results"} {
			if data, ok := processData[field].([]interface{}); ok {
				n := len(data)
				processCount = &n
				break
			}
		}
	}
	if searchCount != nil && processCount != nil && *processCount > *searchCount {
		issues = append(issues, "Data processor returned more items than search provided")
	}

	return len(issues) == 0, issues
}

// ruleBasedHallucinationCheck mirrors _rule_based_hallucination_check:
// infinite calculator results, operation/query-keyword mismatch, and
// zero-keyword-overlap search results.
func ruleBasedHallucinationCheck(userQuery map[string]interface{}, agentResponses map[string]interface{}) (bool, []string) {
	var issues []string
	detected := false

	queryText := strings.ToLower(stringField(userQuery, "query"))

	if calc, ok := agentResponses["calculator"].(map[string]interface{}); ok {
		if result, ok := calc["result"]; ok && result != nil {
			if f, ok := asFloat(result); ok && math.IsInf(f, 0) {
				issues = append(issues, "Calculator returned infinity (possible error)")
				detected = true
			}
			operation, _ := calc["operation"].(string)
			if strings.Contains(queryText, "add") || strings.Contains(queryText, "sum") || strings.Contains(queryText, "+") {
				if operation != "add" && operation != "addition" && operation != "sum" {
					issues = append(issues, "Operation mismatch: query suggests 'add' but got '"+operation+"'")
					detected = true
				}
			}
		}
	}

	if search, ok := agentResponses["search"].(map[string]interface{}); ok {
		results, _ := search["results"].([]interface{})
		keywords := queryKeywords(queryText)
		if len(results) > 0 && len(keywords) > 0 {
			relevant := 0
			limit := len(results)
			if limit > 3 {
				limit = 3
			}
			for _, r := range results[:limit] {
				item, _ := r.(map[string]interface{})
				text := strings.ToLower(stringField(item, "title") + " " + stringField(item, "content"))
				for kw := range keywords {
					if strings.Contains(text, kw) {
						relevant++
						break
					}
				}
			}
			if relevant == 0 {
				issues = append(issues, "Search results appear unrelated to query keywords")
				detected = true
			}
		}
	}

	return detected, issues
}

var stopWords = map[string]bool{
	"search": true, "find": true, "for": true, "about": true, "the": true, "a": true, "an": true,
}

func queryKeywords(queryText string) map[string]bool {
	keywords := map[string]bool{}
	var word strings.Builder
	flush := func() {
		if word.Len() == 0 {
			return
		}
		w := word.String()
		if !stopWords[w] {
			keywords[w] = true
		}
		word.Reset()
	}
	for _, r := range queryText {
		if isWordRune(r) {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return keywords
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

// calculateConfidence mirrors _calculate_confidence exactly: start at 1.0,
// subtract 0.3/0.2/0.4 for basic/consistency/hallucination failures, add up
// to 0.2 for response completeness (field-count based), clamp to [0,1].
func calculateConfidence(basicValid, consistencyValid, hallucinationDetected bool, agentResponses map[string]interface{}) float64 {
	confidence := 1.0
	if !basicValid {
		confidence -= 0.3
	}
	if !consistencyValid {
		confidence -= 0.2
	}
	if hallucinationDetected {
		confidence -= 0.4
	}

	if len(agentResponses) > 0 {
		qualityScore := 0.0
		for _, raw := range agentResponses {
			data, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			switch {
			case len(data) >= 3:
				qualityScore += 0.1
			case len(data) >= 2:
				qualityScore += 0.05
			}
		}
		if qualityScore > 0.2 {
			qualityScore = 0.2
		}
		confidence += qualityScore
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case map[string]interface{}:
		return len(val) == 0
	case []interface{}:
		return len(val) == 0
	case string:
		return val == ""
	case bool:
		return !val
	default:
		return false
	}
}

func hasAnyKey(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
