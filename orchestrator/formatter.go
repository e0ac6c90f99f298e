// Package orchestrator implements the output formatter (C8) and
// orchestration controller (C9) from spec.md §4.7/§4.8, grounded on the
// teacher's request-pipeline shape (core/orchestrator.go's intake → plan →
// execute → respond staging) generalized to the full reasoning/validation/
// policy/security pipeline this spec requires.
package orchestrator

import (
	"time"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/reasoning"
)

// ReasoningMetadata is the `_metadata.reasoning` block attached to every
// aggregate response, per spec.md §4.7.
type ReasoningMetadata struct {
	Method     reasoning.ReasoningMethod `json:"method"`
	Confidence float64                   `json:"confidence"`
	Reasoning  string                    `json:"explanation"`
	Parallel   bool                      `json:"parallel"`
	Agents     []string                  `json:"selected_agents"`
}

// Envelope is the uniform public response shape (spec.md §7: "The public
// response is always a JSON envelope"). Confidence scores never appear
// here (Testable Property 6) — those are logged, not returned.
type Envelope struct {
	Success  bool                   `json:"success"`
	Data     map[string]interface{} `json:"data"`
	Error    string                 `json:"error,omitempty"`
	Errors   map[string]string      `json:"errors,omitempty"`
	Metadata map[string]interface{} `json:"_metadata"`
}

// FormatSingle produces the single-response shape from spec.md §4.7:
// {success, data, error?, _metadata:{agent, timestamp, execution_time,
// request_id, ...}}.
func FormatSingle(resp agentcore.AgentResponse, requestID string, extraMetadata map[string]interface{}) Envelope {
	meta := map[string]interface{}{
		"agent":          resp.AgentName,
		"timestamp":      resp.Timestamp,
		"execution_time": resp.ExecutionTime,
		"request_id":     requestID,
	}
	for k, v := range extraMetadata {
		meta[k] = v
	}
	return Envelope{
		Success:  resp.Success,
		Data:     resp.Data,
		Error:    resp.Error,
		Metadata: meta,
	}
}

// AggregateInput is one agent's contribution to an aggregate response, in
// plan dispatch order (spec.md §5's "indexed join, not completion order").
type AggregateInput struct {
	AgentName string
	Response  agentcore.AgentResponse
}

// FormatAggregate produces the multi-agent shape from spec.md §4.7: data
// keyed by agent name, success = AND over responses, and metadata carrying
// counts, agent_trail, timing, and the reasoning decision.
func FormatAggregate(inputs []AggregateInput, plan *reasoning.Plan, requestID string, startedAt time.Time) Envelope {
	data := make(map[string]interface{}, len(inputs))
	errs := map[string]string{}
	trail := make([]string, 0, len(inputs))
	successCount, failCount := 0, 0
	var totalExec, maxExec float64
	overallSuccess := len(inputs) > 0

	for _, in := range inputs {
		trail = append(trail, in.AgentName)
		data[in.AgentName] = in.Response.Data
		totalExec += in.Response.ExecutionTime
		if in.Response.ExecutionTime > maxExec {
			maxExec = in.Response.ExecutionTime
		}
		if in.Response.Success {
			successCount++
		} else {
			failCount++
			overallSuccess = false
			if in.Response.Error != "" {
				errs[in.AgentName] = in.Response.Error
			}
		}
	}

	var reasoningMeta ReasoningMetadata
	if plan != nil {
		reasoningMeta = ReasoningMetadata{
			Method:     plan.Method,
			Confidence: plan.Confidence,
			Reasoning:  plan.Reasoning,
			Parallel:   plan.Parallel,
			Agents:     plan.Agents,
		}
	}

	meta := map[string]interface{}{
		"count":                 len(inputs),
		"successful":            successCount,
		"failed":                failCount,
		"agent_trail":           trail,
		"total_execution_time":  totalExec,
		"max_execution_time":    maxExec,
		"timestamp":             time.Now(),
		"request_id":            requestID,
		"reasoning":             reasoningMeta,
	}

	env := Envelope{
		Success:  overallSuccess,
		Data:     data,
		Metadata: meta,
	}
	if len(errs) > 0 {
		env.Errors = errs
	}
	return env
}

// FormatError produces the error-output wrapper from spec.md §4.7:
// {success:false, error, data:{}, _metadata:{...}}. Deterministic given
// identical inputs except for the timestamp, satisfying Testable Property
// 10 (idempotent formatting modulo timestamps).
func FormatError(message, requestID string, extraMetadata map[string]interface{}) Envelope {
	meta := map[string]interface{}{
		"request_id": requestID,
		"timestamp":  time.Now(),
	}
	for k, v := range extraMetadata {
		meta[k] = v
	}
	return Envelope{
		Success:  false,
		Error:    message,
		Data:     map[string]interface{}{},
		Metadata: meta,
	}
}
