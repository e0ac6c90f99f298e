package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/reasoning"
)

// fallbackAware is implemented by agent transports that carry a
// configured fallback agent name (agentcore.RemoteHTTPAgent), per
// spec.md §4.5.
type fallbackAware interface {
	FallbackName() string
}

// executePlan dispatches plan.Agents per spec.md §4.8 step 7.i: parallel
// plans fan out up to max_parallel_agents with an indexed join (response
// order preserves plan order, not completion order, per spec.md §5);
// sequential plans dispatch one at a time with data chaining between
// steps (spec.md Testable Property 9).
func (c *Controller) executePlan(ctx context.Context, request map[string]interface{}, plan *reasoning.Plan) []AggregateInput {
	occurrence := make(map[string]int, len(plan.Agents))
	total := make(map[string]int, len(plan.Agents))
	for _, name := range plan.Agents {
		total[name]++
	}

	results := make([]AggregateInput, len(plan.Agents))

	if !plan.Parallel {
		for i, name := range plan.Agents {
			occurrence[name]++
			params := c.buildParams(request, plan, name, occurrence[name], total[name], results[:i])
			results[i] = AggregateInput{AgentName: name, Response: c.callAgent(ctx, name, params)}
		}
		return results
	}

	maxParallel := 8
	if c.Config != nil && c.Config.MaxParallelAgents > 0 {
		maxParallel = c.Config.MaxParallelAgents
	}
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, name := range plan.Agents {
		occurrence[name]++
		params := c.buildParams(request, plan, name, occurrence[name], total[name], nil)

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string, params map[string]interface{}) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = AggregateInput{AgentName: name, Response: c.callAgent(ctx, name, params)}
		}(i, name, params)
	}
	wg.Wait()
	return results
}

// buildParams merges the base request with the agent's plan parameters
// (spec.md Testable Property 3: the i-th call to a repeated agent gets
// parameters["name_k"] merged over the base request) and, for sequential
// plans whose parameters declare data_source=previous, resolves the
// chained values from prior successful responses (Testable Property 9).
// Per spec.md §4.5, the chained values are injected as
// {operation, operands: [...]} when the step names an operation, or
// {values: [...]} when it does not.
func (c *Controller) buildParams(request map[string]interface{}, plan *reasoning.Plan, name string, occurrence, total int, prior []AggregateInput) map[string]interface{} {
	params := make(map[string]interface{}, len(request))
	for k, v := range agentcore.StripReserved(request) {
		params[k] = v
	}

	key := reasoning.ParameterKeyFor(name, occurrence, total)
	agentParams := plan.Parameters[key]
	for k, v := range agentParams {
		params[k] = v
	}

	if source, ok := params["data_source"].(string); ok && source == "previous" {
		if field, ok := params["field"].(string); ok && field != "" {
			chained := extractChainedOperands(prior, field)
			if _, hasOperation := params["operation"]; hasOperation {
				params["operands"] = chained
			} else {
				params["values"] = chained
			}
			delete(params, "data_source")
			delete(params, "field")
		}
	}

	return params
}

// extractChainedOperands collects field F from every successful response
// in prior, in order, per spec.md Testable Property 9. A weather-shaped
// response nests fields under "current" (SPEC_FULL.md §14.2's documented
// convenience path); the field is also tried at the top level.
func extractChainedOperands(prior []AggregateInput, field string) []interface{} {
	operands := make([]interface{}, 0, len(prior))
	for _, in := range prior {
		if !in.Response.Success {
			continue
		}
		if v, ok := in.Response.Data[field]; ok {
			operands = append(operands, v)
			continue
		}
		if current, ok := in.Response.Data["current"].(map[string]interface{}); ok {
			if v, ok := current[field]; ok {
				operands = append(operands, v)
			}
		}
	}
	return operands
}

// callAgent looks up name in the registry, honors the circuit breaker
// (an open breaker yields an immediate "unavailable" failure with no call
// dispatched, per spec.md §5's backpressure model), runs the bounded
// retry policy, attempts a configured fallback on exhaustion, and records
// per-agent stats and breaker state.
func (c *Controller) callAgent(ctx context.Context, name string, params map[string]interface{}) agentcore.AgentResponse {
	agent, ok := c.Registry.Get(name)
	if !ok {
		return agentcore.AgentResponse{
			Success: false, Error: "agent not registered: " + name, AgentName: name, Timestamp: time.Now(),
		}
	}

	if c.Breaker != nil && c.Breaker.IsOpen(name) {
		return agentcore.AgentResponse{
			Success: false, Error: "circuit breaker open for agent " + name, AgentName: name, Timestamp: time.Now(),
		}
	}

	timeout := c.defaultTimeout()
	if t, ok := params["timeout"].(float64); ok && t > 0 {
		timeout = time.Duration(t * float64(time.Second))
	}

	call := func(ctx context.Context) agentcore.AgentResponse {
		return agent.Call(ctx, params, timeout)
	}

	result, err := c.Retrier.Execute(ctx, call)
	if err != nil {
		result.Response = agentcore.AgentResponse{Success: false, Error: err.Error(), AgentName: name, Timestamp: time.Now()}
	}

	resp := result.Response
	if c.Breaker != nil {
		if resp.Success {
			c.Breaker.RecordSuccess(name)
		} else {
			c.Breaker.RecordFailure(name)
		}
	}
	if c.Registry != nil {
		c.Registry.RecordCall(name, resp.Success, resp.ExecutionTime)
	}

	if !resp.Success && c.Fallback != nil {
		if fa, ok := agent.(fallbackAware); ok && fa.FallbackName() != "" {
			if fallbackAgent, ok := c.Registry.Get(fa.FallbackName()); ok {
				resp = c.Fallback.Dispatch(ctx, name, fallbackAgent, params, timeout)
				if c.Registry != nil {
					c.Registry.RecordCall(fallbackAgent.Name(), resp.Success, resp.ExecutionTime)
				}
			}
		}
	}

	return resp
}

func (c *Controller) defaultTimeout() time.Duration {
	if c.Config != nil && c.Config.DefaultAgentTimeoutSeconds > 0 {
		return time.Duration(c.Config.DefaultAgentTimeoutSeconds * float64(time.Second))
	}
	return 30 * time.Second
}

