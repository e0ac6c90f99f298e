package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/config"
	"github.com/neelabh-labs/agentorch/reasoning"
	"github.com/neelabh-labs/agentorch/resilience"
	"github.com/neelabh-labs/agentorch/validation"
)

// PolicyDecision is the minimal contract the controller needs from a
// policy evaluator (C10). It is defined here rather than in the policy
// package: policy.Registry.Evaluate imports orchestrator and returns this
// named type, and orchestrator never imports policy.
type PolicyDecision struct {
	Allowed      bool
	Reason       string
	BlockedUntil *time.Time
}

// PolicyGate evaluates a request against recorded user-action history,
// per spec.md §4.9.
type PolicyGate interface {
	Evaluate(ctx context.Context, userID string, request map[string]interface{}) PolicyDecision
}

// SecurityDecision is the minimal contract the controller needs from the
// security gate (C11).
type SecurityDecision struct {
	Allowed bool
	Reason  string
}

// SecurityGate validates and sanitizes inbound requests, per spec.md §4.10.
type SecurityGate interface {
	Validate(ctx context.Context, request map[string]interface{}) SecurityDecision
}

// Controller is the orchestration pipeline (C9) from spec.md §4.8: intake
// → security gate → policy evaluator → reasoning → validation-retry loop
// → formatting → metrics/log finalization. Grounded on the teacher's
// request-pipeline staging in orchestration/orchestrator.go, generalized
// to the full pipeline this spec requires.
type Controller struct {
	Registry    *agentcore.Registry
	Reasoner    *reasoning.HybridReasoner
	Retrier     *resilience.Retrier
	Breaker     *resilience.CircuitBreaker
	Fallback    *resilience.FallbackStrategy
	Validator   *validation.ResponseValidator
	Policy      PolicyGate
	Security    SecurityGate
	Config      *config.OrchestratorConfig
	Logger      agentcore.Logger
	Metrics     agentcore.MetricsRegistry
	Telemetry   agentcore.Telemetry
	QueryLog    *QueryLogger

	mu            sync.Mutex
	initialized   bool
	activeQueries int64
}

// NewController wires a Controller from its dependencies. Optional
// dependencies (Policy, Security) may be nil and are skipped, matching
// spec.md §4.8 steps 3-4 ("(Optional)").
func NewController(deps Controller) *Controller {
	c := deps
	if c.Logger == nil {
		c.Logger = agentcore.NoOpLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = agentcore.NoOpMetrics{}
	}
	if c.Telemetry == nil {
		c.Telemetry = agentcore.NoOpTelemetry{}
	}
	if c.QueryLog == nil {
		c.QueryLog = NewQueryLogger("", c.Logger)
	}
	if c.Retrier == nil {
		c.Retrier = resilience.NewRetrier(config.DefaultRetryConfig(), c.Logger)
	}
	return &c
}

// Initialize marks the controller ready to serve requests. Per spec.md
// §4.8 step 1, HandleQuery rejects requests before this is called.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	return nil
}

// HandleQuery runs the full pipeline from spec.md §4.8 for one request and
// returns the public envelope. request is an open mapping (spec.md §9:
// "do not impose a static schema at the orchestrator boundary"). requestID
// and sessionID may be empty, in which case a request id is allocated.
func (c *Controller) HandleQuery(ctx context.Context, request map[string]interface{}, requestID, sessionID string) Envelope {
	c.mu.Lock()
	ready := c.initialized
	c.mu.Unlock()
	if !ready {
		return FormatError(agentcore.ErrNotInitialized.Error(), requestID, nil)
	}

	if requestID == "" {
		requestID = uuid.NewString()
	}
	started := time.Now()

	ctx, span := c.Telemetry.StartSpan(ctx, "orchestrator.HandleQuery")
	defer span.End()
	span.SetAttribute("request_id", requestID)
	c.Metrics.SetGauge("agentorch_active_queries", float64(atomic.AddInt64(&c.activeQueries, 1)), map[string]string{})

	record := QueryLogRecord{
		RequestID: requestID,
		SessionID: sessionID,
		Query:     request,
		StartedAt: started,
	}
	// finalize runs on every exit path, including cancellation, so the
	// active-queries gauge and duration histogram stay accurate per
	// spec.md §5's "bookkeeping counters ... MUST still be
	// decremented/updated" requirement.
	finalize := func(env Envelope) Envelope {
		c.Metrics.SetGauge("agentorch_active_queries", float64(atomic.AddInt64(&c.activeQueries, -1)), map[string]string{})
		record.FinishedAt = time.Now()
		record.Success = env.Success
		record.Error = env.Error
		c.QueryLog.Write(record)
		c.Metrics.ObserveHistogram("agentorch_query_duration_seconds", time.Since(started).Seconds(), map[string]string{"success": strconv.FormatBool(env.Success)})
		return env
	}

	// Step 3: security gate (optional).
	if c.Security != nil {
		decision := c.Security.Validate(ctx, request)
		if !decision.Allowed {
			span.RecordError(fmt.Errorf("security: %s", decision.Reason))
			record.ErrorType = "SecurityError"
			return finalize(FormatError(decision.Reason, requestID, map[string]interface{}{"error_type": "SecurityError"}))
		}
	}

	// Step 4: policy evaluator (optional).
	if c.Policy != nil {
		userID := stringField(request, "user_id")
		decision := c.Policy.Evaluate(ctx, userID, request)
		if !decision.Allowed {
			meta := map[string]interface{}{"error_type": "PolicyError", "reason": decision.Reason}
			if decision.BlockedUntil != nil {
				meta["blocked_until"] = *decision.BlockedUntil
			}
			record.ErrorType = "PolicyError"
			return finalize(FormatError(decision.Reason, requestID, meta))
		}
	}

	// Step 5: reasoning, filtered by the circuit breaker.
	available := c.availableAgentDescriptors()
	plan := c.Reasoner.Reason(ctx, request, available)
	if plan == nil || len(plan.Agents) == 0 {
		record.ErrorType = "ReasoningError"
		return finalize(FormatError(agentcore.ErrNoPlan.Error(), requestID, map[string]interface{}{"error_type": "ReasoningError"}))
	}

	record.ReasoningMethod = string(plan.Method)
	record.ReasoningAgents = plan.Agents
	record.ReasoningConf = plan.Confidence
	c.Logger.Info("orchestrator: reasoning decision", map[string]interface{}{
		"request_id": requestID, "method": plan.Method, "agents": plan.Agents,
		"confidence": plan.Confidence, "parallel": plan.Parallel,
	})

	// Steps 7-8: validation-retry loop.
	maxRetries := 0
	if c.Config != nil {
		maxRetries = c.Config.Validation.MaxValidationRetries
	}

	var env Envelope
	for attempt := 0; attempt <= maxRetries; attempt++ {
		inputs := c.executePlan(ctx, request, plan)
		agg := FormatAggregate(inputs, plan, requestID, started)

		dataForValidation := make(map[string]interface{}, len(inputs))
		for _, in := range inputs {
			dataForValidation[in.AgentName] = in.Response.Data
		}
		result := c.Validator.Validate(ctx, request, dataForValidation)
		record.ConfidenceScore = result.ConfidenceScore

		// Open Question decision (SPEC_FULL.md §14.1): in soft mode (the
		// default), C7 alone decides. In strict mode, fail only when
		// strict schema validation AND C7 both disagree with the
		// response — either one passing is enough to accept it.
		valid := result.IsValid
		if c.Config != nil && c.Config.Validation.StrictSchema {
			valid = result.IsValid || c.strictSchemaPasses(inputs)
		}

		if valid {
			env = agg
			break
		}

		reason := "Validation failed: " + strings.Join(result.Issues, "; ")
		if attempt < maxRetries {
			record.RetryAttempts = append(record.RetryAttempts, RetryAttemptLog{Attempt: attempt + 1, Reason: reason})
			c.Logger.Warn("orchestrator: validation retry", map[string]interface{}{
				"request_id": requestID, "attempt": attempt + 1, "reason": reason,
			})
			continue
		}

		agg.Metadata["validation_warning"] = reason
		record.ValidationWarning = reason
		env = agg
		break
	}

	c.Metrics.IncrCounter("agentorch_queries_total", map[string]string{"success": strconv.FormatBool(env.Success)})
	return finalize(env)
}

// strictSchemaPasses is the minimal strict-schema check: every successful
// response carries non-empty data. spec.md does not define concrete
// per-agent schemas, so this is intentionally the least committal strict
// check that still participates meaningfully in the validation-retry loop
// per the Open Question decision in SPEC_FULL.md §14.1. Only called when
// strict schema validation is enabled.
func (c *Controller) strictSchemaPasses(inputs []AggregateInput) bool {
	for _, in := range inputs {
		if in.Response.Success && len(in.Response.Data) == 0 {
			return false
		}
	}
	return true
}

func (c *Controller) availableAgentDescriptors() []reasoning.AgentDescriptor {
	agents := c.Registry.All()
	out := make([]reasoning.AgentDescriptor, 0, len(agents))
	for _, a := range agents {
		if c.Breaker != nil && c.Breaker.IsOpen(a.Name()) {
			continue
		}
		desc := reasoning.AgentDescriptor{Name: a.Name(), Capabilities: a.Capabilities()}
		if meta := a.Metadata(); meta != nil {
			if role, ok := meta["role"].(string); ok {
				desc.Description = role
			}
		}
		out = append(out, desc)
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
