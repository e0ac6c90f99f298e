package security

import (
	"context"

	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/config"
	"github.com/neelabh-labs/agentorch/orchestrator"
)

// Gate composes the detectors, sanitizers, and rate limiter behind one
// orchestrator.SecurityGate, per spec.md §4.10. Grounded on the Python
// original's validate_input orchestration function, generalized from a
// call-and-raise shape into a call-and-decide one so the controller can
// log and reject without an exception-handling idiom.
//
// Gate must return orchestrator.SecurityDecision by name (not a locally
// defined lookalike) to satisfy orchestrator.SecurityGate's method set —
// the same exact-named-return-type requirement documented for
// policy.Registry in DESIGN.md.
type Gate struct {
	cfg         config.SecurityConfig
	rateLimiter *RateLimiter
	logger      agentcore.Logger
}

// NewGate builds a Gate from SecurityConfig (spec.md §4.10 defaults:
// max_string_length 10000, max_input_size_bytes 1_000_000,
// max_nesting_depth 10, rate limit 100 req/60s, SQL-injection checking
// off by default, output PII redaction on by default).
func NewGate(cfg config.SecurityConfig, logger agentcore.Logger) *Gate {
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &Gate{
		cfg:         cfg,
		rateLimiter: NewRateLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindowSeconds),
		logger:      logger,
	}
}

// Validate mirrors validate_input: rate limit, then size, then recursive
// command/SQL-injection and prompt-injection/XSS string checks. Command
// injection is always checked (the original defaults
// check_command_injection=True); SQL injection follows
// cfg.CheckSQLInjection (the original defaults it to False).
//
// requestIdentifier, when non-empty, is the rate-limiting key (IP, token
// hash, or caller-supplied identifier per spec.md §4.10). An empty
// identifier skips rate limiting, since the original only rate-limits
// when the caller opts in with an identifier.
func (g *Gate) Validate(ctx context.Context, request map[string]interface{}) orchestrator.SecurityDecision {
	return g.ValidateWithIdentifier(ctx, request, "")
}

// ValidateWithIdentifier is Validate with an explicit rate-limit key (the
// caller's IP or auth token hash, for example). Validate (satisfying
// orchestrator.SecurityGate) calls it with an empty identifier; the api
// package does not call it, so requests served over HTTP are not rate
// limited.
func (g *Gate) ValidateWithIdentifier(ctx context.Context, request map[string]interface{}, requestIdentifier string) orchestrator.SecurityDecision {
	if requestIdentifier != "" && !g.rateLimiter.Allow(requestIdentifier) {
		g.logger.Warn("security: rate limit exceeded", map[string]interface{}{"identifier": requestIdentifier})
		return orchestrator.SecurityDecision{Allowed: false, Reason: "rate limit exceeded"}
	}

	if err := ValidateInputSize(request, g.cfg.MaxInputSizeBytes); err != nil {
		g.logger.Warn("security: input too large", map[string]interface{}{"error": err.Error()})
		return orchestrator.SecurityDecision{Allowed: false, Reason: err.Error()}
	}

	if err := ValidateNoInjection(request, true, g.cfg.CheckSQLInjection); err != nil {
		g.logger.Warn("security: injection pattern detected", map[string]interface{}{"error": err.Error()})
		return orchestrator.SecurityDecision{Allowed: false, Reason: err.Error()}
	}

	if err := g.validateStrings(request); err != nil {
		g.logger.Warn("security: request rejected", map[string]interface{}{"error": err.Error()})
		return orchestrator.SecurityDecision{Allowed: false, Reason: err.Error()}
	}

	return orchestrator.SecurityDecision{Allowed: true}
}

// validateStrings recurses through request running SanitizeString's
// prompt-injection/XSS/length checks on every string value (discarding
// the sanitized copy — Validate only decides allow/deny; Sanitize below
// is used where callers want the cleaned copy).
func (g *Gate) validateStrings(value interface{}) error {
	switch v := value.(type) {
	case string:
		_, err := SanitizeString(v, g.cfg.MaxStringLength)
		return err
	case map[string]interface{}:
		for _, item := range v {
			if err := g.validateStrings(item); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, item := range v {
			if err := g.validateStrings(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sanitize returns a cleaned copy of request (control bytes stripped,
// depth-bounded), for callers that want the sanitized request rather
// than a pass/fail decision — the controller only needs Validate, but
// spec.md §4.10 describes sanitizers as a distinct concern from the
// reject-outright detectors.
func (g *Gate) Sanitize(request map[string]interface{}) (map[string]interface{}, error) {
	maxDepth := g.cfg.MaxNestingDepth
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return SanitizeDict(request, maxDepth)
}

// SanitizeResponse redacts PII from a caller-facing response tree when
// cfg.RedactOutputPII is set, per spec.md §4.10's output sanitizer.
func (g *Gate) SanitizeResponse(response interface{}) interface{} {
	return SanitizeOutputValue(response, g.cfg.RedactOutputPII)
}
