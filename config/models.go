// Package config loads the three logical YAML documents named in spec.md §6
// (orchestrator, agents, rules) with ${VAR} / ${VAR:default} environment
// substitution, grounded on the teacher's env-var-first configuration idiom
// (core/config.go, orchestration.DefaultConfig()).
package config

import "os"

// ReasoningMode selects how the hybrid reasoner combines rule and AI
// decisions, per spec.md §4.4.
type ReasoningMode string

const (
	ReasoningModeRule   ReasoningMode = "rule"
	ReasoningModeAI     ReasoningMode = "ai"
	ReasoningModeHybrid ReasoningMode = "hybrid"
)

// RuleOperator is the logic combinator a rule applies across its conditions.
type RuleOperator string

const (
	RuleOperatorAND RuleOperator = "AND"
	RuleOperatorOR  RuleOperator = "OR"
	RuleOperatorNOT RuleOperator = "NOT"
)

// ConditionOperator is the per-condition comparison, per spec.md §3.
type ConditionOperator string

const (
	OperatorContains ConditionOperator = "contains"
	OperatorEquals   ConditionOperator = "equals"
	OperatorRegex    ConditionOperator = "regex"
	OperatorExists   ConditionOperator = "exists"
)

// RetryConfig configures the retry/fallback executor (C5), per spec.md §4.5.
type RetryConfig struct {
	MaxAttempts            int     `yaml:"max_attempts"`
	BaseDelaySeconds       float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds        float64 `yaml:"max_delay_seconds"`
	ExponentialBackoff     bool    `yaml:"exponential_backoff"`
	RetryOnTimeout         bool    `yaml:"retry_on_timeout"`
	RetryOnConnectionError bool    `yaml:"retry_on_connection_error"`
}

// DefaultRetryConfig mirrors the teacher's DefaultConfig() idiom: one env
// var per tunable with a hardcoded fallback.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:            envInt("AGENTORCH_RETRY_MAX_ATTEMPTS", 3),
		BaseDelaySeconds:       envFloat("AGENTORCH_RETRY_BASE_DELAY", 0.5),
		MaxDelaySeconds:        envFloat("AGENTORCH_RETRY_MAX_DELAY", 10.0),
		ExponentialBackoff:     envBool("AGENTORCH_RETRY_EXPONENTIAL_BACKOFF", true),
		RetryOnTimeout:         envBool("AGENTORCH_RETRY_ON_TIMEOUT", true),
		RetryOnConnectionError: envBool("AGENTORCH_RETRY_ON_CONNECTION_ERROR", true),
	}
}

// CircuitBreakerConfig configures C6, per spec.md §4.5.
type CircuitBreakerConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"`
	SuccessThreshold int     `yaml:"success_threshold"`
	TimeoutSeconds   float64 `yaml:"timeout_seconds"`
}

// DefaultCircuitBreakerConfig returns the spec's documented defaults
// (failure_threshold=5, success_threshold=2, timeout=60s).
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: envInt("AGENTORCH_BREAKER_FAILURE_THRESHOLD", 5),
		SuccessThreshold: envInt("AGENTORCH_BREAKER_SUCCESS_THRESHOLD", 2),
		TimeoutSeconds:   envFloat("AGENTORCH_BREAKER_TIMEOUT_SECONDS", 60.0),
	}
}

// ValidationConfig configures C7, per spec.md §4.6.
type ValidationConfig struct {
	EnableAIValidation   bool    `yaml:"enable_ai_validation"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	MaxValidationRetries int     `yaml:"max_validation_retries"`
	StrictSchema         bool    `yaml:"strict_schema"`
}

// DefaultValidationConfig mirrors spec.md's documented default threshold
// of 0.7.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		EnableAIValidation:   envBool("AGENTORCH_VALIDATION_ENABLE_AI", false),
		ConfidenceThreshold:  envFloat("AGENTORCH_VALIDATION_CONFIDENCE_THRESHOLD", 0.7),
		MaxValidationRetries: envInt("AGENTORCH_VALIDATION_MAX_RETRIES", 1),
		StrictSchema:         envBool("AGENTORCH_VALIDATION_STRICT_SCHEMA", false),
	}
}

// SecurityConfig configures C11, per spec.md §4.10.
type SecurityConfig struct {
	MaxStringLength    int     `yaml:"max_string_length"`
	MaxInputSizeBytes  int     `yaml:"max_input_size_bytes"`
	MaxNestingDepth     int     `yaml:"max_nesting_depth"`
	RateLimitMaxRequests int    `yaml:"rate_limit_max_requests"`
	RateLimitWindowSeconds float64 `yaml:"rate_limit_window_seconds"`
	CheckSQLInjection   bool    `yaml:"check_sql_injection"`
	RedactOutputPII     bool    `yaml:"redact_output_pii"`
}

// DefaultSecurityConfig mirrors the original's defaults (SPEC_FULL.md §12).
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxStringLength:        envInt("AGENTORCH_SECURITY_MAX_STRING_LENGTH", 10000),
		MaxInputSizeBytes:      envInt("AGENTORCH_SECURITY_MAX_INPUT_BYTES", 1_000_000),
		MaxNestingDepth:        envInt("AGENTORCH_SECURITY_MAX_NESTING_DEPTH", 10),
		RateLimitMaxRequests:   envInt("AGENTORCH_SECURITY_RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindowSeconds: envFloat("AGENTORCH_SECURITY_RATE_LIMIT_WINDOW_SECONDS", 60.0),
		CheckSQLInjection:      envBool("AGENTORCH_SECURITY_CHECK_SQL_INJECTION", false),
		RedactOutputPII:        envBool("AGENTORCH_SECURITY_REDACT_OUTPUT_PII", true),
	}
}

// OrchestratorConfig is the top-level orchestrator.yaml document.
type OrchestratorConfig struct {
	Name                        string               `yaml:"name"`
	ReasoningMode               ReasoningMode        `yaml:"reasoning_mode"`
	RuleConfidenceThreshold     float64              `yaml:"rule_confidence_threshold"`
	AIProvider                  string               `yaml:"ai_provider"`
	MaxParallelAgents           int                  `yaml:"max_parallel_agents"`
	DefaultAgentTimeoutSeconds  float64              `yaml:"default_agent_timeout_seconds"`
	Retry                       RetryConfig          `yaml:"retry"`
	CircuitBreaker              CircuitBreakerConfig `yaml:"circuit_breaker"`
	Validation                  ValidationConfig     `yaml:"validation"`
	Security                    SecurityConfig       `yaml:"security"`
	RecordActionsAutomatically  bool                 `yaml:"record_actions_automatically"`
	PolicyStopOnFirstDenial     bool                 `yaml:"policy_stop_on_first_denial"`
	QueryLogDirectory           string               `yaml:"query_log_directory"`
	AuthRequired                bool                 `yaml:"auth_required"`
	AuthToken                   string               `yaml:"auth_token"`
	HTTPHost                    string               `yaml:"http_host"`
	HTTPPort                    int                  `yaml:"http_port"`
	MetricsPort                 int                  `yaml:"metrics_port"`
	OTLPEndpoint                string               `yaml:"otlp_endpoint"`
	RedisURL                    string               `yaml:"redis_url"`
}

// DefaultConfig builds an OrchestratorConfig from environment variables,
// matching orchestration.DefaultConfig()'s one-env-var-per-tunable idiom.
func DefaultConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		Name:                       envString("AGENTORCH_NAME", "agentorch"),
		ReasoningMode:              ReasoningMode(envString("AGENTORCH_REASONING_MODE", string(ReasoningModeHybrid))),
		RuleConfidenceThreshold:    envFloat("AGENTORCH_RULE_CONFIDENCE_THRESHOLD", 0.7),
		AIProvider:                 envString("AGENTORCH_AI_PROVIDER", "openai"),
		MaxParallelAgents:          envInt("AGENTORCH_MAX_PARALLEL_AGENTS", 8),
		DefaultAgentTimeoutSeconds: envFloat("AGENTORCH_DEFAULT_AGENT_TIMEOUT_SECONDS", 30.0),
		Retry:                      DefaultRetryConfig(),
		CircuitBreaker:             DefaultCircuitBreakerConfig(),
		Validation:                 DefaultValidationConfig(),
		Security:                   DefaultSecurityConfig(),
		RecordActionsAutomatically: envBool("AGENTORCH_RECORD_ACTIONS_AUTOMATICALLY", false),
		PolicyStopOnFirstDenial:    envBool("AGENTORCH_POLICY_STOP_ON_FIRST_DENIAL", true),
		QueryLogDirectory:          envString("AGENTORCH_QUERY_LOG_DIR", "./query-logs"),
		AuthRequired:               envBool("AGENTORCH_AUTH_REQUIRED", false),
		AuthToken:                  envString("AGENTORCH_AUTH_TOKEN", ""),
		HTTPHost:                   envString("AGENTORCH_HTTP_HOST", "0.0.0.0"),
		HTTPPort:                   envInt("AGENTORCH_HTTP_PORT", 8080),
		MetricsPort:                envInt("AGENTORCH_METRICS_PORT", 9090),
		OTLPEndpoint:               envString("AGENTORCH_OTLP_ENDPOINT", ""),
		RedisURL:                   envString("AGENTORCH_REDIS_URL", ""),
	}
}

// AgentDefinition describes one entry in agents.yaml, per spec.md §6.
type AgentDefinition struct {
	Name         string                 `yaml:"name"`
	Type         string                 `yaml:"type"` // "remote_http" | "in_process" | "discovered"
	Transport    string                 `yaml:"transport"`
	Capabilities []string               `yaml:"capabilities"`
	Role         string                 `yaml:"role,omitempty"`
	Constraints  map[string]interface{} `yaml:"constraints,omitempty"`
	Fallback     string                 `yaml:"fallback,omitempty"`
	Enabled      bool                   `yaml:"enabled"`
	Metadata     map[string]interface{} `yaml:"metadata,omitempty"`
}

// AgentsFileConfig is the agents.yaml document.
type AgentsFileConfig struct {
	Agents []AgentDefinition `yaml:"agents"`
}

// RuleCondition is a single predicate within a rule, per spec.md §3.
type RuleCondition struct {
	Field         string            `yaml:"field"`
	Operator      ConditionOperator `yaml:"operator"`
	Value         string            `yaml:"value,omitempty"`
	CaseSensitive bool              `yaml:"case_sensitive"`
}

// RuleDefinition is a single routing rule, per spec.md §3.
type RuleDefinition struct {
	Name          string          `yaml:"name"`
	Priority      int             `yaml:"priority"`
	Logic         RuleOperator    `yaml:"logic"`
	Enabled       bool            `yaml:"enabled"`
	Confidence    float64         `yaml:"confidence"`
	TargetAgents  []string        `yaml:"target_agents"`
	Conditions    []RuleCondition `yaml:"conditions"`
}

// RulesFileConfig is the rules.yaml document.
type RulesFileConfig struct {
	Rules []RuleDefinition `yaml:"rules"`
}

// GetSortedRules returns rules ordered by descending priority, ties broken
// by original (insertion) order — spec.md §4.2 and Testable Property 7
// require a stable sort here, not sort.Slice.
func (c *RulesFileConfig) GetSortedRules() []RuleDefinition {
	sorted := make([]RuleDefinition, len(c.Rules))
	copy(sorted, c.Rules)
	stableSortByPriorityDesc(sorted)
	return sorted
}

func stableSortByPriorityDesc(rules []RuleDefinition) {
	// Insertion sort is stable and the rule counts involved are small
	// (tens, not thousands), so this keeps the tie-break explicit rather
	// than relying on sort.SliceStable's documented-but-opaque stability.
	for i := 1; i < len(rules); i++ {
		j := i
		for j > 0 && rules[j-1].Priority < rules[j].Priority {
			rules[j-1], rules[j] = rules[j], rules[j-1]
			j--
		}
	}
}

// PolicyEvaluatorType selects one of the three built-in evaluator kinds
// from spec.md §4.9.
type PolicyEvaluatorType string

const (
	EvaluatorTimedRestriction PolicyEvaluatorType = "timed_restriction"
	EvaluatorRateLimit        PolicyEvaluatorType = "rate_limit"
	EvaluatorThreshold        PolicyEvaluatorType = "threshold"
)

// PolicyEvaluatorDefinition is one entry in policy.yaml's evaluators list.
// Which rule list is used depends on Type: timed_restriction reads
// Restrictions, rate_limit reads Limits, threshold reads Thresholds.
type PolicyEvaluatorDefinition struct {
	Name         string                     `yaml:"name"`
	Type         PolicyEvaluatorType        `yaml:"type"`
	Enabled      bool                       `yaml:"enabled"`
	Restrictions []TimedRestrictionRule     `yaml:"restrictions,omitempty"`
	Limits       []RateLimitRule            `yaml:"limits,omitempty"`
	Thresholds   []ThresholdRule            `yaml:"thresholds,omitempty"`
}

// TimedRestrictionRule blocks requested_category for block_hours after the
// user's most recent successful trigger_category action.
type TimedRestrictionRule struct {
	TriggerCategory    string   `yaml:"trigger_category"`
	BlockedCategories   []string `yaml:"blocked_categories"`
	BlockHours          float64  `yaml:"block_hours"`
	Reason              string   `yaml:"reason"`
}

// RateLimitRule denies once the count of successful Category actions within
// WindowHours reaches MaxCount.
type RateLimitRule struct {
	Category    string  `yaml:"category"`
	MaxCount    int     `yaml:"max_count"`
	WindowHours float64 `yaml:"window_hours"`
	Reason      string  `yaml:"reason"`
}

// ThresholdRule denies when the named numeric Field in the request details
// exceeds MaxValue.
type ThresholdRule struct {
	Category string  `yaml:"category"`
	Field    string  `yaml:"field"`
	MaxValue float64 `yaml:"max_value"`
	Reason   string  `yaml:"reason"`
}

// PolicyFileConfig is the policy.yaml document, per spec.md §4.9.
type PolicyFileConfig struct {
	Evaluators []PolicyEvaluatorDefinition `yaml:"evaluators"`
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
