package agentcore

import (
	"errors"
	"fmt"
)

// ErrorKind buckets failures into the taxonomy from SPEC_FULL.md §10.2 /
// spec.md §7, so callers can decide retryability and logging verbosity
// without string-matching messages.
type ErrorKind string

const (
	KindSecurity      ErrorKind = "security"
	KindPolicy        ErrorKind = "policy"
	KindReasoning     ErrorKind = "reasoning"
	KindTransport     ErrorKind = "transport"
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindInternal      ErrorKind = "internal"
)

// Sentinel errors, grouped by kind. Wrap these with %w so errors.Is keeps
// working through FrameworkError.
var (
	ErrAgentNotFound       = errors.New("agent not found")
	ErrAgentAlreadyExists  = errors.New("agent already registered")
	ErrNoPlan              = errors.New("reasoning produced no plan")
	ErrUnknownAgentInPlan  = errors.New("plan references an unknown agent")
	ErrMaxRetriesExceeded  = errors.New("max retry attempts exceeded")
	ErrCircuitOpen         = errors.New("circuit breaker open")
	ErrValidationFailed    = errors.New("response validation failed")
	ErrPolicyDenied        = errors.New("action denied by policy")
	ErrSecurityRejected    = errors.New("input rejected by security gate")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrNotInitialized      = errors.New("controller not initialized")
	ErrMissingRequiredParam = errors.New("agent missing required parameter")
)

// FrameworkError is the structured error type used to wrap the sentinels
// above with operation context. Op names the operation that failed (e.g.
// "registry.Register"), ID optionally names the entity involved (an agent
// or rule name), and Err is the wrapped sentinel or underlying cause.
type FrameworkError struct {
	Op      string
	Kind    ErrorKind
	ID      string
	Message string
	Err     error
}

func (e *FrameworkError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Op, e.Message, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Message, e.Err)
}

func (e *FrameworkError) Unwrap() error { return e.Err }

// NewFrameworkError builds a FrameworkError. Message may be empty, in which
// case Err's own text carries the detail.
func NewFrameworkError(op string, kind ErrorKind, id, message string, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, ID: id, Message: message, Err: err}
}

// IsRetryable reports whether err represents a transport failure the retry
// executor (C5) should attempt again.
func IsRetryable(err error) bool {
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Kind == KindTransport
	}
	return false
}

// IsSecurityError reports whether err originated from the security gate
// (C11). Security errors are never retried.
func IsSecurityError(err error) bool {
	return errors.Is(err, ErrSecurityRejected)
}

// IsPolicyDenied reports whether err originated from the policy evaluator
// (C10). Policy denials are never retried.
func IsPolicyDenied(err error) bool {
	return errors.Is(err, ErrPolicyDenied)
}

// IsConfigurationError reports whether err should abort startup rather than
// degrade gracefully.
func IsConfigurationError(err error) bool {
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Kind == KindConfiguration
	}
	return errors.Is(err, ErrInvalidConfig)
}

// IsNotFound reports whether err wraps ErrAgentNotFound (a missing agent).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound)
}
