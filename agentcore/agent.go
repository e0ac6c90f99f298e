package agentcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Agent is the uniform contract every leaf the orchestrator calls through
// must implement, per spec.md §4.1. Call MUST never panic or return a Go
// error across this boundary — transport/timeout failures are reported as
// AgentResponse{Success:false, Error:...}.
type Agent interface {
	Name() string
	Capabilities() []string
	Metadata() map[string]interface{}
	Call(ctx context.Context, input map[string]interface{}, timeout time.Duration) AgentResponse
	HealthCheck(ctx context.Context) bool
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// Stats are the runtime counters the registry tracks per agent (spec.md §3).
type Stats struct {
	CallCount             int64
	ErrorCount            int64
	CumulativeExecSeconds float64
}

// RemoteHTTPAgent implements Agent over the canonical remote-endpoint
// protocol from spec.md §6: discovery via GET {base}/tools, invocation via
// POST {base}/call, health via GET {base}/health.
type RemoteHTTPAgent struct {
	name         string
	baseURL      string
	capabilities []string
	metadata     map[string]interface{}
	client       *http.Client
	fallbackName string
}

// NewRemoteHTTPAgent builds a remote agent. capabilities/metadata are
// normally filled in by Initialize from the discovery response, but may be
// supplied up front from static agent configuration.
func NewRemoteHTTPAgent(name, baseURL string, capabilities []string, metadata map[string]interface{}) *RemoteHTTPAgent {
	return &RemoteHTTPAgent{
		name:         name,
		baseURL:      baseURL,
		capabilities: capabilities,
		metadata:     metadata,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *RemoteHTTPAgent) Name() string                     { return a.name }
func (a *RemoteHTTPAgent) Capabilities() []string            { return a.capabilities }
func (a *RemoteHTTPAgent) Metadata() map[string]interface{}  { return a.metadata }

// FallbackName is the configured fallback agent's name, if any (spec.md
// §4.5). Empty means no fallback configured.
func (a *RemoteHTTPAgent) FallbackName() string { return a.fallbackName }

// SetFallbackName configures the fallback agent used by resilience.Fallback
// when this agent exhausts its retries.
func (a *RemoteHTTPAgent) SetFallbackName(name string) { a.fallbackName = name }

type discoveredTool struct {
	Name         string                 `json:"name"`
	Capabilities []string               `json:"capabilities"`
	Metadata     map[string]interface{} `json:"metadata"`
}

type discoverResponse struct {
	Tools []discoveredTool `json:"tools"`
}

// Initialize discovers the agent's own capabilities via GET {base}/tools.
// A discovery failure is logged and swallowed — the agent stays usable with
// whatever static capabilities/metadata it was constructed with, per
// spec.md §9's graceful-degradation design note.
func (a *RemoteHTTPAgent) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/tools", nil)
	if err != nil {
		return nil
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var dr discoverResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil
	}
	for _, t := range dr.Tools {
		if t.Name != a.name {
			continue
		}
		if len(t.Capabilities) > 0 {
			a.capabilities = t.Capabilities
		}
		if t.Metadata != nil {
			a.metadata = t.Metadata
		}
	}
	return nil
}

func (a *RemoteHTTPAgent) Cleanup(ctx context.Context) error { return nil }

func (a *RemoteHTTPAgent) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Call invokes POST {base}/call with the stripped input, honoring the
// effective timeout (the timeout argument when positive, otherwise the
// http client's own timeout), per spec.md §5's cancellation rules. Transport failures never
// escape as a Go error.
func (a *RemoteHTTPAgent) Call(ctx context.Context, input map[string]interface{}, timeout time.Duration) AgentResponse {
	start := time.Now()
	fail := func(msg string) AgentResponse {
		return AgentResponse{
			Success:       false,
			Error:         msg,
			AgentName:     a.name,
			ExecutionTime: time.Since(start).Seconds(),
			Timestamp:     time.Now(),
		}
	}

	body := map[string]interface{}{"tool": a.name}
	for k, v := range StripReserved(input) {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fail(fmt.Sprintf("failed to marshal request: %v", err))
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.baseURL+"/call", bytes.NewReader(payload))
	if err != nil {
		return fail(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return fail(fmt.Sprintf("timeout calling agent: %v", err))
		}
		return fail(fmt.Sprintf("connection error calling agent: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(fmt.Sprintf("agent returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fail(fmt.Sprintf("failed to decode response: %v", err))
	}

	return AgentResponse{
		Success:       true,
		Data:          WrapScalar(decoded),
		AgentName:     a.name,
		ExecutionTime: time.Since(start).Seconds(),
		Timestamp:     time.Now(),
	}
}

// InProcessFunc is the signature an in-process callable agent wraps.
type InProcessFunc func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// InProcessAgent adapts a named Go function into an Agent. A closure's
// formal parameters aren't recoverable via reflection the way the original
// Python implementation introspects a function signature, so this instead
// relies on an explicit accepted/required parameter list supplied at
// construction time (spec.md §4.1: "Agents wrapping an in-process function
// MUST introspect the function's formal parameters and drop request keys
// that aren't accepted; missing required parameters fail with a clear
// AgentExecutionError").
type InProcessAgent struct {
	name             string
	capabilities     []string
	metadata         map[string]interface{}
	fn               InProcessFunc
	acceptedParams   map[string]bool
	requiredParams   []string
	fallbackName     string
}

// NewInProcessAgent builds an in-process agent. accepted is the set of
// parameter keys the function reads (keys outside this set, and outside the
// reserved set, are dropped before the call); required is the subset that
// must be present or the call fails fast.
func NewInProcessAgent(name string, capabilities []string, metadata map[string]interface{}, fn InProcessFunc, accepted, required []string) *InProcessAgent {
	acceptedSet := make(map[string]bool, len(accepted))
	for _, k := range accepted {
		acceptedSet[k] = true
	}
	return &InProcessAgent{
		name:           name,
		capabilities:   capabilities,
		metadata:       metadata,
		fn:             fn,
		acceptedParams: acceptedSet,
		requiredParams: required,
	}
}

func (a *InProcessAgent) Name() string                    { return a.name }
func (a *InProcessAgent) Capabilities() []string           { return a.capabilities }
func (a *InProcessAgent) Metadata() map[string]interface{} { return a.metadata }
func (a *InProcessAgent) FallbackName() string             { return a.fallbackName }
func (a *InProcessAgent) SetFallbackName(name string)      { a.fallbackName = name }
func (a *InProcessAgent) Initialize(ctx context.Context) error { return nil }
func (a *InProcessAgent) Cleanup(ctx context.Context) error    { return nil }
func (a *InProcessAgent) HealthCheck(ctx context.Context) bool { return a.fn != nil }

func (a *InProcessAgent) filterParams(input map[string]interface{}) (map[string]interface{}, error) {
	stripped := StripReserved(input)
	filtered := make(map[string]interface{}, len(stripped))

	// Accept either a nested "parameters" field or flat keys, per spec.md §4.1.
	source := stripped
	if nested, ok := stripped["parameters"].(map[string]interface{}); ok {
		source = nested
	}

	for k, v := range source {
		if len(a.acceptedParams) == 0 || a.acceptedParams[k] {
			filtered[k] = v
		}
	}
	for _, req := range a.requiredParams {
		if _, ok := filtered[req]; !ok {
			return nil, fmt.Errorf("%w: %q missing parameter %q", ErrMissingRequiredParam, a.name, req)
		}
	}
	return filtered, nil
}

// Call invokes the wrapped function, enforcing timeout via context
// cancellation (Go closures can't be preempted mid-call, so a slow function
// still runs to completion, but the caller observes the deadline through
// ctx.Err() the same way the teacher's HTTP client path does).
func (a *InProcessAgent) Call(ctx context.Context, input map[string]interface{}, timeout time.Duration) AgentResponse {
	start := time.Now()
	fail := func(msg string) AgentResponse {
		return AgentResponse{
			Success:       false,
			Error:         msg,
			AgentName:     a.name,
			ExecutionTime: time.Since(start).Seconds(),
			Timestamp:     time.Now(),
		}
	}

	params, err := a.filterParams(input)
	if err != nil {
		return fail(err.Error())
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value interface{}
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("agent %q panicked: %v", a.name, r)}
			}
		}()
		v, err := a.fn(callCtx, params)
		resultCh <- result{value: v, err: err}
	}()

	select {
	case <-callCtx.Done():
		return fail(fmt.Sprintf("timeout calling agent: %v", callCtx.Err()))
	case r := <-resultCh:
		if r.err != nil {
			return fail(r.err.Error())
		}
		return AgentResponse{
			Success:       true,
			Data:          WrapScalar(r.value),
			AgentName:     a.name,
			ExecutionTime: time.Since(start).Seconds(),
			Timestamp:     time.Now(),
		}
	}
}
