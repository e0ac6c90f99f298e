package agentcore

import (
	"context"
	"strings"
	"sync"
)

// Registry is the concurrent name->agent map plus a secondary
// lowercased-capability->agent-name-set index, per spec.md §4.1.
type Registry struct {
	mu           sync.RWMutex
	agents       map[string]Agent
	byCapability map[string]map[string]bool
	stats        map[string]*Stats
	statsMu      sync.Mutex
	logger       Logger
}

// NewRegistry builds an empty registry. A nil logger installs NoOpLogger.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &Registry{
		agents:       make(map[string]Agent),
		byCapability: make(map[string]map[string]bool),
		stats:        make(map[string]*Stats),
		logger:       logger,
	}
}

// Register adds an agent to the registry, optionally initializing it.
// Registration fails if the name is already bound (spec.md §4.1).
func (r *Registry) Register(ctx context.Context, agent Agent, initialize bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := agent.Name()
	if _, exists := r.agents[name]; exists {
		return NewFrameworkError("registry.Register", KindInternal, name, "agent already registered", ErrAgentAlreadyExists)
	}

	if initialize {
		if err := agent.Initialize(ctx); err != nil {
			return NewFrameworkError("registry.Register", KindConfiguration, name, "agent initialization failed", err)
		}
	}

	r.agents[name] = agent
	r.stats[name] = &Stats{}
	for _, cap := range agent.Capabilities() {
		key := strings.ToLower(cap)
		if r.byCapability[key] == nil {
			r.byCapability[key] = make(map[string]bool)
		}
		r.byCapability[key][name] = true
	}

	r.logger.Info("agent registered", map[string]interface{}{
		"agent":        name,
		"capabilities": agent.Capabilities(),
	})
	return nil
}

// Unregister removes an agent, optionally running its cleanup. Cleanup
// failures are logged and never propagated, per spec.md §4.1.
func (r *Registry) Unregister(ctx context.Context, name string, cleanup bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[name]
	if !exists {
		return NewFrameworkError("registry.Unregister", KindInternal, name, "agent not registered", ErrAgentNotFound)
	}

	if cleanup {
		if err := agent.Cleanup(ctx); err != nil {
			r.logger.Warn("agent cleanup failed, continuing", map[string]interface{}{
				"agent": name,
				"error": err.Error(),
			})
		}
	}

	for _, cap := range agent.Capabilities() {
		key := strings.ToLower(cap)
		delete(r.byCapability[key], name)
		if len(r.byCapability[key]) == 0 {
			delete(r.byCapability, key)
		}
	}
	delete(r.agents, name)
	delete(r.stats, name)
	return nil
}

// Get looks up an agent by name.
func (r *Registry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// ByCapability returns the agents declaring the given capability
// (case-insensitive match).
func (r *Registry) ByCapability(capability string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byCapability[strings.ToLower(capability)]
	out := make([]Agent, 0, len(names))
	for name := range names {
		out = append(out, r.agents[name])
	}
	return out
}

// All returns every registered agent. Callers must not mutate the slice's
// backing agents concurrently with registry writes beyond what Agent itself
// guarantees.
func (r *Registry) All() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// HealthCheckAll runs every agent's HealthCheck concurrently and returns a
// name->healthy map, per spec.md §4.1.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	agents := r.All()
	results := make(map[string]bool, len(agents))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, a := range agents {
		wg.Add(1)
		go func(agent Agent) {
			defer wg.Done()
			healthy := agent.HealthCheck(ctx)
			mu.Lock()
			results[agent.Name()] = healthy
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return results
}

// RecordCall serializes a per-agent stats update after a call completes.
func (r *Registry) RecordCall(name string, success bool, execSeconds float64) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s, ok := r.stats[name]
	if !ok {
		s = &Stats{}
		r.stats[name] = s
	}
	s.CallCount++
	if !success {
		s.ErrorCount++
	}
	s.CumulativeExecSeconds += execSeconds
}

// StatsFor returns a copy of an agent's runtime counters.
func (r *Registry) StatsFor(name string) Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	if s, ok := r.stats[name]; ok {
		return *s
	}
	return Stats{}
}

// Stats returns a summary suitable for the GET /stats endpoint (spec.md §6),
// echoing the original's get_stats() convention (SPEC_FULL.md §12.9).
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	r.mu.RUnlock()

	perAgent := make(map[string]interface{}, len(names))
	for _, n := range names {
		s := r.StatsFor(n)
		perAgent[n] = map[string]interface{}{
			"call_count":     s.CallCount,
			"error_count":    s.ErrorCount,
			"execution_time": s.CumulativeExecSeconds,
		}
	}

	return map[string]interface{}{
		"total_agents": len(names),
		"agent_names":  names,
		"per_agent":    perAgent,
	}
}
