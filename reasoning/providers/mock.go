// Package providers supplies concrete AIProvider implementations: a hosted
// API gateway (OpenAI-compatible), a cloud inference service (AWS
// Bedrock), and a deterministic mock for tests. The two gateway providers
// implement the bounded-retry and status-classification rules from
// spec.md §4.3; the mock does neither.
package providers

import (
	"context"
	"sync"

	"github.com/neelabh-labs/agentorch/reasoning"
)

// MockProvider returns a fixed plan (or none) without ever calling a real
// model, for tests and for local development without provider credentials.
type MockProvider struct {
	mu       sync.Mutex
	Plan     *reasoning.AIPlan
	Err      error
	successN int
	failureN int
}

// NewMockProvider returns a MockProvider that always answers with plan (a
// nil plan simulates "no plan").
func NewMockProvider(plan *reasoning.AIPlan) *MockProvider {
	return &MockProvider{Plan: plan}
}

func (m *MockProvider) Name() string { return "mock" }

// Reason implements reasoning.AIProvider.
func (m *MockProvider) Reason(_ context.Context, _ map[string]interface{}, _ []reasoning.AgentDescriptor) (*reasoning.AIReasonResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		m.failureN++
		return nil, m.Err
	}
	m.successN++
	if m.Plan == nil {
		return &reasoning.AIReasonResult{}, nil
	}
	return &reasoning.AIReasonResult{Plan: m.Plan}, nil
}

// Counters returns cumulative success/failure counts, per spec.md §4.3's
// "MUST expose cumulative success/failure counters".
func (m *MockProvider) Counters() (success, failure int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successN, m.failureN
}
