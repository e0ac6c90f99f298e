package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/reasoning"
)

// OpenAIProvider calls an OpenAI-compatible chat-completions API, grounded
// on the teacher's ai/providers/openai/client.go (request shape,
// Authorization header, response parsing) and ai/providers/base.go
// (retry/backoff, status-code classification). Retry scheduling itself
// uses cenkalti/backoff/v5 (the teacher's own exponential-backoff
// dependency) instead of the teacher's hand-rolled doubling loop, per
// spec.md §4.3's "bounded attempts, exponential backoff with jitter".
type OpenAIProvider struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	maxAttempts int
	logger      agentcore.Logger

	successN atomic.Int64
	failureN atomic.Int64
}

// NewOpenAIProvider builds a provider against apiKey/model. baseURL
// defaults to the public OpenAI endpoint when empty, allowing
// OpenAI-compatible self-hosted gateways to be targeted instead.
func NewOpenAIProvider(apiKey, baseURL, model string, logger agentcore.Logger) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &OpenAIProvider{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxAttempts: 4,
		logger:      logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Counters reports cumulative success/failure counts, per spec.md §4.3.
func (p *OpenAIProvider) Counters() (success, failure int64) {
	return p.successN.Load(), p.failureN.Load()
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// retryableStatus classifies an HTTP status per spec.md §4.3's required
// distinctions: 400/401/404 never retry, 429 retries with a longer delay,
// 5xx retries normally.
type retryableStatus int

const (
	statusNoRetry retryableStatus = iota
	statusRetryLong
	statusRetryNormal
)

const rateLimitCooldown = 3 * time.Second

func classifyStatus(code int) retryableStatus {
	switch {
	case code == http.StatusTooManyRequests:
		return statusRetryLong
	case code >= 500:
		return statusRetryNormal
	case code == http.StatusBadRequest, code == http.StatusUnauthorized, code == http.StatusNotFound:
		return statusNoRetry
	case code >= 400 && code < 500:
		return statusNoRetry
	default:
		return statusNoRetry
	}
}

// Reason implements reasoning.AIProvider, calling the chat-completions API
// at temperature 0.0 per spec.md §4.3 ("Temperature SHOULD be
// deterministic").
func (p *OpenAIProvider) Reason(ctx context.Context, request map[string]interface{}, agents []reasoning.AgentDescriptor) (*reasoning.AIReasonResult, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("reasoning/providers: openai API key not configured")
	}

	prompt := buildReasoningPrompt(request, agents)
	reqBody := openAIChatRequest{
		Model: p.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: reasoningSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.0,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("reasoning/providers: marshal openai request: %w", err)
	}

	operation := func() (*openAIChatResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			p.logger.Warn("openai provider: connection error, retrying", map[string]interface{}{"error": err.Error()})
			return nil, err // connection error: retryable
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body))
			switch classifyStatus(resp.StatusCode) {
			case statusNoRetry:
				return nil, backoff.Permanent(apiErr)
			case statusRetryLong:
				// 429: wait out an extra cooldown on top of the normal
				// backoff delay before the next attempt, per spec.md
				// §4.3's "retry with longer delay".
				select {
				case <-time.After(rateLimitCooldown):
				case <-ctx.Done():
					return nil, backoff.Permanent(ctx.Err())
				}
				return nil, apiErr
			default:
				return nil, apiErr
			}
		}

		var parsed openAIChatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("reasoning/providers: parse openai response: %w", err))
		}
		return &parsed, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithMaxTries(uint(p.maxAttempts)),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		p.failureN.Add(1)
		return nil, err
	}
	p.successN.Add(1)

	if len(result.Choices) == 0 {
		return &reasoning.AIReasonResult{}, nil
	}

	plan, parseErr := reasoning.ParsePlanJSON(result.Choices[0].Message.Content)
	if parseErr != nil {
		p.logger.Warn("openai provider: plan did not parse as JSON", map[string]interface{}{"error": parseErr.Error()})
		return &reasoning.AIReasonResult{}, nil
	}

	return &reasoning.AIReasonResult{
		Plan: plan,
		Usage: reasoning.TokenUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}, nil
}

const reasoningSystemPrompt = `You are the reasoning component of an agent orchestration engine. Given a ` +
	`request and a catalog of available agents, respond with a single JSON object (optionally wrapped in a ` +
	`fenced code block) with fields: agents (ordered array of agent names to call), reasoning (short text), ` +
	`confidence (0-1), parallel (bool, optional), parameters (optional map from agent name to a parameter object). ` +
	`Only reference agent names from the provided catalog.`

var promptBuilderPool = sync.Pool{New: func() interface{} { return &strings.Builder{} }}

func buildReasoningPrompt(request map[string]interface{}, agents []reasoning.AgentDescriptor) string {
	b := promptBuilderPool.Get().(*strings.Builder)
	b.Reset()
	defer promptBuilderPool.Put(b)

	b.WriteString("Available agents:\n")
	for _, a := range agents {
		fmt.Fprintf(b, "- %s (capabilities: %s)", a.Name, strings.Join(a.Capabilities, ", "))
		if a.Description != "" {
			fmt.Fprintf(b, " — %s", a.Description)
		}
		b.WriteString("\n")
	}

	requestJSON, err := json.Marshal(request)
	if err != nil {
		requestJSON = []byte("{}")
	}
	fmt.Fprintf(b, "\nRequest:\n%s\n", string(requestJSON))
	return b.String()
}
