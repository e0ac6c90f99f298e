package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cenkalti/backoff/v5"
	"github.com/neelabh-labs/agentorch/agentcore"
	"github.com/neelabh-labs/agentorch/reasoning"
)

// BedrockProvider calls AWS Bedrock's Converse API, grounded on the
// teacher's ai/providers/bedrock/client.go (Converse request/response
// shape, aws-sdk-go-v2 wiring). Retries use cenkalti/backoff/v5; AWS SDK
// errors are classified by smithy's retryable-error interface rather than
// raw HTTP status since the SDK already abstracts that away.
type BedrockProvider struct {
	client      *bedrockruntime.Client
	modelID     string
	maxAttempts int
	logger      agentcore.Logger

	successN atomic.Int64
	failureN atomic.Int64
}

// NewBedrockProvider wraps an already-configured bedrockruntime.Client
// (built from aws.Config via config.LoadDefaultConfig, per the teacher's
// CreateAWSConfig helper).
func NewBedrockProvider(client *bedrockruntime.Client, modelID string, logger agentcore.Logger) *BedrockProvider {
	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if logger == nil {
		logger = agentcore.NoOpLogger{}
	}
	return &BedrockProvider{client: client, modelID: modelID, maxAttempts: 4, logger: logger}
}

func (p *BedrockProvider) Name() string { return "bedrock" }

// Counters reports cumulative success/failure counts, per spec.md §4.3.
func (p *BedrockProvider) Counters() (success, failure int64) {
	return p.successN.Load(), p.failureN.Load()
}

// Reason implements reasoning.AIProvider using the Converse API at
// temperature 0.0.
func (p *BedrockProvider) Reason(ctx context.Context, request map[string]interface{}, agents []reasoning.AgentDescriptor) (*reasoning.AIReasonResult, error) {
	prompt := buildReasoningPrompt(request, agents)

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.modelID),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			},
		},
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: reasoningSystemPrompt},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(0.0),
		},
	}

	operation := func() (*bedrockruntime.ConverseOutput, error) {
		out, err := p.client.Converse(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			if !isRetryableAWSError(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return out, nil
	}

	output, err := backoff.Retry(ctx, operation,
		backoff.WithMaxTries(uint(p.maxAttempts)),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		p.failureN.Add(1)
		return nil, fmt.Errorf("reasoning/providers: bedrock converse: %w", err)
	}
	p.successN.Add(1)

	content, ok := extractConverseText(output)
	if !ok || content == "" {
		return &reasoning.AIReasonResult{}, nil
	}

	plan, parseErr := reasoning.ParsePlanJSON(content)
	if parseErr != nil {
		p.logger.Warn("bedrock provider: plan did not parse as JSON", map[string]interface{}{"error": parseErr.Error()})
		return &reasoning.AIReasonResult{}, nil
	}

	usage := reasoning.TokenUsage{}
	if output.Usage != nil {
		if output.Usage.InputTokens != nil {
			usage.PromptTokens = int(*output.Usage.InputTokens)
		}
		if output.Usage.OutputTokens != nil {
			usage.CompletionTokens = int(*output.Usage.OutputTokens)
		}
		if output.Usage.TotalTokens != nil {
			usage.TotalTokens = int(*output.Usage.TotalTokens)
		}
	}

	return &reasoning.AIReasonResult{Plan: plan, Usage: usage}, nil
}

func extractConverseText(output *bedrockruntime.ConverseOutput) (string, bool) {
	if output == nil || output.Output == nil {
		return "", false
	}
	msgOutput, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", false
	}
	var text string
	for _, block := range msgOutput.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return text, text != ""
}

// retryableAWSError mirrors smithy-go's retryable-error contract without
// importing it directly: throttling, timeout, and 5xx-class service
// errors implement this.
type retryableAWSError interface {
	RetryableError() bool
}

func isRetryableAWSError(err error) bool {
	var re retryableAWSError
	if asRetryable(err, &re) {
		return re.RetryableError()
	}
	// Fall back to treating plain context/timeout errors as retryable.
	return isTimeoutLike(err)
}

func asRetryable(err error, target *retryableAWSError) bool {
	for err != nil {
		if re, ok := err.(retryableAWSError); ok {
			*target = re
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func isTimeoutLike(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	return false
}
