package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appconfig "ai-trader/config"
	"ai-trader/models"
	"ai-trader/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockClient defines the subset of the Bedrock runtime API we use (for testing)
type bedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockService handles communication with AWS Bedrock for Claude models
type BedrockService struct {
	client           bedrockClient
	model            string
	maxTokens        int
	temperature      float64
	anthropicVersion string
}

// ClaudeRequest represents the request format for Claude models via Bedrock
type ClaudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	System           string          `json:"system,omitempty"`
	Messages         []ClaudeMessage `json:"messages"`
}

// ClaudeMessage represents a message in the Claude conversation
type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeResponse represents the response from Claude models
type ClaudeResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockService creates a new BedrockService instance
func NewBedrockService(ctx context.Context, cfg *appconfig.Config) (*BedrockService, error) {
	if cfg.AWS.Region == "" || cfg.AWS.BedrockModelID == "" {
		return nil, fmt.Errorf("%w: AWS_REGION and BEDROCK_MODEL_ID are required", models.ErrConfiguration)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to load AWS SDK config: %w", models.ErrConfiguration, err)
	}

	return &BedrockService{
		client:           bedrockruntime.NewFromConfig(awsCfg),
		model:            cfg.AWS.BedrockModelID,
		maxTokens:        cfg.Advisor.MaxTokens,
		temperature:      cfg.Advisor.Temperature,
		anthropicVersion: cfg.AWS.AnthropicVersion,
	}, nil
}

// Name returns the provider name
func (s *BedrockService) Name() string {
	return BreakerBedrock
}

// InvokeWithPrompt sends a prompt to Claude and returns the response text
func (s *BedrockService) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerBedrock, "invoke")
	timer := metrics.NewTimer()

	result, err := WithCircuitBreaker(ctx, BreakerBedrock, func() (string, error) {
		request := ClaudeRequest{
			AnthropicVersion: s.anthropicVersion,
			MaxTokens:        s.maxTokens,
			Temperature:      s.temperature,
			System:           systemPrompt,
			Messages: []ClaudeMessage{
				{Role: "user", Content: userPrompt},
			},
		}

		reqBody, err := json.Marshal(request)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		output, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(s.model),
			Body:        reqBody,
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return "", fmt.Errorf("failed to invoke model: %w", err)
		}

		var response ClaudeResponse
		if err := json.Unmarshal(output.Body, &response); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}

		if len(response.Content) == 0 {
			return "", fmt.Errorf("empty response from model")
		}

		return response.Content[0].Text, nil
	})

	timer.ObserveExternalAPI(BreakerBedrock, "invoke")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerBedrock, "invoke", categorizeAPIError(err))
		if !errors.Is(err, models.ErrAdvisor) {
			err = fmt.Errorf("%w: %w", models.ErrAdvisor, err)
		}
	}
	return result, err
}
