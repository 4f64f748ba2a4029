package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appconfig "ai-trader/config"
	"ai-trader/models"
	"ai-trader/observability"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// openaiClient defines the interface for OpenAI API calls (for testing)
type openaiClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// openaiClientWrapper wraps the openai.Client to implement our interface
type openaiClientWrapper struct {
	client openai.Client
}

func (w *openaiClientWrapper) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return w.client.Chat.Completions.New(ctx, params)
}

// OpenAIService talks to any OpenAI-compatible chat completion endpoint.
// With ADVISOR_PROVIDER=openrouter it points at OpenRouter.
type OpenAIService struct {
	client      openaiClient
	provider    string
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIService creates a new OpenAIService instance
func NewOpenAIService(cfg *appconfig.Config) (*OpenAIService, error) {
	if err := cfg.RequireAdvisor(); err != nil {
		return nil, err
	}
	if cfg.Advisor.Provider == appconfig.ProviderBedrock {
		return nil, fmt.Errorf("%w: provider bedrock is not served by the OpenAI client", models.ErrConfiguration)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.Advisor.APIKey)}
	if cfg.Advisor.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Advisor.BaseURL))
	}
	if cfg.Advisor.Provider == appconfig.ProviderOpenRouter {
		// OpenRouter attribution headers
		opts = append(opts,
			option.WithHeader("HTTP-Referer", cfg.Advisor.SiteURL),
			option.WithHeader("X-Title", cfg.Advisor.SiteName),
		)
	}

	client := openai.NewClient(opts...)

	return &OpenAIService{
		client:      &openaiClientWrapper{client: client},
		provider:    cfg.Advisor.Provider,
		model:       cfg.Advisor.Model,
		maxTokens:   cfg.Advisor.MaxTokens,
		temperature: cfg.Advisor.Temperature,
	}, nil
}

// Name returns the provider name, also used as the circuit breaker name
func (s *OpenAIService) Name() string {
	return s.provider
}

// InvokeWithPrompt sends a prompt and returns the response text. The response is
// requested in JSON object mode.
func (s *OpenAIService) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(s.provider, "chat_completion")
	timer := metrics.NewTimer()

	result, err := WithCircuitBreaker(ctx, s.provider, func() (string, error) {
		params := openai.ChatCompletionNewParams{
			Model:       shared.ChatModel(s.model),
			MaxTokens:   openai.Int(int64(s.maxTokens)),
			Temperature: openai.Float(s.temperature),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(userPrompt),
			},
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}

		completion, err := s.client.CreateChatCompletion(ctx, params)
		if err != nil {
			return "", fmt.Errorf("%w: %s chat completion failed: %w", models.ErrAdvisor, s.provider, err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("%w: empty response from %s", models.ErrAdvisor, s.provider)
		}

		content := completion.Choices[0].Message.Content
		if strings.TrimSpace(content) == "" {
			return "", fmt.Errorf("%w: blank completion from %s", models.ErrAdvisor, s.provider)
		}
		return content, nil
	})

	timer.ObserveExternalAPI(s.provider, "chat_completion")
	if err != nil {
		metrics.RecordExternalAPIError(s.provider, "chat_completion", categorizeAPIError(err))
		if !errors.Is(err, models.ErrAdvisor) {
			err = fmt.Errorf("%w: %w", models.ErrAdvisor, err)
		}
	}
	return result, err
}

// categorizeAPIError categorizes an error for metrics purposes
func categorizeAPIError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return "circuit_open"
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, "timeout", "deadline"):
		return "timeout"
	case containsAny(errStr, "rate limit", "429"):
		return "rate_limit"
	case containsAny(errStr, "unauthorized", "401", "forbidden", "403"):
		return "auth_error"
	case containsAny(errStr, "connection", "network"):
		return "connection_error"
	default:
		return "unknown"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
