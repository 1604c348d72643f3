package providers

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/camel/pkg/models"
)

// OpenAIClient implements ModelClient against the OpenAI chat completions
// API. It retries transient failures (rate limits, 5xx, network) with
// linear backoff and returns the first choice's text.
//
// OpenAIClient is safe for concurrent use; the underlying SDK client is
// goroutine-safe and each Complete call is independent.
type OpenAIClient struct {
	base
	client *openai.Client
}

// OpenAIOptions configures an OpenAI client.
type OpenAIOptions struct {
	// APIKey authenticates against the API. Required.
	APIKey string

	// BaseURL overrides the endpoint for proxies and compatible servers.
	BaseURL string

	// MaxRetries bounds retry attempts for transient failures. Default 3.
	MaxRetries int

	// RetryDelay is the base delay between attempts. Default 1s, growing
	// linearly per attempt.
	RetryDelay time.Duration
}

// NewOpenAIClient creates an OpenAI-backed model client.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAIClient{
		base:   newBase(opts.MaxRetries, opts.RetryDelay),
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name implements ModelClient.
func (c *OpenAIClient) Name() string { return "openai" }

// Complete implements ModelClient.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*models.AssistantMessage, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var resp openai.ChatCompletionResponse
	err := c.retry(ctx, transientError, func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("openai: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contained no choices")
	}

	return &models.AssistantMessage{
		Provider:  c.Name(),
		Model:     resp.Model,
		Content:   resp.Choices[0].Message.Content,
		Timestamp: time.Now(),
		Usage: models.TokenUsage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
			Total:  resp.Usage.TotalTokens,
		},
	}, nil
}
