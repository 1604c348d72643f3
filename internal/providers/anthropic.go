package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/camel/pkg/models"
)

// AnthropicClient implements ModelClient against the Anthropic messages
// API, non-streaming. Transient failures retry with linear backoff.
type AnthropicClient struct {
	base
	client anthropic.Client
}

// AnthropicOptions configures an Anthropic client.
type AnthropicOptions struct {
	// APIKey authenticates against the API. Required.
	APIKey string

	// BaseURL overrides the endpoint for proxies.
	BaseURL string

	// MaxRetries bounds retry attempts for transient failures. Default 3.
	MaxRetries int

	// RetryDelay is the base delay between attempts. Default 1s.
	RetryDelay time.Duration
}

// NewAnthropicClient creates an Anthropic-backed model client.
func NewAnthropicClient(opts AnthropicOptions) *AnthropicClient {
	options := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		options = append(options, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicClient{
		base:   newBase(opts.MaxRetries, opts.RetryDelay),
		client: anthropic.NewClient(options...),
	}
}

// Name implements ModelClient.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Complete implements ModelClient.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*models.AssistantMessage, error) {
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	var resp *anthropic.Message
	err := c.retry(ctx, transientError, func() error {
		var callErr error
		resp, callErr = c.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: completion failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := models.TokenUsage{
		Input:      int(resp.Usage.InputTokens),
		Output:     int(resp.Usage.OutputTokens),
		CacheRead:  int(resp.Usage.CacheReadInputTokens),
		CacheWrite: int(resp.Usage.CacheCreationInputTokens),
	}
	usage.Total = usage.Input + usage.Output

	return &models.AssistantMessage{
		Provider:  c.Name(),
		Model:     string(resp.Model),
		Content:   text,
		Timestamp: time.Now(),
		Usage:     usage,
	}, nil
}
