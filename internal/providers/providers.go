// Package providers adapts hosted model APIs to the narrow completion
// contract the runtime needs: one system prompt plus a message history in,
// one assistant message out. No streaming, no tool calling; plans and
// extractions are plain text exchanges.
package providers

import (
	"context"
	"strings"
	"time"

	"github.com/haasonsaas/camel/pkg/models"
)

// Request is one bounded model call.
type Request struct {
	// Model is the provider-specific model identifier.
	Model string

	// System is the system prompt, empty for none.
	System string

	// Messages is the conversation so far, oldest first.
	Messages []models.ChatMessage

	// MaxTokens bounds the response length. Required; the runtime never
	// issues unbounded calls.
	MaxTokens int

	// Temperature is the sampling temperature. Zero means provider
	// default.
	Temperature float32
}

// ModelClient is implemented by each provider adapter and by test doubles.
type ModelClient interface {
	// Name identifies the backend for logging and message attribution.
	Name() string

	// Complete issues one model call and returns the assistant reply.
	Complete(ctx context.Context, req *Request) (*models.AssistantMessage, error)
}

// base holds the retry configuration shared by provider adapters.
type base struct {
	maxRetries int
	retryDelay time.Duration
}

func newBase(maxRetries int, retryDelay time.Duration) base {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return base{maxRetries: maxRetries, retryDelay: retryDelay}
}

// retry executes op with linear backoff while isRetryable reports true.
func (b *base) retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= b.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

// transientError classifies an error message as transient: rate limits,
// server errors, timeouts. Everything else (auth, validation) is permanent.
func transientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"rate limit", "rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable",
		"gateway timeout", "overloaded",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
