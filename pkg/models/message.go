package models

import "time"

// AssistantMessage is a single assistant reply produced by a model call.
// The runtime's model contract is deliberately narrow: one system prompt
// plus a message history in, one assistant message out.
type AssistantMessage struct {
	// Provider is the backend that produced the message ("openai",
	// "anthropic", or a test double's name).
	Provider string `json:"provider,omitempty"`

	// Model is the concrete model identifier.
	Model string `json:"model,omitempty"`

	// Content is the assistant text.
	Content string `json:"content"`

	// Timestamp is when the message was received.
	Timestamp time.Time `json:"timestamp"`

	// Usage holds the token accounting reported by the provider.
	Usage TokenUsage `json:"usage,omitempty"`
}

// ChatMessage is one entry of the conversation sent to a model.
// Role is "system", "user", or "assistant".
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
