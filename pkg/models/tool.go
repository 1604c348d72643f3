package models

import "encoding/json"

// ToolContent is one content block of a tool result.
type ToolContent struct {
	// Type is "text" or a media type discriminator.
	Type string `json:"type"`

	// Text is the textual payload for "text" blocks.
	Text string `json:"text,omitempty"`

	// MimeType describes media payloads.
	MimeType string `json:"mime_type,omitempty"`

	// Data holds base64-encoded media payloads.
	Data string `json:"data,omitempty"`
}

// ToolResult is the normalized output of a tool executor.
type ToolResult struct {
	// Content holds the result blocks shown back to the planner.
	Content []ToolContent `json:"content,omitempty"`

	// Details is optional structured output; it becomes the value bound
	// by saveAs when present.
	Details any `json:"details,omitempty"`

	// IsError marks executor-reported failures.
	IsError bool `json:"is_error,omitempty"`
}

// TextResult builds a ToolResult with a single text block.
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

// ErrorResult builds an error ToolResult with a single text block.
func ErrorResult(text string) *ToolResult {
	return &ToolResult{Content: []ToolContent{{Type: "text", Text: text}}, IsError: true}
}

// Text concatenates the text blocks of the result.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, c := range r.Content {
		if c.Type == "text" {
			out += c.Text
		}
	}
	return out
}

// ToolMeta is the per-invocation record surfaced to the host.
type ToolMeta struct {
	// Name is the canonical tool name.
	Name string `json:"name"`

	// Meta is optional structured metadata reported by the adapter.
	Meta map[string]any `json:"meta,omitempty"`
}

// ToolErrorInfo describes the last failed or denied tool call of a run.
type ToolErrorInfo struct {
	Name  string         `json:"name"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error string         `json:"error,omitempty"`
}

// ClientToolCall records a step that targets a client-owned tool. The run
// stops and the host executes the call out-of-band.
type ClientToolCall struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}
