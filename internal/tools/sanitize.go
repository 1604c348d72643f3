package tools

import (
	"encoding/json"

	"github.com/haasonsaas/camel/pkg/models"
)

// maxResultChars caps any single string inside a sanitized tool result.
// Tool output re-enters prompts and traces; unbounded payloads are a cost
// and an injection surface.
const maxResultChars = 10000

// sanitizeResult normalizes a tool result for the trace: non-serializable
// detail fields are dropped and strings are capped.
func sanitizeResult(r *models.ToolResult) *models.ToolResult {
	if r == nil {
		return &models.ToolResult{}
	}
	out := &models.ToolResult{IsError: r.IsError}
	for _, c := range r.Content {
		c.Text = truncate(c.Text)
		out.Content = append(out.Content, c)
	}
	if r.Details != nil {
		if normalized, ok := normalizeDetails(r.Details); ok {
			out.Details = capStrings(normalized)
		}
	}
	return out
}

// normalizeDetails round-trips the details through JSON, dropping anything
// that cannot be serialized.
func normalizeDetails(d any) (any, bool) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}

func capStrings(v any) any {
	switch t := v.(type) {
	case string:
		return truncate(t)
	case []any:
		for i, el := range t {
			t[i] = capStrings(el)
		}
		return t
	case map[string]any:
		for k, el := range t {
			t[k] = capStrings(el)
		}
		return t
	default:
		return v
	}
}

func truncate(s string) string {
	if len(s) <= maxResultChars {
		return s
	}
	return s[:maxResultChars] + "...[truncated]"
}
