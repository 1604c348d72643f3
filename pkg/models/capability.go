// Package models provides shared domain types for the CaMeL runtime.
package models

import "strings"

// Capability is the serialized provenance label attached to a value.
// Every value produced during program execution carries one; trace events
// and policy decisions expose it in this form.
type Capability struct {
	// Trusted is true iff the value originated from the user prompt or a
	// deterministic program literal and no ancestor came from a tool or a
	// quarantined extraction.
	Trusted bool `json:"trusted"`

	// Sources lists the origin tags that contributed to the value, sorted
	// and deduplicated. Tags look like "user", "tool:send_message",
	// "qllm:summary", or "guard:if".
	Sources []string `json:"sources,omitempty"`
}

// String renders the capability in a compact human-readable form used in
// policy denial reasons and logs.
func (c Capability) String() string {
	var b strings.Builder
	if c.Trusted {
		b.WriteString("trusted")
	} else {
		b.WriteString("untrusted")
	}
	if len(c.Sources) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(c.Sources, ","))
		b.WriteString("]")
	}
	return b.String()
}
