package models

import "time"

// ExecutionEventType identifies the kind of execution trace event.
type ExecutionEventType string

const (
	// EventAssign records a variable binding (assign or unpack step).
	EventAssign ExecutionEventType = "assign"

	// EventTool records a tool invocation, allowed or blocked.
	EventTool ExecutionEventType = "tool"

	// EventQllm records a quarantined extraction call.
	EventQllm ExecutionEventType = "qllm"

	// EventFinal records the final rendered reply.
	EventFinal ExecutionEventType = "final"
)

// ExecutionEvent is one entry of a run's execution trace.
//
// Design follows the versioned single-discriminator event model: one Type
// field, optional payload pointers, exactly one payload non-nil per event.
type ExecutionEvent struct {
	// Type identifies the kind of event.
	Type ExecutionEventType `json:"type"`

	// Step is the 0-based index of the executed step within the run.
	Step int `json:"step"`

	// Timestamp is when the event was recorded. It is the only
	// time-dependent field of a trace.
	Timestamp time.Time `json:"timestamp"`

	// Exactly one payload is non-nil for a given Type.
	Assign *AssignEventPayload `json:"assign,omitempty"`
	Tool   *ToolEventPayload   `json:"tool,omitempty"`
	Qllm   *QllmEventPayload   `json:"qllm,omitempty"`
	Final  *FinalEventPayload  `json:"final,omitempty"`
}

// AssignEventPayload records a variable binding.
type AssignEventPayload struct {
	// Name is the bound variable name. Unpack steps emit one event per
	// target.
	Name string `json:"name"`
}

// ToolEventPayload records a tool invocation.
type ToolEventPayload struct {
	// Name is the canonical tool name.
	Name string `json:"name"`

	// Args holds the resolved, sanitized argument values.
	Args map[string]any `json:"args,omitempty"`

	// Result holds the sanitized tool output when the call was allowed
	// and succeeded.
	Result any `json:"result,omitempty"`

	// Blocked is true when the policy engine denied the call.
	Blocked bool `json:"blocked,omitempty"`

	// Reason is the human-readable denial or failure reason.
	Reason string `json:"reason,omitempty"`

	// Capability is the merged capability of the call's arguments and
	// enclosing control flow.
	Capability *Capability `json:"capability,omitempty"`
}

// QllmEventPayload records a quarantined extraction.
type QllmEventPayload struct {
	// SaveAs is the variable the structured output was bound to.
	SaveAs string `json:"save_as"`

	// Output is the structured value returned by the extraction.
	Output any `json:"output,omitempty"`

	// Capability is the label attached to the binding; always untrusted.
	Capability *Capability `json:"capability,omitempty"`
}

// FinalEventPayload records the rendered final reply.
type FinalEventPayload struct {
	// Text is the rendered template.
	Text string `json:"text"`

	// Capability is the merge of every interpolated reference.
	Capability *Capability `json:"capability,omitempty"`
}
