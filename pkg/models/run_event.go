package models

// RunEventStream identifies the channel of a run lifecycle event.
type RunEventStream string

const (
	// StreamLifecycle carries run start/finish/error notifications.
	StreamLifecycle RunEventStream = "lifecycle"

	// StreamTool carries tool start/result notifications.
	StreamTool RunEventStream = "tool"

	// StreamAssistant carries assistant text as it is produced.
	StreamAssistant RunEventStream = "assistant"

	// StreamCompaction carries history truncation notices.
	StreamCompaction RunEventStream = "compaction"
)

// RunEvent is delivered to the host's OnEvent sink during a run.
type RunEvent struct {
	// Stream is the event channel.
	Stream RunEventStream `json:"stream"`

	// Data is the event payload. Lifecycle events use string phases,
	// tool events use map payloads with call_id/name/status.
	Data map[string]any `json:"data,omitempty"`
}

// EventSink receives run events. Implementations must be non-blocking;
// the runtime calls the sink inline between suspension points.
type EventSink func(RunEvent)
