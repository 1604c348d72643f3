package camel

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/haasonsaas/camel/pkg/models"
)

// TraceRecorder persists execution events as JSON Lines, one event per
// line, tagged with the run that produced it. Safe for concurrent runs
// sharing one writer.
type TraceRecorder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTraceRecorder creates a recorder writing to w.
func NewTraceRecorder(w io.Writer) *TraceRecorder {
	return &TraceRecorder{w: w}
}

type traceLine struct {
	RunID string                `json:"run_id"`
	Event models.ExecutionEvent `json:"event"`
}

// Record writes one event. Errors are returned so callers can decide
// whether a broken trace sink should fail the run; the runtime itself
// logs and continues.
func (t *TraceRecorder) Record(runID string, ev models.ExecutionEvent) error {
	b, err := json.Marshal(traceLine{RunID: runID, Event: ev})
	if err != nil {
		return err
	}
	b = append(b, '\n')
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.w.Write(b)
	return err
}
