package interp

import (
	"fmt"

	"github.com/haasonsaas/camel/internal/ir"
)

// Error is a runtime failure of plan execution. Trusted errors were
// produced by the interpreter itself; untrusted errors carry content that
// derives from model output (a raised value with untrusted provenance)
// and must be redacted before re-entering a planner prompt.
type Error struct {
	// Message describes the failure.
	Message string

	// Trusted is false when the message content derives from untrusted
	// values.
	Trusted bool

	// Loc is the source location of the failing step when known.
	Loc *ir.SourceLoc
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Loc != nil {
		return fmt.Sprintf("line %d, column %d: %s", e.Loc.Line, e.Loc.Col, e.Message)
	}
	return e.Message
}

func trustedErr(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Trusted: true}
}
