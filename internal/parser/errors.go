// Package parser turns planner output into validated IR. Two front-ends
// share one output shape: a restricted Python-like code dialect with exact
// line/column diagnostics, and a structured JSON step array with exact
// JSON-path diagnostics.
package parser

import (
	"fmt"

	"github.com/haasonsaas/camel/internal/ir"
)

// Error is a trusted parse diagnostic. Code front-end errors carry a
// 1-based source location and the offending line's text; structured
// front-end errors carry a JSON path in the message instead.
type Error struct {
	// Message describes the problem.
	Message string

	// Loc is the source position for code front-end errors, nil for
	// structured front-end errors.
	Loc *ir.SourceLoc
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Loc == nil {
		return e.Message
	}
	if e.Loc.Text != "" {
		return fmt.Sprintf("line %d, column %d: %s\n  %s", e.Loc.Line, e.Loc.Col, e.Message, e.Loc.Text)
	}
	return fmt.Sprintf("line %d, column %d: %s", e.Loc.Line, e.Loc.Col, e.Message)
}

func errAt(loc *ir.SourceLoc, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Loc: loc}
}
