package camel

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Run. Use errors.Is to classify.
var (
	// ErrRetriesExhausted means every planning attempt failed; the error
	// message carries the last trusted diagnostic.
	ErrRetriesExhausted = errors.New("plan retries exhausted")

	// ErrAborted means the caller's context was cancelled at a
	// suspension point.
	ErrAborted = errors.New("run aborted")
)

// RunError wraps a run failure with the diagnostic that caused it.
type RunError struct {
	// Kind is one of the sentinel errors.
	Kind error

	// Diagnostic is the last trusted diagnostic, already redacted where
	// necessary.
	Diagnostic string
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Diagnostic == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Diagnostic)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *RunError) Unwrap() error { return e.Kind }
