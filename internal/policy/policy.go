// Package policy decides whether a tool invocation may proceed given the
// provenance of its arguments and of the enclosing control flow. Decisions
// are pure functions of their inputs.
package policy

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/camel/internal/value"
)

// Mode selects how strictly tainted provenance is enforced.
type Mode int

const (
	// ModeNormal allows every tool call; capabilities are tracked and
	// recorded for audit only.
	ModeNormal Mode = iota

	// ModeStrict denies state-changing tool calls whose inputs or
	// enclosing control flow are tainted, or that follow any quarantined
	// extraction in the run.
	ModeStrict
)

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "normal"
}

// ParseMode parses a configuration spelling. Unknown spellings default to
// strict: the safe direction for a security boundary.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "normal") {
		return ModeNormal
	}
	return ModeStrict
}

// ToolInfo is the static description of a tool that the decision needs.
// State-changingness is a property of the tool descriptor, never of the
// call site.
type ToolInfo struct {
	// Name is the canonical tool name.
	Name string

	// StateChanging is false only for tools that declare themselves
	// side-effect-free. The virtual tools print and query_ai_assistant
	// are read-only.
	StateChanging bool
}

// Input carries everything a decision depends on.
type Input struct {
	// Tool describes the invoked tool.
	Tool ToolInfo

	// Args is the merged capability of every resolved argument.
	Args value.Capability

	// Control is the merged capability of all enclosing conditions and
	// loop iterables of the current step.
	Control value.Capability

	// StrictDeps lists the qllm bindings whose untrusted inputs have
	// entered scope earlier in the run. Append-only.
	StrictDeps []string

	// Mode is the run's evaluation mode.
	Mode Mode
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	// Allowed reports whether the call may proceed.
	Allowed bool

	// Reason is a human-readable denial reason, empty when allowed.
	Reason string
}

// Evaluate applies the mode's rules to one tool invocation.
//
// Normal mode allows everything. Strict mode denies a state-changing tool
// when the merged argument capability is untrusted, when the control-flow
// capability is untrusted, or when any earlier extraction has already
// injected untrusted values into scope.
func Evaluate(in Input) Decision {
	if in.Mode == ModeNormal {
		return Decision{Allowed: true}
	}
	if !in.Tool.StateChanging {
		return Decision{Allowed: true}
	}

	var taint []string
	switch {
	case !in.Args.Trusted():
		taint = in.Args.Sources()
	case !in.Control.Trusted():
		taint = in.Control.Sources()
	case len(in.StrictDeps) > 0:
		taint = make([]string, len(in.StrictDeps))
		for i, d := range in.StrictDeps {
			taint[i] = value.QllmSource(d)
		}
	default:
		return Decision{Allowed: true}
	}

	return Decision{
		Allowed: false,
		Reason: fmt.Sprintf("tool %q blocked (tainted sources: %s): state-changing tool in strict mode with untrusted inputs",
			in.Tool.Name, describeSources(taint)),
	}
}

func describeSources(sources []string) string {
	if len(sources) == 0 {
		return "none recorded"
	}
	return strings.Join(sources, ", ")
}
