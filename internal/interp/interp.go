package interp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/camel/internal/ir"
	"github.com/haasonsaas/camel/internal/policy"
	"github.com/haasonsaas/camel/internal/value"
	"github.com/haasonsaas/camel/pkg/models"
)

// ToolFacts is what the interpreter needs to know about a registered tool
// before dispatching it.
type ToolFacts struct {
	// StateChanging mirrors the tool descriptor's declaration.
	StateChanging bool

	// ClientOwned marks tools the host executes out-of-band. Reaching one
	// stops the run and hands the call back to the host.
	ClientOwned bool
}

// ToolHost executes registered tools on behalf of the interpreter. The
// virtual tools print and query_ai_assistant never reach it.
type ToolHost interface {
	// Facts returns static facts about a registered tool.
	Facts(name string) (ToolFacts, bool)

	// Call executes the tool and returns its normalized result plus the
	// per-invocation metadata record.
	Call(ctx context.Context, name string, args *value.Dict) (*models.ToolResult, *models.ToolMeta, error)
}

// Extractor runs the quarantined extraction primitive.
type Extractor interface {
	// Extract converts untrusted input into a structured dict under the
	// given schema. Errors are trusted diagnostics.
	Extract(ctx context.Context, instruction string, input value.Value, schema *ir.Schema) (value.Value, error)
}

// StopReason describes why execution halted before running out of steps.
type StopReason int

const (
	// StopNone means the program ran to completion without a final step.
	StopNone StopReason = iota

	// StopFinal means a final step rendered the reply.
	StopFinal

	// StopClientTool means a client-owned tool was reached; the host
	// executes it and the run ends without a final reply.
	StopClientTool

	// StopDenied means the policy engine blocked a tool call; the run
	// ends with lastToolError populated.
	StopDenied
)

// Options configures one interpreter attempt.
type Options struct {
	// Mode is the run's evaluation mode.
	Mode policy.Mode

	// Tools executes registered tools. Required when programs call tools.
	Tools ToolHost

	// Extractor runs query_ai_assistant. Required when programs use it.
	Extractor Extractor

	// StrictDeps seeds the strict-dependency set. The loop threads the
	// grown set into the next attempt of the same run.
	StrictDeps []string

	// Now supplies event timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Interp executes one program attempt. It is single-use: create a fresh
// interpreter per attempt and harvest its outputs afterwards.
type Interp struct {
	env     *Env
	mode    policy.Mode
	tools   ToolHost
	extract Extractor
	now     func() time.Time

	depth         int
	stepsExecuted int

	// control is the merged capability of all enclosing conditions and
	// loop iterables. Threaded in strict mode only.
	control value.Capability

	strictDeps []string

	trace          []models.ExecutionEvent
	assistantTexts []string
	toolMetas      []models.ToolMeta
	lastToolErr    *models.ToolErrorInfo
	clientCall     *models.ClientToolCall

	stop      StopReason
	finalText string
	finalCap  value.Capability
}

// New creates an interpreter for one attempt.
func New(opts Options) *Interp {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	deps := make([]string, len(opts.StrictDeps))
	copy(deps, opts.StrictDeps)
	return &Interp{
		env:        NewEnv(),
		mode:       opts.Mode,
		tools:      opts.Tools,
		extract:    opts.Extractor,
		now:        now,
		control:    value.TrustedCap(),
		strictDeps: deps,
	}
}

// Env exposes the environment so callers can pre-bind inputs (for example
// the user prompt under a user-sourced capability).
func (in *Interp) Env() *Env { return in.env }

// Trace returns the execution events recorded so far.
func (in *Interp) Trace() []models.ExecutionEvent { return in.trace }

// AssistantTexts returns text emitted by print and final steps.
func (in *Interp) AssistantTexts() []string { return in.assistantTexts }

// ToolMetas returns the per-invocation records of executed tools.
func (in *Interp) ToolMetas() []models.ToolMeta { return in.toolMetas }

// LastToolError returns the last failed or denied tool call, if any.
func (in *Interp) LastToolError() *models.ToolErrorInfo { return in.lastToolErr }

// ClientCall returns the recorded client-owned tool call, if any.
func (in *Interp) ClientCall() *models.ClientToolCall { return in.clientCall }

// StrictDeps returns the strict-dependency set after execution. Callers
// must not mutate it.
func (in *Interp) StrictDeps() []string { return in.strictDeps }

// Stop returns why execution halted.
func (in *Interp) Stop() StopReason { return in.stop }

// FinalText returns the rendered final reply when Stop is StopFinal.
func (in *Interp) FinalText() string { return in.finalText }

// FinalCap returns the merged capability of the final reply's references.
func (in *Interp) FinalCap() value.Capability { return in.finalCap }

// Execute runs the program. A nil return with Stop() == StopNone means
// the program completed without producing a final reply.
func (in *Interp) Execute(ctx context.Context, prog *ir.Program) *Error {
	return in.execSteps(ctx, prog.Steps)
}

func (in *Interp) execSteps(ctx context.Context, steps []ir.Step) *Error {
	for _, s := range steps {
		if in.stop != StopNone {
			return nil
		}
		if ctx.Err() != nil {
			return trustedErr("run aborted")
		}
		in.stepsExecuted++
		if in.stepsExecuted > ir.MaxProgramSteps {
			return trustedErr("program exceeded the maximum of %d executed steps", ir.MaxProgramSteps)
		}
		if err := in.execStep(ctx, s); err != nil {
			if err.Loc == nil {
				err.Loc = s.Loc()
			}
			return err
		}
	}
	return nil
}

func (in *Interp) execStep(ctx context.Context, s ir.Step) *Error {
	step := in.stepsExecuted - 1

	switch t := s.(type) {
	case *ir.AssignStep:
		lv, err := in.eval(t.Expr)
		if err != nil {
			return err
		}
		in.env.Bind(t.Target, value.Labeled{Val: lv.Val, Cap: in.bindCap(lv.Cap)})
		in.record(models.ExecutionEvent{
			Type: models.EventAssign, Step: step,
			Assign: &models.AssignEventPayload{Name: t.Target},
		})
		return nil

	case *ir.UnpackStep:
		lv, err := in.eval(t.Expr)
		if err != nil {
			return err
		}
		if err := bindTargets(in.env, t.Targets, value.Labeled{Val: lv.Val, Cap: in.bindCap(lv.Cap)}); err != nil {
			return err
		}
		for _, name := range t.Targets {
			in.record(models.ExecutionEvent{
				Type: models.EventAssign, Step: step,
				Assign: &models.AssignEventPayload{Name: name},
			})
		}
		return nil

	case *ir.ToolStep:
		return in.execTool(ctx, step, t)

	case *ir.QllmStep:
		return in.execQllm(ctx, step, t)

	case *ir.IfStep:
		cond, err := in.eval(t.Cond)
		if err != nil {
			return err
		}
		restore := in.pushControl(cond.Cap, "if")
		defer restore()
		if cond.Val.Truthy() {
			return in.execSteps(ctx, t.Then)
		}
		return in.execSteps(ctx, t.Else)

	case *ir.ForStep:
		iter, err := in.eval(t.Iterable)
		if err != nil {
			return err
		}
		elems, ierr := iterate(iter.Val)
		if ierr != nil {
			return ierr
		}
		restore := in.pushControl(iter.Cap, "for")
		defer restore()
		restoreTargets := in.env.Save(t.Targets)
		defer restoreTargets()
		for _, elem := range elems {
			if in.stop != StopNone {
				return nil
			}
			if err := bindTargets(in.env, t.Targets, value.Labeled{Val: elem, Cap: in.bindCap(iter.Cap)}); err != nil {
				return err
			}
			if err := in.execSteps(ctx, t.Body); err != nil {
				return err
			}
		}
		return nil

	case *ir.RaiseStep:
		lv, err := in.eval(t.Err)
		if err != nil {
			return err
		}
		return &Error{Message: value.Str(lv.Val), Trusted: lv.Cap.Trusted()}

	case *ir.FinalStep:
		text, cap := renderTemplate(in.env, t.Text)
		in.finalText = text
		in.finalCap = cap
		in.assistantTexts = append(in.assistantTexts, text)
		in.stop = StopFinal
		in.record(models.ExecutionEvent{
			Type: models.EventFinal, Step: step,
			Final: &models.FinalEventPayload{Text: text, Capability: capModel(cap)},
		})
		return nil
	}
	return trustedErr("unsupported step form %T", s)
}

// bindCap derives a binding capability: in strict mode the control-flow
// capability of the enclosing conditions merges in.
func (in *Interp) bindCap(c value.Capability) value.Capability {
	if in.mode == policy.ModeStrict {
		return value.Merge(c, in.control)
	}
	return c
}

// pushControl merges a condition or iterable capability into the
// control-flow capability for the duration of a nested body. Strict mode
// only; normal mode tracks nothing.
func (in *Interp) pushControl(c value.Capability, kind string) func() {
	if in.mode != policy.ModeStrict {
		return func() {}
	}
	saved := in.control
	guard := c
	if !guard.Trusted() {
		guard = guard.WithSource(value.GuardSource(kind))
	}
	in.control = value.Merge(saved, guard)
	return func() { in.control = saved }
}

func (in *Interp) execTool(ctx context.Context, step int, t *ir.ToolStep) *Error {
	args := value.NewDictMap()
	argsCap := value.TrustedCap()
	for _, a := range t.Args {
		lv, err := in.eval(a.Expr)
		if err != nil {
			return err
		}
		args.Set(a.Name, lv.Val)
		argsCap = value.Merge(argsCap, lv.Cap)
	}

	if t.Name == "print" {
		return in.execPrint(step, t, args, argsCap)
	}

	if in.tools == nil {
		return trustedErr("no tool host registered for %q", t.Name)
	}
	facts, ok := in.tools.Facts(t.Name)
	if !ok {
		return trustedErr("unknown tool %q", t.Name)
	}

	if facts.ClientOwned {
		params, merr := json.Marshal(value.NewDict(args))
		if merr != nil {
			return trustedErr("cannot serialize arguments for client tool %q: %v", t.Name, merr)
		}
		in.clientCall = &models.ClientToolCall{Name: t.Name, Params: params}
		in.stop = StopClientTool
		in.record(models.ExecutionEvent{
			Type: models.EventTool, Step: step,
			Tool: &models.ToolEventPayload{
				Name:       t.Name,
				Args:       anyArgs(args),
				Capability: capModel(value.Merge(argsCap, in.control)),
			},
		})
		return nil
	}

	effective := value.Merge(argsCap, in.control)
	decision := policy.Evaluate(policy.Input{
		Tool:       policy.ToolInfo{Name: t.Name, StateChanging: facts.StateChanging},
		Args:       argsCap,
		Control:    in.control,
		StrictDeps: in.strictDeps,
		Mode:       in.mode,
	})
	if !decision.Allowed {
		in.lastToolErr = &models.ToolErrorInfo{Name: t.Name, Error: decision.Reason}
		in.assistantTexts = append(in.assistantTexts, decision.Reason)
		in.stop = StopDenied
		in.record(models.ExecutionEvent{
			Type: models.EventTool, Step: step,
			Tool: &models.ToolEventPayload{
				Name:       t.Name,
				Args:       anyArgs(args),
				Blocked:    true,
				Reason:     decision.Reason,
				Capability: capModel(effective),
			},
		})
		return nil
	}

	result, meta, cerr := in.tools.Call(ctx, t.Name, args)
	if cerr != nil || (result != nil && result.IsError) {
		reason := "tool reported an error"
		if cerr != nil {
			reason = cerr.Error()
		} else if txt := result.Text(); txt != "" {
			reason = txt
		}
		in.lastToolErr = &models.ToolErrorInfo{Name: t.Name, Error: reason}
		if meta != nil {
			in.lastToolErr.Meta = meta.Meta
		}
		in.record(models.ExecutionEvent{
			Type: models.EventTool, Step: step,
			Tool: &models.ToolEventPayload{
				Name:       t.Name,
				Args:       anyArgs(args),
				Reason:     reason,
				Capability: capModel(effective),
			},
		})
		return trustedErr("tool %q failed: %s", t.Name, reason)
	}

	if meta != nil {
		in.toolMetas = append(in.toolMetas, *meta)
	}

	out, derr := toolResultValue(result)
	if derr != nil {
		return derr
	}
	outCap := value.Merge(argsCap, in.control).
		AsUntrusted().
		WithSource(value.ToolSource(t.Name))
	if t.SaveAs != "" {
		in.env.Bind(t.SaveAs, value.Labeled{Val: out, Cap: outCap})
	}
	in.record(models.ExecutionEvent{
		Type: models.EventTool, Step: step,
		Tool: &models.ToolEventPayload{
			Name:       t.Name,
			Args:       anyArgs(args),
			Result:     out.ToAny(),
			Capability: capModel(outCap),
		},
	})
	return nil
}

// execPrint handles the virtual print tool: its arguments join into one
// assistant text and no executor runs.
func (in *Interp) execPrint(step int, t *ir.ToolStep, args *value.Dict, argsCap value.Capability) *Error {
	parts := make([]string, 0, args.Len())
	for _, k := range args.Keys() {
		v, _ := args.Get(k)
		if v.Kind() == value.KindTuple || v.Kind() == value.KindList {
			for _, el := range v.Seq() {
				parts = append(parts, value.Str(el))
			}
			continue
		}
		parts = append(parts, value.Str(v))
	}
	text := joinSpace(parts)
	in.assistantTexts = append(in.assistantTexts, text)
	in.record(models.ExecutionEvent{
		Type: models.EventTool, Step: step,
		Tool: &models.ToolEventPayload{
			Name:       "print",
			Result:     text,
			Capability: capModel(value.Merge(argsCap, in.control)),
		},
	})
	return nil
}

func (in *Interp) execQllm(ctx context.Context, step int, t *ir.QllmStep) *Error {
	input, err := in.eval(t.Input)
	if err != nil {
		return err
	}
	if in.extract == nil {
		return trustedErr("no extraction model registered for query_ai_assistant")
	}

	// Once untrusted content flows into an extraction, every later
	// state-changing call in this run inherits the dependency.
	if in.mode == policy.ModeStrict && !input.Cap.Trusted() {
		in.strictDeps = append(in.strictDeps, t.SaveAs)
	}

	out, xerr := in.extract.Extract(ctx, t.Instruction, input.Val, t.Schema)
	if xerr != nil {
		return trustedErr("query_ai_assistant failed: %v", xerr)
	}

	cap := value.Merge(input.Cap, in.control).
		AsUntrusted().
		WithSource(value.QllmSource(t.SaveAs))
	in.env.Bind(t.SaveAs, value.Labeled{Val: out, Cap: cap})
	in.record(models.ExecutionEvent{
		Type: models.EventQllm, Step: step,
		Qllm: &models.QllmEventPayload{
			SaveAs:     t.SaveAs,
			Output:     out.ToAny(),
			Capability: capModel(cap),
		},
	})
	return nil
}

func (in *Interp) record(ev models.ExecutionEvent) {
	ev.Timestamp = in.now()
	in.trace = append(in.trace, ev)
}

// toolResultValue derives the bound value from a tool result: structured
// details when present, otherwise the concatenated text blocks.
func toolResultValue(r *models.ToolResult) (value.Value, *Error) {
	if r == nil {
		return value.Null(), nil
	}
	if r.Details != nil {
		v, err := value.FromAny(r.Details)
		if err != nil {
			return value.Null(), trustedErr("tool returned unserializable details: %v", err)
		}
		return v, nil
	}
	return value.NewString(r.Text()), nil
}

func anyArgs(d *value.Dict) map[string]any {
	if d.Len() == 0 {
		return nil
	}
	out := make(map[string]any, d.Len())
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		out[k] = v.ToAny()
	}
	return out
}

func capModel(c value.Capability) *models.Capability {
	m := c.Model()
	return &m
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
