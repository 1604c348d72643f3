package interp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/camel/internal/ir"
	"github.com/haasonsaas/camel/internal/parser"
	"github.com/haasonsaas/camel/internal/policy"
	"github.com/haasonsaas/camel/internal/value"
	"github.com/haasonsaas/camel/pkg/models"
)

type fakeHost struct {
	facts   map[string]ToolFacts
	results map[string]*models.ToolResult
	errs    map[string]error
	calls   []string
}

func (h *fakeHost) Facts(name string) (ToolFacts, bool) {
	f, ok := h.facts[name]
	return f, ok
}

func (h *fakeHost) Call(_ context.Context, name string, _ *value.Dict) (*models.ToolResult, *models.ToolMeta, error) {
	h.calls = append(h.calls, name)
	if err := h.errs[name]; err != nil {
		return nil, &models.ToolMeta{Name: name}, err
	}
	r := h.results[name]
	if r == nil {
		r = models.TextResult("ok")
	}
	return r, &models.ToolMeta{Name: name}, nil
}

type fakeExtractor struct {
	out         value.Value
	err         error
	instruction string
}

func (e *fakeExtractor) Extract(_ context.Context, instruction string, _ value.Value, _ *ir.Schema) (value.Value, error) {
	e.instruction = instruction
	if e.err != nil {
		return value.Null(), e.err
	}
	return e.out, nil
}

func parseProg(t *testing.T, src string, tools ...string) *ir.Program {
	t.Helper()
	prog, err := parser.Parse(src, parser.NewAllowSet(tools...))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return prog
}

func runProg(t *testing.T, in *Interp, src string, tools ...string) *Error {
	t.Helper()
	return in.Execute(context.Background(), parseProg(t, src, tools...))
}

func lookupVal(t *testing.T, in *Interp, name string) value.Labeled {
	t.Helper()
	lv, ok := in.Env().Lookup(name)
	if !ok {
		t.Fatalf("variable %q not bound", name)
	}
	return lv
}

func TestEvalExpressions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string // repr of x
	}{
		{"arithmetic precedence", "x = 1 + 2 * 3", "7"},
		{"true division yields float", "x = 7 / 2", "3.5"},
		{"modulo follows divisor sign", "x = -5 % 3", "1"},
		{"string concat", "x = 'a' + 'b'", "'ab'"},
		{"string repeat", "x = 'ab' * 3", "'ababab'"},
		{"boolop yields deciding operand", "x = 0 or 'fallback'", "'fallback'"},
		{"and short-circuits to falsy operand", "x = 0 and 1", "0"},
		{"comparison chain", "x = 1 < 2 < 3", "True"},
		{"broken chain", "x = 1 < 2 > 5", "False"},
		{"membership", "x = 'ell' in 'hello'", "True"},
		{"ternary", "x = 'yes' if 2 > 1 else 'no'", "'yes'"},
		{"list slicing", "x = [1, 2, 3, 4][1:3]", "[2, 3]"},
		{"negative step slicing", "x = 'abcdef'[::-1]", "'fedcba'"},
		{"string indexing counts runes", "x = 'héllo'[1]", "'é'"},
		{"dict index", "x = {'a': 1, 'b': 2}['b']", "2"},
		{"list comprehension with guard", "x = [i * i for i in range(5) if i % 2 == 0]", "[0, 4, 16]"},
		{"dict comprehension with unpack", "x = {k: v for k, v in [('a', 1), ('b', 2)]}", "{'a': 1, 'b': 2}"},
		{"set literal deduplicates", "x = sorted([i for i in {1, 2, 2, 1}])", "[1, 2]"},
		{"builtin sorted", "x = sorted([3, 1, 2])", "[1, 2, 3]"},
		{"builtin len on runes", "x = len('héllo')", "5"},
		{"str conversion", "x = str(42) + '!'", "'42!'"},
		{"divmod floors", "x = divmod(7, 2)", "(3, 1)"},
		{"method chain", "x = 'Hello World'.lower().split()", "['hello', 'world']"},
		{"strip and replace", "x = '  a-b  '.strip().replace('-', '+')", "'a+b'"},
		{"join type-checks later", "x = ', '.join(['a', 'b'])", "'a, b'"},
		{"format autonumbering", "x = '{} and {}'.format('a', 'b')", "'a and b'"},
		{"unary not", "x = not []", "True"},
		{"tuple unpacking builtin", "x = max([1, 9, 4])", "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := New(Options{Mode: policy.ModeNormal})
			if err := runProg(t, in, tt.src); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			got := value.Repr(lookupVal(t, in, "x").Val)
			if got != tt.want {
				t.Errorf("x = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined variable", "x = y + 1", `name "y" is not defined`},
		{"division by zero", "x = 1 / 0", "division by zero"},
		{"index out of range", "x = [1][5]", "out of range"},
		{"missing dict key", "x = {'a': 1}['b']", "KeyError: 'b'"},
		{"unorderable comparison", "x = 'a' < 1", "not supported between"},
		{"oversized repeat", "x = 'a' * 2000000", "size limit"},
		{"unpack length mismatch", "a, b = (1, 2, 3)", "expected 2 values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := New(Options{Mode: policy.ModeNormal})
			err := runProg(t, in, tt.src)
			if err == nil {
				t.Fatal("Execute() succeeded, want error")
			}
			if !err.Trusted {
				t.Error("interpreter diagnostics must be trusted")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestAttrWalkNumericIndex(t *testing.T) {
	list := value.NewList([]value.Value{value.NewString("a"), value.NewString("b")})
	got, err := attrWalk(list, "1")
	if err != nil || got.Str() != "b" {
		t.Errorf("attrWalk(list, 1) = %v, %v", value.Repr(got), err)
	}
	if _, err := attrWalk(list, "9"); err == nil || !strings.Contains(err.Message, "out of range") {
		t.Errorf("attrWalk(list, 9) error = %v", err)
	}
	if _, err := attrWalk(list, "subject"); err == nil {
		t.Error("non-numeric attribute on a list must fail")
	}
}

func TestErrorsCarryLocation(t *testing.T) {
	in := New(Options{Mode: policy.ModeNormal})
	err := runProg(t, in, "x = 1\ny = missing\n")
	if err == nil {
		t.Fatal("Execute() succeeded, want error")
	}
	if err.Loc == nil || err.Loc.Line != 2 {
		t.Errorf("Loc = %+v, want line 2", err.Loc)
	}
}

func TestCapabilityPropagation(t *testing.T) {
	in := New(Options{Mode: policy.ModeStrict})
	in.Env().Bind("doc", value.Labeled{
		Val: value.NewString("attacker text"),
		Cap: value.UntrustedCap(value.ToolSource("web_fetch")),
	})
	if err := runProg(t, in, "x = doc + '!'\ny = 'clean'\n"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	x := lookupVal(t, in, "x")
	if x.Cap.Trusted() {
		t.Error("value derived from untrusted input must be untrusted")
	}
	if !x.Cap.HasSource("tool:web_fetch") {
		t.Errorf("sources = %v, want tool:web_fetch", x.Cap.Sources())
	}

	y := lookupVal(t, in, "y")
	if !y.Cap.Trusted() {
		t.Error("literal binding must stay trusted")
	}
}

func TestShortCircuitSkipsUnevaluatedTaint(t *testing.T) {
	in := New(Options{Mode: policy.ModeStrict})
	in.Env().Bind("tainted", value.Labeled{
		Val: value.NewString("x"),
		Cap: value.UntrustedCap(value.QllmSource("tainted")),
	})
	if err := runProg(t, in, "a = True or tainted\nb = False or tainted\n"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !lookupVal(t, in, "a").Cap.Trusted() {
		t.Error("unevaluated operand tainted the result")
	}
	if lookupVal(t, in, "b").Cap.Trusted() {
		t.Error("evaluated untrusted operand did not taint the result")
	}
}

func TestControlFlowTaintStrictOnly(t *testing.T) {
	bind := func(in *Interp) {
		in.Env().Bind("flag", value.Labeled{
			Val: value.NewBool(true),
			Cap: value.UntrustedCap(value.QllmSource("flag")),
		})
	}
	src := "if flag:\n    x = 'constant'\n"

	strict := New(Options{Mode: policy.ModeStrict})
	bind(strict)
	if err := runProg(t, strict, src); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	x := lookupVal(t, strict, "x")
	if x.Cap.Trusted() {
		t.Error("strict mode must taint bindings under an untrusted condition")
	}
	if !x.Cap.HasSource(value.GuardSource("if")) {
		t.Errorf("sources = %v, want guard:if", x.Cap.Sources())
	}

	normal := New(Options{Mode: policy.ModeNormal})
	bind(normal)
	if err := runProg(t, normal, src); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !lookupVal(t, normal, "x").Cap.Trusted() {
		t.Error("normal mode must not track control-flow taint")
	}
}

func TestForLoopVariablesAreScoped(t *testing.T) {
	in := New(Options{Mode: policy.ModeNormal})
	src := "x = \"orig\"\nfor x in [1, 2]:\n    y = x\nfinal(\"{{x}}\")\n"
	if err := runProg(t, in, src); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := in.FinalText(); got != "orig" {
		t.Errorf("final text = %q, want the pre-loop binding restored", got)
	}
	if got := lookupVal(t, in, "x").Val.Str(); got != "orig" {
		t.Errorf("x = %q", got)
	}
	// body bindings are ordinary assignments and survive the loop
	if got := lookupVal(t, in, "y").Val.Int(); got != 2 {
		t.Errorf("y = %d", got)
	}

	in = New(Options{Mode: policy.ModeNormal})
	if err := runProg(t, in, "for m in [1, 2]:\n    pass\n"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if _, ok := in.Env().Lookup("m"); ok {
		t.Error("loop variable without a prior binding leaked past the loop")
	}
}

func TestExecutedStepBudget(t *testing.T) {
	in := New(Options{Mode: policy.ModeNormal})
	err := runProg(t, in, "for i in range(40):\n    x = i\n    y = i\n")
	if err == nil || !strings.Contains(err.Message, "executed steps") {
		t.Errorf("error = %v, want executed step budget diagnostic", err)
	}
}

func TestRaiseTrustMirrorsValue(t *testing.T) {
	in := New(Options{Mode: policy.ModeStrict})
	err := runProg(t, in, "raise 'inbox was empty'\n")
	if err == nil || !err.Trusted || err.Message != "inbox was empty" {
		t.Errorf("err = %+v, want trusted literal raise", err)
	}

	in = New(Options{Mode: policy.ModeStrict})
	in.Env().Bind("msg", value.Labeled{
		Val: value.NewString("injected text"),
		Cap: value.UntrustedCap(value.ToolSource("web_fetch")),
	})
	err = runProg(t, in, "raise msg\n")
	if err == nil || err.Trusted {
		t.Errorf("err = %+v, want untrusted raise", err)
	}
}

func TestFinalTemplate(t *testing.T) {
	in := New(Options{Mode: policy.ModeStrict})
	in.Env().Bind("info", value.Labeled{
		Val: func() value.Value {
			d := value.NewDictMap()
			d.Set("sender", value.NewString("ada@example.com"))
			return value.NewDict(d)
		}(),
		Cap: value.UntrustedCap(value.QllmSource("info")),
	})
	if err := runProg(t, in, "final(\"mail from {{info.sender}} ({{missing}})\")\n"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if in.Stop() != StopFinal {
		t.Fatalf("Stop() = %v, want StopFinal", in.Stop())
	}
	if got := in.FinalText(); got != "mail from ada@example.com ()" {
		t.Errorf("FinalText() = %q", got)
	}
	if in.FinalCap().Trusted() {
		t.Error("final text interpolating untrusted values must be untrusted")
	}
	texts := in.AssistantTexts()
	if len(texts) != 1 || texts[0] != in.FinalText() {
		t.Errorf("AssistantTexts() = %v", texts)
	}
}

func TestFinalStopsRemainingSteps(t *testing.T) {
	host := &fakeHost{facts: map[string]ToolFacts{"send_email": {StateChanging: true}}}
	in := New(Options{Mode: policy.ModeNormal, Tools: host})
	if err := runProg(t, in, "final(\"done\")\nsend_email(to=\"a@b.c\", body=\"x\")\n", "send_email"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(host.calls) != 0 {
		t.Errorf("tool ran after final: %v", host.calls)
	}
}

func TestPrintJoinsArguments(t *testing.T) {
	in := New(Options{Mode: policy.ModeNormal})
	if err := runProg(t, in, "print('found', 3, 'items')\n"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	texts := in.AssistantTexts()
	if len(texts) != 1 || texts[0] != "found 3 items" {
		t.Errorf("AssistantTexts() = %v", texts)
	}
	if in.Stop() != StopNone {
		t.Errorf("Stop() = %v, want StopNone", in.Stop())
	}
}

func TestToolResultBindingAndProvenance(t *testing.T) {
	host := &fakeHost{
		facts: map[string]ToolFacts{"get_inbox": {}},
		results: map[string]*models.ToolResult{
			"get_inbox": {Details: []any{map[string]any{"subject": "hi"}}},
		},
	}
	in := New(Options{Mode: policy.ModeStrict, Tools: host})
	if err := runProg(t, in, "inbox = get_inbox(folder=\"primary\")\nsubject = inbox[0].subject\n", "get_inbox"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	inbox := lookupVal(t, in, "inbox")
	if inbox.Cap.Trusted() {
		t.Error("tool output must be untrusted")
	}
	if !inbox.Cap.HasSource("tool:get_inbox") {
		t.Errorf("sources = %v", inbox.Cap.Sources())
	}
	subject := lookupVal(t, in, "subject")
	if subject.Val.Str() != "hi" {
		t.Errorf("subject = %s", value.Repr(subject.Val))
	}
	if subject.Cap.Trusted() {
		t.Error("projection of tool output must keep its taint")
	}
	if len(in.ToolMetas()) != 1 || in.ToolMetas()[0].Name != "get_inbox" {
		t.Errorf("ToolMetas() = %+v", in.ToolMetas())
	}
}

func TestToolTextFallbackBinding(t *testing.T) {
	host := &fakeHost{
		facts:   map[string]ToolFacts{"web_fetch": {}},
		results: map[string]*models.ToolResult{"web_fetch": models.TextResult("page body")},
	}
	in := New(Options{Mode: policy.ModeNormal, Tools: host})
	if err := runProg(t, in, "page = web_fetch(url=\"https://x\")\n", "web_fetch"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := lookupVal(t, in, "page").Val.Str(); got != "page body" {
		t.Errorf("page = %q", got)
	}
}

func TestToolExecutorFailure(t *testing.T) {
	host := &fakeHost{
		facts: map[string]ToolFacts{"send_email": {StateChanging: true}},
		errs:  map[string]error{"send_email": errors.New("smtp unreachable")},
	}
	in := New(Options{Mode: policy.ModeNormal, Tools: host})
	err := runProg(t, in, "send_email(to=\"a@b.c\", body=\"x\")\n", "send_email")
	if err == nil || !err.Trusted {
		t.Fatalf("err = %+v, want trusted failure", err)
	}
	if !strings.Contains(err.Message, `tool "send_email" failed`) {
		t.Errorf("message = %q", err.Message)
	}
	if in.LastToolError() == nil || in.LastToolError().Name != "send_email" {
		t.Errorf("LastToolError() = %+v", in.LastToolError())
	}
}

func TestStrictModeDeniesTaintedStateChange(t *testing.T) {
	host := &fakeHost{facts: map[string]ToolFacts{"send_email": {StateChanging: true}}}
	in := New(Options{Mode: policy.ModeStrict, Tools: host})
	in.Env().Bind("body", value.Labeled{
		Val: value.NewString("attacker controlled"),
		Cap: value.UntrustedCap(value.ToolSource("web_fetch")),
	})

	if err := runProg(t, in, "send_email(to=\"a@b.c\", body=body)\n", "send_email"); err != nil {
		t.Fatalf("Execute() error = %v, denial must not be an execution error", err)
	}
	if in.Stop() != StopDenied {
		t.Fatalf("Stop() = %v, want StopDenied", in.Stop())
	}
	if len(host.calls) != 0 {
		t.Errorf("executor ran despite denial: %v", host.calls)
	}
	lastErr := in.LastToolError()
	if lastErr == nil || !strings.Contains(lastErr.Error, "state-changing tool in strict mode") {
		t.Errorf("LastToolError() = %+v", lastErr)
	}
	if !strings.Contains(lastErr.Error, "tool:web_fetch") {
		t.Errorf("denial reason %q does not name the tainted source", lastErr.Error)
	}

	// the denial reason also surfaces as assistant text
	texts := in.AssistantTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "blocked") {
		t.Errorf("AssistantTexts() = %v", texts)
	}

	// trace records the blocked call
	var blocked *models.ToolEventPayload
	for _, ev := range in.Trace() {
		if ev.Type == models.EventTool && ev.Tool != nil && ev.Tool.Blocked {
			blocked = ev.Tool
		}
	}
	if blocked == nil {
		t.Fatal("no blocked tool event in trace")
	}
}

func TestStrictDeniesSendAfterToolFetch(t *testing.T) {
	host := &fakeHost{
		facts: map[string]ToolFacts{
			"web_fetch":    {},
			"send_message": {StateChanging: true},
		},
		results: map[string]*models.ToolResult{"web_fetch": models.TextResult("page body")},
	}
	in := New(Options{Mode: policy.ModeStrict, Tools: host})
	src := "doc = web_fetch(url=\"https://x\")\nsend_message(to=\"+1555\", body=doc)\n"
	if err := runProg(t, in, src, "web_fetch", "send_message"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	doc := lookupVal(t, in, "doc")
	if doc.Cap.Trusted() || !doc.Cap.HasSource("tool:web_fetch") {
		t.Errorf("doc capability = trusted=%v sources=%v", doc.Cap.Trusted(), doc.Cap.Sources())
	}
	if in.Stop() != StopDenied {
		t.Fatalf("Stop() = %v, want StopDenied", in.Stop())
	}
	for _, name := range host.calls {
		if name == "send_message" {
			t.Fatal("send_message reached the executor")
		}
	}
	lastErr := in.LastToolError()
	if lastErr == nil || !strings.Contains(lastErr.Error, "tool:web_fetch") {
		t.Errorf("LastToolError() = %+v", lastErr)
	}
}

func TestNormalModeAllowsTaintedStateChange(t *testing.T) {
	host := &fakeHost{facts: map[string]ToolFacts{"send_email": {StateChanging: true}}}
	in := New(Options{Mode: policy.ModeNormal, Tools: host})
	in.Env().Bind("body", value.Labeled{
		Val: value.NewString("tainted"),
		Cap: value.UntrustedCap(value.ToolSource("web_fetch")),
	})
	if err := runProg(t, in, "send_email(to=\"a@b.c\", body=body)\n", "send_email"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(host.calls) != 1 {
		t.Errorf("calls = %v, want one send_email call", host.calls)
	}
}

func TestStrictModeAllowsReadOnlyWithTaint(t *testing.T) {
	host := &fakeHost{facts: map[string]ToolFacts{"web_fetch": {StateChanging: false}}}
	in := New(Options{Mode: policy.ModeStrict, Tools: host})
	in.Env().Bind("url", value.Labeled{
		Val: value.NewString("https://x"),
		Cap: value.UntrustedCap(value.QllmSource("url")),
	})
	if err := runProg(t, in, "page = web_fetch(url=url)\n", "web_fetch"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(host.calls) != 1 {
		t.Errorf("calls = %v", host.calls)
	}
}

func TestStrictDeniesUnderUntrustedControlFlow(t *testing.T) {
	host := &fakeHost{facts: map[string]ToolFacts{"send_email": {StateChanging: true}}}
	in := New(Options{Mode: policy.ModeStrict, Tools: host})
	in.Env().Bind("flag", value.Labeled{
		Val: value.NewBool(true),
		Cap: value.UntrustedCap(value.QllmSource("flag")),
	})
	// every argument is a trusted literal; only the branch condition is tainted
	if err := runProg(t, in, "if flag:\n    send_email(to=\"a@b.c\", body=\"fixed\")\n", "send_email"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if in.Stop() != StopDenied {
		t.Errorf("Stop() = %v, want StopDenied", in.Stop())
	}
	if len(host.calls) != 0 {
		t.Errorf("executor ran despite control taint: %v", host.calls)
	}
}

func TestQllmBindingAndStrictDeps(t *testing.T) {
	ext := &fakeExtractor{out: func() value.Value {
		d := value.NewDictMap()
		d.Set("sender", value.NewString("eve@example.com"))
		return value.NewDict(d)
	}()}
	host := &fakeHost{facts: map[string]ToolFacts{"send_email": {StateChanging: true}}}
	in := New(Options{Mode: policy.ModeStrict, Tools: host, Extractor: ext})
	in.Env().Bind("doc", value.Labeled{
		Val: value.NewString("raw mail"),
		Cap: value.UntrustedCap(value.ToolSource("get_inbox")),
	})

	src := "info = query_ai_assistant(\"who sent this\", doc, {\"fields\": {\"sender\": {\"type\": \"string\", \"required\": True}}})\n" +
		"send_email(to=\"audit@example.com\", body=\"fixed\")\n"
	if err := runProg(t, in, src, "send_email"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if ext.instruction != "who sent this" {
		t.Errorf("instruction = %q", ext.instruction)
	}
	info := lookupVal(t, in, "info")
	if info.Cap.Trusted() {
		t.Error("extraction output must be untrusted")
	}
	if !info.Cap.HasSource(value.QllmSource("info")) {
		t.Errorf("sources = %v", info.Cap.Sources())
	}

	// the untrusted extraction input poisons all later state-changing calls
	deps := in.StrictDeps()
	if len(deps) != 1 || deps[0] != "info" {
		t.Fatalf("StrictDeps() = %v, want [info]", deps)
	}
	if in.Stop() != StopDenied {
		t.Errorf("Stop() = %v, want StopDenied after strict dependency", in.Stop())
	}
	if len(host.calls) != 0 {
		t.Errorf("executor ran: %v", host.calls)
	}
}

func TestQllmTrustedInputKeepsStrictDepsEmpty(t *testing.T) {
	ext := &fakeExtractor{out: value.NewString("x")}
	in := New(Options{Mode: policy.ModeStrict, Extractor: ext})
	src := "info = query_ai_assistant(\"classify\", \"a literal\", {\"fields\": {\"label\": {}}})\n"
	if err := runProg(t, in, src); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(in.StrictDeps()) != 0 {
		t.Errorf("StrictDeps() = %v, want empty", in.StrictDeps())
	}
	// the binding itself is still untrusted
	if lookupVal(t, in, "info").Cap.Trusted() {
		t.Error("extraction output must be untrusted regardless of input trust")
	}
}

func TestStrictDepsSeedCarriesAcrossAttempts(t *testing.T) {
	host := &fakeHost{facts: map[string]ToolFacts{"send_email": {StateChanging: true}}}
	in := New(Options{Mode: policy.ModeStrict, Tools: host, StrictDeps: []string{"info"}})
	if err := runProg(t, in, "send_email(to=\"a@b.c\", body=\"fixed\")\n", "send_email"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if in.Stop() != StopDenied {
		t.Errorf("Stop() = %v, want StopDenied from seeded dependency", in.Stop())
	}
}

func TestClientToolStopsRun(t *testing.T) {
	host := &fakeHost{facts: map[string]ToolFacts{"ask_user": {ClientOwned: true, StateChanging: true}}}
	in := New(Options{Mode: policy.ModeStrict, Tools: host})
	if err := runProg(t, in, "ask_user(question=\"which folder?\")\nfinal(\"never reached\")\n", "ask_user"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if in.Stop() != StopClientTool {
		t.Fatalf("Stop() = %v, want StopClientTool", in.Stop())
	}
	call := in.ClientCall()
	if call == nil || call.Name != "ask_user" {
		t.Fatalf("ClientCall() = %+v", call)
	}
	if !strings.Contains(string(call.Params), `"question":"which folder?"`) {
		t.Errorf("params = %s", call.Params)
	}
	if in.FinalText() != "" {
		t.Error("final step ran after the client tool stop")
	}
	if len(host.calls) != 0 {
		t.Error("client-owned tool must not execute in-process")
	}
}

func TestContextCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := New(Options{Mode: policy.ModeNormal})
	err := in.Execute(ctx, parseProg(t, "x = 1\n"))
	if err == nil || !strings.Contains(err.Message, "aborted") {
		t.Errorf("err = %+v, want abort", err)
	}
}
