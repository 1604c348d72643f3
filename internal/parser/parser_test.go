package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/haasonsaas/camel/internal/ir"
)

func testAllow() AllowSet {
	return NewAllowSet("get_inbox", "send_email", "web_fetch")
}

func mustParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := Parse(src, testAllow())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return prog
}

func TestExtractProgram(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "no fences passes through",
			raw:  "x = 1\n",
			want: "x = 1\n",
		},
		{
			name: "fenced block with info string",
			raw:  "Here is the plan:\n```python\nx = 1\n```\nDone.",
			want: "x = 1\n",
		},
		{
			name: "unterminated fence keeps the rest",
			raw:  "```\nx = 1\n",
			want: "x = 1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractProgram(tt.raw); got != tt.want {
				t.Errorf("ExtractProgram() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCodeStatements(t *testing.T) {
	src := `
inbox = get_inbox(folder="primary")
count = len(inbox)
a, b = (1, 2)
count += 1
if count > 1:
    print("many", count)
else:
    pass
for m in inbox:
    print(m)
final("done: {{count}}")
`
	prog := mustParse(t, src)
	if len(prog.Steps) != 7 {
		t.Fatalf("got %d steps, want 7", len(prog.Steps))
	}

	tool, ok := prog.Steps[0].(*ir.ToolStep)
	if !ok {
		t.Fatalf("step 0 is %T, want *ir.ToolStep", prog.Steps[0])
	}
	if tool.Name != "get_inbox" || tool.SaveAs != "inbox" {
		t.Errorf("tool step = %q saveAs %q", tool.Name, tool.SaveAs)
	}
	if len(tool.Args) != 1 || tool.Args[0].Name != "folder" {
		t.Errorf("tool args = %+v", tool.Args)
	}

	if _, ok := prog.Steps[1].(*ir.AssignStep); !ok {
		t.Errorf("step 1 is %T, want *ir.AssignStep", prog.Steps[1])
	}
	unpack, ok := prog.Steps[2].(*ir.UnpackStep)
	if !ok {
		t.Fatalf("step 2 is %T, want *ir.UnpackStep", prog.Steps[2])
	}
	if len(unpack.Targets) != 2 {
		t.Errorf("unpack targets = %v", unpack.Targets)
	}

	ifs, ok := prog.Steps[4].(*ir.IfStep)
	if !ok {
		t.Fatalf("step 4 is %T, want *ir.IfStep", prog.Steps[4])
	}
	// pass statements vanish, leaving an empty else branch
	if len(ifs.Then) != 1 || len(ifs.Else) != 0 {
		t.Errorf("if branches: then=%d else=%d", len(ifs.Then), len(ifs.Else))
	}

	fin, ok := prog.Steps[len(prog.Steps)-1].(*ir.FinalStep)
	if !ok {
		t.Fatalf("last step is %T, want *ir.FinalStep", prog.Steps[len(prog.Steps)-1])
	}
	if fin.Text != "done: {{count}}" {
		t.Errorf("final text = %q", fin.Text)
	}
}

func TestParseCodeLocations(t *testing.T) {
	prog := mustParse(t, "x = 1\ny = get_inbox()\n")
	loc := prog.Steps[1].Loc()
	if loc == nil {
		t.Fatal("tool step has no location")
	}
	if loc.Line != 2 || loc.Col != 1 {
		t.Errorf("loc = %d:%d, want 2:1", loc.Line, loc.Col)
	}
	if loc.Text != "y = get_inbox()" {
		t.Errorf("loc text = %q", loc.Text)
	}
}

func TestParseCodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown tool lists allowed names",
			src:  "x = delete_everything(path=\"/\")\n",
			want: `unknown tool "delete_everything"`,
		},
		{
			name: "positional tool arguments",
			src:  "x = get_inbox(\"primary\")\n",
			want: "requires keyword arguments",
		},
		{
			name: "tool call in expression position",
			src:  "x = 1 + get_inbox()\n",
			want: "standalone statement or simple assignment",
		},
		{
			name: "unassigned extraction",
			src:  "query_ai_assistant(\"x\", y, {\"fields\": {\"a\": {}}})\n",
			want: "must be assigned to a variable",
		},
		{
			name: "extraction instruction must be literal",
			src:  "x = query_ai_assistant(instr, data, {\"fields\": {\"a\": {}}})\n",
			want: "instruction must be a string literal",
		},
		{
			name: "final with no arguments",
			src:  "final()\n",
			want: "final() requires exactly one argument",
		},
		{
			name: "def is rejected",
			src:  "def f():\n    pass\n",
			want: "def",
		},
		{
			name: "empty program",
			src:  "\n\n",
			want: "empty program",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, testAllow())
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseCodeUnclosedBracket(t *testing.T) {
	_, err := Parse("x = get_inbox(folder=\"a\"\nfinal(\"done\")\n", testAllow())
	if err == nil {
		t.Fatal("Parse() succeeded, want error")
	}
	perr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error is %T, want *parser.Error", err)
	}
	if !strings.Contains(perr.Message, "unclosed") {
		t.Errorf("message = %q, want unclosed-bracket diagnostic", perr.Message)
	}
	if perr.Loc == nil || perr.Loc.Line != 1 {
		t.Errorf("loc = %+v, want line 1 pointing at the opening bracket", perr.Loc)
	}
}

func TestParseCodeStepBudget(t *testing.T) {
	var b strings.Builder
	for i := 0; i <= ir.MaxProgramSteps; i++ {
		fmt.Fprintf(&b, "x%d = %d\n", i, i)
	}
	_, err := Parse(b.String(), testAllow())
	if err == nil || !strings.Contains(err.Error(), "exceeding the budget") {
		t.Errorf("error = %v, want step budget diagnostic", err)
	}
}

func TestParseStructured(t *testing.T) {
	src := `{
	  "rationale": "check mail",
	  "steps": [
	    {"kind": "tool", "tool": "get_inbox", "saveAs": "inbox", "args": {"folder": "\"primary\""}},
	    {"kind": "qllm", "saveAs": "info", "instruction": "get the sender",
	     "input": "inbox", "schema": {"fields": {"sender": {"type": "string", "required": true}}}},
	    {"kind": "if", "cond": "len(inbox) > 0",
	     "thenBranch": [{"kind": "final", "text": "from {{info.sender}}"}],
	     "elseBranch": [{"kind": "final", "text": "empty"}]}
	  ]
	}`
	prog, err := Parse(src, testAllow())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if prog.Rationale != "check mail" {
		t.Errorf("rationale = %q", prog.Rationale)
	}
	if len(prog.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(prog.Steps))
	}
	qllm, ok := prog.Steps[1].(*ir.QllmStep)
	if !ok {
		t.Fatalf("step 1 is %T, want *ir.QllmStep", prog.Steps[1])
	}
	if qllm.SaveAs != "info" || qllm.Schema.Fields["sender"] == nil {
		t.Errorf("qllm step = %+v", qllm)
	}
	if !qllm.Schema.Fields["sender"].Required {
		t.Error("sender field should be required")
	}
}

func TestParseStructuredAcceptsJSON5AndThenAlias(t *testing.T) {
	// trailing comma plus the legacy "then" key
	src := `{
	  "steps": [
	    {"kind": "if", "cond": "1 == 1", "then": [{"kind": "final", "text": "yes"},],},
	  ],
	}`
	prog, err := Parse(src, testAllow())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ifs, ok := prog.Steps[0].(*ir.IfStep)
	if !ok || len(ifs.Then) != 1 {
		t.Fatalf("steps = %+v", prog.Steps)
	}
}

func TestParseStructuredErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown kind carries its JSON path",
			src:  `{"steps": [{"kind": "while"}]}`,
			want: "steps[0].kind",
		},
		{
			name: "unknown tool",
			src:  `{"steps": [{"kind": "tool", "tool": "rm_rf"}]}`,
			want: `unknown tool "rm_rf"`,
		},
		{
			name: "missing thenBranch",
			src:  `{"steps": [{"kind": "if", "cond": "1"}]}`,
			want: "steps[0].thenBranch",
		},
		{
			name: "empty steps",
			src:  `{"steps": []}`,
			want: "at least one step",
		},
		{
			name: "bad expression names its path",
			src:  `{"steps": [{"kind": "assign", "target": "x", "expr": "1 +"}]}`,
			want: "steps[0].expr",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, testAllow())
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestAllowSetResolveIsCaseInsensitive(t *testing.T) {
	allow := testAllow()
	got, ok := allow.Resolve("  Get_Inbox ")
	if !ok || got != "get_inbox" {
		t.Errorf("Resolve() = %q, %v", got, ok)
	}
	if _, ok := allow.Resolve("nope"); ok {
		t.Error("Resolve() accepted an unknown name")
	}
	// virtual tools are always present
	if _, ok := allow.Resolve("print"); !ok {
		t.Error("print missing from allow-set")
	}
	if _, ok := allow.Resolve("query_ai_assistant"); !ok {
		t.Error("query_ai_assistant missing from allow-set")
	}
}

func TestDescribeAllowedTruncates(t *testing.T) {
	names := make([]string, 20)
	for i := range names {
		names[i] = fmt.Sprintf("tool_%02d", i)
	}
	allow := NewAllowSet(names...)
	got := allow.DescribeAllowed()
	if !strings.Contains(got, "more)") {
		t.Errorf("DescribeAllowed() = %q, want +N more suffix", got)
	}
}
