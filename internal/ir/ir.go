// Package ir defines the validated intermediate representation shared by
// both planner front-ends and consumed by the interpreter.
package ir

import "github.com/haasonsaas/camel/internal/value"

// MaxProgramSteps bounds the number of steps in a plan, summed across
// nested bodies. The interpreter enforces the same bound on executed
// steps.
const MaxProgramSteps = 64

// SourceLoc is a 1-based source position attached to parser output so
// diagnostics can point the planner at the offending line.
type SourceLoc struct {
	Line int    `json:"line"`
	Col  int    `json:"col"`
	Text string `json:"text,omitempty"`
}

// Program is a validated plan: an ordered sequence of steps plus the
// planner's optional rationale (never executed, never trusted as code).
type Program struct {
	Rationale string
	Steps     []Step
}

// Step is one executable statement of a plan.
type Step interface {
	// Loc returns the source location when the step came from the code
	// front-end, nil otherwise.
	Loc() *SourceLoc
	step()
}

type baseStep struct {
	SrcLoc *SourceLoc
}

func (b baseStep) Loc() *SourceLoc { return b.SrcLoc }
func (baseStep) step()             {}

// AssignStep binds a single name to the result of an expression.
type AssignStep struct {
	baseStep
	Target string
	Expr   Expr
}

// UnpackStep destructures an iterable into multiple names. The iterable
// length must match the target count at execution time.
type UnpackStep struct {
	baseStep
	Targets []string
	Expr    Expr
}

// ToolArg is one named tool argument. Argument order is preserved for
// deterministic traces.
type ToolArg struct {
	Name string
	Expr Expr
}

// ToolStep invokes a registered or virtual tool with named arguments.
type ToolStep struct {
	baseStep
	Name   string
	Args   []ToolArg
	SaveAs string
}

// QllmStep invokes the quarantined extraction primitive.
type QllmStep struct {
	baseStep
	SaveAs      string
	Instruction string
	Input       Expr
	Schema      *Schema
}

// IfStep branches on a condition. Else may be empty.
type IfStep struct {
	baseStep
	Cond Expr
	Then []Step
	Else []Step
}

// ForStep iterates an iterable, rebinding the targets per element.
type ForStep struct {
	baseStep
	Targets  []string
	Iterable Expr
	Body     []Step
}

// RaiseStep aborts the current attempt with an error value.
type RaiseStep struct {
	baseStep
	Err Expr
}

// FinalStep renders a template and stops the run. References use
// {{name.path}} syntax and resolve against the environment.
type FinalStep struct {
	baseStep
	Text string
}

// WithLoc attaches a source location to a step and returns it. Used by the
// code front-end while building steps.
func WithLoc(s Step, loc *SourceLoc) Step {
	switch t := s.(type) {
	case *AssignStep:
		t.SrcLoc = loc
	case *UnpackStep:
		t.SrcLoc = loc
	case *ToolStep:
		t.SrcLoc = loc
	case *QllmStep:
		t.SrcLoc = loc
	case *IfStep:
		t.SrcLoc = loc
	case *ForStep:
		t.SrcLoc = loc
	case *RaiseStep:
		t.SrcLoc = loc
	case *FinalStep:
		t.SrcLoc = loc
	}
	return s
}

// CountSteps counts steps summed across nested bodies, used to enforce the
// static step budget.
func CountSteps(steps []Step) int {
	n := 0
	for _, s := range steps {
		n++
		switch t := s.(type) {
		case *IfStep:
			n += CountSteps(t.Then)
			n += CountSteps(t.Else)
		case *ForStep:
			n += CountSteps(t.Body)
		}
	}
	return n
}

// Expr is one node of the expression tree.
type Expr interface{ expr() }

type baseExpr struct{}

func (baseExpr) expr() {}

// Literal is a deterministic constant; it evaluates to a trusted value.
type Literal struct {
	baseExpr
	Val value.Value
}

// VarRef reads a variable from the environment.
type VarRef struct {
	baseExpr
	Name string
}

// Attr walks one attribute of a value: a dict key, or a numeric-string
// index into a list.
type Attr struct {
	baseExpr
	Recv Expr
	Name string
}

// Binary applies an arithmetic operator: + - * / %.
type Binary struct {
	baseExpr
	Op    string
	Left  Expr
	Right Expr
}

// Unary applies - + or not.
type Unary struct {
	baseExpr
	Op      string
	Operand Expr
}

// BoolOp is a short-circuiting and/or over two or more operands. It yields
// the deciding operand value, not a coerced boolean.
type BoolOp struct {
	baseExpr
	Op       string // "and" or "or"
	Operands []Expr
}

// Compare is a comparison chain: First Ops[0] Rest[0] Ops[1] Rest[1] ...
// Ops are ==, !=, <, <=, >, >=, in, not in, is, is not.
type Compare struct {
	baseExpr
	First Expr
	Ops   []string
	Rest  []Expr
}

// Index subscripts a list, tuple, string, or dict.
type Index struct {
	baseExpr
	Recv  Expr
	Index Expr
}

// Slice takes x[low:high:step] with any part optional.
type Slice struct {
	baseExpr
	Recv Expr
	Low  Expr
	High Expr
	Step Expr
}

// Call invokes a whitelisted builtin. Kwargs survive parsing only inside
// tool steps; the code front-end rejects keyword arguments on builtin
// calls in expression position.
type Call struct {
	baseExpr
	Name   string
	Args   []Expr
	Kwargs []ToolArg
}

// MethodCall invokes a whitelisted method on a receiver value.
type MethodCall struct {
	baseExpr
	Recv Expr
	Name string
	Args []Expr
}

// ListExpr, TupleExpr, and SetExpr build sequence values. Sets are modeled
// as deduplicated lists.
type ListExpr struct {
	baseExpr
	Items []Expr
}

type TupleExpr struct {
	baseExpr
	Items []Expr
}

type SetExpr struct {
	baseExpr
	Items []Expr
}

// DictExpr builds a dict from parallel key/value expressions.
type DictExpr struct {
	baseExpr
	Keys []Expr
	Vals []Expr
}

// CompKind discriminates comprehension forms.
type CompKind int

const (
	ListComp CompKind = iota
	SetComp
	DictComp
)

// CompClause is one "for targets in iter [if guard]*" clause.
type CompClause struct {
	Targets []string
	Iter    Expr
	Ifs     []Expr
}

// Comp is a list, set, or dict comprehension. Elt is the element
// expression for list/set; Key and Val are used for dict comprehensions.
type Comp struct {
	baseExpr
	Kind    CompKind
	Elt     Expr
	Key     Expr
	Val     Expr
	Clauses []CompClause
}

// CondExpr is the ternary `then if cond else else`.
type CondExpr struct {
	baseExpr
	Cond Expr
	Then Expr
	Else Expr
}
