package parser

import (
	"strconv"
	"strings"

	"github.com/haasonsaas/camel/internal/ir"
)

// ParseCode parses the restricted code dialect into a validated program.
// Tool references are checked against the allow-set; every diagnostic
// carries a 1-based line/column and the offending line's text.
func ParseCode(src string, allowed AllowSet) (*ir.Program, error) {
	toks, lines, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &codeParser{toks: toks, lines: lines, allowed: allowed}
	steps, err := p.parseBlock(false)
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, p.errHere("unexpected %s", p.describe(p.cur()))
	}
	if len(steps) == 0 {
		return nil, &Error{Message: "empty program: no steps found"}
	}
	if n := ir.CountSteps(steps); n > ir.MaxProgramSteps {
		return nil, &Error{Message: "program has " + strconv.Itoa(n) + " steps, exceeding the budget of " + strconv.Itoa(ir.MaxProgramSteps)}
	}
	return &ir.Program{Steps: steps}, nil
}

type codeParser struct {
	toks    []token
	pos     int
	lines   []string
	allowed AllowSet
}

func (p *codeParser) cur() token { return p.toks[p.pos] }
func (p *codeParser) peek() token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *codeParser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *codeParser) tokenLoc(t token) *ir.SourceLoc {
	text := ""
	if t.line >= 1 && t.line <= len(p.lines) {
		text = p.lines[t.line-1]
	}
	return &ir.SourceLoc{Line: t.line, Col: t.col, Text: text}
}

func (p *codeParser) errHere(format string, args ...any) *Error {
	return errAt(p.tokenLoc(p.cur()), format, args...)
}

func (p *codeParser) describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "end of line"
	case tokIndent:
		return "indent"
	case tokDedent:
		return "dedent"
	case tokString:
		return "string literal"
	default:
		return strconv.Quote(t.text)
	}
}

func (p *codeParser) acceptOp(text string) bool {
	if p.cur().kind == tokOp && p.cur().text == text {
		p.advance()
		return true
	}
	return false
}

func (p *codeParser) expectOp(text string) *Error {
	if !p.acceptOp(text) {
		return p.errHere("expected %q, found %s", text, p.describe(p.cur()))
	}
	return nil
}

func (p *codeParser) acceptKeyword(word string) bool {
	if p.cur().kind == tokKeyword && p.cur().text == word {
		p.advance()
		return true
	}
	return false
}

func (p *codeParser) isKeyword(word string) bool {
	return p.cur().kind == tokKeyword && p.cur().text == word
}

func (p *codeParser) skipNewlines() {
	for p.cur().kind == tokNewline {
		p.advance()
	}
}

// parseBlock parses statements until dedent (indented=true) or EOF.
func (p *codeParser) parseBlock(indented bool) ([]ir.Step, *Error) {
	var steps []ir.Step
	for {
		p.skipNewlines()
		t := p.cur()
		if t.kind == tokEOF {
			if indented {
				return nil, p.errHere("unexpected end of input inside block")
			}
			return steps, nil
		}
		if t.kind == tokDedent {
			if indented {
				p.advance()
				return steps, nil
			}
			return nil, p.errHere("unexpected dedent")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			steps = append(steps, stmt)
		}
	}
}

func (p *codeParser) parseStatement() (ir.Step, *Error) {
	t := p.cur()
	switch {
	case p.isKeyword("if"):
		return p.parseIf()
	case p.isKeyword("for"):
		return p.parseFor()
	case p.isKeyword("raise"):
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.endStatement(); err != nil {
			return nil, err
		}
		return ir.WithLoc(&ir.RaiseStep{Err: expr}, p.tokenLoc(t)), nil
	case p.isKeyword("pass"):
		p.advance()
		if err := p.endStatement(); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return p.parseSimple()
	}
}

// endStatement consumes the trailing newline of a simple statement.
func (p *codeParser) endStatement() *Error {
	switch p.cur().kind {
	case tokNewline:
		p.advance()
		return nil
	case tokEOF, tokDedent:
		return nil
	default:
		return p.errHere("unexpected %s after statement", p.describe(p.cur()))
	}
}

func (p *codeParser) parseIf() (ir.Step, *Error) {
	start := p.cur()
	p.advance() // if / elif
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}
	then, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	step := &ir.IfStep{Cond: cond, Then: then}
	p.skipNewlines()
	if p.isKeyword("elif") {
		nested, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		step.Else = []ir.Step{nested}
	} else if p.acceptKeyword("else") {
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		els, err := p.parseSuite()
		if err != nil {
			return nil, err
		}
		step.Else = els
	}
	return ir.WithLoc(step, p.tokenLoc(start)), nil
}

func (p *codeParser) parseFor() (ir.Step, *Error) {
	start := p.cur()
	p.advance() // for
	targets, err := p.parseNameList()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("in") {
		return nil, p.errHere("expected \"in\" in for statement")
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return ir.WithLoc(&ir.ForStep{Targets: targets, Iterable: iter, Body: body}, p.tokenLoc(start)), nil
}

// parseSuite parses an indented block or a single inline statement.
func (p *codeParser) parseSuite() ([]ir.Step, *Error) {
	if p.cur().kind == tokNewline {
		p.advance()
		p.skipNewlines()
		if p.cur().kind != tokIndent {
			return nil, p.errHere("expected an indented block")
		}
		p.advance()
		return p.parseBlock(true)
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, nil
	}
	return []ir.Step{stmt}, nil
}

func (p *codeParser) parseNameList() ([]string, *Error) {
	var names []string
	paren := p.acceptOp("(")
	for {
		if p.cur().kind != tokName {
			return nil, p.errHere("expected a name, found %s", p.describe(p.cur()))
		}
		names = append(names, p.advance().text)
		if !p.acceptOp(",") {
			break
		}
	}
	if paren {
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// parseSimple handles assignments, augmented assignments, and expression
// statements (tool calls, final, print, ternary step forms).
func (p *codeParser) parseSimple() (ir.Step, *Error) {
	start := p.cur()
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	// Tuple target: a, b = expr
	if p.cur().kind == tokOp && p.cur().text == "," {
		targets := []string{}
		name, ok := asName(first)
		if !ok {
			return nil, errAt(p.tokenLoc(start), "unpack targets must be plain names")
		}
		targets = append(targets, name)
		for p.acceptOp(",") {
			if p.cur().kind != tokName {
				return nil, p.errHere("unpack targets must be plain names")
			}
			targets = append(targets, p.advance().text)
		}
		if err := p.expectOp("="); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.validateExprTree(rhs, start); err != nil {
			return nil, err
		}
		if err := p.endStatement(); err != nil {
			return nil, err
		}
		return ir.WithLoc(&ir.UnpackStep{Targets: targets, Expr: rhs}, p.tokenLoc(start)), nil
	}

	// Augmented assignment.
	if p.cur().kind == tokOp && isAugOp(p.cur().text) {
		op := strings.TrimSuffix(p.advance().text, "=")
		name, ok := asName(first)
		if !ok {
			return nil, errAt(p.tokenLoc(start), "augmented assignment target must be a plain name")
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.validateExprTree(rhs, start); err != nil {
			return nil, err
		}
		if err := p.endStatement(); err != nil {
			return nil, err
		}
		expr := &ir.Binary{Op: op, Left: &ir.VarRef{Name: name}, Right: rhs}
		return ir.WithLoc(&ir.AssignStep{Target: name, Expr: expr}, p.tokenLoc(start)), nil
	}

	// Plain assignment.
	if p.acceptOp("=") {
		name, ok := asName(first)
		if !ok {
			return nil, errAt(p.tokenLoc(start), "assignment target must be a plain name")
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.endStatement(); err != nil {
			return nil, err
		}
		return p.lowerAssignment(name, rhs, start)
	}

	// Expression statement.
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return p.lowerExprStatement(first, start)
}

func isAugOp(op string) bool {
	switch op {
	case "+=", "-=", "*=", "/=", "%=":
		return true
	}
	return false
}

func asName(e ir.Expr) (string, bool) {
	if v, ok := e.(*ir.VarRef); ok {
		return v.Name, true
	}
	return "", false
}
