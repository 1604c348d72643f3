package parser

import (
	"strings"

	"github.com/haasonsaas/camel/internal/ir"
)

// Parse ingests raw planner output and produces a validated program.
//
// The planner may wrap its program in a fenced code block; the fence and
// any prose around it are stripped. JSON-shaped content routes to the
// structured front-end; everything else goes through the code front-end.
// Diagnostics always come from exactly one front-end per attempt.
func Parse(raw string, allowed AllowSet) (*ir.Program, error) {
	src := ExtractProgram(raw)
	if strings.TrimSpace(src) == "" {
		return nil, &Error{Message: "empty program: planner produced no code block"}
	}
	if looksLikeJSON(src) {
		return ParseStructured(src, allowed)
	}
	return ParseCode(src, allowed)
}

// ExtractProgram pulls the program text out of planner output. The first
// fenced block wins; without fences the whole reply is treated as code.
func ExtractProgram(raw string) string {
	idx := strings.Index(raw, "```")
	if idx < 0 {
		return raw
	}
	rest := raw[idx+3:]
	// Drop the info string ("python", "json", ...) on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return raw
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end]
	}
	return rest
}

// ParseExprString parses a single expression in the code dialect. The
// structured front-end uses it for expression-valued JSON fields.
func ParseExprString(src string, allowed AllowSet) (ir.Expr, *Error) {
	toks, lines, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &codeParser{toks: toks, lines: lines, allowed: allowed}
	p.skipNewlines()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if p.cur().kind != tokEOF {
		return nil, p.errHere("unexpected %s after expression", p.describe(p.cur()))
	}
	if err := p.validateExprTree(e, p.toks[0]); err != nil {
		return nil, err
	}
	return e, nil
}
