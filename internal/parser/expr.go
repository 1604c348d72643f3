package parser

import (
	"strconv"
	"strings"

	"github.com/haasonsaas/camel/internal/ir"
	"github.com/haasonsaas/camel/internal/value"
)

// parseExpr parses a full expression including the ternary form.
func (p *codeParser) parseExpr() (ir.Expr, *Error) {
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("if") {
		// `then if cond else else` — but not inside a comprehension
		// guard; callers that disallow ternary stop at parseOr.
		p.advance()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.acceptKeyword("else") {
			return nil, p.errHere("expected \"else\" in conditional expression")
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ir.CondExpr{Cond: cond, Then: e, Else: els}, nil
	}
	return e, nil
}

func (p *codeParser) parseOr() (ir.Expr, *Error) {
	e, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("or") {
		return e, nil
	}
	operands := []ir.Expr{e}
	for p.acceptKeyword("or") {
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	return &ir.BoolOp{Op: "or", Operands: operands}, nil
}

func (p *codeParser) parseAnd() (ir.Expr, *Error) {
	e, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("and") {
		return e, nil
	}
	operands := []ir.Expr{e}
	for p.acceptKeyword("and") {
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	return &ir.BoolOp{Op: "and", Operands: operands}, nil
}

func (p *codeParser) parseNot() (ir.Expr, *Error) {
	if p.isKeyword("not") && !(p.peek().kind == tokKeyword && p.peek().text == "in") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ir.Unary{Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *codeParser) parseComparison() (ir.Expr, *Error) {
	first, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rest []ir.Expr
	for {
		op, ok := p.comparisonOp()
		if !ok {
			break
		}
		operand, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		rest = append(rest, operand)
	}
	if len(ops) == 0 {
		return first, nil
	}
	return &ir.Compare{First: first, Ops: ops, Rest: rest}, nil
}

// comparisonOp consumes a comparison operator if one is next.
func (p *codeParser) comparisonOp() (string, bool) {
	t := p.cur()
	if t.kind == tokOp {
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=":
			p.advance()
			return t.text, true
		}
		return "", false
	}
	if t.kind == tokKeyword {
		switch t.text {
		case "in":
			p.advance()
			return "in", true
		case "not":
			if p.peek().kind == tokKeyword && p.peek().text == "in" {
				p.advance()
				p.advance()
				return "not in", true
			}
			return "", false
		case "is":
			p.advance()
			if p.isKeyword("not") {
				p.advance()
				return "is not", true
			}
			return "is", true
		}
	}
	return "", false
}

func (p *codeParser) parseArith() (ir.Expr, *Error) {
	e, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "+" || p.cur().text == "-") {
		op := p.advance().text
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		e = &ir.Binary{Op: op, Left: e, Right: right}
	}
	return e, nil
}

func (p *codeParser) parseTerm() (ir.Expr, *Error) {
	e, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "*" || p.cur().text == "/" || p.cur().text == "%") {
		op := p.advance().text
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		e = &ir.Binary{Op: op, Left: e, Right: right}
	}
	return e, nil
}

func (p *codeParser) parseFactor() (ir.Expr, *Error) {
	if p.cur().kind == tokOp && (p.cur().text == "+" || p.cur().text == "-") {
		op := p.advance().text
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		// Fold negative number literals for cleaner IR.
		if lit, ok := operand.(*ir.Literal); ok && op == "-" {
			switch lit.Val.Kind() {
			case value.KindInt:
				return &ir.Literal{Val: value.NewInt(-lit.Val.Int())}, nil
			case value.KindFloat:
				return &ir.Literal{Val: value.NewFloat(-lit.Val.Float())}, nil
			}
		}
		return &ir.Unary{Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *codeParser) parsePostfix() (ir.Expr, *Error) {
	e, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		if t.kind != tokOp {
			return e, nil
		}
		switch t.text {
		case ".":
			p.advance()
			if p.cur().kind != tokName {
				return nil, p.errHere("expected attribute name after \".\"")
			}
			name := p.advance().text
			if p.cur().kind == tokOp && p.cur().text == "(" {
				args, kwargs, err := p.parseCallArgs()
				if err != nil {
					return nil, err
				}
				if len(kwargs) > 0 {
					return nil, p.errHere("method calls do not accept keyword arguments")
				}
				e = &ir.MethodCall{Recv: e, Name: name, Args: args}
			} else {
				e = &ir.Attr{Recv: e, Name: name}
			}
		case "(":
			name, ok := e.(*ir.VarRef)
			if !ok {
				return nil, errAt(p.tokenLoc(t), "only named functions can be called")
			}
			args, kwargs, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			e = &ir.Call{Name: name.Name, Args: args, Kwargs: kwargs}
		case "[":
			sub, err := p.parseSubscript(e)
			if err != nil {
				return nil, err
			}
			e = sub
		default:
			return e, nil
		}
	}
}

// parseCallArgs parses "(" [arg ("," arg)*] ")" where each arg is either
// an expression or name=expression.
func (p *codeParser) parseCallArgs() ([]ir.Expr, []ir.ToolArg, *Error) {
	if err := p.expectOp("("); err != nil {
		return nil, nil, err
	}
	var args []ir.Expr
	var kwargs []ir.ToolArg
	for {
		if p.acceptOp(")") {
			return args, kwargs, nil
		}
		if len(args)+len(kwargs) > 0 {
			if err := p.expectOp(","); err != nil {
				return nil, nil, err
			}
			if p.acceptOp(")") { // trailing comma
				return args, kwargs, nil
			}
		}
		// name=expr keyword form
		if p.cur().kind == tokName && p.peek().kind == tokOp && p.peek().text == "=" {
			name := p.advance().text
			p.advance() // =
			val, err := p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, ir.ToolArg{Name: name, Expr: val})
			continue
		}
		if len(kwargs) > 0 {
			return nil, nil, p.errHere("positional argument follows keyword argument")
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, nil, err
		}
		args = append(args, val)
	}
}

// parseSubscript parses x[i] and x[a:b:c].
func (p *codeParser) parseSubscript(recv ir.Expr) (ir.Expr, *Error) {
	if err := p.expectOp("["); err != nil {
		return nil, err
	}
	var low, high, step ir.Expr
	var err *Error
	isSlice := false

	if !(p.cur().kind == tokOp && (p.cur().text == ":" || p.cur().text == "]")) {
		low, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.acceptOp(":") {
		isSlice = true
		if !(p.cur().kind == tokOp && (p.cur().text == ":" || p.cur().text == "]")) {
			high, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if p.acceptOp(":") {
			if !(p.cur().kind == tokOp && p.cur().text == "]") {
				step, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
		}
	}
	if e := p.expectOp("]"); e != nil {
		return nil, e
	}
	if isSlice {
		return &ir.Slice{Recv: recv, Low: low, High: high, Step: step}, nil
	}
	if low == nil {
		return nil, p.errHere("empty subscript")
	}
	return &ir.Index{Recv: recv, Index: low}, nil
}

func (p *codeParser) parseAtom() (ir.Expr, *Error) {
	t := p.cur()
	switch t.kind {
	case tokName:
		p.advance()
		return &ir.VarRef{Name: t.text}, nil
	case tokString:
		p.advance()
		return &ir.Literal{Val: value.NewString(t.text)}, nil
	case tokNumber:
		p.advance()
		if strings.ContainsAny(t.text, ".eE") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, errAt(p.tokenLoc(t), "invalid number literal %q", t.text)
			}
			return &ir.Literal{Val: value.NewFloat(f)}, nil
		}
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, errAt(p.tokenLoc(t), "invalid integer literal %q", t.text)
		}
		return &ir.Literal{Val: value.NewInt(i)}, nil
	case tokKeyword:
		switch t.text {
		case "True":
			p.advance()
			return &ir.Literal{Val: value.NewBool(true)}, nil
		case "False":
			p.advance()
			return &ir.Literal{Val: value.NewBool(false)}, nil
		case "None":
			p.advance()
			return &ir.Literal{Val: value.Null()}, nil
		}
		return nil, p.errHere("unexpected keyword %q", t.text)
	case tokOp:
		switch t.text {
		case "(":
			return p.parseParenOrTuple()
		case "[":
			return p.parseListOrComp()
		case "{":
			return p.parseBraced()
		}
	}
	return nil, p.errHere("unexpected %s", p.describe(p.cur()))
}

func (p *codeParser) parseParenOrTuple() (ir.Expr, *Error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	if p.acceptOp(")") {
		return &ir.TupleExpr{}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.acceptOp(")") {
		return first, nil
	}
	items := []ir.Expr{first}
	for p.acceptOp(",") {
		if p.cur().kind == tokOp && p.cur().text == ")" {
			break // trailing comma
		}
		next, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, next)
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &ir.TupleExpr{Items: items}, nil
}

func (p *codeParser) parseListOrComp() (ir.Expr, *Error) {
	if err := p.expectOp("["); err != nil {
		return nil, err
	}
	if p.acceptOp("]") {
		return &ir.ListExpr{}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("for") {
		clauses, err := p.parseCompClauses()
		if err != nil {
			return nil, err
		}
		if e := p.expectOp("]"); e != nil {
			return nil, e
		}
		return &ir.Comp{Kind: ir.ListComp, Elt: first, Clauses: clauses}, nil
	}
	items := []ir.Expr{first}
	for p.acceptOp(",") {
		if p.cur().kind == tokOp && p.cur().text == "]" {
			break
		}
		next, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, next)
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return &ir.ListExpr{Items: items}, nil
}

func (p *codeParser) parseBraced() (ir.Expr, *Error) {
	if err := p.expectOp("{"); err != nil {
		return nil, err
	}
	if p.acceptOp("}") {
		return &ir.DictExpr{}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	// Dict form: key ":" value
	if p.acceptOp(":") {
		firstVal, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.isKeyword("for") {
			clauses, err := p.parseCompClauses()
			if err != nil {
				return nil, err
			}
			if e := p.expectOp("}"); e != nil {
				return nil, e
			}
			return &ir.Comp{Kind: ir.DictComp, Key: first, Val: firstVal, Clauses: clauses}, nil
		}
		keys := []ir.Expr{first}
		vals := []ir.Expr{firstVal}
		for p.acceptOp(",") {
			if p.cur().kind == tokOp && p.cur().text == "}" {
				break
			}
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if e := p.expectOp(":"); e != nil {
				return nil, e
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
			vals = append(vals, v)
		}
		if err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return &ir.DictExpr{Keys: keys, Vals: vals}, nil
	}
	// Set form.
	if p.isKeyword("for") {
		clauses, err := p.parseCompClauses()
		if err != nil {
			return nil, err
		}
		if e := p.expectOp("}"); e != nil {
			return nil, e
		}
		return &ir.Comp{Kind: ir.SetComp, Elt: first, Clauses: clauses}, nil
	}
	items := []ir.Expr{first}
	for p.acceptOp(",") {
		if p.cur().kind == tokOp && p.cur().text == "}" {
			break
		}
		next, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, next)
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return &ir.SetExpr{Items: items}, nil
}

// parseCompClauses parses one or more "for targets in iter [if guard]*"
// clauses of a comprehension.
func (p *codeParser) parseCompClauses() ([]ir.CompClause, *Error) {
	var clauses []ir.CompClause
	for p.acceptKeyword("for") {
		targets, err := p.parseNameList()
		if err != nil {
			return nil, err
		}
		if !p.acceptKeyword("in") {
			return nil, p.errHere("expected \"in\" in comprehension")
		}
		iter, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		clause := ir.CompClause{Targets: targets, Iter: iter}
		for p.acceptKeyword("if") {
			guard, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			clause.Ifs = append(clause.Ifs, guard)
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 0 {
		return nil, p.errHere("expected \"for\" in comprehension")
	}
	return clauses, nil
}
