package parser

import (
	"fmt"
	"strconv"

	"github.com/haasonsaas/camel/internal/ir"
	"github.com/haasonsaas/camel/internal/value"
)

// lowerAssignment turns `name = rhs` into the right step kind: a qllm
// step, a tool step with saveAs, or a plain assign.
func (p *codeParser) lowerAssignment(name string, rhs ir.Expr, start token) (ir.Step, *Error) {
	loc := p.tokenLoc(start)
	if call, ok := rhs.(*ir.Call); ok {
		if call.Name == "query_ai_assistant" {
			step, err := p.qllmStep(name, call, start)
			if err != nil {
				return nil, err
			}
			return ir.WithLoc(step, loc), nil
		}
		if !ir.IsBuiltin(call.Name) {
			canonical, ok := p.allowed.Resolve(call.Name)
			if !ok {
				return nil, errAt(loc, "%s", p.allowed.UnknownToolMessage(call.Name))
			}
			step, err := p.toolStep(canonical, call, name, start)
			if err != nil {
				return nil, err
			}
			return ir.WithLoc(step, loc), nil
		}
	}
	if err := p.validateExprTree(rhs, start); err != nil {
		return nil, err
	}
	return ir.WithLoc(&ir.AssignStep{Target: name, Expr: rhs}, loc), nil
}

// lowerExprStatement turns a bare expression statement into a step.
func (p *codeParser) lowerExprStatement(e ir.Expr, start token) (ir.Step, *Error) {
	loc := p.tokenLoc(start)
	switch t := e.(type) {
	case *ir.CondExpr:
		// `final("ok") if cond else final("bad")` becomes an if step.
		then, err := p.lowerExprStatement(t.Then, start)
		if err != nil {
			return nil, err
		}
		if err := p.validateExprTree(t.Cond, start); err != nil {
			return nil, err
		}
		step := &ir.IfStep{Cond: t.Cond, Then: []ir.Step{then}}
		if t.Else != nil {
			els, err := p.lowerExprStatement(t.Else, start)
			if err != nil {
				return nil, err
			}
			step.Else = []ir.Step{els}
		}
		return ir.WithLoc(step, loc), nil
	case *ir.Call:
		switch {
		case t.Name == "final":
			step, err := p.finalStep(t, start)
			if err != nil {
				return nil, err
			}
			return ir.WithLoc(step, loc), nil
		case t.Name == "print":
			step, err := p.printStep(t, start)
			if err != nil {
				return nil, err
			}
			return ir.WithLoc(step, loc), nil
		case t.Name == "query_ai_assistant":
			return nil, errAt(loc, "query_ai_assistant result must be assigned to a variable")
		case ir.IsBuiltin(t.Name):
			if err := p.validateExprTree(t, start); err != nil {
				return nil, err
			}
			return ir.WithLoc(&ir.AssignStep{Target: "_", Expr: t}, loc), nil
		default:
			canonical, ok := p.allowed.Resolve(t.Name)
			if !ok {
				return nil, errAt(loc, "%s", p.allowed.UnknownToolMessage(t.Name))
			}
			step, err := p.toolStep(canonical, t, "", start)
			if err != nil {
				return nil, err
			}
			return ir.WithLoc(step, loc), nil
		}
	default:
		if err := p.validateExprTree(e, start); err != nil {
			return nil, err
		}
		return ir.WithLoc(&ir.AssignStep{Target: "_", Expr: e}, loc), nil
	}
}

// toolStep builds a tool step from a call. Tool arguments must be passed
// by keyword so the step's named-argument shape is unambiguous.
func (p *codeParser) toolStep(canonical string, call *ir.Call, saveAs string, start token) (ir.Step, *Error) {
	loc := p.tokenLoc(start)
	if len(call.Args) > 0 {
		return nil, errAt(loc, "tool %q requires keyword arguments (name=value)", canonical)
	}
	args := make([]ir.ToolArg, 0, len(call.Kwargs))
	seen := map[string]bool{}
	for _, kw := range call.Kwargs {
		if seen[kw.Name] {
			return nil, errAt(loc, "duplicate argument %q for tool %q", kw.Name, canonical)
		}
		seen[kw.Name] = true
		if err := p.validateExprTree(kw.Expr, start); err != nil {
			return nil, err
		}
		args = append(args, ir.ToolArg{Name: kw.Name, Expr: kw.Expr})
	}
	return &ir.ToolStep{Name: canonical, Args: args, SaveAs: saveAs}, nil
}

// printStep lowers print(...) onto the virtual print tool.
func (p *codeParser) printStep(call *ir.Call, start token) (ir.Step, *Error) {
	loc := p.tokenLoc(start)
	if len(call.Kwargs) > 0 {
		return nil, errAt(loc, "print does not accept keyword arguments")
	}
	for _, a := range call.Args {
		if err := p.validateExprTree(a, start); err != nil {
			return nil, err
		}
	}
	values := &ir.TupleExpr{Items: call.Args}
	return &ir.ToolStep{Name: "print", Args: []ir.ToolArg{{Name: "values", Expr: values}}}, nil
}

// finalStep lowers final(...) into a template step. The argument must be
// a string literal (with optional {{name.path}} references) or a plain
// variable reference.
func (p *codeParser) finalStep(call *ir.Call, start token) (ir.Step, *Error) {
	loc := p.tokenLoc(start)
	if len(call.Kwargs) > 0 || len(call.Args) != 1 {
		return nil, errAt(loc, "final() requires exactly one argument")
	}
	switch arg := call.Args[0].(type) {
	case *ir.Literal:
		if arg.Val.Kind() != value.KindString {
			return nil, errAt(loc, "final() requires a string or a variable reference")
		}
		return &ir.FinalStep{Text: arg.Val.Str()}, nil
	default:
		path, ok := refPath(call.Args[0])
		if !ok {
			return nil, errAt(loc, "final() requires a string literal or a variable reference")
		}
		return &ir.FinalStep{Text: "{{" + path + "}}"}, nil
	}
}

// refPath renders a variable/attr/index chain as a dotted template path.
func refPath(e ir.Expr) (string, bool) {
	switch t := e.(type) {
	case *ir.VarRef:
		return t.Name, true
	case *ir.Attr:
		base, ok := refPath(t.Recv)
		if !ok {
			return "", false
		}
		return base + "." + t.Name, true
	case *ir.Index:
		base, ok := refPath(t.Recv)
		if !ok {
			return "", false
		}
		lit, ok := t.Index.(*ir.Literal)
		if !ok || lit.Val.Kind() != value.KindInt {
			return "", false
		}
		return base + "." + strconv.FormatInt(lit.Val.Int(), 10), true
	default:
		return "", false
	}
}

// qllmStep lowers `name = query_ai_assistant(instruction, input, schema)`.
func (p *codeParser) qllmStep(saveAs string, call *ir.Call, start token) (ir.Step, *Error) {
	loc := p.tokenLoc(start)
	var instrExpr, inputExpr, schemaExpr ir.Expr

	switch {
	case len(call.Args) == 3 && len(call.Kwargs) == 0:
		instrExpr, inputExpr, schemaExpr = call.Args[0], call.Args[1], call.Args[2]
	case len(call.Args) == 0 && len(call.Kwargs) > 0:
		for _, kw := range call.Kwargs {
			switch kw.Name {
			case "instruction", "query":
				instrExpr = kw.Expr
			case "input":
				inputExpr = kw.Expr
			case "schema", "output_schema":
				schemaExpr = kw.Expr
			default:
				return nil, errAt(loc, "unknown query_ai_assistant argument %q", kw.Name)
			}
		}
	default:
		return nil, errAt(loc, "query_ai_assistant requires (instruction, input, schema)")
	}
	if instrExpr == nil || inputExpr == nil || schemaExpr == nil {
		return nil, errAt(loc, "query_ai_assistant requires instruction, input, and schema")
	}

	lit, ok := instrExpr.(*ir.Literal)
	if !ok || lit.Val.Kind() != value.KindString {
		return nil, errAt(loc, "query_ai_assistant instruction must be a string literal")
	}
	if err := p.validateExprTree(inputExpr, start); err != nil {
		return nil, err
	}
	schema, serr := exprToSchema(schemaExpr)
	if serr != "" {
		return nil, errAt(loc, "invalid query_ai_assistant schema: %s", serr)
	}
	if err := schema.Validate(); err != nil {
		return nil, errAt(loc, "invalid query_ai_assistant schema: %v", err)
	}
	return &ir.QllmStep{
		SaveAs:      saveAs,
		Instruction: lit.Val.Str(),
		Input:       inputExpr,
		Schema:      schema,
	}, nil
}

// validateExprTree rejects tool references and keyword arguments that
// survive into expression position.
func (p *codeParser) validateExprTree(e ir.Expr, start token) *Error {
	loc := p.tokenLoc(start)
	var walk func(e ir.Expr) *Error
	walk = func(e ir.Expr) *Error {
		switch t := e.(type) {
		case nil:
			return nil
		case *ir.Call:
			if t.Name == "query_ai_assistant" {
				return errAt(loc, "query_ai_assistant result must be assigned to a variable")
			}
			if t.Name == "final" || t.Name == "print" {
				return errAt(loc, "%s must be a standalone statement", t.Name)
			}
			if !ir.IsBuiltin(t.Name) {
				if _, ok := p.allowed.Resolve(t.Name); ok {
					return errAt(loc, "tool %q must be called as a standalone statement or simple assignment", t.Name)
				}
				return errAt(loc, "%s", p.allowed.UnknownToolMessage(t.Name))
			}
			if len(t.Kwargs) > 0 {
				return errAt(loc, "builtin %q does not accept keyword arguments", t.Name)
			}
			for _, a := range t.Args {
				if err := walk(a); err != nil {
					return err
				}
			}
			return nil
		case *ir.Literal, *ir.VarRef:
			return nil
		case *ir.Attr:
			return walk(t.Recv)
		case *ir.Binary:
			if err := walk(t.Left); err != nil {
				return err
			}
			return walk(t.Right)
		case *ir.Unary:
			return walk(t.Operand)
		case *ir.BoolOp:
			for _, o := range t.Operands {
				if err := walk(o); err != nil {
					return err
				}
			}
			return nil
		case *ir.Compare:
			if err := walk(t.First); err != nil {
				return err
			}
			for _, o := range t.Rest {
				if err := walk(o); err != nil {
					return err
				}
			}
			return nil
		case *ir.Index:
			if err := walk(t.Recv); err != nil {
				return err
			}
			return walk(t.Index)
		case *ir.Slice:
			for _, sub := range []ir.Expr{t.Recv, t.Low, t.High, t.Step} {
				if sub != nil {
					if err := walk(sub); err != nil {
						return err
					}
				}
			}
			return nil
		case *ir.MethodCall:
			if err := walk(t.Recv); err != nil {
				return err
			}
			for _, a := range t.Args {
				if err := walk(a); err != nil {
					return err
				}
			}
			return nil
		case *ir.ListExpr:
			return walkAll(walk, t.Items)
		case *ir.TupleExpr:
			return walkAll(walk, t.Items)
		case *ir.SetExpr:
			return walkAll(walk, t.Items)
		case *ir.DictExpr:
			if err := walkAll(walk, t.Keys); err != nil {
				return err
			}
			return walkAll(walk, t.Vals)
		case *ir.Comp:
			for _, sub := range []ir.Expr{t.Elt, t.Key, t.Val} {
				if sub != nil {
					if err := walk(sub); err != nil {
						return err
					}
				}
			}
			for _, cl := range t.Clauses {
				if err := walk(cl.Iter); err != nil {
					return err
				}
				for _, g := range cl.Ifs {
					if err := walk(g); err != nil {
						return err
					}
				}
			}
			return nil
		case *ir.CondExpr:
			for _, sub := range []ir.Expr{t.Cond, t.Then, t.Else} {
				if sub != nil {
					if err := walk(sub); err != nil {
						return err
					}
				}
			}
			return nil
		default:
			return errAt(loc, "unsupported expression form %T", e)
		}
	}
	return walk(e)
}

func walkAll(walk func(ir.Expr) *Error, items []ir.Expr) *Error {
	for _, it := range items {
		if err := walk(it); err != nil {
			return err
		}
	}
	return nil
}

// exprToSchema converts a dict literal into an extraction schema.
// Accepts the canonical {"fields": {...}} form and a {"properties": ...}
// alias. Returns an error description on failure.
func exprToSchema(e ir.Expr) (*ir.Schema, string) {
	dict, ok := e.(*ir.DictExpr)
	if !ok {
		return nil, "schema must be a dict literal"
	}
	schema := &ir.Schema{Fields: map[string]*ir.FieldSpec{}}
	var fieldsExpr *ir.DictExpr
	for i, k := range dict.Keys {
		key, ok := literalString(k)
		if !ok {
			return nil, "schema keys must be string literals"
		}
		switch key {
		case "description":
			desc, ok := literalString(dict.Vals[i])
			if !ok {
				return nil, "schema description must be a string literal"
			}
			schema.Description = desc
		case "fields", "properties":
			fd, ok := dict.Vals[i].(*ir.DictExpr)
			if !ok {
				return nil, fmt.Sprintf("schema %q must be a dict literal", key)
			}
			fieldsExpr = fd
		default:
			return nil, fmt.Sprintf("unknown schema key %q", key)
		}
	}
	if fieldsExpr == nil {
		return nil, `schema requires a "fields" dict`
	}
	for i, k := range fieldsExpr.Keys {
		name, ok := literalString(k)
		if !ok {
			return nil, "field names must be string literals"
		}
		spec, serr := exprToFieldSpec(fieldsExpr.Vals[i])
		if serr != "" {
			return nil, fmt.Sprintf("field %q: %s", name, serr)
		}
		schema.Fields[name] = spec
		schema.FieldOrder = append(schema.FieldOrder, name)
	}
	return schema, ""
}

func exprToFieldSpec(e ir.Expr) (*ir.FieldSpec, string) {
	dict, ok := e.(*ir.DictExpr)
	if !ok {
		return nil, "field spec must be a dict literal"
	}
	spec := &ir.FieldSpec{Type: ir.TypeString}
	for i, k := range dict.Keys {
		key, ok := literalString(k)
		if !ok {
			return nil, "field spec keys must be string literals"
		}
		switch key {
		case "type":
			t, ok := literalString(dict.Vals[i])
			if !ok {
				return nil, "type must be a string literal"
			}
			spec.Type = t
		case "required":
			lit, ok := dict.Vals[i].(*ir.Literal)
			if !ok || lit.Val.Kind() != value.KindBool {
				return nil, "required must be a boolean literal"
			}
			spec.Required = lit.Val.Bool()
		case "description":
			d, ok := literalString(dict.Vals[i])
			if !ok {
				return nil, "description must be a string literal"
			}
			spec.Description = d
		case "items":
			items, serr := exprToFieldSpec(dict.Vals[i])
			if serr != "" {
				return nil, "items: " + serr
			}
			spec.Items = items
		case "properties":
			props, ok := dict.Vals[i].(*ir.DictExpr)
			if !ok {
				return nil, "properties must be a dict literal"
			}
			spec.Properties = map[string]*ir.FieldSpec{}
			for j, pk := range props.Keys {
				pname, ok := literalString(pk)
				if !ok {
					return nil, "property names must be string literals"
				}
				ps, serr := exprToFieldSpec(props.Vals[j])
				if serr != "" {
					return nil, fmt.Sprintf("property %q: %s", pname, serr)
				}
				spec.Properties[pname] = ps
				spec.PropOrder = append(spec.PropOrder, pname)
			}
		default:
			return nil, fmt.Sprintf("unknown field spec key %q", key)
		}
	}
	return spec, ""
}

func literalString(e ir.Expr) (string, bool) {
	lit, ok := e.(*ir.Literal)
	if !ok || lit.Val.Kind() != value.KindString {
		return "", false
	}
	return lit.Val.Str(), true
}
