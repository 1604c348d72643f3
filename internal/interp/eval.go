package interp

import (
	"strconv"

	"github.com/haasonsaas/camel/internal/ir"
	"github.com/haasonsaas/camel/internal/value"
)

// maxEvalDepth caps expression recursion against adversarial nesting.
const maxEvalDepth = 64

// eval evaluates an expression to a labeled value. The result capability
// is the merge of every evaluated sub-expression's capability;
// short-circuited operands contribute nothing.
func (in *Interp) eval(e ir.Expr) (value.Labeled, *Error) {
	in.depth++
	defer func() { in.depth-- }()
	if in.depth > maxEvalDepth {
		return value.Labeled{}, trustedErr("expression nesting exceeds depth limit of %d", maxEvalDepth)
	}

	switch t := e.(type) {
	case *ir.Literal:
		return value.Labeled{Val: t.Val, Cap: value.TrustedCap()}, nil

	case *ir.VarRef:
		lv, ok := in.env.Lookup(t.Name)
		if !ok {
			return value.Labeled{}, trustedErr("name %q is not defined", t.Name)
		}
		return lv, nil

	case *ir.Attr:
		recv, err := in.eval(t.Recv)
		if err != nil {
			return value.Labeled{}, err
		}
		v, aerr := attrWalk(recv.Val, t.Name)
		if aerr != nil {
			return value.Labeled{}, aerr
		}
		return value.Labeled{Val: v, Cap: recv.Cap}, nil

	case *ir.Binary:
		left, err := in.eval(t.Left)
		if err != nil {
			return value.Labeled{}, err
		}
		right, err := in.eval(t.Right)
		if err != nil {
			return value.Labeled{}, err
		}
		out, oerr := binaryOp(t.Op, left.Val, right.Val)
		if oerr != nil {
			return value.Labeled{}, oerr
		}
		return value.Labeled{Val: out, Cap: value.Merge(left.Cap, right.Cap)}, nil

	case *ir.Unary:
		operand, err := in.eval(t.Operand)
		if err != nil {
			return value.Labeled{}, err
		}
		switch t.Op {
		case "not":
			return value.Labeled{Val: value.NewBool(!operand.Val.Truthy()), Cap: operand.Cap}, nil
		case "-":
			switch operand.Val.Kind() {
			case value.KindInt:
				return value.Labeled{Val: value.NewInt(-operand.Val.Int()), Cap: operand.Cap}, nil
			case value.KindFloat:
				return value.Labeled{Val: value.NewFloat(-operand.Val.Float()), Cap: operand.Cap}, nil
			}
			return value.Labeled{}, trustedErr("bad operand type for unary -: '%s'", operand.Val.Kind())
		case "+":
			if operand.Val.IsNumber() {
				return operand, nil
			}
			return value.Labeled{}, trustedErr("bad operand type for unary +: '%s'", operand.Val.Kind())
		}
		return value.Labeled{}, trustedErr("unknown unary operator %q", t.Op)

	case *ir.BoolOp:
		// and/or yield the deciding operand, not a coerced boolean.
		// Only evaluated operands contribute to the capability.
		var last value.Labeled
		cap := value.TrustedCap()
		for i, operand := range t.Operands {
			lv, err := in.eval(operand)
			if err != nil {
				return value.Labeled{}, err
			}
			cap = value.Merge(cap, lv.Cap)
			last = lv
			if i == len(t.Operands)-1 {
				break
			}
			if t.Op == "and" && !lv.Val.Truthy() {
				break
			}
			if t.Op == "or" && lv.Val.Truthy() {
				break
			}
		}
		return value.Labeled{Val: last.Val, Cap: cap}, nil

	case *ir.Compare:
		left, err := in.eval(t.First)
		if err != nil {
			return value.Labeled{}, err
		}
		cap := left.Cap
		result := true
		for i, op := range t.Ops {
			right, err := in.eval(t.Rest[i])
			if err != nil {
				return value.Labeled{}, err
			}
			cap = value.Merge(cap, right.Cap)
			ok, cerr := compareOp(op, left.Val, right.Val)
			if cerr != nil {
				return value.Labeled{}, cerr
			}
			if !ok {
				result = false
				break
			}
			left = right
		}
		return value.Labeled{Val: value.NewBool(result), Cap: cap}, nil

	case *ir.Index:
		recv, err := in.eval(t.Recv)
		if err != nil {
			return value.Labeled{}, err
		}
		idx, err := in.eval(t.Index)
		if err != nil {
			return value.Labeled{}, err
		}
		out, oerr := indexOp(recv.Val, idx.Val)
		if oerr != nil {
			return value.Labeled{}, oerr
		}
		return value.Labeled{Val: out, Cap: value.Merge(recv.Cap, idx.Cap)}, nil

	case *ir.Slice:
		recv, err := in.eval(t.Recv)
		if err != nil {
			return value.Labeled{}, err
		}
		cap := recv.Cap
		part := func(e ir.Expr) (*int64, *Error) {
			if e == nil {
				return nil, nil
			}
			lv, err := in.eval(e)
			if err != nil {
				return nil, err
			}
			cap = value.Merge(cap, lv.Cap)
			if lv.Val.IsNull() {
				return nil, nil
			}
			if lv.Val.Kind() != value.KindInt {
				return nil, trustedErr("slice indices must be integers or None, not %s", lv.Val.Kind())
			}
			n := lv.Val.Int()
			return &n, nil
		}
		low, err := part(t.Low)
		if err != nil {
			return value.Labeled{}, err
		}
		high, err := part(t.High)
		if err != nil {
			return value.Labeled{}, err
		}
		step, err := part(t.Step)
		if err != nil {
			return value.Labeled{}, err
		}
		out, serr := sliceOp(recv.Val, low, high, step)
		if serr != nil {
			return value.Labeled{}, serr
		}
		return value.Labeled{Val: out, Cap: cap}, nil

	case *ir.Call:
		args := make([]value.Labeled, len(t.Args))
		for i, a := range t.Args {
			lv, err := in.eval(a)
			if err != nil {
				return value.Labeled{}, err
			}
			args[i] = lv
		}
		return callBuiltin(t.Name, args)

	case *ir.MethodCall:
		recv, err := in.eval(t.Recv)
		if err != nil {
			return value.Labeled{}, err
		}
		args := make([]value.Labeled, len(t.Args))
		for i, a := range t.Args {
			lv, err := in.eval(a)
			if err != nil {
				return value.Labeled{}, err
			}
			args[i] = lv
		}
		return callMethod(recv, t.Name, args)

	case *ir.ListExpr:
		return in.evalSequence(t.Items, false)

	case *ir.TupleExpr:
		return in.evalSequence(t.Items, true)

	case *ir.SetExpr:
		lv, err := in.evalSequence(t.Items, false)
		if err != nil {
			return value.Labeled{}, err
		}
		return value.Labeled{Val: dedupe(lv.Val.Seq()), Cap: lv.Cap}, nil

	case *ir.DictExpr:
		d := value.NewDictMap()
		cap := value.TrustedCap()
		for i, k := range t.Keys {
			kv, err := in.eval(k)
			if err != nil {
				return value.Labeled{}, err
			}
			vv, err := in.eval(t.Vals[i])
			if err != nil {
				return value.Labeled{}, err
			}
			cap = value.Merge(cap, kv.Cap, vv.Cap)
			d.Set(value.Str(kv.Val), vv.Val)
		}
		return value.Labeled{Val: value.NewDict(d), Cap: cap}, nil

	case *ir.Comp:
		return in.evalComp(t)

	case *ir.CondExpr:
		cond, err := in.eval(t.Cond)
		if err != nil {
			return value.Labeled{}, err
		}
		var branch value.Labeled
		if cond.Val.Truthy() {
			branch, err = in.eval(t.Then)
		} else {
			branch, err = in.eval(t.Else)
		}
		if err != nil {
			return value.Labeled{}, err
		}
		return value.Labeled{Val: branch.Val, Cap: value.Merge(cond.Cap, branch.Cap)}, nil

	default:
		return value.Labeled{}, trustedErr("unsupported expression form %T", e)
	}
}

func (in *Interp) evalSequence(items []ir.Expr, tuple bool) (value.Labeled, *Error) {
	out := make([]value.Value, len(items))
	cap := value.TrustedCap()
	for i, item := range items {
		lv, err := in.eval(item)
		if err != nil {
			return value.Labeled{}, err
		}
		out[i] = lv.Val
		cap = value.Merge(cap, lv.Cap)
	}
	if tuple {
		return value.Labeled{Val: value.NewTuple(out), Cap: cap}, nil
	}
	return value.Labeled{Val: value.NewList(out), Cap: cap}, nil
}

// dedupe removes duplicates by structural equality, preserving first
// occurrence order. Sets are modeled as deduplicated lists.
func dedupe(items []value.Value) value.Value {
	var out []value.Value
	for _, it := range items {
		dup := false
		for _, seen := range out {
			if value.Equal(seen, it) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, it)
		}
	}
	return value.NewList(out)
}

// evalComp evaluates a comprehension: clauses nest left-to-right, loop
// targets are scoped, and every evaluated clause contributes capability.
func (in *Interp) evalComp(c *ir.Comp) (value.Labeled, *Error) {
	var items []value.Value
	var keys []value.Value
	var vals []value.Value
	cap := value.TrustedCap()

	var runClause func(i int) *Error
	runClause = func(i int) *Error {
		if i == len(c.Clauses) {
			switch c.Kind {
			case ir.DictComp:
				kv, err := in.eval(c.Key)
				if err != nil {
					return err
				}
				vv, err := in.eval(c.Val)
				if err != nil {
					return err
				}
				cap = value.Merge(cap, kv.Cap, vv.Cap)
				keys = append(keys, kv.Val)
				vals = append(vals, vv.Val)
			default:
				ev, err := in.eval(c.Elt)
				if err != nil {
					return err
				}
				cap = value.Merge(cap, ev.Cap)
				items = append(items, ev.Val)
			}
			return nil
		}
		clause := c.Clauses[i]
		iter, err := in.eval(clause.Iter)
		if err != nil {
			return err
		}
		cap = value.Merge(cap, iter.Cap)
		elems, ierr := iterate(iter.Val)
		if ierr != nil {
			return ierr
		}
		restore := in.env.Save(clause.Targets)
		defer restore()
		for _, elem := range elems {
			if err := bindTargets(in.env, clause.Targets, value.Labeled{Val: elem, Cap: iter.Cap}); err != nil {
				return err
			}
			pass := true
			for _, guard := range clause.Ifs {
				gv, err := in.eval(guard)
				if err != nil {
					return err
				}
				cap = value.Merge(cap, gv.Cap)
				if !gv.Val.Truthy() {
					pass = false
					break
				}
			}
			if !pass {
				continue
			}
			if err := runClause(i + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := runClause(0); err != nil {
		return value.Labeled{}, err
	}

	switch c.Kind {
	case ir.ListComp:
		return value.Labeled{Val: value.NewList(items), Cap: cap}, nil
	case ir.SetComp:
		return value.Labeled{Val: dedupe(items), Cap: cap}, nil
	default:
		d := value.NewDictMap()
		for i := range keys {
			d.Set(value.Str(keys[i]), vals[i])
		}
		return value.Labeled{Val: value.NewDict(d), Cap: cap}, nil
	}
}

// attrWalk resolves one attribute segment: a dict key, or a numeric
// index into a list expressed as an identifier-safe name.
func attrWalk(v value.Value, name string) (value.Value, *Error) {
	switch v.Kind() {
	case value.KindDict:
		out, ok := v.Dict().Get(name)
		if !ok {
			return value.Null(), trustedErr("'dict' object has no attribute %q", name)
		}
		return out, nil
	case value.KindList, value.KindTuple:
		n, err := strconv.Atoi(name)
		if err != nil {
			return value.Null(), trustedErr("'%s' object has no attribute %q", v.Kind(), name)
		}
		seq := v.Seq()
		if n < 0 || n >= len(seq) {
			return value.Null(), trustedErr("index out of range: %d", n)
		}
		return seq[n], nil
	}
	return value.Null(), trustedErr("'%s' object has no attribute %q", v.Kind(), name)
}

// iterate resolves a value into its iteration elements: list and tuple
// elements, string characters, dict keys.
func iterate(v value.Value) ([]value.Value, *Error) {
	switch v.Kind() {
	case value.KindList, value.KindTuple:
		return v.Seq(), nil
	case value.KindString:
		runes := []rune(v.Str())
		out := make([]value.Value, len(runes))
		for i, r := range runes {
			out[i] = value.NewString(string(r))
		}
		return out, nil
	case value.KindDict:
		out := make([]value.Value, 0, v.Dict().Len())
		for _, k := range v.Dict().Keys() {
			out = append(out, value.NewString(k))
		}
		return out, nil
	default:
		return nil, trustedErr("'%s' object is not iterable", v.Kind())
	}
}

// bindTargets binds loop/comprehension targets to an element, unpacking
// when multiple targets are given.
func bindTargets(env *Env, targets []string, elem value.Labeled) *Error {
	if len(targets) == 1 {
		env.Bind(targets[0], elem)
		return nil
	}
	if elem.Val.Kind() != value.KindList && elem.Val.Kind() != value.KindTuple {
		return trustedErr("cannot unpack '%s' into %d targets", elem.Val.Kind(), len(targets))
	}
	if len(elem.Val.Seq()) != len(targets) {
		return trustedErr("expected %d values to unpack, got %d", len(targets), len(elem.Val.Seq()))
	}
	for i, t := range targets {
		env.Bind(t, value.Labeled{Val: elem.Val.Seq()[i], Cap: elem.Cap})
	}
	return nil
}
