package interp

import (
	"math"
	"strings"

	"github.com/haasonsaas/camel/internal/value"
)

// binaryOp implements + - * / % with Python-like overloads.
func binaryOp(op string, a, b value.Value) (value.Value, *Error) {
	switch op {
	case "+":
		return addOp(a, b)
	case "-":
		if a.IsNumber() && b.IsNumber() {
			return numericOp(a, b, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y }), nil
		}
	case "*":
		return mulOp(a, b)
	case "/":
		if a.IsNumber() && b.IsNumber() {
			if b.AsFloat() == 0 {
				return value.Null(), trustedErr("division by zero")
			}
			// Python's / always yields a float.
			return value.NewFloat(a.AsFloat() / b.AsFloat()), nil
		}
	case "%":
		if a.Kind() == value.KindInt && b.Kind() == value.KindInt {
			if b.Int() == 0 {
				return value.Null(), trustedErr("integer modulo by zero")
			}
			// Python modulo takes the sign of the divisor.
			m := a.Int() % b.Int()
			if m != 0 && (m < 0) != (b.Int() < 0) {
				m += b.Int()
			}
			return value.NewInt(m), nil
		}
		if a.IsNumber() && b.IsNumber() {
			if b.AsFloat() == 0 {
				return value.Null(), trustedErr("float modulo by zero")
			}
			m := math.Mod(a.AsFloat(), b.AsFloat())
			if m != 0 && (m < 0) != (b.AsFloat() < 0) {
				m += b.AsFloat()
			}
			return value.NewFloat(m), nil
		}
	}
	return value.Null(), trustedErr("unsupported operand type(s) for %s: '%s' and '%s'", op, a.Kind(), b.Kind())
}

func addOp(a, b value.Value) (value.Value, *Error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		return numericOp(a, b, func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y }), nil
	case a.Kind() == value.KindString && b.Kind() == value.KindString:
		return value.NewString(a.Str() + b.Str()), nil
	case a.Kind() == value.KindList && b.Kind() == value.KindList:
		out := make([]value.Value, 0, len(a.Seq())+len(b.Seq()))
		out = append(out, a.Seq()...)
		out = append(out, b.Seq()...)
		return value.NewList(out), nil
	case a.Kind() == value.KindTuple && b.Kind() == value.KindTuple:
		out := make([]value.Value, 0, len(a.Seq())+len(b.Seq()))
		out = append(out, a.Seq()...)
		out = append(out, b.Seq()...)
		return value.NewTuple(out), nil
	}
	return value.Null(), trustedErr("unsupported operand type(s) for +: '%s' and '%s'", a.Kind(), b.Kind())
}

func mulOp(a, b value.Value) (value.Value, *Error) {
	if a.IsNumber() && b.IsNumber() {
		return numericOp(a, b, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y }), nil
	}
	// string * int and int * string repeat, in either order.
	if a.Kind() == value.KindString && b.Kind() == value.KindInt {
		return repeatString(a.Str(), b.Int())
	}
	if a.Kind() == value.KindInt && b.Kind() == value.KindString {
		return repeatString(b.Str(), a.Int())
	}
	if a.Kind() == value.KindList && b.Kind() == value.KindInt {
		return repeatList(a.Seq(), b.Int())
	}
	if a.Kind() == value.KindInt && b.Kind() == value.KindList {
		return repeatList(b.Seq(), a.Int())
	}
	return value.Null(), trustedErr("unsupported operand type(s) for *: '%s' and '%s'", a.Kind(), b.Kind())
}

// maxRepeat bounds string/list repetition against adversarial blowup.
const maxRepeat = 1 << 20

func repeatString(s string, n int64) (value.Value, *Error) {
	if n <= 0 {
		return value.NewString(""), nil
	}
	if int64(len(s))*n > maxRepeat {
		return value.Null(), trustedErr("repeated string would exceed size limit")
	}
	return value.NewString(strings.Repeat(s, int(n))), nil
}

func repeatList(items []value.Value, n int64) (value.Value, *Error) {
	if n <= 0 {
		return value.NewList(nil), nil
	}
	if int64(len(items))*n > maxRepeat {
		return value.Null(), trustedErr("repeated list would exceed size limit")
	}
	out := make([]value.Value, 0, int64(len(items))*n)
	for i := int64(0); i < n; i++ {
		out = append(out, items...)
	}
	return value.NewList(out), nil
}

func numericOp(a, b value.Value, intOp func(int64, int64) int64, floatOp func(float64, float64) float64) value.Value {
	if a.Kind() == value.KindInt && b.Kind() == value.KindInt {
		return value.NewInt(intOp(a.Int(), b.Int()))
	}
	return value.NewFloat(floatOp(a.AsFloat(), b.AsFloat()))
}

// compareOp implements one link of a comparison chain.
func compareOp(op string, a, b value.Value) (bool, *Error) {
	switch op {
	case "==":
		return value.Equal(a, b), nil
	case "!=":
		return !value.Equal(a, b), nil
	case "<", "<=", ">", ">=":
		c, err := value.Compare(a, b)
		if err != nil {
			return false, trustedErr("%v", err)
		}
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case "in":
		ok, err := value.Contains(b, a)
		if err != nil {
			return false, trustedErr("%v", err)
		}
		return ok, nil
	case "not in":
		ok, err := value.Contains(b, a)
		if err != nil {
			return false, trustedErr("%v", err)
		}
		return !ok, nil
	case "is":
		// Identity behaves like equality for this immutable value model,
		// consistently within a run.
		return value.Equal(a, b), nil
	case "is not":
		return !value.Equal(a, b), nil
	}
	return false, trustedErr("unknown comparison operator %q", op)
}

// indexOp implements x[i] over lists, tuples, strings, and dicts.
func indexOp(recv, idx value.Value) (value.Value, *Error) {
	switch recv.Kind() {
	case value.KindList, value.KindTuple:
		if idx.Kind() != value.KindInt {
			return value.Null(), trustedErr("%s indices must be integers, not %s", recv.Kind(), idx.Kind())
		}
		i, err := normalizeIndex(idx.Int(), len(recv.Seq()))
		if err != nil {
			return value.Null(), err
		}
		return recv.Seq()[i], nil
	case value.KindString:
		if idx.Kind() != value.KindInt {
			return value.Null(), trustedErr("string indices must be integers, not %s", idx.Kind())
		}
		runes := []rune(recv.Str())
		i, err := normalizeIndex(idx.Int(), len(runes))
		if err != nil {
			return value.Null(), err
		}
		return value.NewString(string(runes[i])), nil
	case value.KindDict:
		if idx.Kind() != value.KindString {
			return value.Null(), trustedErr("dict keys must be strings, not %s", idx.Kind())
		}
		v, ok := recv.Dict().Get(idx.Str())
		if !ok {
			return value.Null(), trustedErr("KeyError: %s", value.Repr(idx))
		}
		return v, nil
	default:
		return value.Null(), trustedErr("'%s' object is not subscriptable", recv.Kind())
	}
}

func normalizeIndex(i int64, length int) (int, *Error) {
	orig := i
	if i < 0 {
		i += int64(length)
	}
	if i < 0 || i >= int64(length) {
		return 0, trustedErr("index %d out of range", orig)
	}
	return int(i), nil
}

// sliceOp implements x[low:high:step] with negative indices, a default
// step of 1, and rejection of step 0.
func sliceOp(recv value.Value, low, high, step *int64) (value.Value, *Error) {
	st := int64(1)
	if step != nil {
		st = *step
	}
	if st == 0 {
		return value.Null(), trustedErr("slice step cannot be zero")
	}

	switch recv.Kind() {
	case value.KindList, value.KindTuple:
		idxs := sliceIndices(len(recv.Seq()), low, high, st)
		out := make([]value.Value, 0, len(idxs))
		for _, i := range idxs {
			out = append(out, recv.Seq()[i])
		}
		if recv.Kind() == value.KindTuple {
			return value.NewTuple(out), nil
		}
		return value.NewList(out), nil
	case value.KindString:
		runes := []rune(recv.Str())
		idxs := sliceIndices(len(runes), low, high, st)
		var b strings.Builder
		for _, i := range idxs {
			b.WriteRune(runes[i])
		}
		return value.NewString(b.String()), nil
	default:
		return value.Null(), trustedErr("'%s' object is not sliceable", recv.Kind())
	}
}

// sliceIndices computes the element indices a Python slice would visit.
func sliceIndices(length int, low, high *int64, step int64) []int {
	n := int64(length)
	clamp := func(v, lo, hi int64) int64 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	resolve := func(p *int64, defFwd, defBack int64) int64 {
		if p == nil {
			if step > 0 {
				return defFwd
			}
			return defBack
		}
		v := *p
		if v < 0 {
			v += n
			if v < 0 {
				if step > 0 {
					return 0
				}
				return -1
			}
			return v
		}
		if step > 0 {
			return clamp(v, 0, n)
		}
		return clamp(v, 0, n-1)
	}

	var out []int
	if step > 0 {
		start := resolve(low, 0, 0)
		stop := resolve(high, n, n)
		for i := start; i < stop; i += step {
			out = append(out, int(i))
		}
	} else {
		start := resolve(low, 0, n-1)
		stop := resolve(high, 0, -1)
		for i := start; i > stop; i += step {
			if i >= 0 && i < n {
				out = append(out, int(i))
			}
		}
	}
	return out
}
