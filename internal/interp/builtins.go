package interp

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/haasonsaas/camel/internal/value"
)

// maxRangeLen bounds range() so a plan cannot allocate unbounded lists.
const maxRangeLen = 1 << 20

// callBuiltin dispatches a whitelisted builtin. The result capability is
// the merge of all argument capabilities.
func callBuiltin(name string, args []value.Labeled) (value.Labeled, *Error) {
	cap := value.TrustedCap()
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = a.Val
		cap = value.Merge(cap, a.Cap)
	}

	out, err := applyBuiltin(name, vals)
	if err != nil {
		return value.Labeled{}, err
	}
	return value.Labeled{Val: out, Cap: cap}, nil
}

func applyBuiltin(name string, args []value.Value) (value.Value, *Error) {
	switch name {
	case "len":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		n, lerr := value.Len(args[0])
		if lerr != nil {
			return value.Null(), trustedErr("%v", lerr)
		}
		return value.NewInt(int64(n)), nil

	case "str":
		if err := arity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.NewString(""), nil
		}
		return value.NewString(value.Str(args[0])), nil

	case "repr":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		return value.NewString(value.Repr(args[0])), nil

	case "bool":
		if err := arity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.NewBool(false), nil
		}
		return value.NewBool(args[0].Truthy()), nil

	case "int":
		if err := arity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.NewInt(0), nil
		}
		return toInt(args[0])

	case "float":
		if err := arity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.NewFloat(0), nil
		}
		return toFloat(args[0])

	case "type":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		return value.NewString(args[0].Kind().String()), nil

	case "list":
		if err := arity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.NewList(nil), nil
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		out := make([]value.Value, len(elems))
		copy(out, elems)
		return value.NewList(out), nil

	case "tuple":
		if err := arity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.NewTuple(nil), nil
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		out := make([]value.Value, len(elems))
		copy(out, elems)
		return value.NewTuple(out), nil

	case "set":
		if err := arity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.NewList(nil), nil
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		return dedupe(elems), nil

	case "dict":
		if err := arity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		if len(args) == 0 {
			return value.NewDict(nil), nil
		}
		if args[0].Kind() != value.KindDict {
			return value.Null(), trustedErr("dict() argument must be a dict, not %s", args[0].Kind())
		}
		d := value.NewDictMap()
		for _, k := range args[0].Dict().Keys() {
			v, _ := args[0].Dict().Get(k)
			d.Set(k, v)
		}
		return value.NewDict(d), nil

	case "range":
		return rangeBuiltin(args)

	case "enumerate":
		if err := arity(name, args, 1, 2); err != nil {
			return value.Null(), err
		}
		start := int64(0)
		if len(args) == 2 {
			if args[1].Kind() != value.KindInt {
				return value.Null(), trustedErr("enumerate() start must be an int, not %s", args[1].Kind())
			}
			start = args[1].Int()
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		out := make([]value.Value, len(elems))
		for i, el := range elems {
			out[i] = value.NewTuple([]value.Value{value.NewInt(start + int64(i)), el})
		}
		return value.NewList(out), nil

	case "zip":
		if len(args) == 0 {
			return value.NewList(nil), nil
		}
		seqs := make([][]value.Value, len(args))
		n := -1
		for i, a := range args {
			elems, ierr := iterate(a)
			if ierr != nil {
				return value.Null(), ierr
			}
			seqs[i] = elems
			if n < 0 || len(elems) < n {
				n = len(elems)
			}
		}
		out := make([]value.Value, n)
		for i := 0; i < n; i++ {
			row := make([]value.Value, len(seqs))
			for j := range seqs {
				row[j] = seqs[j][i]
			}
			out[i] = value.NewTuple(row)
		}
		return value.NewList(out), nil

	case "reversed":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		out := make([]value.Value, len(elems))
		for i, el := range elems {
			out[len(elems)-1-i] = el
		}
		return value.NewList(out), nil

	case "sorted":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		out := make([]value.Value, len(elems))
		copy(out, elems)
		var sortErr *Error
		sort.SliceStable(out, func(i, j int) bool {
			if sortErr != nil {
				return false
			}
			c, cerr := value.Compare(out[i], out[j])
			if cerr != nil {
				sortErr = trustedErr("%v", cerr)
				return false
			}
			return c < 0
		})
		if sortErr != nil {
			return value.Null(), sortErr
		}
		return value.NewList(out), nil

	case "sum":
		if err := arity(name, args, 1, 2); err != nil {
			return value.Null(), err
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		acc := value.NewInt(0)
		if len(args) == 2 {
			acc = args[1]
		}
		for _, el := range elems {
			next, aerr := addOp(acc, el)
			if aerr != nil {
				return value.Null(), aerr
			}
			acc = next
		}
		return acc, nil

	case "min", "max":
		return minMax(name, args)

	case "abs":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		switch args[0].Kind() {
		case value.KindInt:
			n := args[0].Int()
			if n < 0 {
				n = -n
			}
			return value.NewInt(n), nil
		case value.KindFloat:
			f := args[0].Float()
			if f < 0 {
				f = -f
			}
			return value.NewFloat(f), nil
		}
		return value.Null(), trustedErr("bad operand type for abs(): '%s'", args[0].Kind())

	case "divmod":
		if err := arity(name, args, 2, 2); err != nil {
			return value.Null(), err
		}
		if args[0].Kind() != value.KindInt || args[1].Kind() != value.KindInt {
			return value.Null(), trustedErr("divmod() arguments must be ints")
		}
		if args[1].Int() == 0 {
			return value.Null(), trustedErr("integer division or modulo by zero")
		}
		a, b := args[0].Int(), args[1].Int()
		q := a / b
		r := a % b
		// Floor division: modulo takes the sign of the divisor.
		if r != 0 && (r < 0) != (b < 0) {
			q--
			r += b
		}
		return value.NewTuple([]value.Value{value.NewInt(q), value.NewInt(r)}), nil

	case "any", "all":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		if name == "any" {
			for _, el := range elems {
				if el.Truthy() {
					return value.NewBool(true), nil
				}
			}
			return value.NewBool(false), nil
		}
		for _, el := range elems {
			if !el.Truthy() {
				return value.NewBool(false), nil
			}
		}
		return value.NewBool(true), nil

	case "hash":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		// Deterministic across runs: FNV-1a over the canonical repr.
		h := fnv.New64a()
		h.Write([]byte(value.Repr(args[0])))
		return value.NewInt(int64(h.Sum64())), nil

	case "dir":
		if err := arity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		names := methodNames(args[0].Kind())
		out := make([]value.Value, len(names))
		for i, n := range names {
			out[i] = value.NewString(n)
		}
		return value.NewList(out), nil
	}

	return value.Null(), trustedErr("name %q is not defined", name)
}

func arity(name string, args []value.Value, min, max int) *Error {
	if len(args) < min || len(args) > max {
		if min == max {
			return trustedErr("%s() takes %d argument(s), got %d", name, min, len(args))
		}
		return trustedErr("%s() takes %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func toInt(v value.Value) (value.Value, *Error) {
	switch v.Kind() {
	case value.KindInt:
		return v, nil
	case value.KindFloat:
		return value.NewInt(int64(v.Float())), nil
	case value.KindBool:
		if v.Bool() {
			return value.NewInt(1), nil
		}
		return value.NewInt(0), nil
	case value.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64)
		if err != nil {
			return value.Null(), trustedErr("invalid literal for int(): %s", value.Repr(v))
		}
		return value.NewInt(n), nil
	}
	return value.Null(), trustedErr("int() argument must be a string or number, not '%s'", v.Kind())
}

func toFloat(v value.Value) (value.Value, *Error) {
	switch v.Kind() {
	case value.KindFloat:
		return v, nil
	case value.KindInt:
		return value.NewFloat(float64(v.Int())), nil
	case value.KindBool:
		if v.Bool() {
			return value.NewFloat(1), nil
		}
		return value.NewFloat(0), nil
	case value.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		if err != nil {
			return value.Null(), trustedErr("could not convert string to float: %s", value.Repr(v))
		}
		return value.NewFloat(f), nil
	}
	return value.Null(), trustedErr("float() argument must be a string or number, not '%s'", v.Kind())
}

func rangeBuiltin(args []value.Value) (value.Value, *Error) {
	if err := arity("range", args, 1, 3); err != nil {
		return value.Null(), err
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		if a.Kind() != value.KindInt {
			return value.Null(), trustedErr("range() arguments must be ints, not %s", a.Kind())
		}
		nums[i] = a.Int()
	}
	start, stop, step := int64(0), int64(0), int64(1)
	switch len(nums) {
	case 1:
		stop = nums[0]
	case 2:
		start, stop = nums[0], nums[1]
	case 3:
		start, stop, step = nums[0], nums[1], nums[2]
	}
	if step == 0 {
		return value.Null(), trustedErr("range() step argument must not be zero")
	}
	var out []value.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			if len(out) >= maxRangeLen {
				return value.Null(), trustedErr("range() result would exceed size limit")
			}
			out = append(out, value.NewInt(i))
		}
	} else {
		for i := start; i > stop; i += step {
			if len(out) >= maxRangeLen {
				return value.Null(), trustedErr("range() result would exceed size limit")
			}
			out = append(out, value.NewInt(i))
		}
	}
	return value.NewList(out), nil
}

func minMax(name string, args []value.Value) (value.Value, *Error) {
	var elems []value.Value
	if len(args) == 1 {
		var ierr *Error
		elems, ierr = iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
	} else {
		elems = args
	}
	if len(elems) == 0 {
		return value.Null(), trustedErr("%s() arg is an empty sequence", name)
	}
	best := elems[0]
	for _, el := range elems[1:] {
		c, cerr := value.Compare(el, best)
		if cerr != nil {
			return value.Null(), trustedErr("%v", cerr)
		}
		if (name == "min" && c < 0) || (name == "max" && c > 0) {
			best = el
		}
	}
	return best, nil
}
