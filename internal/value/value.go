// Package value implements the runtime value model: a small tagged union
// with Python-like semantics, plus the capability label every value carries
// through evaluation.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the value union.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindTuple
	KindDict
)

// String returns the Python-facing type name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NoneType"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	default:
		return "unknown"
	}
}

// Value is an immutable-by-convention tagged union. The zero value is null.
// There are no functions, classes, or reference cycles; everything is a
// value tree.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	seq  []Value
	dict *Dict
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// NewBool builds a bool value.
func NewBool(b bool) Value { return Value{kind: KindBool, b: b} }

// NewInt builds an int value.
func NewInt(i int64) Value { return Value{kind: KindInt, i: i} }

// NewFloat builds a float value.
func NewFloat(f float64) Value { return Value{kind: KindFloat, f: f} }

// NewString builds a string value.
func NewString(s string) Value { return Value{kind: KindString, s: s} }

// NewList builds a list value. The slice is owned by the value afterwards.
func NewList(items []Value) Value { return Value{kind: KindList, seq: items} }

// NewTuple builds a tuple value.
func NewTuple(items []Value) Value { return Value{kind: KindTuple, seq: items} }

// NewDict builds a dict value from an ordered map. A nil map yields an
// empty dict.
func NewDict(d *Dict) Value {
	if d == nil {
		d = NewDictMap()
	}
	return Value{kind: KindDict, dict: d}
}

// Kind returns the union discriminator.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the bool payload. Valid only for KindBool.
func (v Value) Bool() bool { return v.b }

// Int returns the int payload. Valid only for KindInt.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload. Valid only for KindFloat.
func (v Value) Float() float64 { return v.f }

// Str returns the string payload. Valid only for KindString.
func (v Value) Str() string { return v.s }

// Seq returns the element slice for lists and tuples.
func (v Value) Seq() []Value { return v.seq }

// Dict returns the ordered map for dicts.
func (v Value) Dict() *Dict { return v.dict }

// IsNumber reports whether the value is an int or float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// AsFloat widens int or float payloads to float64.
func (v Value) AsFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Truthy implements Python truthiness: null and false are false, zero
// numbers are false, empty strings and collections are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindList, KindTuple:
		return len(v.seq) > 0
	case KindDict:
		return v.dict.Len() > 0
	default:
		return false
	}
}

// Equal implements structural equality with numeric cross-comparison
// (1 == 1.0, True == 1 is intentionally false unlike Python: bools stay
// distinct from numbers to keep policy-relevant comparisons unsurprising).
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KindInt && b.kind == KindInt {
			return a.i == b.i
		}
		return a.AsFloat() == b.AsFloat()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindList, KindTuple:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.dict.Len() != b.dict.Len() {
			return false
		}
		for _, k := range a.dict.Keys() {
			bv, ok := b.dict.Get(k)
			if !ok {
				return false
			}
			av, _ := a.dict.Get(k)
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two values, returning -1, 0, or 1. Numbers compare
// cross-kind, strings lexicographically, lists and tuples element-wise.
// Other combinations are not ordered and return an error.
func Compare(a, b Value) (int, error) {
	if a.IsNumber() && b.IsNumber() {
		af, bf := a.AsFloat(), b.AsFloat()
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), nil
	}
	if (a.kind == KindList && b.kind == KindList) || (a.kind == KindTuple && b.kind == KindTuple) {
		n := len(a.seq)
		if len(b.seq) < n {
			n = len(b.seq)
		}
		for i := 0; i < n; i++ {
			c, err := Compare(a.seq[i], b.seq[i])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		switch {
		case len(a.seq) < len(b.seq):
			return -1, nil
		case len(a.seq) > len(b.seq):
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, fmt.Errorf("'<' not supported between instances of '%s' and '%s'", a.kind, b.kind)
}

// Str renders the value like Python's str(): strings are unquoted at the
// top level, nested values use their repr.
func Str(v Value) string {
	if v.kind == KindString {
		return v.s
	}
	return Repr(v)
}

// Repr renders the value like Python's repr().
func Repr(v Value) string {
	switch v.kind {
	case KindNull:
		return "None"
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return quote(v.s)
	case KindList:
		return seqRepr(v.seq, "[", "]", false)
	case KindTuple:
		return seqRepr(v.seq, "(", ")", true)
	case KindDict:
		var b strings.Builder
		b.WriteString("{")
		for i, k := range v.dict.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			item, _ := v.dict.Get(k)
			b.WriteString(quote(k))
			b.WriteString(": ")
			b.WriteString(Repr(item))
		}
		b.WriteString("}")
		return b.String()
	default:
		return "<unknown>"
	}
}

func seqRepr(items []Value, open, close string, trailingSingle bool) string {
	var b strings.Builder
	b.WriteString(open)
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Repr(it))
	}
	if trailingSingle && len(items) == 1 {
		b.WriteString(",")
	}
	b.WriteString(close)
	return b.String()
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func quote(s string) string {
	// Python-style single quotes unless the string contains one.
	if !strings.Contains(s, "'") {
		return "'" + escape(s, '\'') + "'"
	}
	return "\"" + escape(s, '"') + "\""
}

func escape(s string, q byte) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case rune(q):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Contains implements the "in" operator: substring on strings, structural
// equality on lists and tuples, key membership on dicts.
func Contains(container, item Value) (bool, error) {
	switch container.kind {
	case KindString:
		if item.kind != KindString {
			return false, fmt.Errorf("'in <string>' requires string as left operand, not %s", item.kind)
		}
		return strings.Contains(container.s, item.s), nil
	case KindList, KindTuple:
		for _, el := range container.seq {
			if Equal(el, item) {
				return true, nil
			}
		}
		return false, nil
	case KindDict:
		if item.kind != KindString {
			return false, nil
		}
		_, ok := container.dict.Get(item.s)
		return ok, nil
	default:
		return false, fmt.Errorf("argument of type '%s' is not iterable", container.kind)
	}
}

// Len returns the collection length, or an error for unsized kinds.
func Len(v Value) (int, error) {
	switch v.kind {
	case KindString:
		return len([]rune(v.s)), nil
	case KindList, KindTuple:
		return len(v.seq), nil
	case KindDict:
		return v.dict.Len(), nil
	default:
		return 0, fmt.Errorf("object of type '%s' has no len()", v.kind)
	}
}
