package interp

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/haasonsaas/camel/internal/value"
)

var stringMethods = []string{
	"capitalize", "count", "endswith", "find", "format", "index", "isalnum",
	"isalpha", "isdigit", "islower", "isspace", "isupper", "join", "lower",
	"lstrip", "partition", "removeprefix", "removesuffix", "replace", "rfind",
	"rindex", "rpartition", "rsplit", "rstrip", "split", "splitlines",
	"startswith", "strip", "title", "upper",
}

var listMethods = []string{"count", "index"}

var dictMethods = []string{"get", "items", "keys", "values"}

// methodNames returns the whitelisted methods for a kind, sorted. Used by
// the dir builtin.
func methodNames(k value.Kind) []string {
	var out []string
	switch k {
	case value.KindString:
		out = append(out, stringMethods...)
	case value.KindList, value.KindTuple:
		out = append(out, listMethods...)
	case value.KindDict:
		out = append(out, dictMethods...)
	}
	sort.Strings(out)
	return out
}

// callMethod dispatches a whitelisted method call. There are no mutating
// methods: the value model is immutable, so append/pop and friends do not
// exist and plans build new collections instead.
func callMethod(recv value.Labeled, name string, args []value.Labeled) (value.Labeled, *Error) {
	cap := recv.Cap
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = a.Val
		cap = value.Merge(cap, a.Cap)
	}

	var out value.Value
	var err *Error
	switch recv.Val.Kind() {
	case value.KindString:
		out, err = stringMethod(recv.Val.Str(), name, vals)
	case value.KindList, value.KindTuple:
		out, err = seqMethod(recv.Val, name, vals)
	case value.KindDict:
		out, err = dictMethod(recv.Val.Dict(), name, vals)
	default:
		err = trustedErr("'%s' object has no method %q", recv.Val.Kind(), name)
	}
	if err != nil {
		return value.Labeled{}, err
	}
	return value.Labeled{Val: out, Cap: cap}, nil
}

func stringMethod(s, name string, args []value.Value) (value.Value, *Error) {
	str := func(i int) (string, *Error) {
		if args[i].Kind() != value.KindString {
			return "", trustedErr("%s() argument must be a str, not %s", name, args[i].Kind())
		}
		return args[i].Str(), nil
	}

	switch name {
	case "upper":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		return value.NewString(strings.ToUpper(s)), nil
	case "lower":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		return value.NewString(strings.ToLower(s)), nil
	case "capitalize":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		if s == "" {
			return value.NewString(s), nil
		}
		runes := []rune(strings.ToLower(s))
		runes[0] = unicode.ToUpper(runes[0])
		return value.NewString(string(runes)), nil
	case "title":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		return value.NewString(titleCase(s)), nil

	case "strip", "lstrip", "rstrip":
		if err := marity(name, args, 0, 1); err != nil {
			return value.Null(), err
		}
		cutset := " \t\n\r\v\f"
		if len(args) == 1 {
			cs, err := str(0)
			if err != nil {
				return value.Null(), err
			}
			cutset = cs
		}
		switch name {
		case "strip":
			return value.NewString(strings.Trim(s, cutset)), nil
		case "lstrip":
			return value.NewString(strings.TrimLeft(s, cutset)), nil
		default:
			return value.NewString(strings.TrimRight(s, cutset)), nil
		}

	case "split", "rsplit":
		if err := marity(name, args, 0, 2); err != nil {
			return value.Null(), err
		}
		maxSplit := int64(-1)
		if len(args) == 2 {
			if args[1].Kind() != value.KindInt {
				return value.Null(), trustedErr("%s() maxsplit must be an int, not %s", name, args[1].Kind())
			}
			maxSplit = args[1].Int()
		}
		if len(args) == 0 || args[0].IsNull() {
			return stringList(fieldsLimit(s, maxSplit)), nil
		}
		sep, err := str(0)
		if err != nil {
			return value.Null(), err
		}
		if sep == "" {
			return value.Null(), trustedErr("empty separator")
		}
		return stringList(splitLimit(s, sep, maxSplit, name == "rsplit")), nil

	case "splitlines":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		return stringList(lines), nil

	case "replace":
		if err := marity(name, args, 2, 3); err != nil {
			return value.Null(), err
		}
		old, err := str(0)
		if err != nil {
			return value.Null(), err
		}
		new, err := str(1)
		if err != nil {
			return value.Null(), err
		}
		n := -1
		if len(args) == 3 {
			if args[2].Kind() != value.KindInt {
				return value.Null(), trustedErr("replace() count must be an int, not %s", args[2].Kind())
			}
			n = int(args[2].Int())
		}
		return value.NewString(strings.Replace(s, old, new, n)), nil

	case "format":
		return formatMethod(s, args)

	case "startswith", "endswith":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		prefix, err := str(0)
		if err != nil {
			return value.Null(), err
		}
		if name == "startswith" {
			return value.NewBool(strings.HasPrefix(s, prefix)), nil
		}
		return value.NewBool(strings.HasSuffix(s, prefix)), nil

	case "find", "rfind", "index", "rindex":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		sub, err := str(0)
		if err != nil {
			return value.Null(), err
		}
		var byteIdx int
		if name == "find" || name == "index" {
			byteIdx = strings.Index(s, sub)
		} else {
			byteIdx = strings.LastIndex(s, sub)
		}
		if byteIdx < 0 {
			if name == "index" || name == "rindex" {
				return value.Null(), trustedErr("substring not found")
			}
			return value.NewInt(-1), nil
		}
		// Positions are in characters, not bytes.
		return value.NewInt(int64(len([]rune(s[:byteIdx])))), nil

	case "count":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		sub, err := str(0)
		if err != nil {
			return value.Null(), err
		}
		if sub == "" {
			return value.NewInt(int64(len([]rune(s)) + 1)), nil
		}
		return value.NewInt(int64(strings.Count(s, sub))), nil

	case "partition", "rpartition":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		sep, err := str(0)
		if err != nil {
			return value.Null(), err
		}
		if sep == "" {
			return value.Null(), trustedErr("empty separator")
		}
		var idx int
		if name == "partition" {
			idx = strings.Index(s, sep)
		} else {
			idx = strings.LastIndex(s, sep)
		}
		if idx < 0 {
			if name == "partition" {
				return value.NewTuple([]value.Value{value.NewString(s), value.NewString(""), value.NewString("")}), nil
			}
			return value.NewTuple([]value.Value{value.NewString(""), value.NewString(""), value.NewString(s)}), nil
		}
		return value.NewTuple([]value.Value{
			value.NewString(s[:idx]),
			value.NewString(sep),
			value.NewString(s[idx+len(sep):]),
		}), nil

	case "join":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		elems, ierr := iterate(args[0])
		if ierr != nil {
			return value.Null(), ierr
		}
		parts := make([]string, len(elems))
		for i, el := range elems {
			if el.Kind() != value.KindString {
				return value.Null(), trustedErr("sequence item %d: expected str instance, %s found", i, el.Kind())
			}
			parts[i] = el.Str()
		}
		return value.NewString(strings.Join(parts, s)), nil

	case "removeprefix":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		prefix, err := str(0)
		if err != nil {
			return value.Null(), err
		}
		return value.NewString(strings.TrimPrefix(s, prefix)), nil
	case "removesuffix":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		suffix, err := str(0)
		if err != nil {
			return value.Null(), err
		}
		return value.NewString(strings.TrimSuffix(s, suffix)), nil

	case "isdigit", "isalpha", "isalnum", "isspace", "isupper", "islower":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		return value.NewBool(classify(s, name)), nil
	}
	return value.Null(), trustedErr("'str' object has no method %q", name)
}

func classify(s, pred string) bool {
	if s == "" {
		return false
	}
	hasCased := false
	for _, r := range s {
		switch pred {
		case "isdigit":
			if !unicode.IsDigit(r) {
				return false
			}
		case "isalpha":
			if !unicode.IsLetter(r) {
				return false
			}
		case "isalnum":
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return false
			}
		case "isspace":
			if !unicode.IsSpace(r) {
				return false
			}
		case "isupper":
			if unicode.IsLower(r) {
				return false
			}
			if unicode.IsUpper(r) {
				hasCased = true
			}
		case "islower":
			if unicode.IsUpper(r) {
				return false
			}
			if unicode.IsLower(r) {
				hasCased = true
			}
		}
	}
	if pred == "isupper" || pred == "islower" {
		return hasCased
	}
	return true
}

func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

// formatMethod implements str.format with auto-numbered {} and explicit
// positional {0} fields. {{ and }} escape braces.
func formatMethod(tmpl string, args []value.Value) (value.Value, *Error) {
	var b strings.Builder
	auto := 0
	usedAuto, usedExplicit := false, false
	runes := []rune(tmpl)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '{' {
			if i+1 < len(runes) && runes[i+1] == '{' {
				b.WriteRune('{')
				i++
				continue
			}
			j := i + 1
			for j < len(runes) && runes[j] != '}' {
				j++
			}
			if j == len(runes) {
				return value.Null(), trustedErr("single '{' encountered in format string")
			}
			field := string(runes[i+1 : j])
			var idx int
			if field == "" {
				if usedExplicit {
					return value.Null(), trustedErr("cannot switch from manual field numbering to automatic")
				}
				usedAuto = true
				idx = auto
				auto++
			} else {
				n, err := strconv.Atoi(field)
				if err != nil {
					return value.Null(), trustedErr("unsupported format field %q", field)
				}
				if usedAuto {
					return value.Null(), trustedErr("cannot switch from automatic field numbering to manual")
				}
				usedExplicit = true
				idx = n
			}
			if idx < 0 || idx >= len(args) {
				return value.Null(), trustedErr("replacement index %d out of range for format arguments", idx)
			}
			b.WriteString(value.Str(args[idx]))
			i = j
			continue
		}
		if r == '}' {
			if i+1 < len(runes) && runes[i+1] == '}' {
				b.WriteRune('}')
				i++
				continue
			}
			return value.Null(), trustedErr("single '}' encountered in format string")
		}
		b.WriteRune(r)
	}
	return value.NewString(b.String()), nil
}

func seqMethod(recv value.Value, name string, args []value.Value) (value.Value, *Error) {
	switch name {
	case "index":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		for i, el := range recv.Seq() {
			if value.Equal(el, args[0]) {
				return value.NewInt(int64(i)), nil
			}
		}
		return value.Null(), trustedErr("%s is not in %s", value.Repr(args[0]), recv.Kind())
	case "count":
		if err := marity(name, args, 1, 1); err != nil {
			return value.Null(), err
		}
		n := int64(0)
		for _, el := range recv.Seq() {
			if value.Equal(el, args[0]) {
				n++
			}
		}
		return value.NewInt(n), nil
	}
	return value.Null(), trustedErr("'%s' object has no method %q", recv.Kind(), name)
}

func dictMethod(d *value.Dict, name string, args []value.Value) (value.Value, *Error) {
	switch name {
	case "get":
		if err := marity(name, args, 1, 2); err != nil {
			return value.Null(), err
		}
		if args[0].Kind() != value.KindString {
			return value.Null(), trustedErr("dict keys must be strings, not %s", args[0].Kind())
		}
		if v, ok := d.Get(args[0].Str()); ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return value.Null(), nil
	case "keys":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		return stringList(d.Keys()), nil
	case "values":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		out := make([]value.Value, 0, d.Len())
		for _, k := range d.Keys() {
			v, _ := d.Get(k)
			out = append(out, v)
		}
		return value.NewList(out), nil
	case "items":
		if err := marity(name, args, 0, 0); err != nil {
			return value.Null(), err
		}
		out := make([]value.Value, 0, d.Len())
		for _, k := range d.Keys() {
			v, _ := d.Get(k)
			out = append(out, value.NewTuple([]value.Value{value.NewString(k), v}))
		}
		return value.NewList(out), nil
	}
	return value.Null(), trustedErr("'dict' object has no method %q", name)
}

func marity(name string, args []value.Value, min, max int) *Error {
	if len(args) < min || len(args) > max {
		if min == max {
			return trustedErr("%s() takes %d argument(s), got %d", name, min, len(args))
		}
		return trustedErr("%s() takes %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func stringList(parts []string) value.Value {
	out := make([]value.Value, len(parts))
	for i, p := range parts {
		out[i] = value.NewString(p)
	}
	return value.NewList(out)
}

// fieldsLimit splits on runs of whitespace with an optional maximum number
// of splits, matching str.split() with no separator.
func fieldsLimit(s string, maxSplit int64) []string {
	if maxSplit < 0 {
		return strings.Fields(s)
	}
	var out []string
	rest := strings.TrimLeft(s, " \t\n\r\v\f")
	for int64(len(out)) < maxSplit && rest != "" {
		idx := strings.IndexFunc(rest, unicode.IsSpace)
		if idx < 0 {
			break
		}
		out = append(out, rest[:idx])
		rest = strings.TrimLeft(rest[idx:], " \t\n\r\v\f")
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

// splitLimit splits on a separator with an optional maximum number of
// splits, from the right when rsplit is set.
func splitLimit(s, sep string, maxSplit int64, rsplit bool) []string {
	if maxSplit < 0 {
		return strings.Split(s, sep)
	}
	parts := strings.Split(s, sep)
	splits := int64(len(parts) - 1)
	if splits <= maxSplit {
		return parts
	}
	if rsplit {
		keep := int64(len(parts)) - maxSplit
		head := strings.Join(parts[:keep], sep)
		return append([]string{head}, parts[keep:]...)
	}
	tail := strings.Join(parts[maxSplit:], sep)
	return append(parts[:maxSplit:maxSplit], tail)
}
