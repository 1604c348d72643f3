package interp

import (
	"strconv"
	"strings"

	"github.com/haasonsaas/camel/internal/value"
)

// renderTemplate substitutes {{name.path}} references against the
// environment. Unknown references render as empty strings rather than
// failing the run; the returned capability merges every resolved
// reference so the reply inherits the provenance of what it shows.
func renderTemplate(env *Env, text string) (string, value.Capability) {
	var b strings.Builder
	cap := value.TrustedCap()
	rest := text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		close := strings.Index(rest[open:], "}}")
		if close < 0 {
			b.WriteString(rest[open:])
			break
		}
		ref := strings.TrimSpace(rest[open+2 : open+close])
		rest = rest[open+close+2:]
		lv, ok := resolveRef(env, ref)
		if !ok {
			continue
		}
		cap = value.Merge(cap, lv.Cap)
		b.WriteString(value.Str(lv.Val))
	}
	return b.String(), cap
}

// resolveRef walks a dotted path: the first segment is a variable, later
// segments are dict keys or numeric list/tuple indices.
func resolveRef(env *Env, ref string) (value.Labeled, bool) {
	if ref == "" {
		return value.Labeled{}, false
	}
	segs := strings.Split(ref, ".")
	lv, ok := env.Lookup(segs[0])
	if !ok {
		return value.Labeled{}, false
	}
	cur := lv.Val
	for _, seg := range segs[1:] {
		switch cur.Kind() {
		case value.KindDict:
			v, ok := cur.Dict().Get(seg)
			if !ok {
				return value.Labeled{}, false
			}
			cur = v
		case value.KindList, value.KindTuple:
			n, err := strconv.Atoi(seg)
			if err != nil || n < 0 || n >= len(cur.Seq()) {
				return value.Labeled{}, false
			}
			cur = cur.Seq()[n]
		default:
			return value.Labeled{}, false
		}
	}
	return value.Labeled{Val: cur, Cap: lv.Cap}, true
}
