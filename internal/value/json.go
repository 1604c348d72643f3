package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// MarshalJSON serializes the value, preserving dict insertion order so tool
// arguments and trace payloads are byte-stable across identical runs.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return nil, fmt.Errorf("cannot serialize non-finite float")
		}
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList, KindTuple:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, el := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := el.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindDict:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.dict.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			item, _ := v.dict.Get(k)
			vb, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// ToAny converts the value into plain Go types for inclusion in trace
// payloads and tool metadata. Dicts become map[string]any; ordering is
// recovered at serialization time only for Value itself, so callers that
// need byte-stable output should marshal the Value directly.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList, KindTuple:
		out := make([]any, len(v.seq))
		for i, el := range v.seq {
			out[i] = el.ToAny()
		}
		return out
	case KindDict:
		out := make(map[string]any, v.dict.Len())
		for _, k := range v.dict.Keys() {
			item, _ := v.dict.Get(k)
			out[k] = item.ToAny()
		}
		return out
	default:
		return nil
	}
}

// FromAny converts decoded JSON (or plain Go data) into a Value. Numbers
// decoded as json.Number keep integer precision; float64 values that are
// integral stay floats. Map keys are sorted for determinism since Go maps
// carry no order.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return NewBool(t), nil
	case int:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case float64:
		return NewFloat(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return NewInt(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q", t.String())
		}
		return NewFloat(f), nil
	case string:
		return NewString(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, el := range t {
			v, err := FromAny(el)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return NewList(items), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := NewDictMap()
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return Null(), err
			}
			d.Set(k, v)
		}
		return NewDict(d), nil
	default:
		return Null(), fmt.Errorf("unsupported value type %T", x)
	}
}
