// Package codec converts host values to and from the neutral form exchanged
// with script modules.
//
// Every value crossing the host/script boundary is a Value: a tagged union
// over undefined, null, booleans, numbers, strings, sequences, and
// string-keyed mappings. Engine-native object references never cross the
// boundary. The canonical numeric representation is float64; see Encode and
// Decode for the exact precision and truncation rules.
package codec

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	}
	return "invalid"
}

// Value is the neutral form for values exchanged with scripts.
// The zero Value is undefined.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	seq  []Value
	obj  map[string]Value
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Num returns a numeric value.
func Num(n float64) Value { return Value{kind: KindNumber, num: n} }

// Str returns a string value.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Seq returns a sequence value holding the given elements.
func Seq(elems ...Value) Value {
	return Value{kind: KindSequence, seq: elems}
}

// Map returns a mapping value holding the given entries.
func Map(entries map[string]Value) Value {
	if entries == nil {
		entries = map[string]Value{}
	}
	return Value{kind: KindMapping, obj: entries}
}

// Kind reports which variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether the value is undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload. ok is false for non-boolean values.
func (v Value) Bool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// Num returns the numeric payload. ok is false for non-numeric values.
func (v Value) Num() (n float64, ok bool) { return v.num, v.kind == KindNumber }

// Str returns the string payload. ok is false for non-string values.
func (v Value) Str() (s string, ok bool) { return v.str, v.kind == KindString }

// Seq returns the sequence payload. ok is false for non-sequence values.
// The returned slice must not be mutated.
func (v Value) Seq() (elems []Value, ok bool) { return v.seq, v.kind == KindSequence }

// Map returns the mapping payload. ok is false for non-mapping values.
// The returned map must not be mutated.
func (v Value) Map() (entries map[string]Value, ok bool) { return v.obj, v.kind == KindMapping }

// Equal reports deep equality. Two NaN numbers compare equal so that the
// encode/decode round-trip law holds for every representable value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if math.IsNaN(v.num) && math.IsNaN(o.num) {
			return true
		}
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, e := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts the value into a plain Go tree of nil, bool, float64,
// string, []any, and map[string]any. Undefined converts to nil; use Kind to
// distinguish it from null when that matters.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON renders the value as JSON. Undefined marshals as null.
// Mapping keys are emitted in sorted order for stable output.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindUndefined, KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindSequence:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				sb.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			sb.Write(b)
		}
		sb.WriteByte(']')
		return []byte(sb.String()), nil
	case KindMapping:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			sb.Write(kb)
			sb.WriteByte(':')
			eb, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			sb.Write(eb)
		}
		sb.WriteByte('}')
		return []byte(sb.String()), nil
	}
	return nil, errInvalidKind
}
