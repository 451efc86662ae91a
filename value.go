package reconcile

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// Kind enumerates the variants of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is a structured payload returned by the completion service.
// The zero Value is null. Objects keep the key order they were decoded with.
type Value struct {
	kind  Kind
	b     bool
	n     float64
	s     string
	items []Value
	keys  []string
	props map[string]Value
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

func Null() Value            { return Value{} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func String(s string) Value  { return Value{kind: KindString, s: s} }

func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Object builds an object in member order. A repeated key keeps its first
// position and its last value.
func Object(members ...Member) Value {
	v := Value{kind: KindObject, keys: make([]string, 0, len(members)), props: make(map[string]Value, len(members))}
	for _, m := range members {
		v.set(m.Key, m.Value)
	}
	return v
}

func (v *Value) set(key string, val Value) {
	if _, ok := v.props[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.props[key] = val
}

// ValueOf converts plain Go values (as produced by encoding/json) into a
// Value. Map keys are sorted since Go maps carry no order.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		f, _ := t.Float64()
		return Number(f)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = ValueOf(e)
		}
		return Array(items...)
	case []string:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = String(e)
		}
		return Array(items...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, k := range keys {
			members[i] = Member{Key: k, Value: ValueOf(t[k])}
		}
		return Object(members...)
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return ValueOf(m)
	}
	b, err := json.Marshal(x)
	if err != nil {
		return Null()
	}
	v, err := ParseValue(b)
	if err != nil {
		return Null()
	}
	return v
}

// ParseValue decodes a JSON document into a Value.
func ParseValue(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Value{}, eris.Wrap(ErrInvalidJSON, "parse value")
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(r.Num)
	case gjson.String:
		return String(r.Str)
	}
	if r.IsArray() {
		items := []Value{}
		r.ForEach(func(_, e gjson.Result) bool {
			items = append(items, fromResult(e))
			return true
		})
		return Array(items...)
	}
	obj := Object()
	r.ForEach(func(k, e gjson.Result) bool {
		obj.set(k.String(), fromResult(e))
		return true
	})
	return obj
}

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) AsBool() bool      { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsString() string  { return v.s }

// Items returns the elements of an array. The slice must not be modified.
func (v Value) Items() []Value { return v.items }

// Keys returns object keys in order.
func (v Value) Keys() []string { return v.keys }

// Get returns the member stored under key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	e, ok := v.props[key]
	return e, ok
}

// Len is the number of array elements or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	}
	return 0
}

// IsEmpty reports null, an empty array or an empty object.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindArray, KindObject:
		return v.Len() == 0
	}
	return false
}

func (v Value) isScalar() bool { return v.kind != KindArray && v.kind != KindObject }

// Text renders a scalar the way it reads in a document; containers render as JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	}
	b, _ := v.MarshalJSON()
	return string(b)
}

// Leaves calls fn for every scalar leaf, depth first.
func (v Value) Leaves(fn func(Value)) {
	switch v.kind {
	case KindArray:
		for _, e := range v.items {
			e.Leaves(fn)
		}
	case KindObject:
		for _, k := range v.keys {
			v.props[k].Leaves(fn)
		}
	default:
		fn(v)
	}
}

// ConfidenceScore weighs a payload by its populated leaves:
// ten points per non-empty leaf plus the total rune length of those leaves.
func (v Value) ConfidenceScore() int {
	score := 0
	v.Leaves(func(leaf Value) {
		text := strings.TrimSpace(leaf.Text())
		if text == "" {
			return
		}
		score += 10 + utf8.RuneCountInString(text)
	})
	return score
}

// Equal reports deep equality. Object key order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	if len(v.keys) != len(o.keys) {
		return false
	}
	for _, k := range v.keys {
		e, ok := o.props[k]
		if !ok || !v.props[k].Equal(e) {
			return false
		}
	}
	return true
}

// Interface converts the value back into plain Go values.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.items))
		for i, e := range v.items {
			out[i] = e.Interface()
		}
		return out
	}
	out := make(map[string]any, len(v.keys))
	for _, k := range v.keys {
		out[k] = v.props[k].Interface()
	}
	return out
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		b, err := json.Marshal(v.n)
		if err != nil {
			return eris.Wrap(err, "encode number")
		}
		buf.Write(b)
	case KindString:
		b, _ := json.Marshal(v.s)
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.props[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String renders the value as compact JSON.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}
