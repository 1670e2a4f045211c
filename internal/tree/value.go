// Package tree holds a generic JSON value that keeps object key order.
//
// Source documents are schema-free: job postings in particular carry an
// unknown, varying set of sections. Value lets the flatteners walk them as a
// tagged union instead of type-switching over map[string]interface{}.
package tree

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies which variant of the union a Value holds.
type Kind int

const (
	Null Kind = iota
	String
	Number
	Bool
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

// Member is one key of an object, in document order.
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	str     string
	num     json.Number
	b       bool
	members []Member
	elems   []Value
}

// Str returns a string Value.
func Str(s string) Value { return Value{kind: String, str: s} }

// Num returns a number Value from its literal form.
func Num(n json.Number) Value { return Value{kind: Number, num: n} }

// Int returns a number Value.
func Int(n int64) Value { return Num(json.Number(strconv.FormatInt(n, 10))) }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// Obj returns an object Value with the given members.
func Obj(members ...Member) Value {
	return Value{kind: Object, members: members}
}

// Arr returns an array Value.
func Arr(elems ...Value) Value {
	return Value{kind: Array, elems: elems}
}

// M is shorthand for building a Member.
func M(key string, v Value) Member { return Member{Key: key, Value: v} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) IsObject() bool { return v.kind == Object }

// Members returns the object members in document order, or nil.
func (v Value) Members() []Member { return v.members }

// Elems returns the array elements, or nil.
func (v Value) Elems() []Value { return v.elems }

// Get looks a key up in an object. Later duplicates win, as in encoding/json.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	for i := len(v.members) - 1; i >= 0; i-- {
		if v.members[i].Key == key {
			return v.members[i].Value, true
		}
	}
	return Value{}, false
}

// Field is Get without the presence flag; absent keys yield null.
func (v Value) Field(key string) Value {
	f, _ := v.Get(key)
	return f
}

// Text renders scalars in their natural textual form: strings unquoted,
// numbers as written in the source, booleans as true/false, null as "".
// Objects and arrays render as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case Null:
		return ""
	case String:
		return v.str
	case Number:
		return v.num.String()
	case Bool:
		return strconv.FormatBool(v.b)
	default:
		b, _ := v.MarshalJSON()
		return string(b)
	}
}

// Key returns the normalised join-key form of v: its trimmed text.
// Null yields "" and never matches.
func (v Value) Key() string {
	return strings.TrimSpace(v.Text())
}

// Equal reports deep equality, ignoring number formatting differences
// only when both literals parse to the same float.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case String:
		return v.str == o.str
	case Number:
		if v.num == o.num {
			return true
		}
		a, errA := v.num.Float64()
		b, errB := o.num.Float64()
		return errA == nil && errB == nil && a == b
	case Bool:
		return v.b == o.b
	case Array:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Equal(o.elems[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.members) != len(o.members) {
			return false
		}
		for i := range v.members {
			if v.members[i].Key != o.members[i].Key || !v.members[i].Value.Equal(o.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes v, keeping object member order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case String:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Number:
		buf.WriteString(v.num.String())
	case Bool:
		buf.WriteString(strconv.FormatBool(v.b))
	case Array:
		buf.WriteByte('[')
		for i, e := range v.elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
