// Package jsonval implements an ordered, tagged-union JSON value with path access.
package jsonval

import (
	"math"
	"strconv"
)

// Kind identifies the JSON type held by a Value.
type Kind uint8

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
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is a single object member. Objects keep their members in insertion order.
type Field struct {
	Key   string
	Value *Value
}

// Value is a JSON value. The zero value is JSON null.
type Value struct {
	kind   Kind
	b      bool
	num    float64
	lit    string // number literal as read, preserved on output
	str    string
	items  []*Value
	fields []Field
}

// Null returns a new JSON null.
func Null() *Value { return &Value{} }

// Bool returns a new JSON boolean.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// Number returns a new JSON number.
func Number(f float64) *Value { return &Value{kind: KindNumber, num: f} }

// String returns a new JSON string.
func String(s string) *Value { return &Value{kind: KindString, str: s} }

// Array returns a new JSON array holding items.
func Array(items ...*Value) *Value {
	v := &Value{kind: KindArray, items: make([]*Value, 0, len(items))}
	for _, it := range items {
		v.items = append(v.items, orNull(it))
	}
	return v
}

// Object returns a new JSON object holding fields in the given order.
func Object(fields ...Field) *Value {
	v := &Value{kind: KindObject}
	for _, f := range fields {
		v.Put(f.Key, f.Value)
	}
	return v
}

func numberFromLiteral(lit string) (*Value, error) {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, err
	}
	return &Value{kind: KindNumber, num: f, lit: lit}, nil
}

func orNull(v *Value) *Value {
	if v == nil {
		return Null()
	}
	return v
}

// Kind returns the JSON kind. A nil Value reports KindNull.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether v is nil or JSON null.
func (v *Value) IsNull() bool { return v.Kind() == KindNull }

// BoolValue returns the boolean and whether v is a boolean.
func (v *Value) BoolValue() (bool, bool) {
	if v.Kind() != KindBool {
		return false, false
	}
	return v.b, true
}

// Float returns the number and whether v is a number.
func (v *Value) Float() (float64, bool) {
	if v.Kind() != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the string and whether v is a string.
func (v *Value) Str() (string, bool) {
	if v.Kind() != KindString {
		return "", false
	}
	return v.str, true
}

// Len returns the number of array items or object fields.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.fields)
	default:
		return 0
	}
}

// Index returns the i-th array item, or nil when out of range or not an array.
func (v *Value) Index(i int) *Value {
	if v.Kind() != KindArray || i < 0 || i >= len(v.items) {
		return nil
	}
	return v.items[i]
}

// Items returns the array items. The slice must not be modified.
func (v *Value) Items() []*Value {
	if v.Kind() != KindArray {
		return nil
	}
	return v.items
}

// Append adds items to an array value.
func (v *Value) Append(items ...*Value) {
	if v.Kind() != KindArray {
		return
	}
	for _, it := range items {
		v.items = append(v.items, orNull(it))
	}
}

// Fields returns the object members in order. The slice must not be modified.
func (v *Value) Fields() []Field {
	if v.Kind() != KindObject {
		return nil
	}
	return v.fields
}

// Keys returns the object keys in order.
func (v *Value) Keys() []string {
	if v.Kind() != KindObject {
		return nil
	}
	keys := make([]string, len(v.fields))
	for i, f := range v.fields {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the member stored under key.
func (v *Value) Get(key string) (*Value, bool) {
	if v.Kind() != KindObject {
		return nil, false
	}
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Put sets key to val, keeping the original position when the key already exists.
func (v *Value) Put(key string, val *Value) {
	if v == nil || v.kind != KindObject {
		return
	}
	val = orNull(val)
	for i := range v.fields {
		if v.fields[i].Key == key {
			v.fields[i].Value = val
			return
		}
	}
	v.fields = append(v.fields, Field{Key: key, Value: val})
}

// Remove deletes key and reports whether it was present.
func (v *Value) Remove(key string) bool {
	if v.Kind() != KindObject {
		return false
	}
	for i := range v.fields {
		if v.fields[i].Key == key {
			v.fields = append(v.fields[:i], v.fields[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	if v == nil {
		return Null()
	}
	c := &Value{kind: v.kind, b: v.b, num: v.num, lit: v.lit, str: v.str}
	if v.items != nil {
		c.items = make([]*Value, len(v.items))
		for i, it := range v.items {
			c.items[i] = it.Clone()
		}
	}
	if v.fields != nil {
		c.fields = make([]Field, len(v.fields))
		for i, f := range v.fields {
			c.fields[i] = Field{Key: f.Key, Value: f.Value.Clone()}
		}
	}
	return c
}

// Equal reports whether a and b hold the same JSON data. Object member order is ignored.
func Equal(a, b *Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for _, f := range a.fields {
			other, ok := b.Get(f.Key)
			if !ok || !Equal(f.Value, other) {
				return false
			}
		}
		return true
	}
	return false
}

// Text renders scalars as plain text (strings unquoted) and containers as compact JSON.
func (v *Value) Text() string {
	switch v.Kind() {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v)
	case KindString:
		return v.str
	default:
		return v.String()
	}
}

func formatNumber(v *Value) string {
	if v.lit != "" {
		return v.lit
	}
	if math.IsInf(v.num, 0) || math.IsNaN(v.num) {
		return "null"
	}
	if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e21 {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}
