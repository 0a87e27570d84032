package hstore

import (
	"fmt"
	"math"
	"sort"
)

// Kind identifies which JSON variant a Value holds.
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
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a deeply immutable JSON value. The zero Value is JSON null.
//
// Values are cheap to copy; arrays and objects share their backing
// representation, which is never mutated after construction. Two Values
// obtained from the same read of a store share identity, so repeatedly
// committing a value that came out of the store costs no hashing.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  *arrayRep
	obj  *objectRep
}

type arrayRep struct {
	elems []Value
}

type objectField struct {
	key string
	val Value
}

// objectRep keeps fields sorted by key, byte order, which for valid
// UTF-8 coincides with Unicode code-point order.
type objectRep struct {
	fields []objectField
}

// Null returns the JSON null Value.
func Null() Value { return Value{} }

// Boolean returns a JSON boolean Value.
func Boolean(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a JSON number Value. NaN and infinities are not JSON
// and are rejected.
func Number(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("number %v is not representable in JSON", f)
	}
	return Value{kind: KindNumber, num: f}, nil
}

// String returns a JSON string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// ArrayOf returns a JSON array Value holding the given elements, in
// order. The elements are copied into a private backing slice.
func ArrayOf(elems ...Value) Value {
	owned := make([]Value, len(elems))
	copy(owned, elems)
	return Value{kind: KindArray, arr: &arrayRep{elems: owned}}
}

// ObjectOf returns a JSON object Value holding the given fields, sorted
// by key in code-point order.
func ObjectOf(fields map[string]Value) Value {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	owned := make([]objectField, len(keys))
	for i, k := range keys {
		owned[i] = objectField{key: k, val: fields[k]}
	}
	return Value{kind: KindObject, obj: &objectRep{fields: owned}}
}

// FromGo converts a Go representation of a JSON value (the types
// produced by encoding/json: nil, bool, float64, string,
// []interface{}, map[string]interface{}, plus the other Go numeric
// types) into an immutable Value. The input is deeply copied; later
// mutation of the input does not affect the result. A Value input
// passes through unchanged, preserving identity.
func FromGo(v interface{}) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case nil:
		return Null(), nil
	case bool:
		return Boolean(x), nil
	case string:
		return String(x), nil
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case []interface{}:
		elems := make([]Value, len(x))
		for i, e := range x {
			ev, err := FromGo(e)
			if err != nil {
				return Value{}, fmt.Errorf("array element %d: %w", i, err)
			}
			elems[i] = ev
		}
		return Value{kind: KindArray, arr: &arrayRep{elems: elems}}, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]objectField, len(keys))
		for i, k := range keys {
			fv, err := FromGo(x[k])
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			fields[i] = objectField{key: k, val: fv}
		}
		return Value{kind: KindObject, obj: &objectRep{fields: fields}}, nil
	default:
		return Value{}, fmt.Errorf("cannot represent %T as a JSON value", v)
	}
}

// Kind reports which JSON variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean content, or false if v is not a boolean.
func (v Value) Bool() bool {
	if v.kind != KindBool {
		return false
	}
	return v.b
}

// Float returns the numeric content, or 0 if v is not a number.
func (v Value) Float() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.num
}

// Str returns the string content, or "" if v is not a string.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.str
}

// Len returns the number of elements of an array or fields of an
// object, and 0 for every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr.elems)
	case KindObject:
		return len(v.obj.fields)
	default:
		return 0
	}
}

// Index returns the i'th element of an array. It returns null if v is
// not an array or i is out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr.elems) {
		return Value{}
	}
	return v.arr.elems[i]
}

// Get returns the field with the given key of an object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	fields := v.obj.fields
	i := sort.Search(len(fields), func(i int) bool { return fields[i].key >= key })
	if i < len(fields) && fields[i].key == key {
		return fields[i].val, true
	}
	return Value{}, false
}

// Keys returns the keys of an object in code-point order. The returned
// slice is owned by the caller.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, len(v.obj.fields))
	for i, f := range v.obj.fields {
		keys[i] = f.key
	}
	return keys
}

// Fields invokes f for every field of an object, in key order, until f
// returns false.
func (v Value) Fields(f func(key string, val Value) bool) {
	if v.kind != KindObject {
		return
	}
	for _, field := range v.obj.fields {
		if !f(field.key, field.val) {
			return
		}
	}
}

// Elements invokes f for every element of an array, in order, until f
// returns false.
func (v Value) Elements(f func(i int, elem Value) bool) {
	if v.kind != KindArray {
		return
	}
	for i, e := range v.arr.elems {
		if !f(i, e) {
			return
		}
	}
}

// Interface returns a detached deep copy of v using the Go types of
// encoding/json: nil, bool, float64, string, []interface{},
// map[string]interface{}. Mutating the result does not affect v.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]interface{}, len(v.arr.elems))
		for i, e := range v.arr.elems {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.obj.fields))
		for _, f := range v.obj.fields {
			out[f.key] = f.val.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports structural equality: same kind and same content, with
// object fields compared by key and array elements in order.
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
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindArray:
		if v.arr == o.arr {
			return true
		}
		if len(v.arr.elems) != len(o.arr.elems) {
			return false
		}
		for i := range v.arr.elems {
			if !v.arr.elems[i].Equal(o.arr.elems[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if v.obj == o.obj {
			return true
		}
		if len(v.obj.fields) != len(o.obj.fields) {
			return false
		}
		for i := range v.obj.fields {
			if v.obj.fields[i].key != o.obj.fields[i].key {
				return false
			}
			if !v.obj.fields[i].val.Equal(o.obj.fields[i].val) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders v as canonical JSON text, mostly for debugging.
func (v Value) String() string {
	b, err := appendValueJSON(nil, v)
	if err != nil {
		return fmt.Sprintf("!%v", err)
	}
	return string(b)
}

// identityKey returns a comparable key for the hint caches: composite
// values are keyed by their shared backing pointer, primitives by
// content. The second result distinguishes the two, since primitive
// hints survive across distinct but equal Values and identity hints do
// not.
func (v Value) identityKey() (interface{}, bool) {
	switch v.kind {
	case KindArray:
		return v.arr, true
	case KindObject:
		return v.obj, true
	default:
		return v, false
	}
}
