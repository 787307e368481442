// Package jsonval implements an untyped JSON value tree shared by the
// ControllerConfig decoder and the Store cache, so both can carry
// plugin-opaque payloads without tying the framework to a concrete schema.
package jsonval

import (
	"encoding/json"
	"fmt"
)

// Kind tags the concrete shape held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a tagged-union node: exactly one of the typed fields is
// meaningful, selected by Kind. Plugins extract typed views on demand via
// the As* helpers instead of type-asserting interface{}.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Str    string
	Arr    []Value
	Obj    map[string]Value
}

// Null is the zero Value with Kind explicitly set for readability at call
// sites.
func Null() Value { return Value{Kind: KindNull} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

func String(s string) Value { return Value{Kind: KindString, Str: s} }

func Array(v []Value) Value { return Value{Kind: KindArray, Arr: v} }

func Object(v map[string]Value) Value { return Value{Kind: KindObject, Obj: v} }

// FromAny converts a generic decoded value (as produced by encoding/json or
// gopkg.in/yaml.v3 via its native map[string]interface{}/[]interface{}
// shapes) into a Value tree.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case string:
		return String(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, item := range t {
			out[i] = FromAny(item)
		}
		return Array(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, item := range t {
			out[k] = FromAny(item)
		}
		return Object(out)
	case map[interface{}]interface{}:
		// yaml.v2-style untyped maps, normalized to string keys.
		out := make(map[string]Value, len(t))
		for k, item := range t {
			out[fmt.Sprintf("%v", k)] = FromAny(item)
		}
		return Object(out)
	default:
		return Null()
	}
}

// ParseJSON decodes a JSON-encoded string into a Value.
func ParseJSON(s string) (Value, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Value{}, err
	}
	return FromAny(raw), nil
}

// Encode marshals the Value back to its Go-native representation, suitable
// for json.Marshal.
func (v Value) Encode() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.Str
	case KindArray:
		out := make([]interface{}, len(v.Arr))
		for i, item := range v.Arr {
			out[i] = item.Encode()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Obj))
		for k, item := range v.Obj {
			out[k] = item.Encode()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON lets a Value be used directly wherever encoding/json expects
// a Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Encode())
}

// UnmarshalJSON lets a Value be decoded directly from a JSON document.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Field returns the named field of an object Value, or Null if v is not an
// object or the key is absent.
func (v Value) Field(key string) Value {
	if v.Kind != KindObject {
		return Null()
	}
	if val, ok := v.Obj[key]; ok {
		return val
	}
	return Null()
}

// AsBool returns the bool view of v, defaulting to def if v is not a bool.
func (v Value) AsBool(def bool) bool {
	if v.Kind == KindBool {
		return v.Bool
	}
	return def
}

// AsString returns the string view of v, defaulting to def if v is not a
// string.
func (v Value) AsString(def string) string {
	if v.Kind == KindString {
		return v.Str
	}
	return def
}

// IsNull reports whether v is absent/null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports deep equality up to JSON equivalence (number types and map
// ordering are not significant).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Number == b.Number
	case KindString:
		return a.Str == b.Str
	case KindArray:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !Equal(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.Obj) != len(b.Obj) {
			return false
		}
		for k, av := range a.Obj {
			bv, ok := b.Obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}
