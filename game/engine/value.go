package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind is the closed set of attribute value variants
type ValueKind string

const (
	KindInt    ValueKind = "int"
	KindString ValueKind = "string"
	KindBool   ValueKind = "bool"
	KindRef    ValueKind = "ref"
)

// Valid reports whether k is a known value kind
func (k ValueKind) Valid() bool {
	switch k {
	case KindInt, KindString, KindBool, KindRef:
		return true
	}
	return false
}

// Value is a tagged attribute or payload value. The zero Value has no kind.
type Value struct {
	kind ValueKind
	i    int64
	s    string
	b    bool
}

// IntValue builds an integer value
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// StringValue builds a string value
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// BoolValue builds a boolean value
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// RefValue builds a reference to another entity in the same state
func RefValue(id EntityID) Value { return Value{kind: KindRef, s: string(id)} }

// Kind returns the variant tag
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v carries no value
func (v Value) IsZero() bool { return v.kind == "" }

// Int returns the integer payload, or 0 for other kinds
func (v Value) Int() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// Str returns the string payload, or "" for other kinds
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Bool returns the boolean payload, or false for other kinds
func (v Value) Bool() bool {
	return v.kind == KindBool && v.b
}

// Ref returns the referenced entity id, or "" for other kinds
func (v Value) Ref() EntityID {
	if v.kind != KindRef {
		return ""
	}
	return EntityID(v.s)
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return strconv.Quote(v.s)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindRef:
		return "&" + v.s
	}
	return "<nil>"
}

// MarshalJSON encodes the value as a single-key object naming its kind,
// e.g. {"int":3} or {"ref":"car-1"}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(map[string]int64{string(KindInt): v.i})
	case KindString:
		return json.Marshal(map[string]string{string(KindString): v.s})
	case KindBool:
		return json.Marshal(map[string]bool{string(KindBool): v.b})
	case KindRef:
		return json.Marshal(map[string]string{string(KindRef): v.s})
	}
	return nil, fmt.Errorf("cannot encode value without kind")
}

// UnmarshalJSON decodes the single-key object form written by MarshalJSON
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("value must be an object: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("value must have exactly one kind key, got %d", len(raw))
	}
	for key, body := range raw {
		switch ValueKind(key) {
		case KindInt:
			var i int64
			if err := json.Unmarshal(body, &i); err != nil {
				return fmt.Errorf("int value: %w", err)
			}
			*v = IntValue(i)
		case KindString:
			var s string
			if err := json.Unmarshal(body, &s); err != nil {
				return fmt.Errorf("string value: %w", err)
			}
			*v = StringValue(s)
		case KindBool:
			var b bool
			if err := json.Unmarshal(body, &b); err != nil {
				return fmt.Errorf("bool value: %w", err)
			}
			*v = BoolValue(b)
		case KindRef:
			var s string
			if err := json.Unmarshal(body, &s); err != nil {
				return fmt.Errorf("ref value: %w", err)
			}
			if s == "" {
				return fmt.Errorf("ref value must not be empty")
			}
			*v = RefValue(EntityID(s))
		default:
			return fmt.Errorf("unknown value kind %q", key)
		}
	}
	return nil
}
