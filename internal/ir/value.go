package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface representing an attribute value in the ledger.
// Only Null, String, Int, and Bool implement this.
// NO floats - attribute values are stored as JSON-compatible scalars.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an empty or absent attribute.
type Null struct{}

func (Null) value() {}

// String represents a text attribute.
type String string

func (String) value() {}

// Int represents an integer attribute.
type Int int64

func (Int) value() {}

// Bool represents a boolean attribute.
type Bool bool

func (Bool) value() {}

// IsEmpty reports whether v is empty or absent.
// A nil Value, Null, and a blank String are all empty.
func IsEmpty(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case String:
		return strings.TrimSpace(string(val)) == ""
	default:
		return false
	}
}

// Normalize returns the canonical form of v used for comparison and storage.
//
// Strings are NFC normalized and trimmed; an empty string becomes Null so
// that "cleared" has exactly one representation.
func Normalize(v Value) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case String:
		s := strings.TrimSpace(norm.NFC.String(string(val)))
		if s == "" {
			return Null{}
		}
		return String(s)
	default:
		return val
	}
}

// Equal reports whether a and b are the same value after normalization.
func Equal(a, b Value) bool {
	return Normalize(a) == Normalize(b)
}

// Text renders v for display. Null renders as the empty string.
func Text(v Value) string {
	switch val := Normalize(v).(type) {
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		return ""
	}
}

// FromAny converts a decoded Go value (YAML, JSON, flags) to a Value.
// Integral float64 values are accepted since YAML and JSON decoders produce them.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return Normalize(val), nil
	case string:
		return Normalize(String(val)), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case float64:
		if val == float64(int64(val)) {
			return Int(int64(val)), nil
		}
		return nil, fmt.Errorf("floats are not allowed as attribute values: %v", val)
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed as attribute values: %s", val)
		}
		return Int(n), nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type: %T", v)
	}
}

// ParseText interprets command-line text as a Value.
// Integers and booleans are recognized; anything else is a String.
func ParseText(s string) Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n)
	}
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return Normalize(String(s))
}

// MarshalValue encodes v as canonical JSON text for storage.
func MarshalValue(v Value) ([]byte, error) {
	switch val := Normalize(v).(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val))
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes stored JSON text into a Value.
// Floats, arrays, and objects are rejected.
func UnmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Null{}, nil
	}

	switch data[0] {
	case 'n':
		return Null{}, nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return Normalize(String(s)), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case '[', '{':
		return nil, fmt.Errorf("composite values are not allowed: %s", string(data))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed as attribute values: %s", string(data))
		}
		return Int(i), nil
	}
}

// JSONValue converts v to a plain Go value suitable for encoding/json.
func JSONValue(v Value) any {
	switch val := Normalize(v).(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}
