package document

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Kind identifies which variant of the JSON union a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
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
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one node of a JSON document.
// The concrete types are Null, Bool, Number, String, List and Map.
type Value interface {
	Kind() Kind
}

// Null is the JSON null literal.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number kept in its textual form so that values survive
// a load/persist cycle without float reformatting.
type Number string

// String is a JSON string.
type String string

// List is an ordered JSON array.
type List []Value

// Map is a JSON object. A document root is always a Map.
type Map map[string]Value

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (List) Kind() Kind   { return KindList }
func (Map) Kind() Kind    { return KindMap }

// MarshalJSON writes the null literal.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON writes the number text unquoted.
func (n Number) MarshalJSON() ([]byte, error) {
	if !isNumberText(string(n)) {
		return nil, fmt.Errorf("document: invalid number %q", string(n))
	}
	return []byte(n), nil
}

// MarshalJSON writes a nil Map as an empty object rather than null.
func (m Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(m))
}

// MarshalJSON writes a nil List as an empty array rather than null.
func (l List) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(l))
}

// Int64 returns the number as an integer when it has no fractional part.
func (n Number) Int64() (int64, error) {
	return strconv.ParseInt(string(n), 10, 64)
}

// Float64 returns the number as a float.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

func isNumberText(s string) bool {
	if s == "" {
		return false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}

// FromAny converts a plain Go value into the tagged union. Maps, slices and
// structs that are not already Values take a JSON round trip.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case json.Number:
		if !isNumberText(string(v)) {
			return nil, fmt.Errorf("document: invalid number %q", string(v))
		}
		return Number(v), nil
	case int:
		return Number(strconv.FormatInt(int64(v), 10)), nil
	case int8:
		return Number(strconv.FormatInt(int64(v), 10)), nil
	case int16:
		return Number(strconv.FormatInt(int64(v), 10)), nil
	case int32:
		return Number(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return Number(strconv.FormatInt(v, 10)), nil
	case uint:
		return Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint8:
		return Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint16:
		return Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint32:
		return Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint64:
		return Number(strconv.FormatUint(v, 10)), nil
	case float32:
		return fromFloat(float64(v), 32)
	case float64:
		return fromFloat(v, 64)
	case []any:
		list := make(List, len(v))
		for i, item := range v {
			conv, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			list[i] = conv
		}
		return list, nil
	case map[string]any:
		m := make(Map, len(v))
		for key, item := range v {
			conv, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			m[key] = conv
		}
		return m, nil
	}

	if rv := reflect.ValueOf(x); (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice) && rv.IsNil() {
		return Null{}, nil
	}

	data, err := json.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("document: convert %T: %w", x, err)
	}
	return Unmarshal(data)
}

func fromFloat(f float64, bits int) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("document: unsupported number %v", f)
	}
	return Number(strconv.FormatFloat(f, 'f', -1, bits)), nil
}

// Plain converts v back into untyped Go values: nil, bool, int64 or float64,
// string, []any and map[string]any. Used by encoders that do not know the
// union types, such as YAML.
func Plain(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return string(t)
	case String:
		return string(t)
	case List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Plain(item)
		}
		return out
	case Map:
		out := make(map[string]any, len(t))
		for key, item := range t {
			out[key] = Plain(item)
		}
		return out
	default:
		return nil
	}
}
