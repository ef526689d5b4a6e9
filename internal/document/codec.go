package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotMap is returned when a document root decodes to something other
// than a JSON object.
var ErrNotMap = errors.New("document root is not an object")

// Decode reads exactly one JSON value from r.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	return fromDecoded(raw), nil
}

// Unmarshal parses data as a single JSON value.
func Unmarshal(data []byte) (Value, error) {
	return Decode(bytes.NewReader(data))
}

// UnmarshalMap parses data as a document, which must be a JSON object.
func UnmarshalMap(data []byte) (Map, error) {
	v, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(Map)
	if !ok {
		return nil, fmt.Errorf("%w (got %s)", ErrNotMap, v.Kind())
	}
	return m, nil
}

// MarshalIndent renders a document as two-space indented JSON.
func MarshalIndent(m Map) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// fromDecoded maps the output of a UseNumber decoder onto the union.
func fromDecoded(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null{}
	case bool:
		return Bool(v)
	case json.Number:
		return Number(v)
	case string:
		return String(v)
	case []any:
		list := make(List, len(v))
		for i, item := range v {
			list[i] = fromDecoded(item)
		}
		return list
	case map[string]any:
		m := make(Map, len(v))
		for key, item := range v {
			m[key] = fromDecoded(item)
		}
		return m
	default:
		return Null{}
	}
}
