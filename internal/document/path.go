package document

import "strings"

// Separator splits a key path into segments.
const Separator = "."

// Split breaks a key path into its segments. Every segment, including an
// empty one, names exactly one mapping key.
func Split(keyPath string) []string {
	return strings.Split(keyPath, Separator)
}

// Lookup is the result of reading a key path. Absence is a normal outcome,
// not an error.
type Lookup struct {
	Value Value
	Found bool
}

// NotFound is the Lookup for a path that does not resolve.
var NotFound = Lookup{}

// Found wraps a resolved value.
func Found(v Value) Lookup {
	return Lookup{Value: v, Found: true}
}

// Lookup walks keyPath from m. An empty path yields m itself. Traversal
// stops as soon as the current value is not a Map.
func (m Map) Lookup(keyPath string) Lookup {
	if keyPath == "" {
		return Found(m)
	}

	var current Value = m
	for _, segment := range Split(keyPath) {
		node, ok := current.(Map)
		if !ok {
			return NotFound
		}
		next, ok := node[segment]
		if !ok {
			return NotFound
		}
		current = next
	}
	return Found(current)
}

// Set writes v at keyPath, creating intermediate maps as needed. An
// intermediate that exists but is not a Map is replaced by an empty Map.
// m must not be nil.
func (m Map) Set(keyPath string, v Value) {
	if v == nil {
		v = Null{}
	}

	segments := Split(keyPath)
	current := m
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(Map)
		if !ok || next == nil {
			next = Map{}
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = v
}

// Delete removes the final key of keyPath from the map it resolves to.
// It reports false, leaving m untouched, when an intermediate segment is
// missing or not a Map or the final key is absent.
func (m Map) Delete(keyPath string) bool {
	segments := Split(keyPath)
	current := m
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(Map)
		if !ok || next == nil {
			return false
		}
		current = next
	}
	leaf := segments[len(segments)-1]
	if _, ok := current[leaf]; !ok {
		return false
	}
	delete(current, leaf)
	return true
}
