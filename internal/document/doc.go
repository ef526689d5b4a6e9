// Package document models the JSON documents kept by varstore and the
// dot-path operations applied to them.
//
// A document is a Map at the root. Values are a closed union:
//
//	Null | Bool | Number | String | List | Map
//
// Traversal code switches on the concrete type and only ever descends into
// a Map. Lists are leaves as far as key paths are concerned.
//
// Key paths are split on "." and each segment names one mapping key:
//
//	doc := document.Map{}
//	doc.Set("user.name", document.String("Alice"))
//	doc.Lookup("user.name")  // Found(String("Alice"))
//	doc.Lookup("user.age")   // NotFound
//	doc.Delete("user.name")  // true
//
// Set replaces any non-Map intermediate with an empty Map, so setting
// "a.b" on {"a": 5} yields {"a": {"b": ...}}. Delete through a missing or
// non-Map intermediate is a no-op and reports false.
//
// Numbers keep their source text. Encoding always writes maps with sorted
// keys and two-space indentation.
package document
