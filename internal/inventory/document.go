package inventory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is a schema-opaque JSON object. Its shape is controlled by the
// external provisioner or evaluator that produced it, so consumers address
// into it with dotted paths instead of struct decoding.
type Document map[string]any

// ParseDocument decodes a JSON object.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Get resolves a dotted path ("nodes.web1.ip"). The bool is false when any
// segment is missing or a non-object is traversed.
func (d Document) Get(path string) (Value, bool) {
	var cur any = map[string]any(d)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return Value{}, false
		}
		cur, ok = m[seg]
		if !ok {
			return Value{}, false
		}
	}
	return Value{v: cur}, true
}

// Value is one node of a Document with typed accessors. Accessors return
// the zero value on type mismatch; callers that need to distinguish use
// the ok-returning variants.
type Value struct {
	v any
}

func (v Value) String() string {
	s, _ := v.v.(string)
	return s
}

func (v Value) StringOK() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

func (v Value) Int() int {
	// JSON numbers decode as float64.
	f, _ := v.v.(float64)
	return int(f)
}

func (v Value) Bool() bool {
	b, _ := v.v.(bool)
	return b
}

func (v Value) Map() map[string]any {
	m, _ := v.v.(map[string]any)
	return m
}

func (v Value) Slice() []any {
	s, _ := v.v.([]any)
	return s
}

// Strings returns the value as a string slice, ignoring non-string items.
func (v Value) Strings() []string {
	items := v.Slice()
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Raw exposes the underlying decoded value.
func (v Value) Raw() any { return v.v }
