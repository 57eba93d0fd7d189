// Package entity defines the descriptors sent to the graph store and the
// per-record staging document assembled before upload.
package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValueKind distinguishes the three kinds of field values.
type ValueKind int

const (
	// KindLiteral is a plain string value.
	KindLiteral ValueKind = iota
	// KindRef is the URI of an existing graph entity.
	KindRef
	// KindNested is a new entity created together with its parent.
	KindNested
)

// Value is one entry of a field's value list.
type Value struct {
	Kind   ValueKind
	Text   string
	Entity *Descriptor
}

// Literal returns a literal value.
func Literal(s string) Value { return Value{Kind: KindLiteral, Text: s} }

// Ref returns a reference to an existing entity.
func Ref(uri string) Value { return Value{Kind: KindRef, Text: uri} }

// Nested returns a value holding a new entity.
func Nested(d *Descriptor) Value { return Value{Kind: KindNested, Entity: d} }

// Literals converts strings to literal values.
func Literals(ss ...string) []Value {
	out := make([]Value, 0, len(ss))
	for _, s := range ss {
		out = append(out, Literal(s))
	}
	return out
}

// IsRef reports whether v references an existing entity.
func (v Value) IsRef() bool { return v.Kind == KindRef }

// IsNested reports whether v holds a new entity.
func (v Value) IsNested() bool { return v.Kind == KindNested && v.Entity != nil }

func (v Value) String() string {
	switch v.Kind {
	case KindRef:
		return "<" + v.Text + ">"
	case KindNested:
		if v.Entity == nil {
			return "{}"
		}
		return v.Entity.String()
	default:
		return fmt.Sprintf("%q", v.Text)
	}
}

// MarshalJSON encodes literals and references as strings and nested
// entities as objects, which is the shape the store API accepts.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindNested {
		return json.Marshal(v.Entity)
	}
	return json.Marshal(v.Text)
}

// UnmarshalJSON decodes a store value. Strings with an http(s) scheme are
// read back as references.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var d Descriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		*v = Nested(&d)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("field value must be a string or an object: %w", err)
	}
	if LooksLikeURI(s) {
		*v = Ref(s)
	} else {
		*v = Literal(s)
	}
	return nil
}

// LooksLikeURI reports whether s is an absolute http(s) URI.
func LooksLikeURI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Descriptor is one graph node: a bundle id, the field values, and the URI
// of the entity when it already exists in the store.
type Descriptor struct {
	Bundle string             `json:"bundle"`
	URI    string             `json:"uri,omitempty"`
	Fields map[string][]Value `json:"fields"`
}

// NewDescriptor creates an empty descriptor for bundle.
func NewDescriptor(bundle string) *Descriptor {
	return &Descriptor{Bundle: bundle, Fields: make(map[string][]Value)}
}

// Set replaces the values of field. Empty values remove the field.
func (d *Descriptor) Set(field string, values ...Value) *Descriptor {
	if d.Fields == nil {
		d.Fields = make(map[string][]Value)
	}
	if len(values) == 0 {
		delete(d.Fields, field)
		return d
	}
	d.Fields[field] = append([]Value(nil), values...)
	return d
}

// Add appends values to field.
func (d *Descriptor) Add(field string, values ...Value) *Descriptor {
	if len(values) == 0 {
		return d
	}
	if d.Fields == nil {
		d.Fields = make(map[string][]Value)
	}
	d.Fields[field] = append(d.Fields[field], values...)
	return d
}

// Get returns the values of field.
func (d *Descriptor) Get(field string) []Value {
	return d.Fields[field]
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	out := &Descriptor{Bundle: d.Bundle, URI: d.URI, Fields: make(map[string][]Value, len(d.Fields))}
	for k, vs := range d.Fields {
		out.Fields[k] = cloneValues(vs)
	}
	return out
}

func (d *Descriptor) String() string {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("descriptor(%s)", d.Bundle)
	}
	return string(data)
}

func cloneValues(vs []Value) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = v
		if v.Entity != nil {
			out[i].Entity = v.Entity.Clone()
		}
	}
	return out
}
