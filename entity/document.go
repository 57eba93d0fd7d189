package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the staging document of one record: field or bundle id to
// values, in the order the keys were first written, plus the data-quality
// warnings raised while building it.
type Document struct {
	keys     []string
	fields   map[string][]Value
	Warnings []string
	// Fallbacks names the lookup templates whose misses were answered with
	// new entities. Cached misses for them are stale once the record is saved.
	Fallbacks []string
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{fields: make(map[string][]Value)}
}

// Set replaces the values under key. Writing no values is a no-op, so an
// absent source value never produces a key.
func (d *Document) Set(key string, values ...Value) {
	if len(values) == 0 {
		return
	}
	if _, ok := d.fields[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.fields[key] = append([]Value(nil), values...)
}

// Append adds values under key, preserving order.
func (d *Document) Append(key string, values ...Value) {
	if len(values) == 0 {
		return
	}
	if _, ok := d.fields[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.fields[key] = append(d.fields[key], values...)
}

// Get returns the values under key.
func (d *Document) Get(key string) ([]Value, bool) {
	vs, ok := d.fields[key]
	return vs, ok
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.fields[key]
	return ok
}

// Delete removes key.
func (d *Document) Delete(key string) {
	if _, ok := d.fields[key]; !ok {
		return
	}
	delete(d.fields, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len returns the number of keys.
func (d *Document) Len() int { return len(d.keys) }

// Warn records a data-quality warning.
func (d *Document) Warn(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// NoteFallback records that a miss under template produced a new entity.
func (d *Document) NoteFallback(template string) {
	for _, t := range d.Fallbacks {
		if t == template {
			return
		}
	}
	d.Fallbacks = append(d.Fallbacks, template)
}

// Merge copies every key of other into d, replacing existing values, and
// appends other's warnings.
func (d *Document) Merge(other *Document) {
	for _, k := range other.keys {
		d.Set(k, other.fields[k]...)
	}
	d.Warnings = append(d.Warnings, other.Warnings...)
	for _, t := range other.Fallbacks {
		d.NoteFallback(t)
	}
}

// Descriptor converts the document into a descriptor for bundle. The
// document is copied; later changes to it do not affect the descriptor.
func (d *Document) Descriptor(bundle string) *Descriptor {
	out := NewDescriptor(bundle)
	for _, k := range d.keys {
		out.Fields[k] = cloneValues(d.fields[k])
	}
	return out
}

// MarshalJSON encodes the fields as an object in key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
