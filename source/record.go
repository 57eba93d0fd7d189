// Package source reads migration records: MongoDB documents, easydb CSV
// export rows, and tab-separated authority lists.
package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// Record is one source document: top-level fields in source order, with
// values normalized to string, float64, bool, nil, []any and map[string]any.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// RecordFromMap builds a record from m with keys in sorted order.
func RecordFromMap(m map[string]any) *Record {
	r := NewRecord()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// Set writes a top-level field.
func (r *Record) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = normalize(value)
}

// Keys returns the top-level field names in source order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Map returns the record as a plain map. The map shares nested values with r.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Get returns the value at a dotted path ("location.origin"). A top-level
// key containing dots is matched before the path is split.
func (r *Record) Get(path string) (any, bool) {
	if v, ok := r.values[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	cur, ok := r.values[parts[0]]
	if !ok {
		return nil, false
	}
	for _, p := range parts[1:] {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the scalar at path as trimmed text. Absent, null and NaN
// values are empty.
func (r *Record) String(path string) string {
	v, _ := r.Get(path)
	return Text(v)
}

// Strings returns the non-empty strings at path. A scalar yields one
// element; a list yields its non-empty scalar elements in order.
func (r *Record) Strings(path string) []string {
	v, _ := r.Get(path)
	return Texts(v)
}

// List returns the list at path. A non-null scalar is a one-element list.
func (r *Record) List(path string) []any {
	v, ok := r.Get(path)
	if !ok || v == nil {
		return nil
	}
	if l, isList := v.([]any); isList {
		return l
	}
	return []any{v}
}

// Object returns the object at path, or nil.
func (r *Record) Object(path string) map[string]any {
	v, _ := r.Get(path)
	m, _ := v.(map[string]any)
	return m
}

// Search evaluates a JMESPath expression against the record.
func (r *Record) Search(expr string) (any, error) {
	v, err := jmespath.Search(expr, r.Map())
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", expr, err)
	}
	return v, nil
}

// MarshalJSON encodes the record as an object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping top-level field order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record must be a JSON object")
	}
	*r = *NewRecord()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

// Text converts a scalar to trimmed text. Lists, objects, null and NaN are
// empty.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

// Texts converts a scalar or a list of scalars to non-empty texts.
func Texts(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s := Text(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := Text(x); s != "" {
			return []string{s}
		}
		return nil
	}
}

// normalize converts common Go shapes into the record's value model.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, float64, bool:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out
	case *Record:
		return x.Map()
	default:
		return fmt.Sprint(x)
	}
}
