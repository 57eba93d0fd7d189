// Package export renders staged documents as RDF for dry-run review.
package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/semmigrate/entity"
)

// Format specifies the output serialization format.
type Format string

const (
	// FormatTurtle produces Turtle (.ttl) output.
	FormatTurtle Format = "turtle"

	// FormatNTriples produces N-Triples (.nt) output.
	FormatNTriples Format = "ntriples"

	// FormatJSONLD produces JSON-LD (.jsonld) output.
	FormatJSONLD Format = "jsonld"
)

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimPrefix(name, "."))
	for f, spec := range formats {
		if n == string(f) || "."+n == spec.info.Extension {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format: %s", name)
}

const (
	rdfType     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	xsdDate     = "http://www.w3.org/2001/XMLSchema#date"
	xsdDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
)

// Namespace holds the IRI prefixes bundle and field ids are minted under,
// and the prefix for staged items that have no store URI yet.
type Namespace struct {
	Bundle string `yaml:"bundle"`
	Field  string `yaml:"field"`
	Item   string `yaml:"item"`
}

// DefaultNamespace derives the prefixes from the store's base URL.
func DefaultNamespace(base string) Namespace {
	base = strings.TrimRight(base, "/") + "/"
	return Namespace{
		Bundle: base + "bundle/",
		Field:  base + "field/",
		Item:   base + "staged/",
	}
}

type termKind int

const (
	termIRI termKind = iota
	termBlank
	termLiteral
)

type term struct {
	kind     termKind
	value    string
	datatype string
}

type triple struct {
	subject   term
	predicate string
	object    term
}

type subject struct {
	id string
	d  *entity.Descriptor
}

// RDFExporter collects descriptors and serializes them.
type RDFExporter struct {
	ns       Namespace
	subjects []subject
}

// NewRDFExporter creates an exporter minting IRIs under ns.
func NewRDFExporter(ns Namespace) *RDFExporter {
	return &RDFExporter{ns: ns}
}

// AddDescriptor adds d. Its URI is the subject when set; otherwise id is
// minted under the item prefix.
func (e *RDFExporter) AddDescriptor(id string, d *entity.Descriptor) {
	e.subjects = append(e.subjects, subject{id: id, d: d})
}

// AddDocument adds a staged document as an entity of bundle.
func (e *RDFExporter) AddDocument(id, bundle string, doc *entity.Document) {
	e.AddDescriptor(id, doc.Descriptor(bundle))
}

// Len returns the number of top-level subjects.
func (e *RDFExporter) Len() int { return len(e.subjects) }

// Export serializes all entities to the specified format.
func (e *RDFExporter) Export(format Format) (string, error) {
	spec, ok := formats[format]
	if !ok {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	return spec.write(e.ns, e.flatten())
}

// Staged is a staged document and the key its item is minted from.
type Staged struct {
	Key string
	Doc *entity.Document
}

// Render serializes staged documents of bundle in one call.
func Render(ns Namespace, bundle string, docs []Staged, format Format) (string, error) {
	e := NewRDFExporter(ns)
	for _, s := range docs {
		e.AddDocument(s.Key, bundle, s.Doc)
	}
	return e.Export(format)
}

// flatten turns every descriptor into triples. Nested entities become
// blank nodes numbered in encounter order.
func (e *RDFExporter) flatten() [][]triple {
	blanks := 0
	var groups [][]triple

	var walk func(s term, d *entity.Descriptor)
	walk = func(s term, d *entity.Descriptor) {
		group := []triple{{subject: s, predicate: rdfType, object: term{kind: termIRI, value: e.ns.Bundle + d.Bundle}}}
		var nested []struct {
			s term
			d *entity.Descriptor
		}

		for _, field := range sortedFields(d) {
			p := e.ns.Field + field
			for _, v := range d.Get(field) {
				switch {
				case v.IsNested():
					blanks++
					b := term{kind: termBlank, value: fmt.Sprintf("b%d", blanks)}
					group = append(group, triple{subject: s, predicate: p, object: b})
					nested = append(nested, struct {
						s term
						d *entity.Descriptor
					}{b, v.Entity})
				case v.IsRef():
					group = append(group, triple{subject: s, predicate: p, object: term{kind: termIRI, value: v.Text}})
				default:
					group = append(group, triple{subject: s, predicate: p, object: literal(v.Text)})
				}
			}
		}
		groups = append(groups, group)
		for _, n := range nested {
			walk(n.s, n.d)
		}
	}

	for _, sub := range e.subjects {
		iri := sub.d.URI
		if iri == "" {
			iri = e.ns.Item + sub.id
		}
		walk(term{kind: termIRI, value: iri}, sub.d)
	}
	return groups
}

func sortedFields(d *entity.Descriptor) []string {
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// literal types calendar dates and timestamps; everything else is a plain
// string.
func literal(s string) term {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return term{kind: termLiteral, value: s, datatype: xsdDate}
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return term{kind: termLiteral, value: s, datatype: xsdDateTime}
	}
	return term{kind: termLiteral, value: s}
}

// formatTerm formats a term for Turtle and N-Triples output.
func formatTerm(t term) string {
	switch t.kind {
	case termIRI:
		return fmt.Sprintf("<%s>", t.value)
	case termBlank:
		return "_:" + t.value
	}
	if t.datatype != "" {
		return fmt.Sprintf("\"%s\"^^<%s>", escapeString(t.value), t.datatype)
	}
	return fmt.Sprintf("\"%s\"", escapeString(t.value))
}

func formatSubjectJSONLD(t term) string {
	if t.kind == termBlank {
		return "_:" + t.value
	}
	return t.value
}

// formatObjectJSONLD formats an object value for JSON-LD output.
func formatObjectJSONLD(t term) any {
	switch t.kind {
	case termIRI:
		return map[string]string{"@id": t.value}
	case termBlank:
		return map[string]string{"@id": "_:" + t.value}
	}
	if t.datatype != "" {
		return map[string]string{"@value": t.value, "@type": t.datatype}
	}
	return t.value
}

// escapeString escapes special characters in strings for RDF serialization.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
