package export

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// writer serializes the subject groups produced by flatten.
type writer func(ns Namespace, groups [][]triple) (string, error)

type formatSpec struct {
	info  FormatInfo
	write writer
}

var formats = map[Format]formatSpec{
	FormatTurtle: {
		info: FormatInfo{
			Name:        FormatTurtle,
			MIMEType:    "text/turtle",
			Extension:   ".ttl",
			Description: "Turtle - Terse RDF Triple Language",
		},
		write: writeTurtle,
	},
	FormatNTriples: {
		info: FormatInfo{
			Name:        FormatNTriples,
			MIMEType:    "application/n-triples",
			Extension:   ".nt",
			Description: "N-Triples - Line-based RDF format",
		},
		write: writeNTriples,
	},
	FormatJSONLD: {
		info: FormatInfo{
			Name:        FormatJSONLD,
			MIMEType:    "application/ld+json",
			Extension:   ".jsonld",
			Description: "JSON-LD - JSON for Linked Data",
		},
		write: writeJSONLD,
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	spec, ok := formats[format]
	return spec.info, ok
}

// turtlePrefixes are declared at the top of every Turtle document, in order.
var turtlePrefixes = [][2]string{
	{"rdf", "http://www.w3.org/1999/02/22-rdf-syntax-ns#"},
	{"xsd", "http://www.w3.org/2001/XMLSchema#"},
}

// writeTurtle writes one block per subject. The type assertion opens the
// block as "a <bundle>".
func writeTurtle(_ Namespace, groups [][]triple) (string, error) {
	var sb strings.Builder
	for _, p := range turtlePrefixes {
		fmt.Fprintf(&sb, "@prefix %s: <%s> .\n", p[0], p[1])
	}
	sb.WriteString("\n")

	for _, group := range groups {
		sb.WriteString(formatTerm(group[0].subject) + "\n")
		for i, t := range group {
			terminator := " ;"
			if i == len(group)-1 {
				terminator = " ."
			}
			if t.predicate == rdfType {
				fmt.Fprintf(&sb, "    a %s%s\n", formatTerm(t.object), terminator)
				continue
			}
			fmt.Fprintf(&sb, "    <%s> %s%s\n", t.predicate, formatTerm(t.object), terminator)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func writeNTriples(_ Namespace, groups [][]triple) (string, error) {
	var sb strings.Builder
	for _, group := range groups {
		for _, t := range group {
			fmt.Fprintf(&sb, "%s <%s> %s .\n", formatTerm(t.subject), t.predicate, formatTerm(t.object))
		}
	}
	return sb.String(), nil
}

// jsonldNode is one subject of the @graph. Fields become predicate keys
// next to @id and @type.
type jsonldNode struct {
	id         string
	types      []string
	properties map[string][]any
}

func (n jsonldNode) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.properties)+2)
	m["@id"] = n.id
	if len(n.types) > 0 {
		m["@type"] = n.types
	}
	for k, v := range n.properties {
		m[k] = v
	}
	return json.Marshal(m)
}

// writeJSONLD writes a single document with a shared @context and one
// @graph node per subject group.
func writeJSONLD(ns Namespace, groups [][]triple) (string, error) {
	doc := struct {
		Context map[string]string `json:"@context"`
		Graph   []jsonldNode      `json:"@graph"`
	}{
		Context: map[string]string{
			"xsd":    "http://www.w3.org/2001/XMLSchema#",
			"bundle": ns.Bundle,
			"field":  ns.Field,
		},
		Graph: make([]jsonldNode, 0, len(groups)),
	}

	for _, group := range groups {
		node := jsonldNode{
			id:         formatSubjectJSONLD(group[0].subject),
			properties: make(map[string][]any),
		}
		for _, t := range group {
			if t.predicate == rdfType {
				node.types = append(node.types, t.object.value)
				continue
			}
			node.properties[t.predicate] = append(node.properties[t.predicate], formatObjectJSONLD(t.object))
		}
		doc.Graph = append(doc.Graph, node)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal JSON-LD: %w", err)
	}
	return string(data), nil
}
