package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// SearchValueSlot is the slot name used by positional (single-value) templates.
const SearchValueSlot = "search_value"

// ErrMalformedKey is returned when a lookup key does not fit its template:
// a slot has no value, or the template itself is not well formed. It is a
// programming error and must never be treated as "not found".
var ErrMalformedKey = errors.New("malformed lookup key")

// Format fills the {name} slots of a query template. "{{" and "}}" are
// literal braces, as SPARQL group patterns need them. Every slot must have a
// value; values are escaped for use inside SPARQL string literals.
func Format(template string, values map[string]string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(template) + 32)

	for i := 0; i < len(template); i++ {
		ch := template[i]
		switch ch {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed slot at offset %d", ErrMalformedKey, i)
			}
			name := template[i+1 : i+1+end]
			if !validSlotName(name) {
				return "", fmt.Errorf("%w: invalid slot name %q", ErrMalformedKey, name)
			}
			v, ok := values[name]
			if !ok {
				return "", fmt.Errorf("%w: no value for slot %q", ErrMalformedKey, name)
			}
			sb.WriteString(EscapeLiteral(v))
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: stray '}' at offset %d", ErrMalformedKey, i)
		default:
			sb.WriteByte(ch)
		}
	}

	return sb.String(), nil
}

// Slots returns the slot names used by a template, in order of first use.
func Slots(template string) ([]string, error) {
	seen := map[string]bool{}
	var slots []string
	for i := 0; i < len(template); i++ {
		switch template[i] {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed slot at offset %d", ErrMalformedKey, i)
			}
			name := template[i+1 : i+1+end]
			if !validSlotName(name) {
				return nil, fmt.Errorf("%w: invalid slot name %q", ErrMalformedKey, name)
			}
			if !seen[name] {
				seen[name] = true
				slots = append(slots, name)
			}
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				i++
				continue
			}
			return nil, fmt.Errorf("%w: stray '}' at offset %d", ErrMalformedKey, i)
		}
	}
	return slots, nil
}

func validSlotName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
)

// EscapeLiteral escapes s for use inside a quoted SPARQL string literal.
func EscapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
