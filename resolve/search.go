package resolve

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/semmigrate/catalog"
)

// Mode selects how a search value is substituted into a query template.
type Mode int

const (
	// Positional fills the single {search_value} slot.
	Positional Mode = iota
	// Conditional fills named slots from a composite search value.
	Conditional
)

func (m Mode) String() string {
	if m == Conditional {
		return "conditional"
	}
	return "positional"
}

// Search is a scalar or composite search value. Composite values are kept
// in a canonical form, so two composites with the same names and values
// are equal regardless of construction order. Search is comparable and can
// be used as a map key.
type Search struct {
	composite bool
	canon     string
}

// Scalar returns a single-value search.
func Scalar(v string) Search {
	return Search{canon: v}
}

// Composite returns a named-tuple search such as {level_0, level_1} or
// {term, authority}.
func Composite(values map[string]string) Search {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	pairs := make([][2]string, 0, len(names))
	for _, k := range names {
		pairs = append(pairs, [2]string{k, values[k]})
	}
	data, _ := json.Marshal(pairs)
	return Search{composite: true, canon: string(data)}
}

// IsComposite reports whether s is a named tuple.
func (s Search) IsComposite() bool { return s.composite }

// Values returns the slot values for template substitution. A scalar fills
// the search_value slot.
func (s Search) Values() map[string]string {
	if !s.composite {
		return map[string]string{catalog.SearchValueSlot: s.canon}
	}
	var pairs [][2]string
	_ = json.Unmarshal([]byte(s.canon), &pairs)
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p[0]] = p[1]
	}
	return out
}

func (s Search) String() string {
	if !s.composite {
		return s.canon
	}
	vals := s.Values()
	names := make([]string, 0, len(vals))
	for k := range vals {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%q", k, vals[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalText encodes s for persistence. Scalars are prefixed "s:" and
// composites "c:".
func (s Search) MarshalText() ([]byte, error) {
	if s.composite {
		return []byte("c:" + s.canon), nil
	}
	return []byte("s:" + s.canon), nil
}

// UnmarshalText decodes the form written by MarshalText.
func (s *Search) UnmarshalText(data []byte) error {
	text := string(data)
	switch {
	case strings.HasPrefix(text, "s:"):
		*s = Search{canon: text[2:]}
	case strings.HasPrefix(text, "c:"):
		var pairs [][2]string
		if err := json.Unmarshal([]byte(text[2:]), &pairs); err != nil {
			return fmt.Errorf("decode composite search: %w", err)
		}
		*s = Search{composite: true, canon: text[2:]}
	default:
		return fmt.Errorf("invalid search encoding %q", text)
	}
	return nil
}

// Key identifies one cached resolution.
type Key struct {
	Template string `json:"template"`
	Search   Search `json:"search"`
}

func (k Key) String() string {
	return k.Template + ":" + k.Search.String()
}

// Resolution is the outcome of a lookup: a reference, or an explicit miss.
type Resolution struct {
	Ref   string `json:"ref,omitempty"`
	Found bool   `json:"found"`
}

// Found returns a successful resolution.
func Found(ref string) Resolution { return Resolution{Ref: ref, Found: true} }

// NotFound is a definitive miss.
var NotFound = Resolution{}
