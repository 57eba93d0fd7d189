// Package fallback builds new controlled-vocabulary entities for values the
// resolver could not find.
package fallback

import (
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/entity"
)

// Kind is a fallback entity kind.
type Kind int

const (
	Language Kind = iota
	Region
	Subregion
	Genre
	Tag
	Sponsor
	Place
	Audience
)

// ErrQualifierRequired is returned when a kind that needs a qualifier is
// built without one.
var ErrQualifierRequired = errors.New("qualifier required")

// kindSpec is the catalog configuration of a kind. Qualifiers are filled
// positionally; when required is false they may all be omitted.
type kindSpec struct {
	name       string
	bundle     string
	field      string
	qualifiers []string
	required   bool
}

var kinds = [...]kindSpec{
	Language:  {name: "language", bundle: "g_iso_language", field: "f_iso_language_identifier"},
	Region:    {name: "region", bundle: "g_region", field: "f_region_name", qualifiers: []string{"f_region_country"}, required: true},
	Subregion: {name: "subregion", bundle: "g_subregion", field: "f_subregion_name", qualifiers: []string{"f_subregion_region"}, required: true},
	Genre:     {name: "genre", bundle: "b_authority_tag", field: "f_auth_tag_tag", qualifiers: []string{"f_auth_tag_source"}, required: true},
	Tag:       {name: "tag", bundle: "g_tag", field: "f_tag_name"},
	Sponsor:   {name: "sponsor", bundle: "g_funding_body", field: "f_funding_body_name"},
	Place:     {name: "place", bundle: "g_place", field: "f_place_name", qualifiers: []string{"f_place_country"}},
	Audience:  {name: "audience", bundle: "g_audience", field: "f_audience_description"},
}

// Kinds returns every kind.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	for i := range kinds {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind) valid() bool { return k >= 0 && int(k) < len(kinds) }

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kinds[k].name
}

// RequiresQualifier reports whether k cannot be built without qualifiers.
func (k Kind) RequiresQualifier() bool {
	return k.valid() && kinds[k].required
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, s := range kinds {
		if s.name == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown fallback kind %q", name)
}

// Requirements lists the catalog keys used by every kind.
func Requirements() catalog.Requirements {
	var req catalog.Requirements
	for _, s := range kinds {
		req.Bundles = append(req.Bundles, s.bundle)
		req.Fields = append(req.Fields, s.field)
		req.Fields = append(req.Fields, s.qualifiers...)
	}
	return req
}

// Factory builds fallback entities. It keeps no state between calls;
// deduplication is the resolver cache's job.
type Factory struct {
	catalog *catalog.Catalog
}

// NewFactory creates a Factory.
func NewFactory(cat *catalog.Catalog) *Factory {
	return &Factory{catalog: cat}
}

// Build returns a new entity of kind holding value in the kind's primary
// field and each qualifier in the matching qualifier field.
func (f *Factory) Build(kind Kind, value string, qualifiers ...entity.Value) (*entity.Descriptor, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("unknown fallback kind %d", int(kind))
	}
	spec := kinds[kind]

	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("%s fallback: empty value", spec.name)
	}
	if len(qualifiers) > len(spec.qualifiers) {
		return nil, fmt.Errorf("%s fallback: %d qualifiers given, kind takes %d", spec.name, len(qualifiers), len(spec.qualifiers))
	}
	if spec.required && len(qualifiers) < len(spec.qualifiers) {
		return nil, fmt.Errorf("%s fallback for %q: %w", spec.name, value, ErrQualifierRequired)
	}
	for i, q := range qualifiers {
		if isEmpty(q) {
			return nil, fmt.Errorf("%s fallback for %q: qualifier %d is empty: %w", spec.name, value, i, ErrQualifierRequired)
		}
	}

	bundle, err := f.catalog.Bundle(spec.bundle)
	if err != nil {
		return nil, err
	}
	field, err := f.catalog.Field(spec.field)
	if err != nil {
		return nil, err
	}

	d := entity.NewDescriptor(bundle).Set(field, entity.Literal(value))
	for i, q := range qualifiers {
		qf, err := f.catalog.Field(spec.qualifiers[i])
		if err != nil {
			return nil, err
		}
		d.Set(qf, q)
	}
	return d, nil
}

func isEmpty(v entity.Value) bool {
	if v.Kind == entity.KindNested {
		return v.Entity == nil
	}
	return strings.TrimSpace(v.Text) == ""
}
