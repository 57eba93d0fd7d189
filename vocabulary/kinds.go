// Package vocabulary keeps the store's auxiliary bundles (institutions,
// persons, projects and the like) in step with the source system.
//
// A kind's source population is compared with the names the store already
// holds; the difference is created as new entities. Kinds whose secondary
// attribute references another bundle depend on that bundle and must be
// synchronized after it.
package vocabulary

import (
	"fmt"
	"strings"

	"github.com/c360studio/semmigrate/catalog"
)

// Kind is an auxiliary bundle kept in sync.
type Kind int

// Kinds in dependency order.
const (
	Institutions Kind = iota
	Groups
	Projects
	Identifiers
	AuthorityRoles
	Persons
	Collections
)

// secondarySpec describes a kind's secondary attribute. An empty template
// stores the source text as a literal; otherwise the text is resolved
// through the template and stored as a reference.
type secondarySpec struct {
	field    string
	template string
}

type kindSpec struct {
	name       string
	population string
	bundle     string
	field      string
	lookup     string
	secondary  *secondarySpec
	dependsOn  []Kind
}

var kinds = [...]kindSpec{
	Institutions: {
		name:       "institutions",
		population: "institutionlist",
		bundle:     "g_institution",
		field:      "f_institution_name",
		lookup:     "institution",
	},
	Groups: {
		name:       "groups",
		population: "grouplist",
		bundle:     "g_group",
		field:      "f_group_name",
		lookup:     "group",
	},
	Projects: {
		name:       "projects",
		population: "projectlist",
		bundle:     "g_project",
		field:      "f_project_name",
		lookup:     "projectid",
	},
	Identifiers: {
		name:       "identifiers",
		population: "identifierlist",
		bundle:     "g_authority",
		field:      "f_authority_name",
		lookup:     "identifier",
		secondary:  &secondarySpec{field: "f_authority_url"},
	},
	AuthorityRoles: {
		name:       "authority-roles",
		population: "authorityrolelist",
		bundle:     "g_authority_role",
		field:      "f_authority_role_name",
		lookup:     "role",
		secondary:  &secondarySpec{field: "f_authority_role_source", template: "identifier"},
		dependsOn:  []Kind{Identifiers},
	},
	Persons: {
		name:       "persons",
		population: "personlist",
		bundle:     "g_person",
		field:      "f_person_name",
		lookup:     "person",
		secondary:  &secondarySpec{field: "f_person_affiliation", template: "institution"},
		dependsOn:  []Kind{Institutions},
	},
	Collections: {
		name:       "collections",
		population: "collectionlist",
		bundle:     "g_collection",
		field:      "f_collection_title",
		lookup:     "collection",
		secondary:  &secondarySpec{field: "f_collection_identifier"},
	},
}

// AllKinds returns every kind in dependency order.
func AllKinds() []Kind {
	out := make([]Kind, len(kinds))
	for i := range kinds {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind) valid() bool { return k >= 0 && int(k) < len(kinds) }

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k].name
}

// DependsOn returns the kinds that must be synchronized before k.
func (k Kind) DependsOn() []Kind {
	if !k.valid() {
		return nil
	}
	return append([]Kind(nil), kinds[k].dependsOn...)
}

// LookupTemplate returns the template records use to reference entities of k.
func (k Kind) LookupTemplate() string {
	if !k.valid() {
		return ""
	}
	return kinds[k].lookup
}

// ParseKind maps a kind name to a Kind.
func ParseKind(name string) (Kind, error) {
	for i, spec := range kinds {
		if strings.EqualFold(spec.name, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown vocabulary kind %q", name)
}

// Requirements lists the catalog keys the synchronizer reads.
func Requirements() catalog.Requirements {
	var req catalog.Requirements
	for _, spec := range kinds {
		req.Bundles = append(req.Bundles, spec.bundle)
		req.Fields = append(req.Fields, spec.field)
		req.Queries = append(req.Queries, spec.population, spec.lookup)
		if spec.secondary != nil {
			req.Fields = append(req.Fields, spec.secondary.field)
			if spec.secondary.template != "" {
				req.Queries = append(req.Queries, spec.secondary.template)
			}
		}
	}
	return req
}
