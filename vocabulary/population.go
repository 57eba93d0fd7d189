package vocabulary

import (
	"context"
	"fmt"

	"github.com/c360studio/semmigrate/source"
)

// Population supplies the source-side items of a kind.
type Population interface {
	Items(ctx context.Context, kind Kind) ([]source.Item, error)
}

// StaticPopulation serves fixed item lists. Kinds without an entry have
// no items.
type StaticPopulation map[Kind][]source.Item

// Items implements Population.
func (p StaticPopulation) Items(_ context.Context, kind Kind) ([]source.Item, error) {
	return p[kind], nil
}

// MongoCollection names the collection a kind is read from and the
// JMESPath expression of its secondary attribute.
type MongoCollection struct {
	Name      string `yaml:"name"`
	Secondary string `yaml:"secondary,omitempty"`
}

// DefaultMongoCollections returns the collection layout of the source
// database, keyed by kind name.
func DefaultMongoCollections() map[string]MongoCollection {
	return map[string]MongoCollection{
		Institutions.String():   {Name: "institution"},
		Groups.String():         {Name: "group"},
		Projects.String():       {Name: "project"},
		Identifiers.String():    {Name: "authority", Secondary: "url"},
		AuthorityRoles.String(): {Name: "authority_role", Secondary: "source"},
		Persons.String():        {Name: "person", Secondary: "affiliation[0].name || affiliation"},
		Collections.String():    {Name: "collection", Secondary: "identifier"},
	}
}

// MongoPopulation reads kinds from MongoDB collections.
type MongoPopulation struct {
	pop         *source.MongoPopulation
	collections map[Kind]MongoCollection
}

// NewMongoPopulation maps kind names in collections to their kinds.
func NewMongoPopulation(pop *source.MongoPopulation, collections map[string]MongoCollection) (*MongoPopulation, error) {
	m := &MongoPopulation{pop: pop, collections: make(map[Kind]MongoCollection, len(collections))}
	for name, c := range collections {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		m.collections[k] = c
	}
	return m, nil
}

// Items implements Population.
func (m *MongoPopulation) Items(ctx context.Context, kind Kind) ([]source.Item, error) {
	c, ok := m.collections[kind]
	if !ok {
		return nil, fmt.Errorf("no collection configured for %s", kind)
	}
	return m.pop.Items(ctx, c.Name, c.Secondary)
}

// TableItems reads items from a delimited table: distinct values of
// nameColumn, each paired with secondaryColumn of its first row when given.
func TableItems(t *source.Table, nameColumn, secondaryColumn string) ([]source.Item, error) {
	names, err := t.DistinctNamed(nameColumn)
	if err != nil {
		return nil, err
	}
	if secondaryColumn == "" {
		return source.NamesToItems(names), nil
	}
	if _, err := t.Column(secondaryColumn); err != nil {
		return nil, err
	}
	return source.ItemsWithSecondary(names, t.Records(), nameColumn, fmt.Sprintf("%q", secondaryColumn))
}

// EasydbPopulation derives creators and projects from an easydb export
// and adds the holding institution and the identifier types every
// adapted row refers to.
func EasydbPopulation(t *source.Table) StaticPopulation {
	return StaticPopulation{
		Institutions: source.NamesToItems([]string{source.EasydbInstitution}),
		Identifiers:  source.NamesToItems([]string{source.EasydbIdentifierType, source.EasydbInventoryType}),
		Persons:      source.NamesToItems(t.Creators()),
		Projects:     source.NamesToItems(t.Projects()),
	}
}

// EasydbKinds are the kinds EasydbPopulation supplies, in dependency order.
func EasydbKinds() []Kind {
	return []Kind{Institutions, Identifiers, Persons, Projects}
}
