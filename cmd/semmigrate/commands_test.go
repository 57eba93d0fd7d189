package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/vocabulary"
)

// memStore answers the population and lookup queries of the vocabulary
// kinds from the entities saved to it.
type memStore struct {
	// queries maps a query template to the bundle and name field it reads
	queries  map[string][2]string
	entities []*entity.Descriptor
}

func newMemStore() *memStore {
	return &memStore{queries: map[string][2]string{
		"institutionlist": {"g_institution", "f_institution_name"},
		"institution":     {"g_institution", "f_institution_name"},
		"personlist":      {"g_person", "f_person_name"},
		"person":          {"g_person", "f_person_name"},
	}}
}

func (m *memStore) Save(_ context.Context, d *entity.Descriptor) (string, error) {
	c := d.Clone()
	for i, e := range m.entities {
		if e.URI == c.URI && c.URI != "" {
			m.entities[i] = c
			return c.URI, nil
		}
	}
	c.URI = fmt.Sprintf("http://store/data/%d", len(m.entities)+1)
	m.entities = append(m.entities, c)
	return c.URI, nil
}

func (m *memStore) Get(_ context.Context, uri string) (*entity.Descriptor, error) {
	for _, e := range m.entities {
		if e.URI == uri {
			return e.Clone(), nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memStore) names(template string) map[string]string {
	q := m.queries[template]
	out := make(map[string]string)
	for _, e := range m.entities {
		if e.Bundle != q[0] {
			continue
		}
		for _, v := range e.Get(q[1]) {
			out[v.Text] = e.URI
		}
	}
	return out
}

func (m *memStore) Resolve(_ context.Context, search resolve.Search, template string, _ resolve.Mode) (resolve.Resolution, error) {
	if uri, ok := m.names(template)[search.Values()[catalog.SearchValueSlot]]; ok {
		return resolve.Found(uri), nil
	}
	return resolve.NotFound, nil
}

func (m *memStore) Population(_ context.Context, template string) ([]string, error) {
	var out []string
	for name := range m.names(template) {
		out = append(out, name)
	}
	return out, nil
}

func (m *memStore) InvalidateMisses(string) int { return 0 }

func identityCatalog() *catalog.Catalog {
	req := vocabulary.Requirements()
	ident := func(keys []string) map[string]string {
		out := make(map[string]string, len(keys))
		for _, k := range keys {
			out[k] = k
		}
		return out
	}
	return catalog.New(ident(req.Bundles), ident(req.Fields), nil, ident(req.Queries))
}

func TestRunAffiliations(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	_, err := store.Save(ctx, entity.NewDescriptor("g_person").Set("f_person_name", entity.Literal("Jane Doe")))
	require.NoError(t, err)

	tests := []struct {
		name    string
		kind    vocabulary.Kind
		want    string
		wantErr bool
	}{
		{
			name: "persons on a fresh synchronizer",
			kind: vocabulary.Persons,
			want: "persons: 1 updated, 0 unchanged, 0 unresolved, 0 failed\n",
		},
		{
			name:    "kind without a secondary reference",
			kind:    vocabulary.Projects,
			want:    "projects: 0 updated, 0 unchanged, 0 unresolved, 0 failed\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pop := vocabulary.StaticPopulation{
				vocabulary.Institutions: {{Name: "FU Berlin"}},
				vocabulary.Persons:      {{Name: "Jane Doe", Secondary: "FU Berlin"}},
			}
			s, err := vocabulary.New(identityCatalog(), pop, store, store)
			require.NoError(t, err)

			var out bytes.Buffer
			err = runAffiliations(ctx, s, &out, tt.kind)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, out.String())
		})
	}

	jane, err := store.Resolve(ctx, resolve.Scalar("Jane Doe"), "person", resolve.Positional)
	require.NoError(t, err)
	fu, err := store.Resolve(ctx, resolve.Scalar("FU Berlin"), "institution", resolve.Positional)
	require.NoError(t, err)
	require.True(t, fu.Found, "the institution is created before the update")
	d, err := store.Get(ctx, jane.Ref)
	require.NoError(t, err)
	assert.Equal(t, []entity.Value{entity.Ref(fu.Ref)}, d.Get("f_person_affiliation"))
}
