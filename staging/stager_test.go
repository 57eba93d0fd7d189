package staging

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/fallback"
	"github.com/c360studio/semmigrate/remote"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	answers map[string]string
	calls   map[string]int
	err     error
}

func (f *fakeLookup) Lookup(_ context.Context, query string) (string, bool, error) {
	f.calls[query]++
	if f.err != nil {
		return "", false, f.err
	}
	ref, ok := f.answers[query]
	return ref, ok, nil
}

func (f *fakeLookup) Population(context.Context, string) ([]string, error) {
	return nil, nil
}

var pairTemplates = map[string]string{
	QueryRegion:        "region:{level_0}|{level_1}",
	QuerySubregion:     "subregion:{level_0}|{level_1}",
	QueryPlaceOfOrigin: "placeoforigin:{level_0}|{level_1}",
	QueryGenre:         "genre:{term}|{authority}",
}

// testCatalog maps every key to itself so staged documents read like the
// schema, and gives each template a readable query text.
func testCatalog(opts Options) *catalog.Catalog {
	req := Requirements(opts).Merge(fallback.Requirements())
	bundles := map[string]string{}
	fields := map[string]string{}
	queries := map[string]string{}
	for _, b := range req.Bundles {
		bundles[b] = b
	}
	for _, f := range req.Fields {
		fields[f] = f
	}
	for _, q := range req.Queries {
		if t, ok := pairTemplates[q]; ok {
			queries[q] = t
			continue
		}
		queries[q] = q + ":{search_value}"
	}
	return catalog.New(bundles, fields, map[string]string{"en": "English"}, queries)
}

type fixture struct {
	lookup *fakeLookup
	stager *Stager
}

func newFixture(t *testing.T, answers map[string]string) *fixture {
	t.Helper()
	opts := DefaultOptions()
	cat := testCatalog(opts)
	lookup := &fakeLookup{answers: answers, calls: map[string]int{}}
	s, err := New(cat, resolve.New(cat, lookup))
	require.NoError(t, err)
	return &fixture{lookup: lookup, stager: s}
}

func baseAnswers() map[string]string {
	return map[string]string{
		"typeofresource:Image":                   "http://store/data/rt-image",
		"identifier:DRE Identifier":              "http://store/data/id-dre",
		"projectid:p1":                           "http://store/data/project-1",
		"language:English":                       "http://store/data/lang-en",
		"country:Niger":                          "http://store/data/niger",
		"region:Zinder|Niger":                    "http://store/data/region-zinder",
		"role:Sponsor":                           "http://store/data/role-sponsor",
		"sponsor:Volkswagen Stiftung":            "http://store/data/vw",
		"person:Jane Doe":                        "http://store/data/jane",
		"role:Creator":                           "http://store/data/role-creator",
		"identifier:Machine-Readable Cataloging": "http://store/data/marc",
		"genre:picture|marc":                     "http://store/data/genre-picture",
		"license:CC BY 4.0":                      "http://store/data/cc-by",
	}
}

func baseRecord() map[string]any {
	return map[string]any{
		"dre_id":         "dre-42",
		"typeOfResource": "Image",
		"project":        map[string]any{"id": "p1"},
		"language":       []any{"en"},
		"citation":       "Doe 2020",
		"titleInfo": []any{
			map[string]any{"title": "Main Title", "title_type": "main"},
			map[string]any{"title": "Alt", "title_type": "alternative"},
		},
	}
}

func TestStage(t *testing.T) {
	f := newFixture(t, baseAnswers())
	raw := baseRecord()
	raw["accessCondition"] = map[string]any{"rights": []any{"CC BY 4.0", "all rights reserved"}}
	raw["sponsor"] = []any{"Volkswagen Stiftung"}
	raw["name"] = []any{
		map[string]any{"name": map[string]any{"label": "Jane Doe", "qualifier": "person"}, "role": "Creator"},
	}

	doc, err := f.stager.Stage(context.Background(), source.RecordFromMap(raw))
	require.NoError(t, err)

	rt, ok := doc.Get(FieldResourceType)
	require.True(t, ok)
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/rt-image")}, rt)

	ids, _ := doc.Get(BundleIdentifier)
	require.Len(t, ids, 1)
	assert.Equal(t, []entity.Value{entity.Literal("dre-42")}, ids[0].Entity.Get(FieldIdentifierName))
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/id-dre")}, ids[0].Entity.Get(FieldIdentifierType))

	project, _ := doc.Get(FieldProject)
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/project-1")}, project)

	lang, _ := doc.Get(FieldLanguage)
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/lang-en")}, lang)

	citation, _ := doc.Get(FieldCitation)
	assert.Equal(t, []entity.Value{entity.Literal("Doe 2020")}, citation)

	rights, _ := doc.Get(FieldCopyright)
	assert.Equal(t, []entity.Value{
		entity.Ref("http://store/data/cc-by"),
		entity.Literal("all rights reserved"),
	}, rights)

	persons, _ := doc.Get(BundleAssociatedPerson)
	require.Len(t, persons, 2)
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/vw")}, persons[0].Entity.Get(FieldSponsor))
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/role-sponsor")}, persons[0].Entity.Get(FieldRole))
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/jane")}, persons[1].Entity.Get(FieldRoleHolder))
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/role-creator")}, persons[1].Entity.Get(FieldRole))

	assert.False(t, doc.Has(FieldAbstract), "absent source values write no key")
	assert.Empty(t, doc.Warnings)
}

func TestStageMandatoryFields(t *testing.T) {
	t.Run("missing resource type fails", func(t *testing.T) {
		f := newFixture(t, baseAnswers())
		raw := baseRecord()
		delete(raw, "typeOfResource")

		_, err := f.stager.Stage(context.Background(), source.RecordFromMap(raw))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"resource type"}, verr.Missing)
	})

	t.Run("unresolved resource type fails", func(t *testing.T) {
		f := newFixture(t, baseAnswers())
		raw := baseRecord()
		raw["typeOfResource"] = "Hologram"

		_, err := f.stager.Stage(context.Background(), source.RecordFromMap(raw))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Missing, "resource type")
	})

	t.Run("unresolved project fails when the source has one", func(t *testing.T) {
		f := newFixture(t, baseAnswers())
		raw := baseRecord()
		raw["project"] = map[string]any{"id": "unknown"}

		_, err := f.stager.Stage(context.Background(), source.RecordFromMap(raw))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"project"}, verr.Missing)
	})

	t.Run("project is optional when the source has none", func(t *testing.T) {
		f := newFixture(t, baseAnswers())
		raw := baseRecord()
		delete(raw, "project")

		_, err := f.stager.Stage(context.Background(), source.RecordFromMap(raw))
		require.NoError(t, err)
	})

	t.Run("missing identifier fails", func(t *testing.T) {
		f := newFixture(t, baseAnswers())
		raw := baseRecord()
		delete(raw, "dre_id")

		_, err := f.stager.Stage(context.Background(), source.RecordFromMap(raw))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"identifier"}, verr.Missing)
	})
}

func TestStageLookupErrorPropagates(t *testing.T) {
	f := newFixture(t, baseAnswers())
	f.lookup.err = remote.NewTransientError(errors.New("connection refused"))

	_, err := f.stager.Stage(context.Background(), source.RecordFromMap(baseRecord()))
	require.Error(t, err)
	assert.True(t, remote.IsTransient(err))
}

func TestGeographyChaining(t *testing.T) {
	origin := func(l1, l2, l3 string) *source.Record {
		return source.RecordFromMap(map[string]any{
			"location": map[string]any{
				"origin": []any{map[string]any{"l1": l1, "l2": l2, "l3": l3}},
			},
		})
	}

	t.Run("subregion miss is qualified by the resolved region", func(t *testing.T) {
		f := newFixture(t, baseAnswers())

		doc, err := f.stager.Field(context.Background(), origin("Niger", "Zinder", "Mirriah"), StepGeography)
		require.NoError(t, err)

		country, _ := doc.Get(FieldCountry)
		assert.Equal(t, []entity.Value{entity.Ref("http://store/data/niger")}, country)
		region, _ := doc.Get(FieldRegion)
		assert.Equal(t, []entity.Value{entity.Ref("http://store/data/region-zinder")}, region)

		sub, _ := doc.Get(FieldSubregion)
		require.Len(t, sub, 1)
		require.True(t, sub[0].IsNested())
		assert.Equal(t, "g_subregion", sub[0].Entity.Bundle)
		assert.Equal(t, map[string][]entity.Value{
			"f_subregion_name":   {entity.Literal("Mirriah")},
			"f_subregion_region": {entity.Ref("http://store/data/region-zinder")},
		}, sub[0].Entity.Fields)
		assert.Equal(t, []string{QuerySubregion}, doc.Fallbacks)
		assert.Equal(t, 1, f.lookup.calls["subregion:Mirriah|Zinder"])
	})

	t.Run("region miss chains fallback entities", func(t *testing.T) {
		answers := baseAnswers()
		delete(answers, "region:Zinder|Niger")
		f := newFixture(t, answers)

		doc, err := f.stager.Field(context.Background(), origin("Niger", "Zinder", "Mirriah"), StepGeography)
		require.NoError(t, err)

		region, _ := doc.Get(FieldRegion)
		require.Len(t, region, 1)
		require.True(t, region[0].IsNested())
		assert.Equal(t, []entity.Value{entity.Ref("http://store/data/niger")}, region[0].Entity.Get("f_region_country"))

		sub, _ := doc.Get(FieldSubregion)
		require.Len(t, sub, 1)
		parent := sub[0].Entity.Get("f_subregion_region")
		require.Len(t, parent, 1)
		assert.Equal(t, region[0], parent[0])
		assert.ElementsMatch(t, []string{QueryRegion, QuerySubregion}, doc.Fallbacks)
	})

	t.Run("unresolved country leaves region unstaged", func(t *testing.T) {
		f := newFixture(t, map[string]string{})

		doc, err := f.stager.Field(context.Background(), origin("Atlantis", "North", ""), StepGeography)
		require.NoError(t, err)
		assert.False(t, doc.Has(FieldRegion))
		assert.Len(t, doc.Warnings, 2)
	})

	t.Run("place of origin is looked up within the country", func(t *testing.T) {
		answers := baseAnswers()
		answers["placeoforigin:Mirriah|Niger"] = "http://store/data/place-mirriah"
		f := newFixture(t, answers)
		rec := origin("Niger", "", "")
		rec.Set("location", map[string]any{
			"origin": []any{map[string]any{"l1": "Niger"}},
			"place":  ", Mirriah",
		})

		doc, err := f.stager.Field(context.Background(), rec, StepGeography)
		require.NoError(t, err)
		place, _ := doc.Get(FieldOriginPlace)
		assert.Equal(t, []entity.Value{entity.Ref("http://store/data/place-mirriah")}, place)
	})
}

func TestSubject(t *testing.T) {
	const uri = "http://d-nb.info/gnd/4037770-6"
	tests := []struct {
		name          string
		subject       map[string]any
		answers       map[string]string
		want          []entity.Value
		wantFallbacks []string
		wantWarnings  int
	}{
		{
			name:    "known by uri",
			subject: map[string]any{"uri": uri, "origLabel": "Markt"},
			answers: map[string]string{"subjectURI:" + uri: "http://store/data/subject-1"},
			want:    []entity.Value{entity.Ref("http://store/data/subject-1")},
		},
		{
			name:    "known by label",
			subject: map[string]any{"uri": uri, "origLabel": "Markt"},
			answers: map[string]string{"subjectLabel:Markt": "http://store/data/subject-2"},
			want:    []entity.Value{entity.Ref("http://store/data/subject-2")},
		},
		{
			name:    "unknown subject is created with its authority",
			subject: map[string]any{"uri": uri, "origLabel": "Markt", "authority": "GND", "authLabel": "Märkte"},
			answers: map[string]string{"authority:GND": "http://store/data/gnd"},
			want: []entity.Value{entity.Nested(entity.NewDescriptor(BundleSubject).
				Set(FieldSubjectURL, entity.Literal(uri)).
				Set(FieldSubjectAuthority, entity.Ref("http://store/data/gnd")).
				Set(FieldSubjectTag, entity.Literal("Märkte")))},
			wantFallbacks: []string{QuerySubjectURI, QuerySubjectLabel},
		},
		{
			name:          "label only with unknown authority",
			subject:       map[string]any{"origLabel": "Markt", "authority": "LCSH"},
			answers:       map[string]string{},
			want:          []entity.Value{entity.Nested(entity.NewDescriptor(BundleSubject).Set(FieldSubjectTag, entity.Literal("Markt")))},
			wantFallbacks: []string{QuerySubjectLabel},
			wantWarnings:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.answers)
			rec := source.RecordFromMap(map[string]any{"subject": []any{tt.subject}})

			doc, err := f.stager.Field(context.Background(), rec, StepSubject)
			require.NoError(t, err)
			got, _ := doc.Get(FieldSubject)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFallbacks, doc.Fallbacks)
			assert.Len(t, doc.Warnings, tt.wantWarnings)
		})
	}
}

func TestTitles(t *testing.T) {
	titles := func(entries ...map[string]any) *source.Record {
		list := make([]any, len(entries))
		for i, e := range entries {
			list[i] = e
		}
		return source.RecordFromMap(map[string]any{"titleInfo": list})
	}

	t.Run("one main and one alternative", func(t *testing.T) {
		f := newFixture(t, nil)
		doc, err := f.stager.Field(context.Background(), titles(
			map[string]any{"title": "Main Title", "title_type": "main"},
			map[string]any{"title": "Alt", "title_type": "alternative"},
		), StepTitles)
		require.NoError(t, err)

		main, _ := doc.Get(FieldMainTitle)
		assert.Equal(t, []entity.Value{entity.Literal("Main Title")}, main)
		alts, _ := doc.Get(BundleTitle)
		require.Len(t, alts, 1)
		assert.Equal(t, []entity.Value{entity.Literal("Alt")}, alts[0].Entity.Get(FieldTitle))
		assert.Equal(t, []entity.Value{entity.Literal("alternative")}, alts[0].Entity.Get(FieldTitleType))
		assert.Empty(t, doc.Warnings)
	})

	t.Run("first main wins", func(t *testing.T) {
		f := newFixture(t, nil)
		doc, err := f.stager.Field(context.Background(), titles(
			map[string]any{"title": "First", "title_type": "main"},
			map[string]any{"title": "Second", "title_type": "main"},
		), StepTitles)
		require.NoError(t, err)

		main, _ := doc.Get(FieldMainTitle)
		assert.Equal(t, []entity.Value{entity.Literal("First")}, main)
		alts, _ := doc.Get(BundleTitle)
		require.Len(t, alts, 1)
		assert.Equal(t, []entity.Value{entity.Literal("Second")}, alts[0].Entity.Get(FieldTitle))
		assert.Len(t, doc.Warnings, 1)
	})

	t.Run("no main title is reported", func(t *testing.T) {
		f := newFixture(t, nil)
		doc, err := f.stager.Field(context.Background(), titles(
			map[string]any{"title": "Only", "title_type": "alternative"},
		), StepTitles)
		require.NoError(t, err)
		assert.False(t, doc.Has(FieldMainTitle))
		assert.Equal(t, []string{"no main title"}, doc.Warnings)
	})
}

func TestDates(t *testing.T) {
	f := newFixture(t, nil)
	rec := source.RecordFromMap(map[string]any{
		"dateInfo": map[string]any{
			"created":   map[string]any{"end": "1987-06-05T10:00:00Z"},
			"issued":    "2001-02-03",
			"modified":  "sometime in spring",
			"copyright": map[string]any{"start": "1990-01-01"},
		},
	})

	doc, err := f.stager.Field(context.Background(), rec, StepDates)
	require.NoError(t, err)

	created, _ := doc.Get(FieldCreateDate)
	assert.Equal(t, []entity.Value{entity.Literal("1987-06-05")}, created)

	adds, _ := doc.Get(BundleAdditionalDate)
	require.Len(t, adds, 2)
	assert.Equal(t, []entity.Value{entity.Literal("copyright")}, adds[0].Entity.Get(FieldDateType))
	assert.Equal(t, []entity.Value{entity.Literal("1990-01-01")}, adds[0].Entity.Get(FieldAdditionalDate))
	assert.Equal(t, []entity.Value{entity.Literal("issued")}, adds[1].Entity.Get(FieldDateType))
	assert.Equal(t, []string{`unparseable modified date "sometime in spring"`}, doc.Warnings)
}

func TestPhysicalDescription(t *testing.T) {
	tests := []struct {
		name   string
		pd     map[string]any
		typ    string
		method string
	}{
		{
			name:   "digital recorder",
			pd:     map[string]any{"recorder": "Digital camera Nikon"},
			typ:    ResourceImage,
			method: MethodBornDigital,
		},
		{
			name:   "digital photo object type",
			pd:     map[string]any{"objectType": "2@3c910145-7057-4112-9484-5d30f968f4d0"},
			typ:    ResourceImage,
			method: MethodBornDigital,
		},
		{
			name:   "slide film",
			pd:     map[string]any{"recorder": "Kodachrome 64"},
			typ:    ResourceImage,
			method: MethodMicrofilm,
		},
		{
			name:   "cassette",
			pd:     map[string]any{"recorder": "Kassettenrekorder"},
			typ:    ResourceAudio,
			method: MethodAnalog,
		},
		{
			name:   "mp3 media",
			pd:     map[string]any{"mediaUrl": "https://media/x/track.MP3"},
			typ:    ResourceAudio,
			method: MethodAnalog,
		},
		{
			name:   "pdf media",
			pd:     map[string]any{"mediaUrl": "https://media/x/scan.pdf"},
			typ:    ResourceText,
			method: MethodAnalog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := source.RecordFromMap(map[string]any{"physicalDescription": tt.pd})

			c, ok := f.stager.classify(rec)
			require.True(t, ok)
			assert.Equal(t, tt.typ, c.resourceType)

			doc, err := f.stager.Field(context.Background(), rec, StepPhysicalDescription)
			require.NoError(t, err)
			rt, _ := doc.Get(BundleResourceType)
			require.Len(t, rt, 1)
			assert.Equal(t, []entity.Value{entity.Literal(ResourceDigital)}, rt[0].Entity.Get(FieldResType))
			assert.Equal(t, []entity.Value{entity.Literal(tt.method)}, rt[0].Entity.Get(FieldResMethod))
		})
	}

	t.Run("explicit values win over heuristics", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := source.RecordFromMap(map[string]any{"physicalDescription": map[string]any{
			"type":     "Analog",
			"method":   "scanned",
			"recorder": "Digital camera",
			"tech":     []any{"300dpi", "TIFF"},
		}})

		doc, err := f.stager.Field(context.Background(), rec, StepPhysicalDescription)
		require.NoError(t, err)
		rt, _ := doc.Get(BundleResourceType)
		require.Len(t, rt, 1)
		assert.Equal(t, []entity.Value{entity.Literal("Analog")}, rt[0].Entity.Get(FieldResType))
		assert.Equal(t, []entity.Value{entity.Literal("scanned")}, rt[0].Entity.Get(FieldResMethod))
		tech, _ := doc.Get(FieldTechProperties)
		assert.Equal(t, entity.Literals("300dpi", "TIFF"), tech)
	})

	t.Run("unclassifiable is reported", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := source.RecordFromMap(map[string]any{"physicalDescription": map[string]any{"recorder": "pencil"}})

		doc, err := f.stager.Field(context.Background(), rec, StepPhysicalDescription)
		require.NoError(t, err)
		assert.False(t, doc.Has(BundleResourceType))
		assert.Len(t, doc.Warnings, 1)
	})
}

func TestGenre(t *testing.T) {
	f := newFixture(t, baseAnswers())
	rec := source.RecordFromMap(map[string]any{
		"genre": map[string]any{"marc": []any{"picture", "map"}, "xyz": []any{"thing"}},
	})

	doc, err := f.stager.Field(context.Background(), rec, StepGenre)
	require.NoError(t, err)

	genre, _ := doc.Get(FieldGenre)
	require.Len(t, genre, 2)
	assert.Equal(t, entity.Ref("http://store/data/genre-picture"), genre[0])
	require.True(t, genre[1].IsNested())
	assert.Equal(t, []entity.Value{entity.Literal("map")}, genre[1].Entity.Get("f_auth_tag_tag"))
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/marc")}, genre[1].Entity.Get("f_auth_tag_source"))
	assert.Equal(t, []string{`unknown genre authority "xyz"`}, doc.Warnings)
}

func TestFieldIsValueOnly(t *testing.T) {
	f := newFixture(t, baseAnswers())
	rec := source.RecordFromMap(baseRecord())

	doc, err := f.stager.Field(context.Background(), rec, StepLanguage)
	require.NoError(t, err)
	assert.Equal(t, []string{FieldLanguage}, doc.Keys())
	assert.Equal(t, []string{FieldLanguage}, f.stager.Keys(StepLanguage))
}

func TestRelatedItems(t *testing.T) {
	answers := baseAnswers()
	answers["ldID:ld-1"] = "http://store/data/item-1"
	answers["ldID:ld-2"] = "http://store/data/item-2"
	f := newFixture(t, answers)
	rec := source.RecordFromMap(map[string]any{
		"relatedItems": map[string]any{"rel_succ": []any{"ld-1"}, "rel_prec": []any{"ld-2", "ld-9"}},
	})

	doc, err := f.stager.Field(context.Background(), rec, StepRelatedItems)
	require.NoError(t, err)
	coll, _ := doc.Get(BundleCollection)
	require.Len(t, coll, 1)
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/item-1")}, coll[0].Entity.Get(FieldSucceeds))
	assert.Equal(t, []entity.Value{entity.Ref("http://store/data/item-2")}, coll[0].Entity.Get(FieldPrecedes))
	assert.Len(t, doc.Warnings, 1)

	assert.NotContains(t, PipelineSteps(), StepRelatedItems)
}

func TestParseStep(t *testing.T) {
	st, err := ParseStep("physicalDesc")
	require.NoError(t, err)
	assert.Equal(t, StepPhysicalDescription, st)

	st, err = ParseStep("AssociatedEntities")
	require.NoError(t, err)
	assert.Equal(t, StepAssociatedEntities, st)

	steps, err := ParseSteps([]string{"mainTitle", "altTitle", "tags"})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepTitles, StepTags}, steps)

	_, err = ParseStep("horoscope")
	assert.Error(t, err)
}

func TestNewRequiresCatalogKeys(t *testing.T) {
	cat := catalog.New(map[string]string{}, map[string]string{}, nil, map[string]string{})
	_, err := New(cat, resolve.New(cat, &fakeLookup{calls: map[string]int{}}))
	require.Error(t, err)
	assert.True(t, catalog.IsConfigError(err))
}
