package source

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(t *testing.T) *Record {
	t.Helper()
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"dre_id": "DRE-1",
		"typeOfResource": "Image",
		"location": {"origin": [{"l1": "Niger", "l2": "Zinder", "l3": "Mirriah"}], "current": ["Bayreuth"]},
		"language": ["eng", "", "fra"],
		"relatedItems": {"rel_succ": ["A", "B"], "rel_prec": []},
		"abstract": null
	}`), &r))
	return &r
}

func TestRecordPaths(t *testing.T) {
	r := sampleRecord(t)

	assert.Equal(t, []string{"dre_id", "typeOfResource", "location", "language", "relatedItems", "abstract"}, r.Keys())
	assert.Equal(t, "DRE-1", r.String("dre_id"))
	assert.Equal(t, []string{"eng", "fra"}, r.Strings("language"))
	assert.Equal(t, []string{"Bayreuth"}, r.Strings("location.current"))
	assert.Len(t, r.List("location.origin"), 1)
	assert.Empty(t, r.String("abstract"))
	assert.Empty(t, r.String("location.missing.deeper"))
	assert.Nil(t, r.List("abstract"))
}

func TestRecordDottedTopLevelKey(t *testing.T) {
	r := NewRecord()
	r.Set("exploitationrights[].otherlicences", "CC-BY")
	assert.Equal(t, "CC-BY", r.String("exploitationrights[].otherlicences"))
}

func TestRecordSearch(t *testing.T) {
	r := sampleRecord(t)

	v, err := r.Search("relatedItems.rel_succ")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, Texts(v))

	_, err = r.Search("relatedItems.[")
	assert.Error(t, err)
}

func TestRecordJSONKeepsOrder(t *testing.T) {
	r := NewRecord()
	r.Set("z", 1)
	r.Set("a", []string{"x"})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":["x"]}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"z", "a"}, back.Keys())
}

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(math.NaN()))
	assert.Equal(t, "3", Text(3.0))
	assert.Equal(t, "x", Text("  x "))
	assert.Equal(t, "", Text(map[string]any{}))
}

func TestSliceIterator(t *testing.T) {
	it := NewSliceIterator([]*Record{NewRecord(), NewRecord()})
	ctx := context.Background()

	_, err := it.Next(ctx)
	require.NoError(t, err)
	_, err = it.Next(ctx)
	require.NoError(t, err)
	_, err = it.Next(ctx)
	assert.Equal(t, io.EOF, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSliceIterator([]*Record{NewRecord()}).Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestItemsWithSecondary(t *testing.T) {
	docs := []*Record{
		RecordFromMap(map[string]any{"name": "Ada", "affiliation": "Uni Bayreuth"}),
		RecordFromMap(map[string]any{"name": "Ada", "affiliation": "Elsewhere"}),
		RecordFromMap(map[string]any{"name": "Grace"}),
	}

	items, err := ItemsWithSecondary([]string{"Ada", "Grace", "Linus"}, docs, "name", "affiliation")
	require.NoError(t, err)
	assert.Equal(t, []Item{
		{Name: "Ada", Secondary: "Uni Bayreuth"},
		{Name: "Grace"},
		{Name: "Linus"},
	}, items)
}
