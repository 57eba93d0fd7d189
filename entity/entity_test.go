package entity

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentOrderAndSkip(t *testing.T) {
	doc := NewDocument()
	doc.Set("b", Literal("1"))
	doc.Set("a", Ref("https://example.org/data/x"))
	doc.Set("empty")
	doc.Append("b", Literal("2"))

	assert.Equal(t, []string{"b", "a"}, doc.Keys())
	assert.False(t, doc.Has("empty"))

	vs, ok := doc.Get("b")
	require.True(t, ok)
	assert.Equal(t, Literals("1", "2"), vs)

	doc.Delete("b")
	assert.Equal(t, []string{"a"}, doc.Keys())
}

func TestDocumentJSON(t *testing.T) {
	sub := NewDescriptor("g_subregion").
		Set("f_name", Literal("Mirriah")).
		Set("f_region", Ref("https://example.org/data/zinder"))

	doc := NewDocument()
	doc.Set("z", Literal("first"))
	doc.Set("a", Nested(sub))

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"z": ["first"],
		"a": [{"bundle": "g_subregion", "fields": {"f_name": ["Mirriah"], "f_region": ["https://example.org/data/zinder"]}}]
	}`, string(data))
	assert.Less(t, strings.Index(string(data), `"z"`), strings.Index(string(data), `"a"`))
}

func TestDescriptorRoundTrip(t *testing.T) {
	in := NewDescriptor("g_item")
	in.URI = "https://example.org/data/item1"
	in.Set("f_title", Literal("Main"))
	in.Set("f_lang", Ref("https://example.org/data/eng"))
	in.Set("g_title", Nested(NewDescriptor("g_title").Set("f_appel", Literal("Alt"))))

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Descriptor
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.URI, out.URI)
	assert.Equal(t, KindLiteral, out.Fields["f_title"][0].Kind)
	assert.True(t, out.Fields["f_lang"][0].IsRef())
	require.True(t, out.Fields["g_title"][0].IsNested())
	assert.Equal(t, "Alt", out.Fields["g_title"][0].Entity.Fields["f_appel"][0].Text)
}

func TestDocumentDescriptorIsCopy(t *testing.T) {
	nested := NewDescriptor("g_x").Set("f", Literal("v"))
	doc := NewDocument()
	doc.Set("k", Nested(nested))

	d := doc.Descriptor("g_item")
	nested.Set("f", Literal("changed"))

	assert.Equal(t, "v", d.Fields["k"][0].Entity.Fields["f"][0].Text)
}
