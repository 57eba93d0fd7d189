package source

import (
	"regexp"
	"strings"
)

// Easydb export columns.
const (
	ColGlobalObjectID   = "_global_object_id"
	ColRegistration     = "registrationnumber"
	ColFundingContext   = "context_funding#_standard#de-DE"
	ColOtherLicences    = "exploitationrights[].otherlicences"
	ColOriginPrefix     = "placeoforigin_geographical#_standard#en-US#"
	ColOriginDetails    = "placeoforigin_details"
	ColDescription      = "description_simple"
	ColCreator          = "creator#_standard#de-DE"
	ColTitle            = "title#de-DE"
	ColAlternativeTitle = "alternativetitle#de-DE"
	ColPool             = "_pool#de-DE"
	ColRecordingDate    = "recordingdate"
	ColRecorder         = "recorder"
	ColObjectType       = "object_type#_global_object_id"
	ColFormat           = "format"
	ColFileURL          = "file#0#url"
	ColColour           = "colourbw"
)

// EasydbKeyPath is the record field the adapter stores the global object
// id under. It identifies an adapted record in the upload.
const EasydbKeyPath = "easydbId"

// EasydbInstitution holds the easydb collection.
const EasydbInstitution = "Collections@UBT"

// Identifier types assigned to easydb rows.
const (
	EasydbIdentifierType = "easydb Identifier"
	EasydbInventoryType  = "easydb Inventory Number"
)

// KeywordColumns hold newline-separated keyword lists.
var KeywordColumns = []string{
	"keywords[].keyword#de-DE",
	"keywords_gnd[].keyword_gnd#_standard",
	"keywords_aat[].keyword_aat#_standard",
}

// DefaultEasydbURLPrefix is the detail page prefix of the collection portal.
const DefaultEasydbURLPrefix = "https://collections.uni-bayreuth.de/#/detail/"

var leadingPunct = regexp.MustCompile(`^\W+`)

// EasydbAdapter maps easydb export rows onto the document shape used by
// the staging pipeline, so both sources share one set of field builders.
type EasydbAdapter struct {
	URLPrefix   string
	CreatorRole string
	// Genres is assigned to every row, keyed by genre authority.
	Genres map[string][]string
}

// NewEasydbAdapter returns an adapter with the portal defaults.
func NewEasydbAdapter() *EasydbAdapter {
	return &EasydbAdapter{
		URLPrefix:   DefaultEasydbURLPrefix,
		CreatorRole: "Creator",
		Genres:      map[string][]string{"marc": {"picture"}},
	}
}

// Adapt converts one row.
func (a *EasydbAdapter) Adapt(row *Record) *Record {
	out := NewRecord()
	gid := row.String(ColGlobalObjectID)

	out.Set(EasydbKeyPath, gid)

	var ids []any
	if gid != "" {
		ids = append(ids, map[string]any{"identifier": gid, "identifier_type": EasydbIdentifierType})
	}
	if reg := row.String(ColRegistration); reg != "" {
		ids = append(ids, map[string]any{"identifier": reg, "identifier_type": EasydbInventoryType})
	}
	out.Set("identifier", ids)

	if p := row.String(ColFundingContext); p != "" {
		out.Set("project", map[string]any{"id": p})
	}
	if c := row.String(ColOtherLicences); c != "" {
		out.Set("citation", []any{c})
	}

	origin := map[string]any{
		"l1": row.String(ColOriginPrefix + "0"),
		"l2": row.String(ColOriginPrefix + "1"),
		"l3": row.String(ColOriginPrefix + "2"),
	}
	location := map[string]any{"origin": []any{origin}}
	if place := leadingPunct.ReplaceAllString(row.String(ColOriginDetails), ""); place != "" {
		location["place"] = place
	}
	out.Set("location", location)

	if gid != "" && a.URLPrefix != "" {
		out.Set("url", []any{a.URLPrefix + gid})
	}
	if n := row.String(ColDescription); n != "" {
		out.Set("note", n)
	}

	if creator := row.String(ColCreator); creator != "" {
		out.Set("name", []any{map[string]any{
			"name": map[string]any{"label": creator, "qualifier": "person"},
			"role": a.CreatorRole,
		}})
	}

	var titles []any
	for _, t := range []struct{ col, typ string }{
		{ColTitle, "main"},
		{ColAlternativeTitle, "alternative"},
		{ColPool, "sub"},
	} {
		if v := row.String(t.col); v != "" {
			titles = append(titles, map[string]any{"title": v, "title_type": t.typ})
		}
	}
	out.Set("titleInfo", titles)

	if d := row.String(ColRecordingDate); d != "" {
		out.Set("dateInfo", map[string]any{"created": map[string]any{"end": d}})
	}

	phys := map[string]any{
		"recorder":   row.String(ColRecorder),
		"objectType": row.String(ColObjectType),
		"format":     row.String(ColFormat),
		"mediaUrl":   row.String(ColFileURL),
	}
	if c := row.String(ColColour); c != "" {
		phys["tech"] = []any{c}
	}
	out.Set("physicalDescription", phys)

	genre := make(map[string]any, len(a.Genres))
	for auth, terms := range a.Genres {
		genre[auth] = toAnySlice(terms)
	}
	out.Set("genre", genre)

	var tags []any
	for _, col := range KeywordColumns {
		for _, kw := range strings.Split(row.String(col), "\n") {
			if kw = strings.TrimSpace(kw); kw != "" {
				tags = append(tags, kw)
			}
		}
	}
	out.Set("tags", tags)

	return out
}

// Creators returns the distinct creator names of the table.
func (t *Table) Creators() []string {
	names, _ := t.DistinctNamed(ColCreator)
	return names
}

// Projects returns the distinct funding contexts of the table.
func (t *Table) Projects() []string {
	names, _ := t.DistinctNamed(ColFundingContext)
	return names
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
