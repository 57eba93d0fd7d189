package staging

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/source"
)

const createdDate = "created"

// dateLayouts are the accepted source date representations.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stageTitles writes the first main title to the main-title field and every
// other title as an alternate-title entity. Later main titles are demoted.
func (s *Stager) stageTitles(_ context.Context, rec *source.Record, doc *entity.Document) error {
	var (
		mainSet bool
		alts    []entity.Value
	)
	for _, m := range objects(rec, "titleInfo") {
		title := source.Text(m["title"])
		if title == "" {
			continue
		}
		typ := source.Text(m["title_type"])
		if strings.EqualFold(typ, "main") {
			if !mainSet {
				doc.Set(s.field(FieldMainTitle), entity.Literal(title))
				mainSet = true
				continue
			}
			doc.Warn("additional main title %q staged as alternative", title)
			typ = "alternative"
		}

		d := entity.NewDescriptor(s.bundle(BundleTitle)).Set(s.field(FieldTitle), entity.Literal(title))
		if typ != "" {
			d.Set(s.field(FieldTitleType), entity.Literal(typ))
		}
		alts = append(alts, entity.Nested(d))
	}

	if !mainSet {
		doc.Warn("no main title")
	}
	doc.Set(s.bundle(BundleTitle), alts...)
	return nil
}

// stageDates writes dateInfo.created to the creation date field and every
// other dateInfo entry as an additional-date entity, in key order.
// Unparseable dates are skipped with a warning.
func (s *Stager) stageDates(_ context.Context, rec *source.Record, doc *entity.Document) error {
	info := rec.Object("dateInfo")
	if len(info) == 0 {
		return nil
	}
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var adds []entity.Value
	for _, k := range keys {
		raw := dateText(info[k])
		if raw == "" {
			continue
		}
		t, ok := parseDate(raw)
		if !ok {
			doc.Warn("unparseable %s date %q", k, raw)
			continue
		}
		formatted := t.Format(s.opts.DateLayout)

		if k == createdDate {
			doc.Set(s.field(FieldCreateDate), entity.Literal(formatted))
			continue
		}
		d := entity.NewDescriptor(s.bundle(BundleAdditionalDate)).
			Set(s.field(FieldAdditionalDate), entity.Literal(formatted)).
			Set(s.field(FieldDateType), entity.Literal(k))
		adds = append(adds, entity.Nested(d))
	}
	doc.Set(s.bundle(BundleAdditionalDate), adds...)
	return nil
}

// dateText reads a date entry: a plain value or a range whose end is used,
// falling back to its start.
func dateText(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return source.Text(v)
	}
	if end := source.Text(m["end"]); end != "" {
		return end
	}
	return source.Text(m["start"])
}
