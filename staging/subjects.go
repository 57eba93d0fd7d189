package staging

import (
	"context"
	"sort"
	"strings"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/fallback"
	"github.com/c360studio/semmigrate/source"
)

// stageGenre resolves genre terms per authority. The authority is looked up
// through the identifier template and its local name qualifies the term
// lookup; unknown terms become genre entities tagged with the authority.
func (s *Stager) stageGenre(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	genre := rec.Object("genre")
	if len(genre) == 0 {
		return nil
	}
	codes := make([]string, 0, len(genre))
	for k := range genre {
		codes = append(codes, k)
	}
	sort.Strings(codes)

	var out []entity.Value
	for _, code := range codes {
		terms := source.Texts(genre[code])
		if len(terms) == 0 {
			continue
		}
		label, ok := s.opts.GenreAuthorities[code]
		if !ok {
			doc.Warn("unknown genre authority %q", code)
			continue
		}
		authority, err := s.ref(ctx, label, QueryIdentifier)
		if err != nil {
			return err
		}
		if !authority.Found {
			doc.Warn("genre authority %q not found", label)
			continue
		}
		local := localName(authority.Ref)

		for _, term := range terms {
			res, err := s.lookupPair(ctx, QueryGenre, SlotTerm, term, SlotAuthority, local)
			if err != nil {
				return err
			}
			if res.Found {
				out = append(out, entity.Ref(res.Ref))
				continue
			}
			v, err := s.fallback(doc, fallback.Genre, QueryGenre, term, entity.Ref(authority.Ref))
			if err != nil {
				return err
			}
			out = append(out, v)
		}
	}
	doc.Set(s.field(FieldGenre), out...)
	return nil
}

// localName returns the part of a store URI after "data/", or after the
// last slash.
func localName(uri string) string {
	if i := strings.LastIndex(uri, "data/"); i >= 0 {
		return uri[i+len("data/"):]
	}
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// stageSubject references a known subject by URI, then by label, and
// otherwise stages a subject entity from the source's URI, authority and tag.
func (s *Stager) stageSubject(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	var out []entity.Value
	for _, m := range objects(rec, "subject") {
		uri := source.Text(m["uri"])
		label := source.Text(m["origLabel"])
		authority := source.Text(m["authority"])
		tag := source.Text(m["authLabel"])
		if tag == "" {
			tag = label
		}
		if uri == "" && tag == "" {
			continue
		}

		if uri != "" {
			res, err := s.ref(ctx, uri, QuerySubjectURI)
			if err != nil {
				return err
			}
			if res.Found {
				out = append(out, entity.Ref(res.Ref))
				continue
			}
		}
		if label != "" {
			res, err := s.ref(ctx, label, QuerySubjectLabel)
			if err != nil {
				return err
			}
			if res.Found {
				out = append(out, entity.Ref(res.Ref))
				continue
			}
		}

		// The nested subject becomes an entity the lookups above will find.
		d := entity.NewDescriptor(s.bundle(BundleSubject))
		if uri != "" {
			d.Set(s.field(FieldSubjectURL), entity.Literal(uri))
			doc.NoteFallback(QuerySubjectURI)
		}
		if label != "" {
			doc.NoteFallback(QuerySubjectLabel)
		}
		if authority != "" {
			res, err := s.ref(ctx, authority, QueryAuthority)
			if err != nil {
				return err
			}
			if res.Found {
				d.Set(s.field(FieldSubjectAuthority), entity.Ref(res.Ref))
			} else {
				doc.Warn("subject authority %q not found", authority)
			}
		}
		if tag != "" {
			d.Set(s.field(FieldSubjectTag), entity.Literal(tag))
		}
		out = append(out, entity.Nested(d))
	}
	doc.Set(s.field(FieldSubject), out...)
	return nil
}
