package staging

import (
	"context"
	"strings"
	"unicode"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/fallback"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/source"
)

// stageGeography resolves the origin tiers. Each tier's lookup is keyed by
// its own name and its parent's name; a missing region or subregion becomes
// a fallback entity qualified by the parent's reference, which may itself
// be a fallback entity.
func (s *Stager) stageGeography(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	var (
		countryName string
		countryRef  *entity.Value
	)

	for _, origin := range objects(rec, "location.origin") {
		l1 := source.Text(origin["l1"])
		l2 := source.Text(origin["l2"])
		l3 := source.Text(origin["l3"])

		var country *entity.Value
		if l1 != "" {
			res, err := s.ref(ctx, l1, QueryCountry)
			if err != nil {
				return err
			}
			if res.Found {
				v := entity.Ref(res.Ref)
				country = &v
				doc.Append(s.field(FieldCountry), v)
			} else {
				doc.Warn("country %q not found", l1)
			}
			if countryName == "" {
				countryName = l1
				countryRef = country
			}
		}

		var region *entity.Value
		if l2 != "" {
			if l1 == "" {
				doc.Warn("region %q has no country", l2)
				continue
			}
			res, err := s.lookupPair(ctx, QueryRegion, SlotLevel0, l2, SlotLevel1, l1)
			if err != nil {
				return err
			}
			switch {
			case res.Found:
				v := entity.Ref(res.Ref)
				region = &v
			case country != nil:
				v, err := s.fallback(doc, fallback.Region, QueryRegion, l2, *country)
				if err != nil {
					return err
				}
				region = &v
			default:
				doc.Warn("region %q not found and country %q unresolved", l2, l1)
			}
			if region != nil {
				doc.Append(s.field(FieldRegion), *region)
			}
		}

		if l3 != "" {
			if l2 == "" {
				doc.Warn("subregion %q has no region", l3)
				continue
			}
			res, err := s.lookupPair(ctx, QuerySubregion, SlotLevel0, l3, SlotLevel1, l2)
			if err != nil {
				return err
			}
			switch {
			case res.Found:
				doc.Append(s.field(FieldSubregion), entity.Ref(res.Ref))
			case region != nil:
				v, err := s.fallback(doc, fallback.Subregion, QuerySubregion, l3, *region)
				if err != nil {
					return err
				}
				doc.Append(s.field(FieldSubregion), v)
			default:
				doc.Warn("subregion %q not found and region %q unresolved", l3, l2)
			}
		}
	}

	return s.stageOriginPlace(ctx, rec, doc, countryName, countryRef)
}

// stageOriginPlace resolves the place of origin within the first origin
// country when there is one.
func (s *Stager) stageOriginPlace(ctx context.Context, rec *source.Record, doc *entity.Document, countryName string, countryRef *entity.Value) error {
	place := strings.TrimLeftFunc(rec.String("location.place"), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	if place == "" {
		return nil
	}

	var (
		res      resolve.Resolution
		err      error
		template = QueryPlace
	)
	if countryName != "" {
		template = QueryPlaceOfOrigin
		res, err = s.lookupPair(ctx, QueryPlaceOfOrigin, SlotLevel0, place, SlotLevel1, countryName)
	} else {
		res, err = s.ref(ctx, place, QueryPlace)
	}
	if err != nil {
		return err
	}
	if res.Found {
		doc.Set(s.field(FieldOriginPlace), entity.Ref(res.Ref))
		return nil
	}

	var qualifiers []entity.Value
	if countryRef != nil {
		qualifiers = append(qualifiers, *countryRef)
	}
	v, err := s.fallback(doc, fallback.Place, template, place, qualifiers...)
	if err != nil {
		return err
	}
	doc.Set(s.field(FieldOriginPlace), v)
	return nil
}
