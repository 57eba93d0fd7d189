package staging

import (
	"context"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/fallback"
	"github.com/c360studio/semmigrate/source"
)

func (s *Stager) stageResourceType(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	value := rec.String("typeOfResource")
	if value == "" {
		if c, ok := s.classify(rec); ok {
			value = c.resourceType
		}
	}
	if value == "" {
		return nil
	}

	res, err := s.ref(ctx, value, QueryResourceType)
	if err != nil {
		return err
	}
	if !res.Found {
		doc.Warn("resource type %q not found", value)
		return nil
	}
	doc.Set(s.field(FieldResourceType), entity.Ref(res.Ref))
	return nil
}

func (s *Stager) stageIdentifiers(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	var ids []entity.Value
	add := func(name, typ string) error {
		d := entity.NewDescriptor(s.bundle(BundleIdentifier)).
			Set(s.field(FieldIdentifierName), entity.Literal(name))
		if typ == "" {
			doc.Warn("identifier %q has no type", name)
		} else {
			res, err := s.ref(ctx, typ, QueryIdentifier)
			if err != nil {
				return err
			}
			if res.Found {
				d.Set(s.field(FieldIdentifierType), entity.Ref(res.Ref))
			} else {
				doc.Warn("identifier type %q not found", typ)
			}
		}
		ids = append(ids, entity.Nested(d))
		return nil
	}

	if dre := rec.String("dre_id"); dre != "" {
		if err := add(dre, DREIdentifierType); err != nil {
			return err
		}
	}
	for _, m := range objects(rec, "identifier") {
		name := source.Text(m["identifier"])
		if name == "" {
			continue
		}
		if err := add(name, source.Text(m["identifier_type"])); err != nil {
			return err
		}
	}
	doc.Set(s.bundle(BundleIdentifier), ids...)
	return nil
}

func (s *Stager) stageProject(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	id := rec.String("project.id")
	if id == "" {
		return nil
	}
	res, err := s.ref(ctx, id, QueryProject)
	if err != nil {
		return err
	}
	if !res.Found {
		doc.Warn("project %q not found", id)
		return nil
	}
	doc.Set(s.field(FieldProject), entity.Ref(res.Ref))
	return nil
}

func (s *Stager) stageCollection(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	refs, err := s.resolveAll(ctx, doc, rec.Strings("collection"), lookupSpec{
		template: QueryCollection,
		label:    "collection",
	})
	if err != nil || len(refs) == 0 {
		return err
	}
	d := entity.NewDescriptor(s.bundle(BundleCollection)).Set(s.field(FieldCollection), refs...)
	doc.Set(s.bundle(BundleCollection), entity.Nested(d))
	return nil
}

func (s *Stager) stageLanguage(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	codes := rec.Strings("language")
	labels := make([]string, len(codes))
	for i, c := range codes {
		labels[i] = s.catalog.Language(c)
	}
	vals, err := s.resolveAll(ctx, doc, labels, lookupSpec{
		template: QueryLanguage,
		onMiss:   missFallback,
		kind:     fallback.Language,
	})
	if err != nil {
		return err
	}
	doc.Set(s.field(FieldLanguage), vals...)
	return nil
}

func (s *Stager) stageCitation(_ context.Context, rec *source.Record, doc *entity.Document) error {
	doc.Set(s.field(FieldCitation), entity.Literals(rec.Strings("citation")...)...)
	return nil
}

func (s *Stager) stageCurrentLocation(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	vals, err := s.resolveAll(ctx, doc, rec.Strings("location.current"), lookupSpec{
		template: QueryPlace,
		onMiss:   missFallback,
		kind:     fallback.Place,
	})
	if err != nil {
		return err
	}
	doc.Set(s.field(FieldLocatedAt), vals...)
	return nil
}

func (s *Stager) stageURL(_ context.Context, rec *source.Record, doc *entity.Document) error {
	doc.Set(s.field(FieldURL), entity.Literals(rec.Strings("url")...)...)
	return nil
}

func (s *Stager) stageCopyright(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	vals, err := s.resolveAll(ctx, doc, rec.Strings("accessCondition.rights"), lookupSpec{
		template: QueryLicense,
		onMiss:   missLiteral,
	})
	if err != nil {
		return err
	}
	doc.Set(s.field(FieldCopyright), vals...)
	return nil
}

func (s *Stager) stageAudience(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	vals, err := s.resolveAll(ctx, doc, rec.Strings("targetAudience"), lookupSpec{
		template: QueryAudience,
		onMiss:   missFallback,
		kind:     fallback.Audience,
	})
	if err != nil {
		return err
	}
	doc.Set(s.field(FieldAudience), vals...)
	return nil
}

func (s *Stager) stageAbstract(_ context.Context, rec *source.Record, doc *entity.Document) error {
	doc.Set(s.field(FieldAbstract), entity.Literals(rec.Strings("abstract")...)...)
	return nil
}

func (s *Stager) stageTableOfContents(_ context.Context, rec *source.Record, doc *entity.Document) error {
	doc.Set(s.field(FieldTOC), entity.Literals(rec.Strings("tableOfContents")...)...)
	return nil
}

func (s *Stager) stageNote(_ context.Context, rec *source.Record, doc *entity.Document) error {
	doc.Set(s.field(FieldNote), entity.Literals(rec.Strings("note")...)...)
	return nil
}

func (s *Stager) stageTags(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	vals, err := s.resolveAll(ctx, doc, rec.Strings("tags"), lookupSpec{
		template: QueryTags,
		onMiss:   missFallback,
		kind:     fallback.Tag,
	})
	if err != nil {
		return err
	}
	doc.Set(s.field(FieldTag), vals...)
	return nil
}

func (s *Stager) stagePreviewImage(_ context.Context, rec *source.Record, doc *entity.Document) error {
	doc.Set(s.field(FieldPreview), entity.Literals(rec.Strings("previewImage")...)...)
	return nil
}

func (s *Stager) stageRepository(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	vals, err := s.resolveAll(ctx, doc, rec.Strings("repository"), lookupSpec{
		template: QueryRepository,
		label:    "repository",
	})
	if err != nil {
		return err
	}
	doc.Set(s.field(FieldRepository), vals...)
	return nil
}

func (s *Stager) stageRelatedItems(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	related := func(expr string) ([]entity.Value, error) {
		v, err := rec.Search(expr)
		if err != nil {
			return nil, err
		}
		return s.resolveAll(ctx, doc, source.Texts(v), lookupSpec{
			template: QueryLinkedData,
			label:    "related item",
		})
	}

	succ, err := related("relatedItems.rel_succ")
	if err != nil {
		return err
	}
	prec, err := related("relatedItems.rel_prec")
	if err != nil {
		return err
	}
	if len(succ) == 0 && len(prec) == 0 {
		return nil
	}

	d := entity.NewDescriptor(s.bundle(BundleCollection)).
		Set(s.field(FieldSucceeds), succ...).
		Set(s.field(FieldPrecedes), prec...)
	doc.Set(s.bundle(BundleCollection), entity.Nested(d))
	return nil
}
