package staging

import (
	"context"
	"slices"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/fallback"
	"github.com/c360studio/semmigrate/source"
)

// stageAssociatedEntities builds one associated-person entity per sponsor
// and per named role holder. Every sponsor is kept.
func (s *Stager) stageAssociatedEntities(ctx context.Context, rec *source.Record, doc *entity.Document) error {
	var out []entity.Value

	if sponsors := rec.Strings("sponsor"); len(sponsors) > 0 {
		role, err := s.ref(ctx, SponsorRole, QueryRole)
		if err != nil {
			return err
		}
		if !role.Found {
			doc.Warn("role %q not found", SponsorRole)
		}
		vals, err := s.resolveAll(ctx, doc, sponsors, lookupSpec{
			template: QuerySponsor,
			onMiss:   missFallback,
			kind:     fallback.Sponsor,
		})
		if err != nil {
			return err
		}
		for _, v := range vals {
			d := entity.NewDescriptor(s.bundle(BundleAssociatedPerson)).Set(s.field(FieldSponsor), v)
			if role.Found {
				d.Set(s.field(FieldRole), entity.Ref(role.Ref))
			}
			out = append(out, entity.Nested(d))
		}
	}

	for _, m := range objects(rec, "name") {
		name, _ := m["name"].(map[string]any)
		label := source.Text(name["label"])
		if label == "" {
			continue
		}
		qualifier := source.Text(name["qualifier"])
		if qualifier == "" {
			qualifier = "person"
		}
		if !slices.Contains(s.opts.HolderTemplates, qualifier) {
			doc.Warn("name %q has unsupported qualifier %q", label, qualifier)
			continue
		}

		holder, err := s.ref(ctx, label, qualifier)
		if err != nil {
			return err
		}
		if !holder.Found {
			doc.Warn("%s %q not found", qualifier, label)
			continue
		}
		d := entity.NewDescriptor(s.bundle(BundleAssociatedPerson)).
			Set(s.field(FieldRoleHolder), entity.Ref(holder.Ref))

		if roleName := source.Text(m["role"]); roleName != "" {
			role, err := s.ref(ctx, roleName, QueryRole)
			if err != nil {
				return err
			}
			if role.Found {
				d.Set(s.field(FieldRole), entity.Ref(role.Ref))
			} else {
				doc.Warn("role %q not found", roleName)
			}
		}
		out = append(out, entity.Nested(d))
	}

	doc.Set(s.bundle(BundleAssociatedPerson), out...)
	return nil
}
