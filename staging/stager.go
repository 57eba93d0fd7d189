// Package staging turns source records into staging documents: the
// field and bundle id to value mapping a research data item is saved from.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/fallback"
	"github.com/c360studio/semmigrate/metrics"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/source"
)

// Resolver resolves search values to references. *resolve.Resolver
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, search resolve.Search, template string, mode resolve.Mode) (resolve.Resolution, error)
}

// ValidationError reports mandatory fields absent after all steps ran.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing mandatory fields: " + strings.Join(e.Missing, ", ")
}

// Options tunes value inference.
type Options struct {
	// DateLayout formats parsed dates (Go reference layout).
	DateLayout string `yaml:"date_layout"`

	// DigitalPhotoObjectType is the source object type id of digital photographs.
	DigitalPhotoObjectType string `yaml:"digital_photo_object_type"`

	// GenreAuthorities maps source authority codes to authority labels.
	GenreAuthorities map[string]string `yaml:"genre_authorities"`

	// HolderTemplates are the name qualifiers accepted for role holders;
	// each doubles as the lookup template for that qualifier.
	HolderTemplates []string `yaml:"holder_templates"`
}

// DefaultOptions returns the stock inference settings.
func DefaultOptions() Options {
	return Options{
		DateLayout:             "2006-01-02",
		DigitalPhotoObjectType: "2@3c910145-7057-4112-9484-5d30f968f4d0",
		GenreAuthorities: map[string]string{
			"marc": "Machine-Readable Cataloging",
			"loc":  "LC Genre",
			"aat":  "Art & architecture thesaurus online",
			"tgm2": "Thesaurus For Graphic Materials",
			"none": "No Authority/Uncatalogued Genre",
		},
		HolderTemplates: []string{"person", "institution", "group"},
	}
}

// Stager builds staging documents.
type Stager struct {
	catalog   *catalog.Catalog
	resolver  Resolver
	fallbacks *fallback.Factory
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Stager.
type Option func(*Stager)

// WithOptions replaces the inference settings. Zero fields keep their defaults.
func WithOptions(o Options) Option {
	return func(s *Stager) {
		if o.DateLayout != "" {
			s.opts.DateLayout = o.DateLayout
		}
		if o.DigitalPhotoObjectType != "" {
			s.opts.DigitalPhotoObjectType = o.DigitalPhotoObjectType
		}
		if o.GenreAuthorities != nil {
			s.opts.GenreAuthorities = o.GenreAuthorities
		}
		if o.HolderTemplates != nil {
			s.opts.HolderTemplates = o.HolderTemplates
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Stager) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stager) {
		s.logger = logger
	}
}

// New creates a Stager. Every catalog key the pipeline reads is checked up
// front; a missing one is a catalog.ConfigError.
func New(cat *catalog.Catalog, resolver Resolver, opts ...Option) (*Stager, error) {
	s := &Stager{
		catalog:   cat,
		resolver:  resolver,
		fallbacks: fallback.NewFactory(cat),
		opts:      DefaultOptions(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	req := Requirements(s.opts).Merge(fallback.Requirements())
	if err := cat.Require(req); err != nil {
		return nil, err
	}
	return s, nil
}

// Stage runs every pipeline step against rec and checks the mandatory
// fields. A record missing one fails with *ValidationError.
func (s *Stager) Stage(ctx context.Context, rec *source.Record) (*entity.Document, error) {
	doc := entity.NewDocument()
	for _, st := range PipelineSteps() {
		if err := s.run(ctx, st, rec, doc); err != nil {
			return nil, err
		}
	}

	if missing := s.missingMandatory(rec, doc); len(missing) > 0 {
		return doc, &ValidationError{Missing: missing}
	}

	for _, w := range doc.Warnings {
		s.logger.Debug("Staging warning", "warning", w)
	}
	s.metrics.Warnings(len(doc.Warnings))
	return doc, nil
}

// Field runs one step without touching any shared document and returns
// the values it produced. Keys the step did not write are absent.
func (s *Stager) Field(ctx context.Context, rec *source.Record, step Step) (*entity.Document, error) {
	if !step.valid() {
		return nil, fmt.Errorf("unknown staging step %d", int(step))
	}
	doc := entity.NewDocument()
	if err := s.run(ctx, step, rec, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Keys returns the resolved document keys step may write.
func (s *Stager) Keys(step Step) []string {
	if !step.valid() {
		return nil
	}
	out := make([]string, 0, len(steps[step].keys))
	for _, k := range steps[step].keys {
		if k.bundle {
			out = append(out, s.bundle(k.name))
		} else {
			out = append(out, s.field(k.name))
		}
	}
	return out
}

// ItemBundle returns the resolved bundle id of research data items.
func (s *Stager) ItemBundle() string { return s.bundle(BundleItem) }

func (s *Stager) run(ctx context.Context, st Step, rec *source.Record, doc *entity.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := steps[st].build(s, ctx, rec, doc); err != nil {
		return fmt.Errorf("stage %s: %w", st, err)
	}
	return nil
}

func (s *Stager) missingMandatory(rec *source.Record, doc *entity.Document) []string {
	var missing []string
	if !doc.Has(s.field(FieldResourceType)) {
		missing = append(missing, "resource type")
	}
	if !doc.Has(s.bundle(BundleIdentifier)) {
		missing = append(missing, "identifier")
	}
	if rec.String("project.id") != "" && !doc.Has(s.field(FieldProject)) {
		missing = append(missing, "project")
	}
	return missing
}

// bundle and field read keys validated by New.
func (s *Stager) bundle(key string) string {
	id, _ := s.catalog.Bundle(key)
	return id
}

func (s *Stager) field(key string) string {
	id, _ := s.catalog.Field(key)
	return id
}

// ref resolves value positionally.
func (s *Stager) ref(ctx context.Context, value, template string) (resolve.Resolution, error) {
	return s.resolver.Resolve(ctx, resolve.Scalar(value), template, resolve.Positional)
}

// lookupPair resolves a two-level composite key in conditional mode.
func (s *Stager) lookupPair(ctx context.Context, template, slot0, v0, slot1, v1 string) (resolve.Resolution, error) {
	search := resolve.Composite(map[string]string{slot0: v0, slot1: v1})
	return s.resolver.Resolve(ctx, search, template, resolve.Conditional)
}

// miss selects what happens to a value the lookup did not find.
type miss int

const (
	missSkip miss = iota
	missLiteral
	missFallback
)

type lookupSpec struct {
	template string
	label    string
	onMiss   miss
	kind     fallback.Kind
}

// resolveAll resolves values in order under spec. Misses are skipped with
// a warning, passed through as literals, or replaced by fallback entities.
func (s *Stager) resolveAll(ctx context.Context, doc *entity.Document, values []string, spec lookupSpec) ([]entity.Value, error) {
	out := make([]entity.Value, 0, len(values))
	for _, v := range values {
		res, err := s.ref(ctx, v, spec.template)
		if err != nil {
			return nil, err
		}
		if res.Found {
			out = append(out, entity.Ref(res.Ref))
			continue
		}
		switch spec.onMiss {
		case missLiteral:
			out = append(out, entity.Literal(v))
		case missFallback:
			fb, err := s.fallback(doc, spec.kind, spec.template, v)
			if err != nil {
				return nil, err
			}
			out = append(out, fb)
		default:
			doc.Warn("%s %q not found", spec.label, v)
		}
	}
	return out, nil
}

// fallback builds a new vocabulary entity for a value template missed.
func (s *Stager) fallback(doc *entity.Document, kind fallback.Kind, template, value string, qualifiers ...entity.Value) (entity.Value, error) {
	d, err := s.fallbacks.Build(kind, value, qualifiers...)
	if err != nil {
		return entity.Value{}, err
	}
	s.metrics.Fallback(kind.String())
	doc.NoteFallback(template)
	s.logger.Debug("Created fallback entity", "kind", kind.String(), "template", template, "value", value)
	return entity.Nested(d), nil
}

// objects returns the object elements of the list at path.
func objects(rec *source.Record, path string) []map[string]any {
	list := rec.List(path)
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
