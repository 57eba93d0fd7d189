package vocabulary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/metrics"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/source"
	"golang.org/x/text/unicode/norm"
)

// ErrOutOfOrder is returned when a kind is synchronized before a kind it
// depends on.
var ErrOutOfOrder = errors.New("dependency not synchronized")

// Resolver answers population queries and reference lookups against the
// store. *resolve.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, search resolve.Search, template string, mode resolve.Mode) (resolve.Resolution, error)
	Population(ctx context.Context, template string) ([]string, error)
	InvalidateMisses(template string) int
}

// Store reads and persists entities. *wisski.Client implements it.
type Store interface {
	Get(ctx context.Context, uri string) (*entity.Descriptor, error)
	Save(ctx context.Context, d *entity.Descriptor) (string, error)
}

// Result summarizes one kind's synchronization.
type Result struct {
	Kind    Kind
	Created int
	Present int
	Failed  int
	Errors  []error
}

// SecondaryResult summarizes a secondary-attribute update pass.
type SecondaryResult struct {
	Kind       Kind
	Updated    int
	Unchanged  int
	Unresolved int
	Failed     int
	Errors     []error
}

// Synchronizer creates missing auxiliary entities.
type Synchronizer struct {
	catalog    *catalog.Catalog
	population Population
	resolver   Resolver
	store      Store
	metrics    *metrics.Metrics
	logger     *slog.Logger

	synced map[Kind]bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// New creates a Synchronizer after checking the catalog holds every key it
// reads.
func New(cat *catalog.Catalog, population Population, resolver Resolver, store Store, opts ...Option) (*Synchronizer, error) {
	if err := cat.Require(Requirements()); err != nil {
		return nil, err
	}
	s := &Synchronizer{
		catalog:    cat,
		population: population,
		resolver:   resolver,
		store:      store,
		logger:     slog.Default(),
		synced:     make(map[Kind]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// normalizeName is the comparison form of a name.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Missing returns the source items of kind whose names the store does not
// hold, in source order. Repeated source names keep their first item.
func (s *Synchronizer) Missing(ctx context.Context, kind Kind) ([]source.Item, error) {
	missing, _, err := s.diff(ctx, kind)
	return missing, err
}

func (s *Synchronizer) diff(ctx context.Context, kind Kind) (missing []source.Item, present int, err error) {
	if !kind.valid() {
		return nil, 0, fmt.Errorf("unknown vocabulary kind %d", int(kind))
	}
	spec := kinds[kind]

	items, err := s.population.Items(ctx, kind)
	if err != nil {
		return nil, 0, fmt.Errorf("read source %s: %w", kind, err)
	}
	names, err := s.resolver.Population(ctx, spec.population)
	if err != nil {
		return nil, 0, fmt.Errorf("read store %s: %w", kind, err)
	}

	inStore := make(map[string]bool, len(names))
	for _, n := range names {
		inStore[normalizeName(n)] = true
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		key := normalizeName(item.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if inStore[key] {
			present++
			continue
		}
		missing = append(missing, item)
	}
	return missing, present, nil
}

func (s *Synchronizer) checkOrder(kind Kind) error {
	for _, dep := range kinds[kind].dependsOn {
		if !s.synced[dep] {
			return fmt.Errorf("%s before %s: %w", kind, dep, ErrOutOfOrder)
		}
	}
	return nil
}

// Update creates one entity per missing item of kind. A failed item is
// recorded and does not stop the others. Cached misses for the kind's
// lookup template are dropped afterwards so records see the new entities.
func (s *Synchronizer) Update(ctx context.Context, kind Kind) (Result, error) {
	res := Result{Kind: kind}
	if !kind.valid() {
		return res, fmt.Errorf("unknown vocabulary kind %d", int(kind))
	}
	if err := s.checkOrder(kind); err != nil {
		return res, err
	}
	spec := kinds[kind]

	missing, present, err := s.diff(ctx, kind)
	if err != nil {
		return res, err
	}
	res.Present = present

	for _, item := range missing {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d, err := s.build(ctx, spec, item)
		if err == nil {
			var uri string
			uri, err = s.store.Save(ctx, d)
			if err == nil {
				res.Created++
				s.logger.Info("Created vocabulary entity", "kind", kind.String(), "name", item.Name, "uri", uri)
				continue
			}
		}
		if catalog.IsConfigError(err) || errors.Is(err, catalog.ErrMalformedKey) {
			return res, err
		}
		res.Failed++
		res.Errors = append(res.Errors, fmt.Errorf("%s %q: %w", kind, item.Name, err))
		s.logger.Warn("Failed to create vocabulary entity", "kind", kind.String(), "name", item.Name, "error", err)
	}

	if res.Created > 0 {
		s.resolver.InvalidateMisses(spec.lookup)
	}
	s.metrics.Synced(kind.String(), res.Created, res.Present)
	s.synced[kind] = true
	return res, nil
}

// build stages the entity for a missing item. An unresolvable secondary
// reference is left out.
func (s *Synchronizer) build(ctx context.Context, spec kindSpec, item source.Item) (*entity.Descriptor, error) {
	bundle, err := s.catalog.Bundle(spec.bundle)
	if err != nil {
		return nil, err
	}
	field, err := s.catalog.Field(spec.field)
	if err != nil {
		return nil, err
	}
	d := entity.NewDescriptor(bundle).Set(field, entity.Literal(strings.TrimSpace(item.Name)))

	if spec.secondary == nil || item.Secondary == "" {
		return d, nil
	}
	v, ok, err := s.secondary(ctx, spec.secondary, item.Secondary)
	if err != nil {
		return nil, err
	}
	if ok {
		sf, err := s.catalog.Field(spec.secondary.field)
		if err != nil {
			return nil, err
		}
		d.Set(sf, v)
	} else {
		s.logger.Warn("Secondary attribute not found", "kind", spec.name, "name", item.Name, "value", item.Secondary)
	}
	return d, nil
}

func (s *Synchronizer) secondary(ctx context.Context, sec *secondarySpec, value string) (entity.Value, bool, error) {
	if sec.template == "" {
		return entity.Literal(value), true, nil
	}
	res, err := s.resolver.Resolve(ctx, resolve.Scalar(value), sec.template, resolve.Positional)
	if err != nil || !res.Found {
		return entity.Value{}, false, err
	}
	return entity.Ref(res.Ref), true, nil
}

// Run synchronizes kinds and everything they depend on, dependencies
// first. Each kind runs once.
func (s *Synchronizer) Run(ctx context.Context, requested ...Kind) ([]Result, error) {
	var results []Result
	for _, k := range order(requested) {
		if s.synced[k] {
			continue
		}
		res, err := s.Update(ctx, k)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// order expands kinds with their dependencies and sorts them so every kind
// follows the kinds it depends on.
func order(requested []Kind) []Kind {
	want := make(map[Kind]bool)
	var visit func(Kind)
	visit = func(k Kind) {
		if want[k] || !k.valid() {
			return
		}
		want[k] = true
		for _, dep := range kinds[k].dependsOn {
			visit(dep)
		}
	}
	for _, k := range requested {
		visit(k)
	}

	out := make([]Kind, 0, len(want))
	for _, k := range AllKinds() {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}

// UpdateAffiliations rewrites the affiliation of persons already in the
// store. It never creates persons.
func (s *Synchronizer) UpdateAffiliations(ctx context.Context) (SecondaryResult, error) {
	return s.UpdateSecondary(ctx, Persons)
}

// UpdateSecondary overwrites the secondary reference of existing entities
// of kind with the one the source currently gives. Entities whose value
// already matches are left alone. The kinds the reference points to are
// synchronized first; repeated source names keep their first item.
func (s *Synchronizer) UpdateSecondary(ctx context.Context, kind Kind) (SecondaryResult, error) {
	res := SecondaryResult{Kind: kind}
	if !kind.valid() {
		return res, fmt.Errorf("unknown vocabulary kind %d", int(kind))
	}
	spec := kinds[kind]
	if spec.secondary == nil || spec.secondary.template == "" {
		return res, fmt.Errorf("%s has no secondary reference", kind)
	}
	if _, err := s.Run(ctx, spec.dependsOn...); err != nil {
		return res, err
	}
	field, err := s.catalog.Field(spec.secondary.field)
	if err != nil {
		return res, err
	}

	items, err := s.population.Items(ctx, kind)
	if err != nil {
		return res, fmt.Errorf("read source %s: %w", kind, err)
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		key := normalizeName(item.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if item.Secondary == "" {
			continue
		}
		changed, found, err := s.overwriteSecondary(ctx, spec, field, item)
		switch {
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("%s %q: %w", kind, item.Name, err))
			s.logger.Warn("Failed to update secondary attribute", "kind", kind.String(), "name", item.Name, "error", err)
		case !found:
			res.Unresolved++
		case changed:
			res.Updated++
		default:
			res.Unchanged++
		}
	}
	return res, nil
}

func (s *Synchronizer) overwriteSecondary(ctx context.Context, spec kindSpec, field string, item source.Item) (changed, found bool, err error) {
	owner, err := s.resolver.Resolve(ctx, resolve.Scalar(strings.TrimSpace(item.Name)), spec.lookup, resolve.Positional)
	if err != nil || !owner.Found {
		return false, false, err
	}
	v, ok, err := s.secondary(ctx, spec.secondary, item.Secondary)
	if err != nil || !ok {
		return false, false, err
	}

	d, err := s.store.Get(ctx, owner.Ref)
	if err != nil {
		return false, true, err
	}
	if cur := d.Get(field); len(cur) == 1 && cur[0] == v {
		return false, true, nil
	}
	d.Set(field, v)
	if _, err := s.store.Save(ctx, d); err != nil {
		return false, true, err
	}
	s.logger.Info("Updated secondary attribute", "kind", spec.name, "name", item.Name, "uri", owner.Ref)
	return true, true, nil
}
