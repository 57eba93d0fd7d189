// Package resolve turns search values into references to existing graph
// entities through named lookup query templates, memoizing every
// definitive answer.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/metrics"
)

// Lookup is the remote lookup service.
type Lookup interface {
	// Lookup runs a filled query and returns the first row's id.
	Lookup(ctx context.Context, query string) (ref string, found bool, err error)
	// Population runs a verbatim listing query and returns its first column.
	Population(ctx context.Context, query string) ([]string, error)
}

// Resolver resolves (search value, template) pairs to references.
type Resolver struct {
	catalog *catalog.Catalog
	lookup  Lookup
	cache   Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache sets the resolution cache. The default is a new MemoryCache.
func WithCache(c Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver.
func New(cat *catalog.Catalog, lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		catalog: cat,
		lookup:  lookup,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewMemoryCache()
	}
	return r
}

// Cache returns the resolver's cache.
func (r *Resolver) Cache() Cache { return r.cache }

// Resolve returns the reference for search under the named template.
// Hits and definitive misses are cached; remote errors are returned and not
// cached. A search whose shape does not match mode, or that does not fill
// the template's slots, fails with catalog.ErrMalformedKey.
func (r *Resolver) Resolve(ctx context.Context, search Search, template string, mode Mode) (Resolution, error) {
	if err := checkShape(search, mode); err != nil {
		return NotFound, err
	}
	key := Key{Template: template, Search: search}
	if res, ok := r.cache.Get(key); ok {
		r.metrics.CacheHit(template)
		return res, nil
	}
	return r.fetch(ctx, key)
}

// Ref resolves a scalar value positionally.
func (r *Resolver) Ref(ctx context.Context, value, template string) (Resolution, error) {
	return r.Resolve(ctx, Scalar(value), template, Positional)
}

// Refresh resolves search remotely regardless of the cache and stores the
// new answer. Used for values that may have been created since they were
// cached as missing.
func (r *Resolver) Refresh(ctx context.Context, search Search, template string, mode Mode) (Resolution, error) {
	if err := checkShape(search, mode); err != nil {
		return NotFound, err
	}
	return r.fetch(ctx, Key{Template: template, Search: search})
}

// Invalidate drops the cached answer for one key.
func (r *Resolver) Invalidate(search Search, template string) {
	r.cache.Delete(Key{Template: template, Search: search})
}

// InvalidateMisses drops every cached miss for template and returns how
// many entries were dropped.
func (r *Resolver) InvalidateMisses(template string) int {
	n := 0
	for _, k := range r.cache.Keys() {
		if k.Template != template {
			continue
		}
		if res, ok := r.cache.Get(k); ok && !res.Found {
			r.cache.Delete(k)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("Dropped cached misses", "template", template, "count", n)
	}
	return n
}

// Population sends the named template verbatim and returns the first
// column of the result. Population queries take no slots.
func (r *Resolver) Population(ctx context.Context, template string) ([]string, error) {
	tmpl, err := r.catalog.Query(template)
	if err != nil {
		return nil, err
	}
	query, err := catalog.Format(tmpl, nil)
	if err != nil {
		return nil, fmt.Errorf("population query %q: %w", template, err)
	}
	values, err := r.lookup.Population(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("population %q: %w", template, err)
	}
	return values, nil
}

func (r *Resolver) fetch(ctx context.Context, key Key) (Resolution, error) {
	tmpl, err := r.catalog.Query(key.Template)
	if err != nil {
		return NotFound, err
	}
	query, err := catalog.Format(tmpl, key.Search.Values())
	if err != nil {
		return NotFound, fmt.Errorf("template %q with %s: %w", key.Template, key.Search, err)
	}

	ref, found, err := r.lookup.Lookup(ctx, query)
	if err != nil {
		r.metrics.Lookup(key.Template, metrics.LookupError)
		return NotFound, fmt.Errorf("lookup %s: %w", key, err)
	}

	res := NotFound
	if found {
		res = Found(ref)
		r.metrics.Lookup(key.Template, metrics.LookupHit)
	} else {
		r.metrics.Lookup(key.Template, metrics.LookupMiss)
	}
	r.cache.Put(key, res)
	r.logger.Debug("Resolved", "template", key.Template, "search", key.Search.String(), "found", found, "ref", ref)
	return res, nil
}

func checkShape(search Search, mode Mode) error {
	switch mode {
	case Positional:
		if search.IsComposite() {
			return fmt.Errorf("%w: composite value %s used with a positional template", catalog.ErrMalformedKey, search)
		}
	case Conditional:
		if !search.IsComposite() {
			return fmt.Errorf("%w: scalar value %q used with a conditional template", catalog.ErrMalformedKey, search)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", catalog.ErrMalformedKey, mode)
	}
	return nil
}
