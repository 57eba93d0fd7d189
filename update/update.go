// Package update recomputes selected fields of items already in the store
// from their source records.
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/source"
	"github.com/c360studio/semmigrate/staging"
	"github.com/c360studio/semmigrate/upload"
)

// ErrNotInStore is returned when a record's item cannot be located.
var ErrNotInStore = errors.New("item not in store")

// Stager computes single steps. *staging.Stager implements it.
type Stager interface {
	Field(ctx context.Context, rec *source.Record, step staging.Step) (*entity.Document, error)
	Keys(step staging.Step) []string
}

// Store reads and writes entities. *wisski.Client implements it.
type Store interface {
	Get(ctx context.Context, uri string) (*entity.Descriptor, error)
	Save(ctx context.Context, d *entity.Descriptor) (string, error)
}

// Resolver locates items and drops cached misses that a save made stale.
// *resolve.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, search resolve.Search, template string, mode resolve.Mode) (resolve.Resolution, error)
	InvalidateMisses(template string) int
}

// Options controls how recomputed values are applied.
type Options struct {
	// DryRun computes changes without saving.
	DryRun bool
	// Append adds recomputed values to the existing ones instead of
	// replacing them.
	Append bool
	// KeyPath is the record path holding the item key.
	KeyPath string
	// LocateTemplate looks the key up in the store.
	LocateTemplate string
}

// DefaultOptions replaces fields and locates items by their DRE id.
func DefaultOptions() Options {
	return Options{KeyPath: "dre_id", LocateTemplate: "dreID"}
}

// Change is one field whose values differ after recomputation.
type Change struct {
	Key    string
	Before []entity.Value
	After  []entity.Value
}

// Result describes the update of one item.
type Result struct {
	URI      string
	Changes  []Change
	Saved    bool
	Warnings []string
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Updated   int
	Unchanged int
	Missing   int
	Failed    int
	Errors    []error
}

// Updater applies single-step recomputations.
type Updater struct {
	stager   Stager
	store    Store
	resolver Resolver
	opts     Options
	logger   *slog.Logger
}

// New creates an Updater. Zero option fields take their defaults.
func New(stager Stager, store Store, resolver Resolver, opts Options, logger *slog.Logger) *Updater {
	def := DefaultOptions()
	if opts.KeyPath == "" {
		opts.KeyPath = def.KeyPath
	}
	if opts.LocateTemplate == "" {
		opts.LocateTemplate = def.LocateTemplate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{stager: stager, store: store, resolver: resolver, opts: opts, logger: logger}
}

// Update recomputes steps for the item rec describes. In replace mode a key
// the step no longer produces is cleared.
func (u *Updater) Update(ctx context.Context, rec *source.Record, steps []staging.Step) (Result, error) {
	var res Result
	key := rec.String(u.opts.KeyPath)
	if key == "" {
		return res, fmt.Errorf("record has no %s", u.opts.KeyPath)
	}

	loc, err := u.resolver.Resolve(ctx, resolve.Scalar(key), u.opts.LocateTemplate, resolve.Positional)
	if err != nil {
		return res, fmt.Errorf("locate %s: %w", key, err)
	}
	if !loc.Found {
		return res, fmt.Errorf("%s: %w", key, ErrNotInStore)
	}
	res.URI = loc.Ref

	d, err := u.store.Get(ctx, loc.Ref)
	if err != nil {
		return res, fmt.Errorf("get %s: %w", loc.Ref, err)
	}
	if d.URI == "" {
		d.URI = loc.Ref
	}

	var fallbacks []string
	for _, st := range steps {
		frag, err := u.stager.Field(ctx, rec, st)
		if err != nil {
			return res, err
		}
		res.Warnings = append(res.Warnings, frag.Warnings...)
		fallbacks = append(fallbacks, frag.Fallbacks...)

		for _, k := range u.stager.Keys(st) {
			before := d.Get(k)
			after, produced := frag.Get(k)
			switch {
			case u.opts.Append && !produced:
				continue
			case u.opts.Append:
				d.Add(k, after...)
			default:
				d.Set(k, after...)
			}
			if now := d.Get(k); !reflect.DeepEqual(before, now) {
				res.Changes = append(res.Changes, Change{Key: k, Before: before, After: now})
			}
		}
	}

	if len(res.Changes) == 0 || u.opts.DryRun {
		return res, nil
	}
	if _, err := u.store.Save(ctx, d); err != nil {
		return res, fmt.Errorf("save %s: %w", loc.Ref, err)
	}
	res.Saved = true
	for _, t := range fallbacks {
		u.resolver.InvalidateMisses(t)
	}
	u.logger.Info("Updated item", "record", key, "uri", loc.Ref, "changes", len(res.Changes))
	return res, nil
}

// Run updates every record of it. Per-record failures are counted and do
// not stop the batch; fatal errors do.
func (u *Updater) Run(ctx context.Context, it source.Iterator, steps []staging.Step) (Summary, error) {
	var sum Summary
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return sum, err
		}

		res, err := u.Update(ctx, rec, steps)
		switch {
		case errors.Is(err, ErrNotInStore):
			sum.Missing++
			u.logger.Warn("Item not in store", "record", rec.String(u.opts.KeyPath))
		case err != nil:
			if upload.IsFatal(err) {
				return sum, err
			}
			sum.Failed++
			sum.Errors = append(sum.Errors, err)
			u.logger.Warn("Update failed", "record", rec.String(u.opts.KeyPath), "error", err)
		case len(res.Changes) == 0:
			sum.Unchanged++
		default:
			sum.Updated++
		}
	}
}
