// Package upload drives a batch of source records through staging into the
// store. One record's failure never stops the batch; failures are kept in
// an error artifact that a later run can retry.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/metrics"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/source"
)

// ErrAlreadyExists marks a record whose entity is already in the store.
var ErrAlreadyExists = errors.New("already exists")

// Stager stages one record. *staging.Stager implements it.
type Stager interface {
	Stage(ctx context.Context, rec *source.Record) (*entity.Document, error)
	ItemBundle() string
}

// Store persists entities. *wisski.Client implements it.
type Store interface {
	Save(ctx context.Context, d *entity.Descriptor) (string, error)
}

// Resolver checks for existing items and drops stale cached misses.
// *resolve.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, search resolve.Search, template string, mode resolve.Mode) (resolve.Resolution, error)
	InvalidateMisses(template string) int
}

// Options bounds and keys a run.
type Options struct {
	// KeyPath is the record path identifying a record in logs, the
	// artifact and the existence check.
	KeyPath string `yaml:"key_path"`

	// ExistsTemplate looks up the record key in the store; a hit skips the
	// record. Empty disables the check.
	ExistsTemplate string `yaml:"exists_template"`

	// Limit caps successful uploads per run. Zero is unlimited.
	Limit int `yaml:"limit"`

	// PerCategory caps successful uploads per value of CategoryPath.
	PerCategory  int    `yaml:"per_category"`
	CategoryPath string `yaml:"category_path"`

	// ArtifactPath is where failures are written. Empty disables the artifact.
	ArtifactPath string `yaml:"artifact_path"`
}

// DefaultOptions returns the stock run options.
func DefaultOptions() Options {
	return Options{
		KeyPath:        "dre_id",
		ExistsTemplate: "dreID",
		CategoryPath:   "project.id",
		ArtifactPath:   "errors.json",
	}
}

// EasydbOptions keys records by their easydb global object id, the
// identifier the easydb adapter writes, and checks existence through
// template. The other fields of base are kept.
func EasydbOptions(base Options, template string) Options {
	base.KeyPath = source.EasydbKeyPath
	base.ExistsTemplate = template
	return base
}

// Summary reports a run.
type Summary struct {
	RunID       string
	Succeeded   int
	Skipped     int
	Failed      int
	Capped      int
	Interrupted bool
	Failures    []Failure
}

// IsFatal reports whether err must end the run rather than fail one record.
func IsFatal(err error) bool {
	return catalog.IsConfigError(err) || errors.Is(err, catalog.ErrMalformedKey)
}

// Orchestrator runs upload batches.
type Orchestrator struct {
	stager   Stager
	store    Store
	resolver Resolver
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOptions sets the run options.
func WithOptions(o Options) Option {
	return func(u *Orchestrator) {
		u.opts = o
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Orchestrator) {
		u.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Orchestrator) {
		u.logger = logger
	}
}

// New creates an Orchestrator.
func New(stager Stager, store Store, resolver Resolver, opts ...Option) *Orchestrator {
	u := &Orchestrator{
		stager:   stager,
		store:    store,
		resolver: resolver,
		opts:     DefaultOptions(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type run struct {
	summary    Summary
	uploaded   map[string]bool
	categories map[string]int
}

// Run uploads every record of it. Cancellation is observed between
// records: a record already started runs to completion. The error
// artifact is rewritten after every failure and once more on return,
// whatever the exit path. Run returns an error only for
// fatal errors, iterator failures and cancellation; the summary is valid
// in every case.
func (u *Orchestrator) Run(ctx context.Context, it source.Iterator) (summary Summary, err error) {
	r := &run{
		summary:    Summary{RunID: uuid.NewString()},
		uploaded:   make(map[string]bool),
		categories: make(map[string]int),
	}
	defer func() {
		summary = r.summary
		if werr := u.flush(&r.summary, true); werr != nil {
			u.logger.Error("Failed to write error artifact", "path", u.opts.ArtifactPath, "error", werr)
			if err == nil {
				err = werr
			}
		}
	}()

	u.logger.Info("Upload started", "run_id", r.summary.RunID)
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			r.summary.Interrupted = true
			u.logger.Warn("Upload interrupted", "run_id", r.summary.RunID, "index", index)
			return r.summary, err
		}
		if u.opts.Limit > 0 && r.summary.Succeeded >= u.opts.Limit {
			u.logger.Info("Upload limit reached", "limit", u.opts.Limit)
			break
		}

		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				r.summary.Interrupted = true
			}
			return r.summary, fmt.Errorf("read record %d: %w", index, err)
		}

		if err := u.handle(ctx, r, index, rec); err != nil {
			return r.summary, err
		}
	}

	u.logger.Info("Upload finished",
		"run_id", r.summary.RunID,
		"succeeded", r.summary.Succeeded,
		"skipped", r.summary.Skipped,
		"failed", r.summary.Failed,
		"capped", r.summary.Capped)
	return r.summary, nil
}

// handle processes one record and books its outcome. Only fatal errors are
// returned.
func (u *Orchestrator) handle(ctx context.Context, r *run, index int, rec *source.Record) error {
	key := rec.String(u.opts.KeyPath)
	category := ""
	if u.opts.PerCategory > 0 && u.opts.CategoryPath != "" {
		category = rec.String(u.opts.CategoryPath)
		if r.categories[category] >= u.opts.PerCategory {
			r.summary.Capped++
			u.metrics.Record(metrics.RecordCapped)
			return nil
		}
	}

	if key != "" && r.uploaded[key] {
		u.skip(r, index, key)
		return nil
	}

	uri, err := u.process(context.WithoutCancel(ctx), key, rec)
	switch {
	case err == nil:
		r.summary.Succeeded++
		r.categories[category]++
		if key != "" {
			r.uploaded[key] = true
		}
		u.metrics.Record(metrics.RecordSucceeded)
		u.logger.Info("Uploaded record", "index", index, "record", key, "uri", uri)
		return nil
	case errors.Is(err, ErrAlreadyExists):
		u.skip(r, index, key)
		return nil
	}

	r.summary.Failed++
	r.summary.Failures = append(r.summary.Failures, Failure{
		Index:  index,
		Key:    key,
		Error:  err.Error(),
		Record: rec,
	})
	u.metrics.Record(metrics.RecordFailed)
	u.logger.Warn("Record failed", "index", index, "record", key, "error", err)

	if werr := u.flush(&r.summary, false); werr != nil {
		u.logger.Error("Failed to write error artifact", "path", u.opts.ArtifactPath, "error", werr)
	}
	if IsFatal(err) {
		return err
	}
	return nil
}

func (u *Orchestrator) skip(r *run, index int, key string) {
	r.summary.Skipped++
	u.metrics.Record(metrics.RecordSkipped)
	u.logger.Info("Record already in store", "index", index, "record", key)
}

// process stages and saves one record. A panic in any step fails only this
// record.
func (u *Orchestrator) process(ctx context.Context, key string, rec *source.Record) (uri string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing record: %v", p)
		}
	}()

	if key != "" && u.opts.ExistsTemplate != "" {
		res, err := u.resolver.Resolve(ctx, resolve.Scalar(key), u.opts.ExistsTemplate, resolve.Positional)
		if err != nil {
			return "", fmt.Errorf("existence check: %w", err)
		}
		if res.Found {
			return "", fmt.Errorf("%s: %w", res.Ref, ErrAlreadyExists)
		}
	}

	doc, err := u.stager.Stage(ctx, rec)
	if err != nil {
		return "", err
	}
	uri, err = u.store.Save(ctx, doc.Descriptor(u.stager.ItemBundle()))
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	for _, t := range doc.Fallbacks {
		u.resolver.InvalidateMisses(t)
	}
	return uri, nil
}

// flush writes the artifact when one is configured.
func (u *Orchestrator) flush(s *Summary, complete bool) error {
	if u.opts.ArtifactPath == "" {
		return nil
	}
	return WriteArtifact(u.opts.ArtifactPath, &Artifact{
		RunID:          s.RunID,
		WrittenAt:      u.now().UTC(),
		KeyPath:        u.opts.KeyPath,
		ExistsTemplate: u.opts.ExistsTemplate,
		Complete:       complete && !s.Interrupted,
		Failures:       append([]Failure{}, s.Failures...),
	})
}
