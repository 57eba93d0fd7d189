package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStager struct {
	calls  int
	onCall func(ctx context.Context, n int, rec *source.Record) error
}

func (f *fakeStager) Stage(ctx context.Context, rec *source.Record) (*entity.Document, error) {
	f.calls++
	if f.onCall != nil {
		if err := f.onCall(ctx, f.calls, rec); err != nil {
			return nil, err
		}
	}
	switch rec.String("behaviour") {
	case "panic":
		panic("index out of range")
	case "invalid":
		return nil, errors.New("missing mandatory fields: resource type")
	}
	doc := entity.NewDocument()
	doc.Set("f_title", entity.Literal(rec.String("dre_id")))
	if rec.String("behaviour") == "fallback" {
		doc.NoteFallback("tags")
	}
	return doc, nil
}

func (f *fakeStager) ItemBundle() string { return "g_item" }

type fakeStore struct {
	saved []*entity.Descriptor
}

func (f *fakeStore) Save(_ context.Context, d *entity.Descriptor) (string, error) {
	f.saved = append(f.saved, d)
	return fmt.Sprintf("http://store/data/%d", len(f.saved)), nil
}

type fakeResolver struct {
	existing    map[string]string
	queried     []string
	invalidated []string
}

func (f *fakeResolver) Resolve(_ context.Context, search resolve.Search, template string, _ resolve.Mode) (resolve.Resolution, error) {
	f.queried = append(f.queried, template+":"+search.Values()[catalog.SearchValueSlot])
	if ref, ok := f.existing[search.Values()[catalog.SearchValueSlot]]; ok {
		return resolve.Found(ref), nil
	}
	return resolve.NotFound, nil
}

func (f *fakeResolver) InvalidateMisses(template string) int {
	f.invalidated = append(f.invalidated, template)
	return 0
}

func records(specs ...string) source.Iterator {
	var out []*source.Record
	for i, behaviour := range specs {
		out = append(out, source.RecordFromMap(map[string]any{
			"dre_id":    fmt.Sprintf("dre-%d", i),
			"behaviour": behaviour,
			"project":   map[string]any{"id": "p1"},
		}))
	}
	return source.NewSliceIterator(out)
}

func newOrchestrator(t *testing.T, stager *fakeStager, store *fakeStore, res *fakeResolver, mutate func(*Options)) (*Orchestrator, string) {
	t.Helper()
	opts := DefaultOptions()
	opts.ArtifactPath = filepath.Join(t.TempDir(), "errors.json")
	if mutate != nil {
		mutate(&opts)
	}
	return New(stager, store, res, WithOptions(opts)), opts.ArtifactPath
}

func TestRunIsolatesFailures(t *testing.T) {
	stager := &fakeStager{}
	store := &fakeStore{}
	u, path := newOrchestrator(t, stager, store, &fakeResolver{}, nil)

	summary, err := u.Run(context.Background(), records("ok", "panic", "ok", "invalid", "ok"))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, store.saved, 3)
	assert.Equal(t, "g_item", store.saved[0].Bundle)

	a, err := LoadErrorArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, a.RunID)
	assert.True(t, a.Complete)
	require.Len(t, a.Failures, 2)
	assert.Equal(t, 1, a.Failures[0].Index)
	assert.Equal(t, "dre-1", a.Failures[0].Key)
	assert.Contains(t, a.Failures[0].Error, "panic")
	assert.Equal(t, 3, a.Failures[1].Index)
	assert.Equal(t, "panic", a.Failures[0].Record.String("behaviour"))

	retry, err := source.Collect(context.Background(), a.Iterator())
	require.NoError(t, err)
	require.Len(t, retry, 2)
	assert.Equal(t, "dre-3", retry[1].String("dre_id"))
}

func TestRunSkipsExisting(t *testing.T) {
	store := &fakeStore{}
	res := &fakeResolver{existing: map[string]string{"dre-0": "http://store/data/old"}}
	u, _ := newOrchestrator(t, &fakeStager{}, store, res, nil)

	it := source.NewSliceIterator([]*source.Record{
		source.RecordFromMap(map[string]any{"dre_id": "dre-0"}),
		source.RecordFromMap(map[string]any{"dre_id": "dre-1"}),
		source.RecordFromMap(map[string]any{"dre_id": "dre-1"}),
	})
	summary, err := u.Run(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
}

func TestRunCaps(t *testing.T) {
	t.Run("total limit", func(t *testing.T) {
		stager := &fakeStager{}
		u, _ := newOrchestrator(t, stager, &fakeStore{}, &fakeResolver{}, func(o *Options) {
			o.Limit = 2
		})
		summary, err := u.Run(context.Background(), records("ok", "invalid", "ok", "ok", "ok"))
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Succeeded)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 3, stager.calls)
	})

	t.Run("per category", func(t *testing.T) {
		it := source.NewSliceIterator([]*source.Record{
			source.RecordFromMap(map[string]any{"dre_id": "a", "project": map[string]any{"id": "p1"}}),
			source.RecordFromMap(map[string]any{"dre_id": "b", "project": map[string]any{"id": "p1"}}),
			source.RecordFromMap(map[string]any{"dre_id": "c", "project": map[string]any{"id": "p2"}}),
		})
		u, _ := newOrchestrator(t, &fakeStager{}, &fakeStore{}, &fakeResolver{}, func(o *Options) {
			o.PerCategory = 1
		})
		summary, err := u.Run(context.Background(), it)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Succeeded)
		assert.Equal(t, 1, summary.Capped)
	})
}

func TestRunFinishesRecordOnInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stager := &fakeStager{onCall: func(ctx context.Context, n int, _ *source.Record) error {
		if n == 2 {
			cancel()
			// The record in flight does not see the interrupt.
			return ctx.Err()
		}
		return nil
	}}
	store := &fakeStore{}
	u, path := newOrchestrator(t, stager, store, &fakeResolver{}, nil)

	summary, err := u.Run(ctx, records("ok", "ok", "ok"))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 2, stager.calls)
	assert.Len(t, store.saved, 2)

	a, err := LoadErrorArtifact(path)
	require.NoError(t, err)
	assert.False(t, a.Complete)
	assert.Empty(t, a.Failures)
}

func TestRunStopsOnFatalError(t *testing.T) {
	stager := &fakeStager{onCall: func(_ context.Context, n int, _ *source.Record) error {
		if n == 2 {
			return &catalog.ConfigError{Kind: "query", Key: "typeofresource", Err: errors.New("not configured")}
		}
		return nil
	}}
	u, path := newOrchestrator(t, stager, &fakeStore{}, &fakeResolver{}, nil)

	summary, err := u.Run(context.Background(), records("ok", "ok", "ok"))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, stager.calls)

	a, err := LoadErrorArtifact(path)
	require.NoError(t, err)
	assert.Len(t, a.Failures, 1)
}

func TestRunDropsStaleMisses(t *testing.T) {
	res := &fakeResolver{}
	u, _ := newOrchestrator(t, &fakeStager{}, &fakeStore{}, res, func(o *Options) {
		o.ExistsTemplate = ""
	})
	_, err := u.Run(context.Background(), records("fallback", "ok"))
	require.NoError(t, err)
	assert.Equal(t, []string{"tags"}, res.invalidated)
}

func TestRunSkipsExistingEasydbRows(t *testing.T) {
	row := source.NewRecord()
	row.Set(source.ColGlobalObjectID, "7@xyz")
	row.Set(source.ColTitle, "Market")
	rec := source.NewEasydbAdapter().Adapt(row)

	tests := []struct {
		name        string
		opts        func(Options) Options
		wantQueried []string
		wantSaved   int
	}{
		{
			name:        "easydb options",
			opts:        func(o Options) Options { return EasydbOptions(o, "easydbID") },
			wantQueried: []string{"easydbID:7@xyz", "easydbID:7@xyz"},
			wantSaved:   1,
		},
		{
			name:      "record options miss the easydb key",
			opts:      func(o Options) Options { return o },
			wantSaved: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			res := &fakeResolver{existing: map[string]string{}}
			u, path := newOrchestrator(t, &fakeStager{}, store, res, func(o *Options) {
				*o = tt.opts(*o)
			})

			first, err := u.Run(context.Background(), source.NewSliceIterator([]*source.Record{rec}))
			require.NoError(t, err)
			assert.Equal(t, 1, first.Succeeded)
			res.existing["7@xyz"] = "http://store/data/1"

			second, err := u.Run(context.Background(), source.NewSliceIterator([]*source.Record{rec}))
			require.NoError(t, err)
			assert.Len(t, store.saved, tt.wantSaved)
			assert.Equal(t, tt.wantSaved == 1, second.Skipped == 1)
			assert.Equal(t, tt.wantQueried, res.queried)

			a, err := LoadErrorArtifact(path)
			require.NoError(t, err)
			retry := a.Options(DefaultOptions())
			assert.Equal(t, u.opts.KeyPath, retry.KeyPath)
			assert.Equal(t, u.opts.ExistsTemplate, retry.ExistsTemplate)
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("format: %w", catalog.ErrMalformedKey)))
	assert.False(t, IsFatal(errors.New("store unavailable")))
}
