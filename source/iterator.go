package source

import (
	"context"
	"io"
)

// Iterator yields records one at a time. Next returns io.EOF after the
// last record.
type Iterator interface {
	Next(ctx context.Context) (*Record, error)
	Close() error
}

// SliceIterator iterates over records held in memory.
type SliceIterator struct {
	records []*Record
	pos     int
}

// NewSliceIterator creates an iterator over records.
func NewSliceIterator(records []*Record) *SliceIterator {
	return &SliceIterator{records: records}
}

func (it *SliceIterator) Next(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.records) {
		return nil, io.EOF
	}
	r := it.records[it.pos]
	it.pos++
	return r, nil
}

func (it *SliceIterator) Close() error { return nil }

// MapIterator applies fn to every record of an underlying iterator.
type MapIterator struct {
	inner Iterator
	fn    func(*Record) *Record
}

// Map wraps it so every record passes through fn.
func Map(it Iterator, fn func(*Record) *Record) *MapIterator {
	return &MapIterator{inner: it, fn: fn}
}

func (it *MapIterator) Next(ctx context.Context) (*Record, error) {
	r, err := it.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	return it.fn(r), nil
}

func (it *MapIterator) Close() error { return it.inner.Close() }

// Collect drains it into a slice.
func Collect(ctx context.Context, it Iterator) ([]*Record, error) {
	var out []*Record
	for {
		r, err := it.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}
