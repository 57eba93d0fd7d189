package storage

import (
	"errors"

	"github.com/nats-io/nats.go/jetstream"
)

// Common storage errors.
var (
	// ErrNotFound is returned when a key is not in the bucket.
	ErrNotFound = errors.New("key not found")
)

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, ErrNotFound)
}
