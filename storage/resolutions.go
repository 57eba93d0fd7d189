// Package storage persists resolution results in a NATS JetStream KV bucket
// so later invocations start with the references earlier runs found.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semmigrate/resolve"
)

var _ resolve.Cache = (*ResolutionCache)(nil)

// BucketResolutions is the default bucket name.
const BucketResolutions = "SEMMIGRATE_RESOLUTIONS"

// bucket is the subset of jetstream.KeyValue the cache uses.
type bucket interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte) error
	delete(ctx context.Context, key string) error
	keys(ctx context.Context) ([]string, error)
}

type jsBucket struct {
	kv jetstream.KeyValue
}

func (b jsBucket) get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

func (b jsBucket) put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

func (b jsBucket) delete(ctx context.Context, key string) error {
	return b.kv.Delete(ctx, key)
}

func (b jsBucket) keys(ctx context.Context) ([]string, error) {
	lister, err := b.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	defer lister.Stop()
	var keys []string
	for k := range lister.Keys() {
		keys = append(keys, k)
	}
	return keys, nil
}

// entry is the stored form of one resolution.
type entry struct {
	Key        resolve.Key        `json:"key"`
	Resolution resolve.Resolution `json:"resolution"`
	StoredAt   time.Time          `json:"stored_at"`
}

// ResolutionCache is a write-through resolve.Cache: every entry lives in
// memory for the run, and found references are also written to the bucket.
// Misses stay process-scoped, since the value may be created before the
// next run.
type ResolutionCache struct {
	mem     *resolve.MemoryCache
	bucket  bucket
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a ResolutionCache.
type Option func(*ResolutionCache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ResolutionCache) {
		c.logger = logger
	}
}

// WithTimeout bounds each bucket operation.
func WithTimeout(d time.Duration) Option {
	return func(c *ResolutionCache) {
		c.timeout = d
	}
}

// NewResolutionCache opens (or creates) the named bucket.
func NewResolutionCache(ctx context.Context, js jetstream.JetStream, name string, opts ...Option) (*ResolutionCache, error) {
	if name == "" {
		name = BucketResolutions
	}
	kv, err := getOrCreateBucket(ctx, js, name)
	if err != nil {
		return nil, fmt.Errorf("create resolutions bucket: %w", err)
	}
	return newResolutionCache(jsBucket{kv: kv}, opts...), nil
}

func newResolutionCache(b bucket, opts ...Option) *ResolutionCache {
	c := &ResolutionCache{
		mem:     resolve.NewMemoryCache(),
		bucket:  b,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Semmigrate %s", strings.ToLower(name)),
		History:     1,
	})
}

// Warm loads every stored entry into memory and returns how many were loaded.
func (c *ResolutionCache) Warm(ctx context.Context) (int, error) {
	keys, err := c.bucket.keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("list resolution keys: %w", err)
	}

	n := 0
	for _, k := range keys {
		data, err := c.bucket.get(ctx, k)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var e entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		c.mem.Put(e.Key, e.Resolution)
		n++
	}
	return n, nil
}

func (c *ResolutionCache) Get(key resolve.Key) (resolve.Resolution, bool) {
	if res, ok := c.mem.Get(key); ok {
		return res, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	data, err := c.bucket.get(ctx, storageKey(key))
	if err != nil {
		if !isNotFound(err) {
			c.logger.Warn("Resolution cache read failed", "key", key.String(), "error", err)
		}
		return resolve.Resolution{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Key != key {
		return resolve.Resolution{}, false
	}
	c.mem.Put(key, e.Resolution)
	return e.Resolution, true
}

func (c *ResolutionCache) Put(key resolve.Key, res resolve.Resolution) {
	c.mem.Put(key, res)
	if !res.Found {
		return
	}

	data, err := json.Marshal(entry{Key: key, Resolution: res, StoredAt: time.Now().UTC()})
	if err != nil {
		c.logger.Warn("Resolution cache encode failed", "key", key.String(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.bucket.put(ctx, storageKey(key), data); err != nil {
		c.logger.Warn("Resolution cache write failed", "key", key.String(), "error", err)
	}
}

func (c *ResolutionCache) Contains(key resolve.Key) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *ResolutionCache) Delete(key resolve.Key) {
	c.mem.Delete(key)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.bucket.delete(ctx, storageKey(key)); err != nil && !isNotFound(err) {
		c.logger.Warn("Resolution cache delete failed", "key", key.String(), "error", err)
	}
}

// Keys returns the keys known to this process.
func (c *ResolutionCache) Keys() []resolve.Key {
	return c.mem.Keys()
}

// storageKey maps a resolution key onto the KV key alphabet.
func storageKey(key resolve.Key) string {
	text, _ := key.Search.MarshalText()
	sum := sha256.Sum256([]byte(key.Template + "\x00" + string(text)))
	return hex.EncodeToString(sum[:])
}
