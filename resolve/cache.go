package resolve

import "sync"

// Cache stores resolutions, misses included. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(key Key) (Resolution, bool)
	Put(key Key, res Resolution)
	Contains(key Key) bool
	Delete(key Key)
	Keys() []Key
}

// MemoryCache is a process-scoped Cache. It grows monotonically; entries
// leave only through Delete.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[Key]Resolution
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[Key]Resolution)}
}

func (c *MemoryCache) Get(key Key) (Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[key]
	return res, ok
}

func (c *MemoryCache) Put(key Key, res Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = res
}

func (c *MemoryCache) Contains(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

func (c *MemoryCache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
