package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	errs "github.com/compiler-explorer/explain/pkg/errors"
)

// MemoryCache is an in-process cache with LRU eviction. It is the default
// backend for single-instance deployments.
type MemoryCache struct {
	config  Config
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	stats   Stats
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	size      int64
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(config Config) *MemoryCache {
	return &MemoryCache{
		config:  config,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		stats:   Stats{MaxSize: config.MaxSize},
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(time.Now()) {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false, nil
	}

	c.lru.MoveToFront(elem)
	c.stats.Hits++
	c.stats.LastAccess = time.Now()
	return entry.value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	size := int64(len(value))
	if c.config.MaxSize > 0 && size > c.config.MaxSize {
		return errs.WithFields(
			errs.New(errs.CacheFailure, "value exceeds maximum cache size"),
			errs.Fields{"size": size, "max_size": c.config.MaxSize})
	}

	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		c.stats.Size += size - entry.size
		entry.value = value
		entry.size = size
		entry.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
	} else {
		if c.config.MaxSize > 0 {
			c.evictLocked(c.config.MaxSize - size)
		}
		elem := c.lru.PushFront(&memoryEntry{
			key:       key,
			value:     value,
			expiresAt: expiresAt,
			size:      size,
		})
		c.entries[key] = elem
		c.stats.Size += size
	}

	c.stats.Sets++
	c.stats.LastAccess = time.Now()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.stats = Stats{MaxSize: c.config.MaxSize}
	return nil
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *MemoryCache) Close() error { return nil }

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// removeLocked drops an entry. Caller holds c.mu.
func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
	c.stats.Size -= entry.size
}

// evictLocked removes least-recently-used entries until total size fits
// within target. Caller holds c.mu.
func (c *MemoryCache) evictLocked(target int64) {
	for c.stats.Size > target {
		back := c.lru.Back()
		if back == nil {
			return
		}
		c.removeLocked(back)
	}
}
