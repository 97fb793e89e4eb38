// Package cache stores generated explanations so identical requests can be
// answered without another model call.
package cache

import (
	"context"
	"time"
)

// Cache is the storage interface for explanation responses.
type Cache interface {
	// Get retrieves a cached value by key. The second return value
	// reports whether the key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key. A zero ttl falls back to the
	// configured default; if that is also zero the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value by key.
	Delete(ctx context.Context, key string) error

	// Clear removes all cached values.
	Clear(ctx context.Context) error

	// Stats returns cache performance counters.
	Stats() Stats

	// Close releases any resources held by the cache.
	Close() error
}

// Stats contains cache performance counters.
type Stats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Sets       int64     `json:"sets"`
	Size       int64     `json:"size"`
	MaxSize    int64     `json:"max_size"`
	LastAccess time.Time `json:"last_access"`
}

// HitRate returns hits as a fraction of all lookups, or 0 with no traffic.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config holds cache configuration.
type Config struct {
	// Type of cache: "memory", "sqlite" or "none".
	Type string `json:"type" yaml:"type" validate:"omitempty,oneof=memory sqlite none"`

	// Maximum total value size in bytes (0 = unlimited).
	MaxSize int64 `json:"max_size" yaml:"max_size"`

	// Default TTL for entries (0 = no expiration).
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`

	// Path to the SQLite database file, for the sqlite type.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// New creates a cache for the given configuration. An empty or "none" type
// yields a cache that stores nothing.
func New(config Config) (Cache, error) {
	switch config.Type {
	case "memory":
		return NewMemoryCache(config), nil
	case "sqlite":
		return NewSQLiteCache(config)
	default:
		return NewNoopCache(), nil
	}
}

// NoopCache discards all writes and misses every read. Used when caching
// is disabled.
type NoopCache struct{}

func NewNoopCache() *NoopCache { return &NoopCache{} }

func (n *NoopCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (n *NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (n *NoopCache) Delete(ctx context.Context, key string) error { return nil }
func (n *NoopCache) Clear(ctx context.Context) error              { return nil }
func (n *NoopCache) Stats() Stats                                 { return Stats{} }
func (n *NoopCache) Close() error                                 { return nil }
