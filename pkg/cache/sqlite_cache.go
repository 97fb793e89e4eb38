package cache

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	errs "github.com/compiler-explorer/explain/pkg/errors"
	"github.com/compiler-explorer/explain/pkg/logging"
)

// SQLiteCache persists explanations across restarts. Single-writer WAL
// mode is enough for this service's request rates.
type SQLiteCache struct {
	db        *sql.DB
	config    Config
	stats     Stats
	mu        sync.Mutex
	size      int64
	closeChan chan struct{}
	cleanupWG sync.WaitGroup
}

// NewSQLiteCache opens (creating if needed) a SQLite-backed cache at
// config.Path.
func NewSQLiteCache(config Config) (*SQLiteCache, error) {
	if config.Path == "" {
		config.Path = "explain_cache.db"
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, errs.Wrap(err, errs.CacheFailure, "failed to open cache database")
	}
	db.SetMaxOpenConns(1)

	c := &SQLiteCache{
		db:        db,
		config:    config,
		closeChan: make(chan struct{}),
	}

	if err := c.initDB(); err != nil {
		db.Close()
		return nil, errs.Wrap(err, errs.CacheFailure, "failed to initialize cache schema")
	}

	c.loadSize()

	c.cleanupWG.Add(1)
	go c.cleanupLoop()

	return c, nil
}

func (c *SQLiteCache) initDB() error {
	statements := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		`CREATE TABLE IF NOT EXISTS explanations (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER,
			created_at INTEGER NOT NULL,
			accessed_at INTEGER NOT NULL,
			size INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_explanations_expires ON explanations(expires_at) WHERE expires_at > 0",
		"CREATE INDEX IF NOT EXISTS idx_explanations_accessed ON explanations(accessed_at)",
	}
	for _, stmt := range statements {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	now := time.Now().UnixNano()

	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM explanations WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, now).Scan(&value)
	if err == sql.ErrNoRows {
		atomic.AddInt64(&c.stats.Misses, 1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(err, errs.CacheFailure, "failed to read cache entry")
	}

	if _, err := c.db.ExecContext(ctx,
		`UPDATE explanations SET accessed_at = ? WHERE key = ?`, now, key); err != nil {
		logging.GetLogger().Warn(ctx, "failed to update cache access time: %v", err)
	}

	atomic.AddInt64(&c.stats.Hits, 1)
	c.touchLastAccess()
	return value, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}

	now := time.Now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixNano()
	}
	size := int64(len(value))

	if c.config.MaxSize > 0 {
		if err := c.evict(ctx, c.config.MaxSize-size); err != nil {
			return err
		}
	}

	var previousSize int64
	err := c.db.QueryRowContext(ctx,
		`SELECT size FROM explanations WHERE key = ?`, key).Scan(&previousSize)
	if err != nil && err != sql.ErrNoRows {
		return errs.Wrap(err, errs.CacheFailure, "failed to read cache entry size")
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO explanations (key, value, expires_at, created_at, accessed_at, size)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key, value, expiresAt, now.UnixNano(), now.UnixNano(), size)
	if err != nil {
		return errs.Wrap(err, errs.CacheFailure, "failed to write cache entry")
	}

	atomic.AddInt64(&c.stats.Sets, 1)
	atomic.AddInt64(&c.size, size-previousSize)
	c.touchLastAccess()
	return nil
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	var size int64
	err := c.db.QueryRowContext(ctx,
		`SELECT size FROM explanations WHERE key = ?`, key).Scan(&size)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errs.Wrap(err, errs.CacheFailure, "failed to read cache entry size")
	}

	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM explanations WHERE key = ?`, key); err != nil {
		return errs.Wrap(err, errs.CacheFailure, "failed to delete cache entry")
	}
	atomic.AddInt64(&c.size, -size)
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM explanations`); err != nil {
		return errs.Wrap(err, errs.CacheFailure, "failed to clear cache")
	}
	atomic.StoreInt64(&c.size, 0)
	atomic.StoreInt64(&c.stats.Hits, 0)
	atomic.StoreInt64(&c.stats.Misses, 0)
	atomic.StoreInt64(&c.stats.Sets, 0)
	return nil
}

func (c *SQLiteCache) Stats() Stats {
	c.mu.Lock()
	lastAccess := c.stats.LastAccess
	c.mu.Unlock()

	return Stats{
		Hits:       atomic.LoadInt64(&c.stats.Hits),
		Misses:     atomic.LoadInt64(&c.stats.Misses),
		Sets:       atomic.LoadInt64(&c.stats.Sets),
		Size:       atomic.LoadInt64(&c.size),
		MaxSize:    c.config.MaxSize,
		LastAccess: lastAccess,
	}
}

func (c *SQLiteCache) Close() error {
	close(c.closeChan)
	c.cleanupWG.Wait()
	return c.db.Close()
}

func (c *SQLiteCache) touchLastAccess() {
	c.mu.Lock()
	c.stats.LastAccess = time.Now()
	c.mu.Unlock()
}

// evict removes least-recently-accessed entries until total size fits
// within target.
func (c *SQLiteCache) evict(ctx context.Context, target int64) error {
	for atomic.LoadInt64(&c.size) > target {
		var key string
		var size int64
		err := c.db.QueryRowContext(ctx,
			`SELECT key, size FROM explanations ORDER BY accessed_at ASC LIMIT 1`).Scan(&key, &size)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return errs.Wrap(err, errs.CacheFailure, "failed to select eviction candidate")
		}

		if _, err := c.db.ExecContext(ctx,
			`DELETE FROM explanations WHERE key = ?`, key); err != nil {
			return errs.Wrap(err, errs.CacheFailure, "failed to evict cache entry")
		}
		atomic.AddInt64(&c.size, -size)
	}
	return nil
}

func (c *SQLiteCache) cleanupLoop() {
	defer c.cleanupWG.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeChan:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *SQLiteCache) cleanupExpired() {
	now := time.Now().UnixNano()

	var expiredSize int64
	err := c.db.QueryRow(
		`SELECT COALESCE(SUM(size), 0) FROM explanations WHERE expires_at > 0 AND expires_at < ?`,
		now).Scan(&expiredSize)
	if err != nil || expiredSize == 0 {
		return
	}

	if _, err := c.db.Exec(
		`DELETE FROM explanations WHERE expires_at > 0 AND expires_at < ?`, now); err != nil {
		logging.GetLogger().Warn(context.Background(), "failed to remove expired cache entries: %v", err)
		return
	}
	atomic.AddInt64(&c.size, -expiredSize)
}

func (c *SQLiteCache) loadSize() {
	var total int64
	if err := c.db.QueryRow(
		`SELECT COALESCE(SUM(size), 0) FROM explanations`).Scan(&total); err != nil {
		return
	}
	atomic.StoreInt64(&c.size, total)
}
