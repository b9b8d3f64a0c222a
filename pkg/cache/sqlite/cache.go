package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/kv"
	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"go.uber.org/zap"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTTL          = 30 * 24 * time.Hour
	DefaultMaxSize      = 500
	DefaultKeyPrefixLen = 500
)

// Options configures a Cache.
type Options struct {
	TTL          time.Duration
	MaxSize      int
	KeyPrefixLen int
}

// Cache is a translation cache keyed by language pair and normalized text,
// backed by SQLite.
type Cache struct {
	db     *sql.DB
	opts   Options
	log    *zap.Logger
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64

	mu          sync.Mutex
	lastCleanup time.Time
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS translation_cache (
	cache_key TEXT PRIMARY KEY,
	source_text TEXT NOT NULL,
	translated_text TEXT NOT NULL,
	source_lang TEXT NOT NULL,
	target_lang TEXT NOT NULL,
	confidence REAL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_translation_cache_created ON translation_cache(created_at);
`

// New creates a Cache with the given database path.
func New(dbPath string, opts Options, log *zap.Logger) (*Cache, error) {
	db, err := kv.OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.KeyPrefixLen <= 0 {
		opts.KeyPrefixLen = DefaultKeyPrefixLen
	}

	return &Cache{
		db:   db,
		opts: opts,
		log:  logger.OrNop(log).Named("cache"),
		now:  time.Now,
	}, nil
}

// Key derives the cache key "src:dst:text" where text is trimmed, lowercased
// and cut to prefixLen runes. Distinct texts sharing that prefix collide.
func Key(text, src, dst string, prefixLen int) string {
	clean := []rune(strings.ToLower(strings.TrimSpace(text)))
	if prefixLen > 0 && len(clean) > prefixLen {
		clean = clean[:prefixLen]
	}
	return src + ":" + dst + ":" + string(clean)
}

// Get returns the cached translation, or false when missing or older than
// the TTL. Every call counts as a hit or a miss.
func (c *Cache) Get(ctx context.Context, text, src, dst string) (*models.CacheEntry, bool) {
	key := Key(text, src, dst, c.opts.KeyPrefixLen)

	var (
		e          models.CacheEntry
		confidence sql.NullFloat64
		createdAt  int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT source_text, translated_text, source_lang, target_lang, confidence, created_at
		 FROM translation_cache WHERE cache_key = ?`,
		key,
	).Scan(&e.SourceText, &e.TranslatedText, &e.SourceLang, &e.TargetLang, &confidence, &createdAt)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn("cache read failed", zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	e.Key = key
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	if confidence.Valid {
		e.Confidence = models.Float(confidence.Float64)
	}

	if c.now().Sub(e.CreatedAt) > c.opts.TTL {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM translation_cache WHERE cache_key = ?`, key); err != nil {
			c.log.Warn("cache drop expired entry failed", zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &e, true
}

// Set stores a translation. Storage errors are logged, never returned.
func (c *Cache) Set(ctx context.Context, text, translated, src, dst string, confidence *float64) {
	var conf any
	if confidence != nil {
		conf = *confidence
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_cache
		 (cache_key, source_text, translated_text, source_lang, target_lang, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		Key(text, src, dst, c.opts.KeyPrefixLen), text, translated, src, dst, conf, c.now().UnixMilli(),
	)
	if err != nil {
		c.log.Warn("cache put failed", zap.Error(err))
	}
}

// Clear removes every entry and resets the hit and miss counters.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM translation_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.mu.Lock()
	c.lastCleanup = c.now()
	c.mu.Unlock()
	return nil
}

// CleanExpired drops entries older than the TTL, then evicts the oldest
// entries until at most MaxSize remain. It returns the number removed.
func (c *Cache) CleanExpired(ctx context.Context) (int, error) {
	now := c.now()
	cutoff := now.Add(-c.opts.TTL).UnixMilli()

	res, err := c.db.ExecContext(ctx, `DELETE FROM translation_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	expired, _ := res.RowsAffected()

	var count int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translation_cache`).Scan(&count); err != nil {
		return int(expired), fmt.Errorf("cache count: %w", err)
	}

	var evicted int64
	if over := count - int64(c.opts.MaxSize); over > 0 {
		res, err = c.db.ExecContext(ctx,
			`DELETE FROM translation_cache WHERE cache_key IN (
				SELECT cache_key FROM translation_cache ORDER BY created_at ASC, rowid ASC LIMIT ?
			)`,
			over,
		)
		if err != nil {
			return int(expired), fmt.Errorf("cache evict: %w", err)
		}
		evicted, _ = res.RowsAffected()
	}

	removed := int(expired + evicted)
	if removed > 0 {
		c.mu.Lock()
		c.lastCleanup = now
		c.mu.Unlock()
		c.log.Info("cache cleaned", zap.Int64("expired", expired), zap.Int64("evicted", evicted))
	}
	return removed, nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translation_cache`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	c.mu.Lock()
	last := c.lastCleanup
	c.mu.Unlock()
	return models.CacheStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Size:        count,
		LastCleanup: last,
	}, nil
}

// StartSweeper runs CleanExpired every interval until ctx is done.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.CleanExpired(ctx); err != nil {
					c.log.Warn("cache sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
