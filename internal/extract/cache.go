package extract

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long extracted text stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// Cache stores extracted text keyed by storage key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, text string)
	Delete(ctx context.Context, key string)
}

type memoryEntry struct {
	text      string
	timestamp time.Time
}

// MemoryCache is a process-local TTL cache. Entries expire lazily on access.
// When maxEntries > 0, inserting beyond it evicts the oldest entry.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	mu         sync.Mutex
	entries    map[string]memoryEntry
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithMaxEntries bounds the number of cached documents.
func WithMaxEntries(n int) MemoryCacheOption {
	return func(c *MemoryCache) { c.maxEntries = n }
}

// WithCacheClock replaces time.Now, for tests.
func WithCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates a cache whose entries live for ttl (DefaultCacheTTL when <= 0).
func NewMemoryCache(ttl time.Duration, opts ...MemoryCacheOption) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached text if its age is within the TTL, dropping it otherwise.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.timestamp) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return e.text, true
}

// Set stores text with the current timestamp.
func (c *MemoryCache) Set(_ context.Context, key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = memoryEntry{text: text, timestamp: c.now()}
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.timestamp.Before(oldest) {
			oldestKey, oldest, first = k, e.timestamp, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// RedisCache shares extracted text between processes. Redis enforces the TTL.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a cache on client; keys are namespaced by prefix.
func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if prefix == "" {
		prefix = "inqdoc:extract:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Get returns the cached text. Redis errors are logged and treated as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	text, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.Warn("extract cache get failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return text, true
}

// Set stores text with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key, text string) {
	if err := c.client.Set(ctx, c.prefix+key, text, c.ttl).Err(); err != nil {
		c.logger.Warn("extract cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn("extract cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
