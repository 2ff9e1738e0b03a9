package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	sourceCacheTTL            = 1 * time.Hour
	sourceInvalidationChannel = "overlay_source:invalidate"
)

// SourceCache reads overlay sources through an in-memory layer, then Redis,
// then the backing store. Concurrent misses for one key share a single load.
type SourceCache struct {
	rdb     goredis.UniversalClient
	source  domain.OverlaySource
	mem     *memoryCache
	group   singleflight.Group
	clock   clockwork.Clock
	metrics *metrics.CacheMetrics
}

func NewSourceCache(rdb goredis.UniversalClient, source domain.OverlaySource, memTTL time.Duration, clock clockwork.Clock, m *metrics.CacheMetrics) *SourceCache {
	return &SourceCache{
		rdb:     rdb,
		source:  source,
		mem:     newMemoryCache(clock, memTTL),
		clock:   clock,
		metrics: m,
	}
}

// StartEvictionTimer periodically drops expired in-memory entries.
// The returned function stops the timer.
func (c *SourceCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired source cache entries", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}

func (c *SourceCache) GetSourceByKey(ctx context.Context, overlayKey uuid.UUID) (string, error) {
	if code, ok := c.mem.get(overlayKey); ok {
		c.hit("memory")
		return code, nil
	}
	c.miss("memory")

	v, err, _ := c.group.Do(overlayKey.String(), func() (any, error) {
		if code, ok := c.getCached(ctx, overlayKey); ok {
			c.hit("redis")
			c.mem.set(overlayKey, code)
			return code, nil
		}
		c.miss("redis")

		code, err := c.source.GetSourceByKey(ctx, overlayKey)
		if err != nil {
			return "", err
		}
		c.mem.set(overlayKey, code)
		c.writeCache(ctx, overlayKey, code)
		return code, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStreamerNotFound) {
			return "", err
		}
		return "", fmt.Errorf("overlay source lookup failed: %w", err)
	}
	return v.(string), nil
}

// InvalidateCache drops the entry here and in Redis, then tells the other
// instances to drop their in-memory copy.
func (c *SourceCache) InvalidateCache(ctx context.Context, overlayKey uuid.UUID) error {
	c.evictLocal(overlayKey)

	if err := c.rdb.Del(ctx, sourceCacheKey(overlayKey)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate source cache: %w", err)
	}
	if err := c.rdb.Publish(ctx, sourceInvalidationChannel, overlayKey.String()).Err(); err != nil {
		return fmt.Errorf("failed to publish source invalidation: %w", err)
	}
	return nil
}

func (c *SourceCache) evictLocal(overlayKey uuid.UUID) {
	c.mem.invalidate(overlayKey)
	c.group.Forget(overlayKey.String())
	if c.metrics != nil {
		c.metrics.Invalidations.Inc()
	}
}

func (c *SourceCache) getCached(ctx context.Context, overlayKey uuid.UUID) (string, bool) {
	code, err := c.rdb.Get(ctx, sourceCacheKey(overlayKey)).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis source cache GET failed", "overlay_key", overlayKey.String(), "error", err)
		}
		return "", false
	}
	return code, true
}

func (c *SourceCache) writeCache(ctx context.Context, overlayKey uuid.UUID, code string) {
	if err := c.rdb.Set(ctx, sourceCacheKey(overlayKey), code, sourceCacheTTL).Err(); err != nil {
		slog.Warn("Failed to populate Redis source cache", "overlay_key", overlayKey.String(), "error", err)
	}
}

func (c *SourceCache) hit(layer string) {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues(layer).Inc()
	}
}

func (c *SourceCache) miss(layer string) {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues(layer).Inc()
	}
}

func sourceCacheKey(overlayKey uuid.UUID) string {
	return "overlay_source:" + overlayKey.String()
}

var (
	_ domain.OverlaySource          = (*SourceCache)(nil)
	_ domain.SourceCacheInvalidator = (*SourceCache)(nil)
)

// memoryCache is the in-process L1 layer with TTL-based expiry.
type memoryCache struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[uuid.UUID]memoryCacheEntry
	ttl     time.Duration
}

type memoryCacheEntry struct {
	code      string
	expiresAt time.Time
}

func newMemoryCache(clock clockwork.Clock, ttl time.Duration) *memoryCache {
	return &memoryCache{
		clock:   clock,
		entries: make(map[uuid.UUID]memoryCacheEntry),
		ttl:     ttl,
	}
}

func (c *memoryCache) get(key uuid.UUID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.code, true
}

func (c *memoryCache) set(key uuid.UUID, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{code: code, expiresAt: c.clock.Now().Add(c.ttl)}
}

func (c *memoryCache) invalidate(key uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
