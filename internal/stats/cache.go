package stats

import (
	"context"
	"log"
	"sync"
	"time"
)

type cacheEntry struct {
	content   string
	fetchedAt time.Time
}

// ttlCache holds one formatted payload per operation signature. A fresh
// entry is returned as-is; an expired one is refreshed, and kept as a
// stale fallback when the refresh fails. Only when no prior value exists
// does a fetch failure propagate.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
	logger  *log.Logger
}

func newTTLCache(ttl time.Duration, logger *log.Logger) *ttlCache {
	return &ttlCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
		logger:  logger,
	}
}

func (c *ttlCache) get(ctx context.Context, key string, fetch func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	cached, ok := c.entries[key]
	fresh := ok && c.now().Sub(cached.fetchedAt) < c.ttl
	c.mu.Unlock()

	if fresh {
		return cached.content, nil
	}

	content, err := fetch(ctx)
	if err != nil {
		if ok {
			c.logger.Printf("refresh failed for %q, serving stale value: %v", key, err)
			return cached.content, nil
		}
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{content: content, fetchedAt: c.now()}
	c.mu.Unlock()
	return content, nil
}
