// Package cache stores composed bundles keyed by (cell, year, date)
// selection. Bundles are ephemeral: the TTL bounds how long a superseded
// dataset can be re-served, nothing is ever persisted.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/avelichko/waterline-monitor/internal/models"
)

// Cache is the interface for bundle caching backends.
type Cache interface {
	Get(ctx context.Context, key string) (models.Bundle, bool, error)
	Set(ctx context.Context, key string, value models.Bundle, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map and TTL-based
// expiration. Expired entries are removed on access. The clock is injected
// so expiry is testable without sleeping.
type InMemoryCache struct {
	mu    sync.Mutex
	clock clockwork.Clock
	data  map[string]cacheEntry
}

type cacheEntry struct {
	value     models.Bundle
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache on the real clock.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock creates an in-memory cache on the given clock.
func NewInMemoryCacheWithClock(clock clockwork.Clock) *InMemoryCache {
	return &InMemoryCache{
		clock: clock,
		data:  make(map[string]cacheEntry),
	}
}

// Get returns the cached bundle for the key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Bundle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Bundle{}, false, nil
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Bundle{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores a bundle with the given TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Bundle, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
	return nil
}
