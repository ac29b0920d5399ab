// Package cache stores decoded datasets keyed by source so chart requests do
// not re-download the upstream document.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
)

// Cache is a dataset cache. Get honours the ttl given to Set; GetStale
// ignores it and returns any copy stored within maxAge, for serving through an
// upstream outage.
type Cache interface {
	Get(ctx context.Context, source string) (models.Dataset, bool, error)
	Set(ctx context.Context, source string, value models.Dataset, ttl time.Duration) error
	GetStale(ctx context.Context, source string, maxAge time.Duration) (models.Dataset, bool, error)
}

// InMemoryCache is a mutex-guarded map. Entries stay after expiry so GetStale
// can still serve them; a later Set replaces them.
type InMemoryCache struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	data  map[string]cacheEntry
}

type cacheEntry struct {
	value     models.Dataset
	storedAt  time.Time
	expiresAt time.Time
}

// NewInMemoryCache returns an empty cache on the wall clock.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock returns an empty cache that reads time from clock.
func NewInMemoryCacheWithClock(clock clockwork.Clock) *InMemoryCache {
	return &InMemoryCache{
		clock: clock,
		data:  make(map[string]cacheEntry),
	}
}

// Get returns the dataset for source if it has not expired.
func (c *InMemoryCache) Get(ctx context.Context, source string) (models.Dataset, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Dataset{}, false, err
	}
	c.mu.RLock()
	entry, ok := c.data[source]
	c.mu.RUnlock()
	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		return models.Dataset{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores value for ttl.
func (c *InMemoryCache) Set(ctx context.Context, source string, value models.Dataset, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := c.clock.Now()
	c.mu.Lock()
	c.data[source] = cacheEntry{value: value, storedAt: now, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
	return nil
}

// GetStale returns the last stored dataset for source if it was stored within
// maxAge, expired or not. The result is marked Stale.
func (c *InMemoryCache) GetStale(ctx context.Context, source string, maxAge time.Duration) (models.Dataset, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Dataset{}, false, err
	}
	c.mu.RLock()
	entry, ok := c.data[source]
	c.mu.RUnlock()
	if !ok || c.clock.Since(entry.storedAt) > maxAge {
		return models.Dataset{}, false, nil
	}
	v := entry.value
	v.Stale = true
	return v, true, nil
}

// Len reports the number of stored sources, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
