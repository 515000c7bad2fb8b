package data

import (
	"sync"
	"time"

	"battery-dispatch/internal/model"
)

// responseCache is a small TTL cache for feed responses. Spot prices for a
// published day never change, but a short TTL keeps a restart honest.
type responseCache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	records   []model.HourlyPrice
	expiresAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		store: make(map[string]cacheEntry),
		ttl:   ttl,
	}
}

func (c *responseCache) get(key string) ([]model.HourlyPrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.records, true
}

func (c *responseCache) set(key string, records []model.HourlyPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Opportunistic sweep; the map only ever holds a handful of days.
	now := time.Now()
	for k, e := range c.store {
		if now.After(e.expiresAt) {
			delete(c.store, k)
		}
	}
	c.store[key] = cacheEntry{records: records, expiresAt: now.Add(c.ttl)}
}
