package routeplan

import (
	"sync"
	"time"

	"github.com/example/bus-tracking/internal/models"
)

// Cache is a small in-memory TTL cache of resolved routes keyed by
// route id. Resolution is the expensive path (geocode variants plus a
// directions call); stop coordinates for a physical route change rarely
// enough that a short TTL is safe.
type Cache struct {
	mu    sync.RWMutex
	store map[int64]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  *models.ResolvedRoute
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[int64]cacheEntry), ttl: ttl}
}

// Get returns the cached resolution and true if present and not expired.
func (c *Cache) Get(routeID int64) (*models.ResolvedRoute, bool) {
	c.mu.RLock()
	e, ok := c.store[routeID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, routeID)
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

// Set stores a resolution.
func (c *Cache) Set(routeID int64, v *models.ResolvedRoute) {
	c.mu.Lock()
	c.store[routeID] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops a route from the cache, e.g. after its stops change.
func (c *Cache) Invalidate(routeID int64) {
	c.mu.Lock()
	delete(c.store, routeID)
	c.mu.Unlock()
}
