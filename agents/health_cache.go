package agents

import (
	"context"
	"sync"
	"time"
)

// DefaultHealthCacheTTL is the default TTL for exchange health checks (30 seconds).
const DefaultHealthCacheTTL = 30 * time.Second

// HealthCache remembers the last exchange health probe for a TTL so that frequent
// /api/health polling does not hit the exchange on every request.
type HealthCache struct {
	mu        sync.RWMutex
	probe     func(ctx context.Context) error
	lastErr   error
	checkedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewHealthCache wraps probe with a TTL cache. A TTL of 0 disables caching.
func NewHealthCache(probe func(ctx context.Context) error, ttl time.Duration) *HealthCache {
	return &HealthCache{
		probe: probe,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Check returns the cached probe result, probing again once it has expired
func (c *HealthCache) Check(ctx context.Context) error {
	if ok, err := c.cached(); ok {
		return err
	}

	err := c.probe(ctx)
	if ctx.Err() != nil {
		// the caller gave up; don't cache a result that says nothing about the exchange
		return err
	}

	c.mu.Lock()
	c.lastErr = err
	c.checkedAt = c.now()
	c.mu.Unlock()
	return err
}

func (c *HealthCache) cached() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	valid := !c.checkedAt.IsZero() && c.now().Sub(c.checkedAt) < c.ttl
	return valid, c.lastErr
}

// Invalidate clears the cache, forcing the next check to make a live call.
func (c *HealthCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkedAt = time.Time{}
}

// TTL returns the cache's time-to-live duration.
func (c *HealthCache) TTL() time.Duration {
	return c.ttl
}
