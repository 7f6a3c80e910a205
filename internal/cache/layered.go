package cache

import (
	"context"
	"time"
)

// LayeredCache checks a fast local tier before a shared or persistent tier
type LayeredCache struct {
	local  Cache
	shared Cache
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(local, shared Cache) *LayeredCache {
	return &LayeredCache{
		local:  local,
		shared: shared,
	}
}

// Get checks the local tier first, then the shared tier
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, found := c.local.Get(ctx, key); found {
		return val, true
	}

	if val, found := c.shared.Get(ctx, key); found {
		// Promote with the local default TTL
		_ = c.local.Set(ctx, key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both tiers
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.shared.Set(ctx, key, value, ttl)
}

// Delete removes a value from both tiers
func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	return c.shared.Delete(ctx, key)
}

// Clear removes all values from both tiers
func (c *LayeredCache) Clear(ctx context.Context) error {
	_ = c.local.Clear(ctx)
	return c.shared.Clear(ctx)
}
