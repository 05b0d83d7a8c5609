package guard

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache for tests and the no-database dev
// mode. The clock is injectable so expiry can be tested without sleeping.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache creates an empty MemoryCache using the real clock.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock replaces the cache's clock. Test use only.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}
