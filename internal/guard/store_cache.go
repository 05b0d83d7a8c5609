package guard

import (
	"context"
	"time"

	"github.com/quillworks/quill/internal/store"
)

// StoreCache adapts the relational store's seen_articles table to the
// Cache interface. The value is not persisted; presence of the key is all
// the guard needs.
type StoreCache struct {
	store store.Store
}

// NewStoreCache wraps a Store as a Cache.
func NewStoreCache(st store.Store) *StoreCache {
	return &StoreCache{store: st}
}

func (c *StoreCache) Exists(ctx context.Context, key string) (bool, error) {
	return c.store.SeenArticle(ctx, key)
}

func (c *StoreCache) SetWithTTL(ctx context.Context, key, _ string, ttl time.Duration) error {
	return c.store.MarkArticleSeen(ctx, key, ttl)
}
