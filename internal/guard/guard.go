// Package guard prevents the same article from being published twice
// within a rolling window. Keys are derived from the article's source and
// normalized title, so near-identical titles from the same source collapse
// to one publish.
package guard

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/model"
)

// Cache is the backing key store. Expired entries behave as absent.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// Guard answers "have we published this article recently?" and records
// publishes. The window defaults to 24 hours.
type Guard struct {
	cache Cache
	ttl   time.Duration
}

// New creates a Guard over the given cache. A non-positive ttl falls back
// to 24 hours.
func New(cache Cache, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{cache: cache, ttl: ttl}
}

// AlreadySeen reports whether the article's dedupe key is present and
// unexpired.
func (g *Guard) AlreadySeen(ctx context.Context, article model.Article) (bool, error) {
	seen, err := g.cache.Exists(ctx, article.DedupeKey())
	if err != nil {
		return false, eris.Wrap(err, "guard: check seen")
	}
	return seen, nil
}

// MarkSeen records the article's dedupe key for the guard window. Called
// only after at least one account published successfully, so a fully
// failed run leaves the article eligible for retry.
func (g *Guard) MarkSeen(ctx context.Context, article model.Article) error {
	key := article.DedupeKey()
	if err := g.cache.SetWithTTL(ctx, key, article.URL, g.ttl); err != nil {
		return eris.Wrap(err, "guard: mark seen")
	}
	zap.L().Debug("article marked seen", zap.String("key", key), zap.Duration("ttl", g.ttl))
	return nil
}
