package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/model"
)

// VerdictFinder looks up the most recent stored verdict for identical content
type VerdictFinder interface {
	FindRecentByContent(ctx context.Context, contentType model.ContentType, text, url string, since time.Time) (*model.Verdict, error)
}

// VerdictCache answers whether identical content was verified within the
// window. The store is the source of truth; hot is a shortcut in front of it.
type VerdictCache struct {
	finder VerdictFinder
	hot    Cache
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewVerdictCache creates a verdict cache. hot may be nil.
func NewVerdictCache(finder VerdictFinder, hot Cache, window time.Duration, logger *zap.Logger) *VerdictCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerdictCache{
		finder: finder,
		hot:    hot,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// ContentKey is the cache identity of a text or URL submission
func ContentKey(contentType model.ContentType, text, url string) string {
	if contentType == model.ContentURL {
		return Key("verdict", string(contentType), url)
	}
	return Key("verdict", string(contentType), text)
}

// Lookup returns a verdict for identical content created inside the window.
// Failures are logged and reported as a miss.
func (c *VerdictCache) Lookup(ctx context.Context, contentType model.ContentType, text, url string) (*model.Verdict, bool) {
	if !contentType.Cacheable() || c.window <= 0 {
		return nil, false
	}
	since := c.now().Add(-c.window)

	if c.hot != nil {
		if data, ok := c.hot.Get(ctx, ContentKey(contentType, text, url)); ok {
			var v model.Verdict
			if err := json.Unmarshal(data, &v); err == nil && !v.CreatedAt.Before(since) {
				return &v, true
			}
		}
	}

	if c.finder == nil {
		return nil, false
	}
	v, err := c.finder.FindRecentByContent(ctx, contentType, text, url, since)
	if err != nil {
		c.logger.Warn("verdict cache lookup failed", zap.String("content_type", string(contentType)), zap.Error(err))
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	c.Remember(ctx, v)
	return v, true
}

// Remember puts a stored verdict in the hot tier until its window closes
func (c *VerdictCache) Remember(ctx context.Context, v *model.Verdict) {
	if c.hot == nil || v == nil || !v.ContentType.Cacheable() {
		return
	}
	ttl := v.CreatedAt.Add(c.window).Sub(c.now())
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("encode verdict for cache", zap.Error(err))
		return
	}
	if err := c.hot.Set(ctx, ContentKey(v.ContentType, v.ContentText, v.ContentURL), data, ttl); err != nil {
		c.logger.Warn("verdict cache write failed", zap.String("verdict_id", v.ID), zap.Error(err))
	}
}
