package graph

import (
	"context"
	"time"

	"github.com/m-mizutani/knowbot/pkg/cache"
	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
)

const (
	DefaultCacheTTL      = 5 * time.Minute
	DefaultCacheCapacity = 1000
)

// Cached keeps successful lookups of a Directory for a short time. Failures
// are not cached.
type Cached struct {
	dir   interfaces.Directory
	cache *cache.Cache[string, *model.UserInfo]
	hook  func(hit bool)
}

type CachedOption func(*Cached)

// WithCacheHook is called on every lookup with whether it was served from
// the cache.
func WithCacheHook(fn func(hit bool)) CachedOption {
	return func(c *Cached) {
		c.hook = fn
	}
}

func NewCached(dir interfaces.Directory, capacity int, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{
		dir:   dir,
		cache: cache.New[string, *model.UserInfo](capacity, ttl),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) GetUser(ctx context.Context, userID string) (*model.UserInfo, error) {
	if info, ok := c.cache.Get(userID); ok {
		logging.From(ctx).Debug("user_cache_hit", "user_id", userID)
		c.observe(true)
		return info, nil
	}

	logging.From(ctx).Debug("user_cache_miss", "user_id", userID)
	c.observe(false)

	info, err := c.dir.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(userID, info)
	return info, nil
}

func (c *Cached) observe(hit bool) {
	if c.hook != nil {
		c.hook(hit)
	}
}
