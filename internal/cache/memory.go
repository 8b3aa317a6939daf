package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// InMemoryCache implements Cache on go-cache. Values are stored as is.
type InMemoryCache struct {
	cache *gocache.Cache
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{cache: gocache.New(memoryDefaultTTL, 2*memoryDefaultTTL)}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	span := StartCacheSpan(ctx, "inmemory", "get", map[string]interface{}{"key": key})
	defer FinishSpan(span)

	value, found := c.cache.Get(key)
	SetSpanSuccess(span)
	return value, found
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	span := StartCacheSpan(ctx, "inmemory", "set", map[string]interface{}{"key": key})
	defer FinishSpan(span)

	if expiration == 0 {
		expiration = gocache.DefaultExpiration
	}
	c.cache.Set(key, value, expiration)
	SetSpanSuccess(span)
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) {
	span := StartCacheSpan(ctx, "inmemory", "delete", map[string]interface{}{"key": key})
	defer FinishSpan(span)

	c.cache.Delete(key)
	SetSpanSuccess(span)
}

func (c *InMemoryCache) DeleteByPrefix(ctx context.Context, prefix string) {
	span := StartCacheSpan(ctx, "inmemory", "delete_by_prefix", map[string]interface{}{"prefix": prefix})
	defer FinishSpan(span)

	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
	SetSpanSuccess(span)
}

func (c *InMemoryCache) Flush(context.Context) {
	c.cache.Flush()
}
