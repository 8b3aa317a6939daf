package cache

import (
	"context"
	"time"

	"github.com/flexprice/entitlements/internal/config"
	"github.com/flexprice/entitlements/internal/logger"
	redisClient "github.com/flexprice/entitlements/internal/redis"
)

// CacheType represents the type of cache to use
type CacheType string

const (
	CacheTypeInMemory CacheType = "inmemory"
	CacheTypeRedis    CacheType = "redis"
)

// NewCache builds the configured cache. A disabled cache is a NoopCache; a
// redis cache without a redis client falls back to memory.
func NewCache(cfg *config.Configuration, log *logger.Logger, client *redisClient.Client) Cache {
	if !cfg.Cache.Enabled {
		log.Infow("cache disabled")
		return NoopCache{}
	}

	switch CacheType(cfg.Cache.Type) {
	case CacheTypeRedis:
		if client != nil {
			log.Infow("cache initialized", "type", CacheTypeRedis)
			return NewRedisCache(client, log)
		}
		log.Warnw("redis cache requested without a redis client, using memory")
	}

	log.Infow("cache initialized", "type", CacheTypeInMemory)
	return NewInMemoryCache()
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (interface{}, bool)         { return nil, false }
func (NoopCache) Set(context.Context, string, interface{}, time.Duration) {}
func (NoopCache) Delete(context.Context, string)                          {}
func (NoopCache) DeleteByPrefix(context.Context, string)                  {}
func (NoopCache) Flush(context.Context)                                   {}
