package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/entitlements/internal/logger"
	redisClient "github.com/flexprice/entitlements/internal/redis"
	"github.com/redis/go-redis/v9"
)

const (
	scanBatch    = 100
	unlinkBatch  = 500
	deleteRetry  = 100 * time.Millisecond
	deleteBudget = 5 * time.Second
)

// RedisCache stores strings verbatim and everything else as JSON.
type RedisCache struct {
	rdb *redis.Client
	log *logger.Logger
}

func NewRedisCache(client *redisClient.Client, log *logger.Logger) *RedisCache {
	return &RedisCache{rdb: client.GetClient(), log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	span := StartCacheSpan(ctx, "redis", "get", map[string]interface{}{"key": key})
	defer FinishSpan(span)

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		SetSpanSuccess(span)
		return nil, false
	case err != nil:
		SetSpanError(span, err)
		c.log.Warnw("cache read failed", "key", key, "error", err)
		return nil, false
	}
	SetSpanSuccess(span)
	return raw, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	span := StartCacheSpan(ctx, "redis", "put", map[string]interface{}{"key": key, "ttl": ttl.String()})
	defer FinishSpan(span)

	payload, err := encodeValue(value)
	if err != nil {
		SetSpanError(span, err)
		c.log.Errorw("cache value not encodable", "key", key, "error", err)
		return
	}
	if ttl <= 0 {
		ttl = redisDefaultTTL
	}
	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		SetSpanError(span, err)
		c.log.Warnw("cache write failed", "key", key, "error", err)
		return
	}
	SetSpanSuccess(span)
}

func encodeValue(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Delete gets a second attempt on a detached context. A snapshot that
// survives its invalidation would be served until its TTL runs out.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	span := StartCacheSpan(ctx, "redis", "remove", map[string]interface{}{"key": key})
	defer FinishSpan(span)

	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteBudget)
	defer cancel()

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return c.rdb.Del(delCtx, key).Err()
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(deleteRetry), 1), delCtx))
	if err != nil {
		SetSpanError(span, err)
		c.log.Errorw("cache invalidation failed", "key", key, "attempts", attempt, "error", err)
		return
	}
	SetSpanSuccess(span)
}

// DeleteByPrefix walks the keyspace with SCAN and drops matches with UNLINK,
// so large prefixes never block the server.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) {
	span := StartCacheSpan(ctx, "redis", "remove_prefix", map[string]interface{}{"prefix": prefix})
	defer FinishSpan(span)

	pending := make([]string, 0, unlinkBatch)
	removed := 0
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := c.rdb.Unlink(ctx, pending...).Err(); err != nil {
			c.log.Warnw("cache prefix unlink failed", "prefix", prefix, "keys", len(pending), "error", err)
		} else {
			removed += len(pending)
		}
		pending = pending[:0]
	}

	iter := c.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		pending = append(pending, iter.Val())
		if len(pending) == unlinkBatch {
			flush()
		}
	}
	flush()

	if err := iter.Err(); err != nil {
		SetSpanError(span, err)
		c.log.Errorw("cache prefix scan failed", "prefix", prefix, "error", err)
		return
	}
	c.log.Debugw("cache prefix invalidated", "prefix", prefix, "keys", removed)
	SetSpanSuccess(span)
}

func (c *RedisCache) Flush(ctx context.Context) {
	if err := c.rdb.FlushDB(ctx).Err(); err != nil {
		c.log.Errorw("cache flush failed", "error", err)
	}
}
