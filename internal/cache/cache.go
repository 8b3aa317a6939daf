package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	PrefixBalance = "balance"
	PrefixFeature = "feature"
)

const (
	// ExpiryBalanceSnapshot is short because every ledger mutation also
	// deletes the customer's snapshots.
	ExpiryBalanceSnapshot = 30 * time.Second
	ExpiryFeature         = 30 * time.Minute

	redisDefaultTTL  = 5 * time.Minute
	memoryDefaultTTL = 30 * time.Minute
)

// Cache is a best-effort key value store. Misses and backend failures look the
// same to callers, who always fall back to the source of truth.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)
	Delete(ctx context.Context, key string)
	DeleteByPrefix(ctx context.Context, prefix string)
	Flush(ctx context.Context)
}

// GenerateKey joins prefix and params with ':'. Empty params are kept so keys
// with and without an entity never collide.
func GenerateKey(prefix string, params ...interface{}) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, prefix)
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%v", p))
	}
	return strings.Join(parts, ":")
}
