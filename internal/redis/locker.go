package redis

import (
	"context"
	"sync"
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/lock"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const defaultLockTTL = 30 * time.Second

// Locker implements lock.Locker with SET NX and a random token. The TTL frees
// keys whose holder died; a live holder must finish well within it.
type Locker struct {
	client *Client
	script *redis.Script
	ttl    time.Duration
}

func NewLocker(client *Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
	}
}

func (l *Locker) TryLock(ctx context.Context, key string) (lock.Guard, bool, error) {
	if key == "" {
		return nil, false, ierr.NewError("lock key is empty").
			WithHint("Lock key is required").
			Mark(ierr.ErrValidation)
	}

	token := types.GenerateUUID()
	ok, err := l.client.GetClient().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &redisGuard{locker: l, key: key, token: token}, true, nil
}

type redisGuard struct {
	locker *Locker
	key    string
	token  string
	once   sync.Once
	err    error
}

// Release deletes the key only while it still holds this guard's token.
func (g *redisGuard) Release(ctx context.Context) error {
	g.once.Do(func() {
		g.err = g.locker.script.Run(ctx, g.locker.client.GetClient(), []string{g.key}, g.token).Err()
	})
	return g.err
}
