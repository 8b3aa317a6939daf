package middleware

import (
	"context"
	"sync"
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"golang.org/x/time/rate"
)

const visitorTTL = 3 * time.Minute

// RateLimiter keeps one token bucket per tenant and customer. A nil
// RateLimiter allows everything.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*visitor
	swept    time.Time
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns nil when perSec is not positive.
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	if perSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSec),
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow takes one token for the customer. The customer id usually lives in
// the request body, so handlers call this after binding.
func (rl *RateLimiter) Allow(ctx context.Context, customerID string) error {
	if rl == nil {
		return nil
	}

	key := types.GetTenantID(ctx) + ":" + customerID

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.swept) > visitorTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.swept = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	if !v.limiter.AllowN(now, 1) {
		return ierr.NewErrorf("rate limit exceeded for customer %s", customerID).
			WithHint("Too many requests for this customer, please retry shortly").
			WithReportableDetails(map[string]interface{}{"customer_id": customerID}).
			Mark(ierr.ErrRateLimited)
	}
	return nil
}
