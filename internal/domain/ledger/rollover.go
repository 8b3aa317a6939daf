package ledger

import (
	"sort"
	"time"

	"github.com/flexprice/entitlements/internal/domain/entitlement"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ActiveRollovers drops expired rollovers. The input is not modified.
func ActiveRollovers(rollovers []*Rollover, now time.Time) []*Rollover {
	return lo.Filter(rollovers, func(r *Rollover, _ int) bool {
		return r != nil && !r.Expired(now)
	})
}

// SortRollovers orders rollovers by expiry, earliest first, with non-expiring
// rollovers last. Ties keep creation order.
func SortRollovers(rollovers []*Rollover) []*Rollover {
	out := append([]*Rollover(nil), rollovers...)
	sort.SliceStable(out, func(i, j int) bool { return rolloverLess(out[i], out[j]) })
	return out
}

func rolloverLess(a, b *Rollover) bool {
	switch {
	case a.ExpiresAt == nil && b.ExpiresAt == nil:
		return a.CreatedAt.Before(b.CreatedAt)
	case a.ExpiresAt == nil:
		return false
	case b.ExpiresAt == nil:
		return true
	case a.ExpiresAt.Equal(*b.ExpiresAt):
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return a.ExpiresAt.Before(*b.ExpiresAt)
	}
}

// RolloverBalance sums the balance of the non-expired rollovers.
func RolloverBalance(rollovers []*Rollover, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, r := range ActiveRollovers(rollovers, now) {
		total = total.Add(r.Balance)
	}
	return total
}

// CapRollovers trims the oldest rollovers first until the non-expired balance
// fits within max. Expired and emptied rollovers are dropped.
func CapRollovers(rollovers []*Rollover, max decimal.Decimal, now time.Time) []*Rollover {
	active := SortRollovers(ActiveRollovers(rollovers, now))
	excess := RolloverBalance(active, now).Sub(max)

	out := make([]*Rollover, 0, len(active))
	for _, r := range active {
		rc := *r
		if excess.IsPositive() {
			trim := types.MinDecimal(rc.Balance, excess)
			rc.Balance = rc.Balance.Sub(trim)
			excess = excess.Sub(trim)
		}
		if rc.Balance.IsPositive() {
			out = append(out, &rc)
		}
	}
	return out
}

// RollOver appends a rollover for unused balance at a period reset and
// re-applies the cap. The new rollover holds min(unused, cfg.Max).
func RollOver(rollovers []*Rollover, unused decimal.Decimal, cfg *entitlement.RolloverConfig, resetAt time.Time) []*Rollover {
	if cfg == nil {
		return ActiveRollovers(rollovers, resetAt)
	}
	amount := types.MinDecimal(unused, cfg.Max)
	if amount.IsPositive() {
		rollovers = append(append([]*Rollover(nil), rollovers...), &Rollover{
			ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ROLLOVER),
			Balance:   amount,
			Usage:     decimal.Zero,
			ExpiresAt: cfg.ExpiresAt(resetAt),
			CreatedAt: resetAt,
		})
	}
	return CapRollovers(rollovers, cfg.Max, resetAt)
}

// TransferRollovers carries rollovers into a row governed by target. The
// target's cap applies even when the source allowed more; a target without a
// rollover config keeps nothing.
func TransferRollovers(source []*Rollover, target *entitlement.RolloverConfig, now time.Time) []*Rollover {
	if target == nil {
		return nil
	}
	return CapRollovers(source, target.Max, now)
}
