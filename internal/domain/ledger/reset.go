package ledger

import (
	"time"

	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// maxResetSteps bounds how many missed periods a single reset catches up on.
const maxResetSteps = 10000

// ResetRow starts a new period on a copy of row when its next_reset_at is due.
// Unused balance becomes a capped rollover when the entitlement has a rollover
// config, is carried into the new balance when carry_from_previous is set, and
// is dropped otherwise. An entity row rolls over the sum of its entities'
// leftovers and carries each entity's leftover into that entity. It returns the row unchanged and false when no reset
// is due.
func ResetRow(row *CustomerEntitlement, now time.Time) (*CustomerEntitlement, bool) {
	ent := row.Entitlement
	if !ent.Interval.Resets() || row.NextResetAt == nil || row.NextResetAt.After(now) || row.Unlimited() {
		return row, false
	}

	out := row.Clone()
	resetAt := *row.NextResetAt
	resetBalance := row.ResetBalance()

	// rollovers are row level, so entities pool their leftovers into one
	unused := decimal.Max(row.Balance, decimal.Zero)
	if row.EntityScoped() {
		unused = decimal.Zero
		for _, e := range row.Entities {
			unused = unused.Add(decimal.Max(e.Balance, decimal.Zero))
		}
	}

	carried := decimal.Zero
	switch {
	case ent.RolloverConfig != nil:
		out.Rollovers = RollOver(out.Rollovers, unused, ent.RolloverConfig, resetAt)
	case ent.CarryFromPrevious:
		if !row.EntityScoped() {
			carried = unused
		}
		out.Rollovers = ActiveRollovers(out.Rollovers, resetAt)
	default:
		out.Rollovers = ActiveRollovers(out.Rollovers, resetAt)
	}

	out.Balance = resetBalance.Add(carried)
	out.Adjustment = carried
	for id, e := range out.Entities {
		entityCarried := decimal.Zero
		if ent.RolloverConfig == nil && ent.CarryFromPrevious {
			entityCarried = decimal.Max(row.Entities[id].Balance, decimal.Zero)
		}
		e.Balance = resetBalance.Add(entityCarried)
		e.Adjustment = entityCarried
	}
	out.Replaceables = nil

	next := resetAt
	for i := 0; !next.After(now) && i < maxResetSteps; i++ {
		next = ent.Interval.Advance(next, ent.IntervalCount)
	}
	out.NextResetAt = &next

	return out, true
}

// TransferOnSwitch seeds the row of a newly attached product from the rows of
// the product it replaces. Non-expired rollovers move across under the target's
// rollover cap, and when the target carries from previous, the usage already
// consumed this period is carried too.
func TransferOnSwitch(from []*CustomerEntitlement, to *CustomerEntitlement, now time.Time) *CustomerEntitlement {
	out := to.Clone()

	var rollovers []*Rollover
	for _, row := range from {
		if row.FeatureID != to.FeatureID {
			continue
		}
		rollovers = append(rollovers, ActiveRollovers(row.Rollovers, now)...)

		if to.Entitlement.CarryFromPrevious && !row.EntityScoped() && !row.Unlimited() {
			used := row.ResetBalance().Add(row.Adjustment).Sub(row.Balance).
				Sub(decimal.NewFromInt(int64(len(row.Replaceables))))
			if used.IsPositive() {
				out.Balance = out.Balance.Sub(used)
			}
		}
	}
	rollovers = append(rollovers, out.Rollovers...)
	out.Rollovers = TransferRollovers(rollovers, to.Entitlement.RolloverConfig, now)

	return out
}

// SetCurrentBalance overrides the merged current balance of the resolution's
// effective feature. The difference is booked on the first row as both balance
// and adjustment, so usage is unchanged and granted moves with current.
func SetCurrentBalance(res *Resolution, target decimal.Decimal, now time.Time) ([]*CustomerEntitlement, decimal.Decimal, error) {
	rows := res.FeatureRows(res.EffectiveFeatureID)
	if len(rows) == 0 {
		return nil, decimal.Zero, errNoRows(res.FeatureID)
	}

	snap := Snapshot("", res, false, now)
	delta := target.Sub(*snap.CurrentBalance)
	if delta.IsZero() {
		return nil, delta, nil
	}

	first := rows[0].Clone()
	if first.EntityScoped() {
		if res.EntityID == "" {
			return nil, decimal.Zero, errEntityRequired(res.FeatureID)
		}
		e, ok := first.Entities[res.EntityID]
		if !ok {
			return nil, decimal.Zero, errEntityNotFound(res.FeatureID, res.EntityID)
		}
		e.Balance = e.Balance.Add(delta)
		e.Adjustment = e.Adjustment.Add(delta)
	} else {
		first.Balance = first.Balance.Add(delta)
		first.Adjustment = first.Adjustment.Add(delta)
	}
	return []*CustomerEntitlement{first}, delta, nil
}

// AddReplaceables records n freed, already paid slots on a copy of row.
func AddReplaceables(row *CustomerEntitlement, n int, now time.Time) *CustomerEntitlement {
	out := row.Clone()
	for i := 0; i < n; i++ {
		out.Replaceables = append(out.Replaceables, &Replaceable{
			ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REPLACEABLE),
			CreatedAt: now,
		})
	}
	return out
}

// ConsumeReplaceables removes up to n replaceables, oldest first, and returns
// how many were taken.
func ConsumeReplaceables(row *CustomerEntitlement, n int) int {
	if n <= 0 {
		return 0
	}
	taken := n
	if taken > len(row.Replaceables) {
		taken = len(row.Replaceables)
	}
	row.Replaceables = append([]*Replaceable(nil), row.Replaceables[taken:]...)
	return taken
}
