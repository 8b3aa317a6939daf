package ledger

import (
	"sort"
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// Policy controls what happens when a deduction runs past the available balance.
type Policy struct {
	OverageBehavior types.OverageBehavior
	// BlockUsageLimit clamps rows at resetBalance - usage_limit and reports the
	// rest as shortfall. When false the usage limit is not enforced.
	BlockUsageLimit bool
	// SkipAdditionalBalance drops the part of a refund that does not fit under
	// the rows' reset balances instead of crediting it to the first row.
	SkipAdditionalBalance bool
}

// BalanceChange records one balance touched by a deduction, in row units.
type BalanceChange struct {
	RowID      string          `json:"row_id"`
	FeatureID  string          `json:"feature_id"`
	EntityID   string          `json:"entity_id,omitempty"`
	RolloverID string          `json:"rollover_id,omitempty"`
	Before     decimal.Decimal `json:"before"`
	After      decimal.Decimal `json:"after"`
}

// DeductionResult is the outcome of Deduct. Rows are updated copies of the
// resolved rows; nothing loaded by the caller is modified.
type DeductionResult struct {
	Rows      []*CustomerEntitlement
	Requested decimal.Decimal
	// Applied and Shortfall are in units of the requested feature.
	Applied   decimal.Decimal
	Shortfall decimal.Decimal
	Changes   []BalanceChange
	// Skipped is set when the feature is unlimited and nothing was deducted.
	Skipped bool
}

// Changed reports whether any balance moved.
func (r *DeductionResult) Changed() bool {
	return len(r.Changes) > 0
}

type balanceSlot struct {
	row      *CustomerEntitlement
	cost     decimal.Decimal
	entityID string
}

func (s *balanceSlot) get() decimal.Decimal {
	if s.entityID != "" {
		return s.row.Entities[s.entityID].Balance
	}
	return s.row.Balance
}

func (s *balanceSlot) set(v decimal.Decimal) {
	if s.entityID != "" {
		s.row.Entities[s.entityID].Balance = v
		return
	}
	s.row.Balance = v
}

type rolloverSlot struct {
	row      *CustomerEntitlement
	rollover *Rollover
	cost     decimal.Decimal
	order    int
}

type deduction struct {
	remaining decimal.Decimal
	result    *DeductionResult
}

// take consumes up to available row units for the remaining amount and
// returns the units consumed.
func (d *deduction) take(cost, available decimal.Decimal) decimal.Decimal {
	needed := d.remaining.Mul(cost)
	if needed.LessThanOrEqual(available) {
		d.remaining = decimal.Zero
		return needed
	}
	d.remaining = d.remaining.Sub(types.DivCredit(available, cost))
	if d.remaining.IsNegative() {
		d.remaining = decimal.Zero
	}
	return available
}

func (d *deduction) record(s *balanceSlot, before, after decimal.Decimal) {
	if before.Equal(after) {
		return
	}
	d.result.Changes = append(d.result.Changes, BalanceChange{
		RowID:     s.row.ID,
		FeatureID: s.row.FeatureID,
		EntityID:  s.entityID,
		Before:    before,
		After:     after,
	})
}

// Deduct allocates amount (in units of the resolved feature) across the
// resolution's rows. Positive balances are drained first in resolver order,
// then non-expired rollovers oldest expiry first, then overage on rows that
// allow it. A negative amount refills rows up to their reset balance.
//
// Under OverageBehaviorReject a remaining shortfall fails the whole call with
// ErrInsufficientBalance and no row is changed.
func Deduct(res *Resolution, amount decimal.Decimal, policy Policy, now time.Time) (*DeductionResult, error) {
	result := &DeductionResult{
		Requested: amount,
		Applied:   decimal.Zero,
		Shortfall: decimal.Zero,
	}

	if res.Unlimited {
		result.Skipped = true
		result.Applied = amount
		result.Rows = res.AllRows()
		return result, nil
	}

	rows := make([]*CustomerEntitlement, len(res.Rows))
	slots := make([]*balanceSlot, 0, len(res.Rows))
	for i, rr := range res.Rows {
		if !rr.CreditCost.IsPositive() {
			return nil, ierr.NewError("credit cost must be positive").
				WithHintf("Credit schema for feature %s is misconfigured", rr.Row.FeatureID).
				WithReportableDetails(map[string]interface{}{"row_id": rr.Row.ID}).
				Mark(ierr.ErrInvalidEntitlementState)
		}
		row := rr.Row.Clone()
		rows[i] = row
		slots = append(slots, slotsFor(row, rr.CreditCost, res.EntityID)...)
	}
	result.Rows = rows

	d := &deduction{remaining: amount.Abs(), result: result}

	if amount.IsNegative() {
		d.refund(slots, policy)
		result.Applied = amount
		return result, nil
	}

	// Pass 1: positive balances in resolver order.
	for _, s := range slots {
		if d.remaining.IsZero() {
			break
		}
		before := s.get()
		if !before.IsPositive() {
			continue
		}
		after := before.Sub(d.take(s.cost, before))
		s.set(after)
		d.record(s, before, after)
	}

	// Then rollovers, oldest expiry first across all rows.
	if d.remaining.IsPositive() {
		for _, rs := range rolloverSlots(res, rows, now) {
			if d.remaining.IsZero() {
				break
			}
			before := rs.rollover.Balance
			used := d.take(rs.cost, before)
			rs.rollover.Balance = before.Sub(used)
			rs.rollover.Usage = rs.rollover.Usage.Add(used)
			result.Changes = append(result.Changes, BalanceChange{
				RowID:      rs.row.ID,
				FeatureID:  rs.row.FeatureID,
				RolloverID: rs.rollover.ID,
				Before:     before,
				After:      rs.rollover.Balance,
			})
		}
	}

	// Pass 2: overage on rows that allow it, down to their usage floor.
	for _, s := range slots {
		if d.remaining.IsZero() {
			break
		}
		if !s.row.UsageAllowed {
			continue
		}
		before := s.get()
		var used decimal.Decimal
		if floor := s.row.MinBalance(); floor != nil && policy.BlockUsageLimit {
			available := before.Sub(*floor)
			if !available.IsPositive() {
				continue
			}
			used = d.take(s.cost, available)
		} else {
			used = d.remaining.Mul(s.cost)
			d.remaining = decimal.Zero
		}
		after := before.Sub(used)
		s.set(after)
		d.record(s, before, after)
	}

	result.Shortfall = d.remaining
	result.Applied = amount.Sub(d.remaining)

	if result.Shortfall.IsPositive() && policy.OverageBehavior == types.OverageBehaviorReject {
		return nil, ierr.NewError("insufficient balance").
			WithHintf("Not enough balance to deduct %s of %s", amount.String(), res.FeatureID).
			WithReportableDetails(map[string]interface{}{
				"feature_id": res.FeatureID,
				"requested":  amount.String(),
				"shortfall":  result.Shortfall.String(),
			}).
			Mark(ierr.ErrInsufficientBalance)
	}

	return result, nil
}

// refund credits rows up to their reset balance in resolver order. What does
// not fit goes to the first balance unless the policy skips it.
func (d *deduction) refund(slots []*balanceSlot, policy Policy) {
	for _, s := range slots {
		if d.remaining.IsZero() {
			return
		}
		before := s.get()
		room := s.row.ResetBalance().Sub(before)
		if !room.IsPositive() {
			continue
		}
		after := before.Add(d.take(s.cost, room))
		s.set(after)
		d.record(s, before, after)
	}

	if d.remaining.IsZero() || policy.SkipAdditionalBalance || len(slots) == 0 {
		return
	}
	s := slots[0]
	before := s.get()
	after := before.Add(d.remaining.Mul(s.cost))
	s.set(after)
	d.record(s, before, after)
	d.remaining = decimal.Zero
}

// slotsFor expands a row into the balances a deduction for entityID may touch.
func slotsFor(row *CustomerEntitlement, cost decimal.Decimal, entityID string) []*balanceSlot {
	if !row.EntityScoped() {
		return []*balanceSlot{{row: row, cost: cost}}
	}
	if entityID != "" {
		if _, ok := row.Entities[entityID]; !ok {
			return nil
		}
		return []*balanceSlot{{row: row, cost: cost, entityID: entityID}}
	}
	out := make([]*balanceSlot, 0, len(row.Entities))
	for _, id := range row.EntityIDs() {
		out = append(out, &balanceSlot{row: row, cost: cost, entityID: id})
	}
	return out
}

// rolloverSlots lists the spendable rollovers of rows, earliest expiry first.
// Rows keep resolver order for rollovers that expire together.
func rolloverSlots(res *Resolution, rows []*CustomerEntitlement, now time.Time) []*rolloverSlot {
	var out []*rolloverSlot
	for i, row := range rows {
		for _, r := range row.Rollovers {
			if r == nil || r.Expired(now) || !r.Balance.IsPositive() {
				continue
			}
			out = append(out, &rolloverSlot{row: row, rollover: r, cost: res.Rows[i].CreditCost, order: i})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].rollover, out[j].rollover
		if rolloverLess(a, b) {
			return true
		}
		if rolloverLess(b, a) {
			return false
		}
		return out[i].order < out[j].order
	})
	return out
}
