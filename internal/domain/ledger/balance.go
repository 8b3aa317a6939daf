package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// BalanceBreakdown is the customer-facing view of one ledger row.
type BalanceBreakdown struct {
	RowID             string           `json:"id"`
	ProductID         string           `json:"product_id"`
	CustomerProductID string           `json:"customer_product_id"`
	EntityID          string           `json:"entity_id,omitempty"`
	GrantedBalance    *decimal.Decimal `json:"granted_balance"`
	PurchasedBalance  *decimal.Decimal `json:"purchased_balance"`
	CurrentBalance    *decimal.Decimal `json:"current_balance"`
	Usage             *decimal.Decimal `json:"usage"`
	NextResetAt       *time.Time       `json:"next_reset_at,omitempty"`
}

// RolloverView is a spendable rollover as shown to clients.
type RolloverView struct {
	Balance   decimal.Decimal `json:"balance"`
	Usage     decimal.Decimal `json:"usage"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// MergedBalance merges the rows sharing (interval, interval_count, feature).
// For every merged balance and breakdown row:
// granted + purchased - usage == current.
type MergedBalance struct {
	FeatureID        string                    `json:"feature_id"`
	Interval         types.EntitlementInterval `json:"interval,omitempty"`
	IntervalCount    int                       `json:"interval_count,omitempty"`
	Unlimited        bool                      `json:"unlimited"`
	GrantedBalance   *decimal.Decimal          `json:"granted_balance"`
	PurchasedBalance *decimal.Decimal          `json:"purchased_balance"`
	CurrentBalance   *decimal.Decimal          `json:"current_balance"`
	Usage            *decimal.Decimal          `json:"usage"`
	NextResetAt      *time.Time                `json:"next_reset_at,omitempty"`
	Rollovers        []RolloverView            `json:"rollovers,omitempty"`
	Breakdown        []*BalanceBreakdown       `json:"breakdown"`
}

// rowTotals are the raw sums of one row before the public fields are derived.
type rowTotals struct {
	total      decimal.Decimal
	purchased  decimal.Decimal
	balance    decimal.Decimal
	adjustment decimal.Decimal
	unused     decimal.Decimal
	rollovers  []RolloverView
}

func (t *rowTotals) add(o *rowTotals) {
	t.total = t.total.Add(o.total)
	t.purchased = t.purchased.Add(o.purchased)
	t.balance = t.balance.Add(o.balance)
	t.adjustment = t.adjustment.Add(o.adjustment)
	t.unused = t.unused.Add(o.unused)
	t.rollovers = append(t.rollovers, o.rollovers...)
}

// current = balance + unused
// usage   = total + adjustment - balance - unused
// granted = total - purchased + adjustment
func (t *rowTotals) derive() (granted, purchased, current, usage decimal.Decimal) {
	current = t.balance.Add(t.unused)
	usage = t.total.Add(t.adjustment).Sub(t.balance).Sub(t.unused)
	granted = t.total.Sub(t.purchased).Add(t.adjustment)
	return granted, t.purchased, current, usage
}

func totalsFor(row *CustomerEntitlement, entityID string, now time.Time) *rowTotals {
	t := &rowTotals{
		total:      decimal.Zero,
		purchased:  decimal.Zero,
		balance:    decimal.Zero,
		adjustment: decimal.Zero,
		unused:     decimal.NewFromInt(int64(len(row.Replaceables))),
	}

	count := decimal.NewFromInt(1)
	switch {
	case row.EntityScoped() && entityID != "":
		if e, ok := row.Entities[entityID]; ok {
			t.balance = e.Balance
			t.adjustment = e.Adjustment
		} else {
			count = decimal.Zero
		}
	case row.EntityScoped():
		for _, e := range row.Entities {
			t.balance = t.balance.Add(e.Balance)
			t.adjustment = t.adjustment.Add(e.Adjustment)
		}
		count = decimal.NewFromInt(int64(len(row.Entities)))
	default:
		t.balance = row.Balance
		t.adjustment = row.Adjustment
	}

	t.total = row.ResetBalance().Mul(count)
	t.purchased = row.Purchased().Mul(count)

	for _, r := range row.ActiveRollovers(now) {
		t.balance = t.balance.Add(r.Balance)
		t.total = t.total.Add(r.Balance).Add(r.Usage)
		t.rollovers = append(t.rollovers, RolloverView{Balance: r.Balance, Usage: r.Usage, ExpiresAt: r.ExpiresAt})
	}

	return t
}

// BreakdownFor derives the public view of one row.
func BreakdownFor(row *CustomerEntitlement, isBoolean bool, entityID string, now time.Time) *BalanceBreakdown {
	b := &BalanceBreakdown{
		RowID:             row.ID,
		ProductID:         row.ProductID,
		CustomerProductID: row.CustomerProductID,
		EntityID:          row.EntityID,
		NextResetAt:       row.NextResetAt,
	}
	if isBoolean {
		return b
	}
	granted, purchased, current, usage := totalsFor(row, entityID, now).derive()
	b.GrantedBalance = &granted
	b.PurchasedBalance = &purchased
	b.CurrentBalance = &current
	if !row.Unlimited() {
		b.Usage = &usage
	}
	return b
}

func groupKey(row *CustomerEntitlement) string {
	return fmt.Sprintf("%s-%d-%s", row.Entitlement.Interval, row.Entitlement.IntervalCount, row.FeatureID)
}

// Aggregate merges rows into one balance per (interval, interval_count,
// feature), sorted by feature id. booleanFeatures lists the features that
// carry no balance.
func Aggregate(rows []*CustomerEntitlement, booleanFeatures map[string]bool, entityID string, now time.Time) []*MergedBalance {
	groups := make(map[string]*MergedBalance)
	totals := make(map[string]*rowTotals)
	keys := make([]string, 0)

	for _, row := range rows {
		key := groupKey(row)
		mb, ok := groups[key]
		if !ok {
			mb = &MergedBalance{
				FeatureID:     row.FeatureID,
				Interval:      row.Entitlement.Interval,
				IntervalCount: row.Entitlement.IntervalCount,
			}
			groups[key] = mb
			totals[key] = &rowTotals{}
			keys = append(keys, key)
		}

		isBoolean := booleanFeatures[row.FeatureID]
		mb.Breakdown = append(mb.Breakdown, BreakdownFor(row, isBoolean, entityID, now))
		mb.Unlimited = mb.Unlimited || row.Unlimited()
		if row.NextResetAt != nil && (mb.NextResetAt == nil || row.NextResetAt.Before(*mb.NextResetAt)) {
			t := *row.NextResetAt
			mb.NextResetAt = &t
		}
		if !isBoolean {
			totals[key].add(totalsFor(row, entityID, now))
		}
	}

	out := make([]*MergedBalance, 0, len(keys))
	for _, key := range keys {
		mb := groups[key]
		if !booleanFeatures[mb.FeatureID] {
			granted, purchased, current, usage := totals[key].derive()
			mb.GrantedBalance = &granted
			mb.PurchasedBalance = &purchased
			mb.CurrentBalance = &current
			if !mb.Unlimited {
				mb.Usage = &usage
			}
			mb.Rollovers = totals[key].rollovers
		}
		out = append(out, mb)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FeatureID != out[j].FeatureID {
			return out[i].FeatureID < out[j].FeatureID
		}
		if out[i].Interval != out[j].Interval {
			return out[i].Interval < out[j].Interval
		}
		return out[i].IntervalCount < out[j].IntervalCount
	})
	return out
}

// BalanceSnapshot is the merged view of one feature returned to callers.
type BalanceSnapshot struct {
	CustomerID         string           `json:"customer_id"`
	FeatureID          string           `json:"feature_id"`
	EffectiveFeatureID string           `json:"effective_feature_id"`
	EntityID           string           `json:"entity_id,omitempty"`
	Unlimited          bool             `json:"unlimited"`
	UsageAllowed       bool             `json:"usage_allowed"`
	GrantedBalance     *decimal.Decimal `json:"granted_balance"`
	PurchasedBalance   *decimal.Decimal `json:"purchased_balance"`
	CurrentBalance     *decimal.Decimal `json:"current_balance"`
	Usage              *decimal.Decimal `json:"usage"`
	NextResetAt        *time.Time       `json:"next_reset_at,omitempty"`
	Balances           []*MergedBalance `json:"balances"`
}

// Allowed reports whether a further unit may be used.
func (s *BalanceSnapshot) Allowed() bool {
	if s.Unlimited || s.UsageAllowed {
		return true
	}
	return s.CurrentBalance != nil && s.CurrentBalance.IsPositive()
}

// Snapshot builds the merged view of res.EffectiveFeatureID from the resolved rows.
func Snapshot(customerID string, res *Resolution, isBoolean bool, now time.Time) *BalanceSnapshot {
	rows := res.FeatureRows(res.EffectiveFeatureID)
	booleans := map[string]bool{res.EffectiveFeatureID: isBoolean}
	merged := Aggregate(rows, booleans, res.EntityID, now)

	snap := &BalanceSnapshot{
		CustomerID:         customerID,
		FeatureID:          res.FeatureID,
		EffectiveFeatureID: res.EffectiveFeatureID,
		EntityID:           res.EntityID,
		Unlimited:          res.Unlimited,
		Balances:           merged,
	}
	for _, row := range rows {
		snap.UsageAllowed = snap.UsageAllowed || row.UsageAllowed
	}
	if isBoolean {
		return snap
	}

	var granted, purchased, current, usage decimal.Decimal
	for _, mb := range merged {
		granted = granted.Add(*mb.GrantedBalance)
		purchased = purchased.Add(*mb.PurchasedBalance)
		current = current.Add(*mb.CurrentBalance)
		if mb.Usage != nil {
			usage = usage.Add(*mb.Usage)
		}
		if mb.NextResetAt != nil && (snap.NextResetAt == nil || mb.NextResetAt.Before(*snap.NextResetAt)) {
			snap.NextResetAt = mb.NextResetAt
		}
	}
	snap.GrantedBalance = &granted
	snap.PurchasedBalance = &purchased
	snap.CurrentBalance = &current
	if !res.Unlimited {
		snap.Usage = &usage
	}
	return snap
}
