package ledger

import (
	"time"

	"github.com/flexprice/entitlements/internal/domain/entitlement"
	"github.com/flexprice/entitlements/internal/domain/feature"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

var (
	t0  = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	now = t0.Add(24 * time.Hour)
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func metered(id string) *feature.Feature {
	return &feature.Feature{ID: id, Kind: feature.MeteredKind{Aggregation: types.AggregationSum}}
}

func creditSystem(id string, items ...feature.SchemaItem) *feature.Feature {
	return &feature.Feature{ID: id, Kind: feature.CreditSystemKind{Schema: items}}
}

type rowOpt func(*CustomerEntitlement)

func newRow(id, featureID string, allowance string, opts ...rowOpt) *CustomerEntitlement {
	row := &CustomerEntitlement{
		ID:                id,
		CustomerID:        "cus_1",
		CustomerProductID: "cp_" + id,
		ProductID:         "prod_" + id,
		FeatureID:         featureID,
		Entitlement: entitlement.Entitlement{
			ID:            "ent_" + id,
			FeatureID:     featureID,
			Allowance:     d(allowance),
			Interval:      types.EntitlementIntervalMonth,
			IntervalCount: 1,
		},
		Balance:    d(allowance),
		Adjustment: decimal.Zero,
		Status:     types.CustomerEntitlementStatusActive,
		BaseModel:  types.BaseModel{CreatedAt: t0},
	}
	for _, opt := range opts {
		opt(row)
	}
	return row
}

func withCreatedAt(at time.Time) rowOpt {
	return func(r *CustomerEntitlement) { r.CreatedAt = at }
}

func withUsageAllowed() rowOpt {
	return func(r *CustomerEntitlement) { r.UsageAllowed = true }
}

func withUsageLimit(limit string) rowOpt {
	return func(r *CustomerEntitlement) { r.Entitlement.UsageLimit = dp(limit) }
}

func withStatus(s types.CustomerEntitlementStatus) rowOpt {
	return func(r *CustomerEntitlement) { r.Status = s }
}

func withUnlimited() rowOpt {
	return func(r *CustomerEntitlement) { r.Entitlement.Unlimited = true }
}

func withRollovers(rs ...*Rollover) rowOpt {
	return func(r *CustomerEntitlement) { r.Rollovers = rs }
}

func withRolloverConfig(max string, duration types.RolloverDuration, length int) rowOpt {
	return func(r *CustomerEntitlement) {
		r.Entitlement.RolloverConfig = &entitlement.RolloverConfig{Max: d(max), Duration: duration, Length: length}
	}
}

func withNextReset(at time.Time) rowOpt {
	return func(r *CustomerEntitlement) { r.NextResetAt = &at }
}

func withEntities(ids ...string) rowOpt {
	return func(r *CustomerEntitlement) {
		r.Entitlement.EntityFeatureID = "seats"
		r.Entities = make(map[string]*EntityBalance, len(ids))
		for _, id := range ids {
			r.Entities[id] = &EntityBalance{Balance: r.Entitlement.Allowance, Adjustment: decimal.Zero}
		}
	}
}

func rollover(id, balance string, expiresAt *time.Time) *Rollover {
	return &Rollover{ID: id, Balance: d(balance), Usage: decimal.Zero, ExpiresAt: expiresAt, CreatedAt: t0}
}

func at(t time.Time) *time.Time {
	return &t
}

func resolve(f *feature.Feature, rows []*CustomerEntitlement, cs ...*feature.Feature) *Resolution {
	res, err := Resolve(ResolveRequest{Feature: f, CreditSystems: cs, Rows: rows, Order: types.DeductionOrderNormal})
	if err != nil {
		panic(err)
	}
	return res
}

func capPolicy() Policy {
	return Policy{OverageBehavior: types.OverageBehaviorCap, BlockUsageLimit: true}
}

func rejectPolicy() Policy {
	return Policy{OverageBehavior: types.OverageBehaviorReject, BlockUsageLimit: true}
}

// identityHolds checks granted + purchased - usage == current.
func identityHolds(granted, purchased, usage, current *decimal.Decimal) bool {
	return granted.Add(*purchased).Sub(*usage).Equal(*current)
}
