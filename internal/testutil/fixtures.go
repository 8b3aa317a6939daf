package testutil

import (
	"context"
	"time"

	"github.com/flexprice/entitlements/internal/domain/entitlement"
	"github.com/flexprice/entitlements/internal/domain/feature"
	"github.com/flexprice/entitlements/internal/domain/ledger"
	"github.com/flexprice/entitlements/internal/domain/price"
	"github.com/flexprice/entitlements/internal/domain/settings"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// D parses a decimal literal and panics on malformed input.
func D(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func MeteredFeature(ctx context.Context, id string) *feature.Feature {
	return &feature.Feature{
		ID:            id,
		Name:          id,
		Kind:          feature.MeteredKind{Aggregation: types.AggregationSum},
		EnvironmentID: types.GetEnvironmentID(ctx),
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
}

// ContinuousFeature is an allocated metered feature, like seats.
func ContinuousFeature(ctx context.Context, id string) *feature.Feature {
	f := MeteredFeature(ctx, id)
	f.Kind = feature.MeteredKind{Aggregation: types.AggregationSum, UsageType: types.FeatureUsageContinuousUse}
	return f
}

func BooleanFeature(ctx context.Context, id string) *feature.Feature {
	return &feature.Feature{
		ID:            id,
		Name:          id,
		Kind:          feature.BooleanKind{},
		EnvironmentID: types.GetEnvironmentID(ctx),
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
}

// CreditSystemFeature prices each metered feature at creditCost credits per unit.
func CreditSystemFeature(ctx context.Context, id string, creditCosts map[string]string) *feature.Feature {
	schema := make([]feature.SchemaItem, 0, len(creditCosts))
	for featureID, cost := range creditCosts {
		schema = append(schema, feature.SchemaItem{
			MeteredFeatureID: featureID,
			FeatureAmount:    decimal.NewFromInt(1),
			CreditAmount:     D(cost),
		})
	}
	return &feature.Feature{
		ID:            id,
		Name:          id,
		Kind:          feature.CreditSystemKind{Schema: schema},
		EnvironmentID: types.GetEnvironmentID(ctx),
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
}

// SeatPrice is a pay-per-use price of amount per unit beyond the included usage.
func SeatPrice(featureID, amount string, cfg *price.ProrationConfig) *price.Price {
	return &price.Price{
		ID:              "price_" + featureID,
		FeatureID:       featureID,
		Currency:        "usd",
		BillingModel:    price.BillingModelPayPerUse,
		BillingUnits:    decimal.NewFromInt(1),
		Tiers:           []price.Tier{{Amount: D(amount)}},
		ProrationConfig: cfg,
	}
}

// RowOption customizes a ledger row built by NewLedgerRow.
type RowOption func(*ledger.CustomerEntitlement)

// NewLedgerRow builds an active monthly row granting allowance with a full balance.
func NewLedgerRow(ctx context.Context, id, customerID, featureID, allowance string, opts ...RowOption) *ledger.CustomerEntitlement {
	row := &ledger.CustomerEntitlement{
		ID:                id,
		CustomerID:        customerID,
		CustomerProductID: "cp_" + id,
		ProductID:         "prod_" + id,
		FeatureID:         featureID,
		Entitlement: entitlement.Entitlement{
			ID:            "ent_" + id,
			ProductID:     "prod_" + id,
			FeatureID:     featureID,
			Allowance:     D(allowance),
			Interval:      types.EntitlementIntervalMonth,
			IntervalCount: 1,
		},
		Balance:       D(allowance),
		Adjustment:    decimal.Zero,
		Status:        types.CustomerEntitlementStatusActive,
		EnvironmentID: types.GetEnvironmentID(ctx),
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
	for _, opt := range opts {
		opt(row)
	}
	return row
}

func WithUsageAllowed() RowOption {
	return func(r *ledger.CustomerEntitlement) { r.UsageAllowed = true }
}

func WithUsageLimit(limit string) RowOption {
	return func(r *ledger.CustomerEntitlement) {
		l := D(limit)
		r.Entitlement.UsageLimit = &l
	}
}

func WithUnlimited() RowOption {
	return func(r *ledger.CustomerEntitlement) { r.Entitlement.Unlimited = true }
}

func WithPrice(p *price.Price) RowOption {
	return func(r *ledger.CustomerEntitlement) { r.Price = p }
}

func WithCustomerProduct(customerProductID, productID string) RowOption {
	return func(r *ledger.CustomerEntitlement) {
		r.CustomerProductID = customerProductID
		r.ProductID = productID
		r.Entitlement.ProductID = productID
	}
}

func WithStatus(status types.CustomerEntitlementStatus) RowOption {
	return func(r *ledger.CustomerEntitlement) { r.Status = status }
}

func WithNextResetAt(at time.Time) RowOption {
	return func(r *ledger.CustomerEntitlement) { r.NextResetAt = &at }
}

func WithRolloverConfig(max string, duration types.RolloverDuration, length int) RowOption {
	return func(r *ledger.CustomerEntitlement) {
		r.Entitlement.RolloverConfig = &entitlement.RolloverConfig{
			Max:      D(max),
			Duration: duration,
			Length:   length,
		}
	}
}

func WithCarryFromPrevious() RowOption {
	return func(r *ledger.CustomerEntitlement) { r.Entitlement.CarryFromPrevious = true }
}

func WithCreatedAt(at time.Time) RowOption {
	return func(r *ledger.CustomerEntitlement) { r.CreatedAt = at }
}

// WithEntities keeps a separate full balance for every entity id.
func WithEntities(entityFeatureID string, ids ...string) RowOption {
	return func(r *ledger.CustomerEntitlement) {
		r.Entitlement.EntityFeatureID = entityFeatureID
		r.Entities = make(map[string]*ledger.EntityBalance, len(ids))
		for _, id := range ids {
			r.Entities[id] = &ledger.EntityBalance{Balance: r.Entitlement.Allowance, Adjustment: decimal.Zero}
		}
	}
}

// LedgerConfigSetting stores cfg as the tenant's ledger_config setting.
func LedgerConfigSetting(ctx context.Context, cfg types.LedgerConfig) *settings.Setting {
	return &settings.Setting{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SETTING),
		Key:           types.SettingKeyLedgerConfig,
		Value:         cfg.ToMap(),
		EnvironmentID: types.GetEnvironmentID(ctx),
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
}
