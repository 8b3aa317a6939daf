package price

import (
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// BillingModel separates prepaid packages from usage billed in arrears.
type BillingModel string

const (
	// BillingModelPrepaid is bought up front in packages of BillingUnits.
	BillingModelPrepaid BillingModel = "prepaid"
	// BillingModelPayPerUse bills overage beyond the included usage.
	BillingModelPayPerUse BillingModel = "pay_per_use"
)

// Tier prices the overage units up to UpTo (cumulative, nil = no ceiling).
// Amount is charged per package of BillingUnits units.
type Tier struct {
	UpTo   *decimal.Decimal `json:"up_to,omitempty"`
	Amount decimal.Decimal  `json:"amount"`
}

type ProrationConfig struct {
	OnIncrease types.ProrationOnIncrease `json:"on_increase"`
	OnDecrease types.ProrationOnDecrease `json:"on_decrease"`
}

// Price is the usage price attached to a ledger row's feature.
type Price struct {
	ID              string           `json:"id"`
	FeatureID       string           `json:"feature_id"`
	Currency        string           `json:"currency"`
	BillingModel    BillingModel     `json:"billing_model"`
	BillingUnits    decimal.Decimal  `json:"billing_units"`
	Tiers           []Tier           `json:"tiers"`
	ProrationConfig *ProrationConfig `json:"proration_config,omitempty"`
	// ExternalPriceID is the billing provider's identifier, if any.
	ExternalPriceID string `json:"external_price_id,omitempty"`
}

// GetBillingUnits defaults to one unit per package.
func (p *Price) GetBillingUnits() decimal.Decimal {
	if p == nil || !p.BillingUnits.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return p.BillingUnits
}

// GetProrationConfig defaults both directions to immediate proration.
func (p *Price) GetProrationConfig() ProrationConfig {
	cfg := ProrationConfig{
		OnIncrease: types.ProrationOnIncreaseProrateImmediately,
		OnDecrease: types.ProrationOnDecreaseProrateImmediately,
	}
	if p == nil || p.ProrationConfig == nil {
		return cfg
	}
	if p.ProrationConfig.OnIncrease != "" {
		cfg.OnIncrease = p.ProrationConfig.OnIncrease
	}
	if p.ProrationConfig.OnDecrease != "" {
		cfg.OnDecrease = p.ProrationConfig.OnDecrease
	}
	return cfg
}

// OverageUnits rounds usage beyond included up to whole billing packages.
func (p *Price) OverageUnits(usage, included decimal.Decimal) decimal.Decimal {
	return types.RoundUpToMultiple(usage.Sub(included), p.GetBillingUnits())
}

// CalculateCost prices overage units through the graduated tiers. Each tier
// charges Amount per BillingUnits package for the units that fall inside it.
func (p *Price) CalculateCost(overage decimal.Decimal) decimal.Decimal {
	if p == nil || !overage.IsPositive() {
		return decimal.Zero
	}

	billingUnits := p.GetBillingUnits()
	total := decimal.Zero
	lower := decimal.Zero
	remaining := overage

	for _, tier := range p.Tiers {
		if !remaining.IsPositive() {
			break
		}

		inTier := remaining
		if tier.UpTo != nil {
			width := tier.UpTo.Sub(lower)
			if !width.IsPositive() {
				continue
			}
			inTier = types.MinDecimal(remaining, width)
			lower = *tier.UpTo
		}

		total = total.Add(inTier.Div(billingUnits).Mul(tier.Amount))
		remaining = remaining.Sub(inTier)

		if tier.UpTo == nil {
			break
		}
	}

	return total
}

func (p *Price) Validate() error {
	if len(p.Tiers) == 0 {
		return ierr.NewError("price has no tiers").
			WithHintf("Price %s must define at least one tier", p.ID).
			Mark(ierr.ErrValidation)
	}
	var prev *decimal.Decimal
	for i, tier := range p.Tiers {
		if tier.Amount.IsNegative() {
			return ierr.NewErrorf("tier %d has a negative amount", i).
				WithHint("Tier amounts must be zero or positive").
				Mark(ierr.ErrValidation)
		}
		if tier.UpTo == nil && i != len(p.Tiers)-1 {
			return ierr.NewErrorf("tier %d is unbounded but not last", i).
				WithHint("Only the last tier may omit up_to").
				Mark(ierr.ErrValidation)
		}
		if tier.UpTo != nil && prev != nil && !tier.UpTo.GreaterThan(*prev) {
			return ierr.NewErrorf("tier %d up_to is not increasing", i).
				WithHint("Tier boundaries must increase").
				Mark(ierr.ErrValidation)
		}
		prev = tier.UpTo
	}
	cfg := p.GetProrationConfig()
	if err := cfg.OnIncrease.Validate(); err != nil {
		return err
	}
	return cfg.OnDecrease.Validate()
}
