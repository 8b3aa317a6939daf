package entitlement

import (
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// RolloverConfig caps how much unused balance carries into the next period and
// for how long it stays spendable.
type RolloverConfig struct {
	Max      decimal.Decimal        `json:"max"`
	Length   int                    `json:"length"`
	Duration types.RolloverDuration `json:"duration"`
}

// ExpiresAt returns when a rollover created at resetAt stops counting, or nil
// when it never expires.
func (c *RolloverConfig) ExpiresAt(resetAt time.Time) *time.Time {
	if c == nil || c.Duration == types.RolloverDurationForever || c.Length <= 0 {
		return nil
	}
	expiry := resetAt.AddDate(0, c.Length, 0)
	return &expiry
}

func (c *RolloverConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.Max.IsNegative() {
		return ierr.NewError("rollover max cannot be negative").
			WithHint("Rollover max must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	if c.Duration != types.RolloverDurationMonth && c.Duration != types.RolloverDurationForever {
		return ierr.NewErrorf("invalid rollover duration: %s", c.Duration).
			WithHint("Rollover duration must be month or forever").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Entitlement is the template grant a product carries for one feature.
type Entitlement struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	FeatureID string `json:"feature_id"`

	// Allowance is the per-period grant; ignored when Unlimited is set.
	Allowance decimal.Decimal `json:"allowance"`
	Unlimited bool            `json:"unlimited"`

	Interval      types.EntitlementInterval `json:"interval,omitempty"`
	IntervalCount int                       `json:"interval_count,omitempty"`

	// UsageLimit is the maximum usage per period, allowance included. Nil means no floor.
	UsageLimit *decimal.Decimal `json:"usage_limit,omitempty"`

	RolloverConfig    *RolloverConfig `json:"rollover_config,omitempty"`
	CarryFromPrevious bool            `json:"carry_from_previous"`

	// EntityFeatureID is set when balances are kept per sub-entity (e.g. per seat).
	EntityFeatureID string `json:"entity_feature_id,omitempty"`
}

func (e *Entitlement) Validate() error {
	if e.FeatureID == "" {
		return ierr.NewError("feature_id is required").
			WithHint("Entitlement must reference a feature").
			Mark(ierr.ErrValidation)
	}
	if err := e.Interval.Validate(); err != nil {
		return err
	}
	if !e.Unlimited && e.Allowance.IsNegative() {
		return ierr.NewError("allowance cannot be negative").
			WithHintf("Entitlement for %s has a negative allowance", e.FeatureID).
			Mark(ierr.ErrValidation)
	}
	if e.UsageLimit != nil && e.UsageLimit.IsNegative() {
		return ierr.NewError("usage limit cannot be negative").
			WithHintf("Entitlement for %s has a negative usage limit", e.FeatureID).
			Mark(ierr.ErrValidation)
	}
	return e.RolloverConfig.Validate()
}
