package proration

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/entitlements/internal/domain/price"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// Direction of an allocated quantity change.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionNone     Direction = "none"
)

// QuantityChangeParams describes a change of an allocated quantity (e.g. seats)
// within the current billing period.
type QuantityChangeParams struct {
	FeatureID   string
	FeatureName string
	Price       *price.Price
	// IncludedUsage is the part of the quantity covered by the plan for free.
	IncludedUsage    decimal.Decimal
	PreviousQuantity decimal.Decimal
	NewQuantity      decimal.Decimal
	// Replaceables are freed slots already paid for this period.
	Replaceables int

	PeriodStart time.Time
	PeriodEnd   time.Time
	ChangeDate  time.Time
	Timezone    string
	Strategy    types.ProrationStrategy
}

func (p QuantityChangeParams) Validate() error {
	if p.PreviousQuantity.IsNegative() || p.NewQuantity.IsNegative() {
		return ierr.NewError("quantity cannot be negative").
			WithHint("Quantity must be zero or positive").
			WithReportableDetails(map[string]interface{}{
				"previous_quantity": p.PreviousQuantity.String(),
				"new_quantity":      p.NewQuantity.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if p.Replaceables < 0 {
		return ierr.NewError("replaceables cannot be negative").
			WithHint("Replaceable count must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	if !p.PeriodEnd.After(p.PeriodStart) {
		return ierr.NewError("invalid billing period").
			WithHintf("Period end %v must be after period start %v", p.PeriodEnd, p.PeriodStart).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// QuantityChangeResult is the priced outcome of a quantity change. Amount is
// what to bill (positive) or credit (negative) now; DeferredAmount is billed
// with the next cycle.
type QuantityChangeResult struct {
	FeatureID         string          `json:"feature_id"`
	Direction         Direction       `json:"direction"`
	PreviousQuantity  decimal.Decimal `json:"previous_quantity"`
	NewQuantity       decimal.Decimal `json:"new_quantity"`
	EffectiveQuantity decimal.Decimal `json:"effective_quantity"`
	ReplaceablesUsed  int             `json:"replaceables_used"`
	// NewReplaceables are the freed slots to keep for reuse this period.
	NewReplaceables int             `json:"new_replaceables"`
	PreviousOverage decimal.Decimal `json:"previous_overage"`
	NewOverage      decimal.Decimal `json:"new_overage"`
	FullDelta       decimal.Decimal `json:"full_delta"`
	Coefficient     decimal.Decimal `json:"coefficient"`
	Amount          decimal.Decimal `json:"amount"`
	DeferredAmount  decimal.Decimal `json:"deferred_amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
}

// Billable reports whether there is anything to hand to the billing provider now.
func (r *QuantityChangeResult) Billable() bool {
	return !r.Amount.IsZero()
}

type quantityCalculator struct {
	logger *logger.Logger
}

// NewCalculator returns the graduated-tier quantity change calculator.
func NewCalculator(log *logger.Logger) Calculator {
	return &quantityCalculator{logger: log}
}

func (c *quantityCalculator) CalculateQuantityChange(ctx context.Context, params QuantityChangeParams) (*QuantityChangeResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	loc, err := types.LoadTimezone(params.Timezone)
	if err != nil {
		return nil, err
	}

	currency := ""
	if params.Price != nil {
		currency = params.Price.Currency
	}

	result := &QuantityChangeResult{
		FeatureID:         params.FeatureID,
		PreviousQuantity:  params.PreviousQuantity,
		NewQuantity:       params.NewQuantity,
		EffectiveQuantity: params.NewQuantity,
		Coefficient:       decimal.NewFromInt(1),
		Amount:            decimal.Zero,
		DeferredAmount:    decimal.Zero,
		Currency:          currency,
	}

	change := params.NewQuantity.Sub(params.PreviousQuantity)
	switch {
	case change.IsPositive():
		result.Direction = DirectionIncrease
		// Reusing a freed slot that was already paid for is free.
		used := types.MinDecimal(decimal.NewFromInt(int64(params.Replaceables)), change.Floor())
		result.ReplaceablesUsed = int(used.IntPart())
		result.EffectiveQuantity = params.NewQuantity.Sub(used)
	case change.IsNegative():
		result.Direction = DirectionDecrease
	default:
		result.Direction = DirectionNone
		result.PreviousOverage = params.Price.OverageUnits(params.PreviousQuantity, params.IncludedUsage)
		result.NewOverage = result.PreviousOverage
		result.FullDelta = decimal.Zero
		result.Description = c.describe(params, result)
		return result, nil
	}

	result.PreviousOverage = params.Price.OverageUnits(params.PreviousQuantity, params.IncludedUsage)
	result.NewOverage = params.Price.OverageUnits(result.EffectiveQuantity, params.IncludedUsage)
	result.FullDelta = params.Price.CalculateCost(result.NewOverage).Sub(params.Price.CalculateCost(result.PreviousOverage))

	cfg := params.Price.GetProrationConfig()
	prorate := false
	if result.Direction == DirectionIncrease {
		switch cfg.OnIncrease {
		case types.ProrationOnIncreaseBillNextCycle:
			result.DeferredAmount = types.RoundToCurrencyPrecision(result.FullDelta, currency)
		case types.ProrationOnIncreaseBillImmediately:
			result.Amount = result.FullDelta
		default:
			prorate = true
		}
	} else {
		switch cfg.OnDecrease {
		case types.ProrationOnDecreaseNone:
			// The freed slots stay paid until the period ends.
			result.NewReplaceables = int(change.Abs().Floor().IntPart())
		case types.ProrationOnDecreaseRefundImmediately:
			result.Amount = result.FullDelta
		default:
			prorate = true
		}
	}

	if prorate {
		coefficient, err := calculateProrationCoefficient(params.PeriodStart, params.PeriodEnd, params.ChangeDate, loc, params.Strategy)
		if err != nil {
			return nil, err
		}
		result.Coefficient = coefficient
		result.Amount = result.FullDelta.Mul(coefficient)
	}
	result.Amount = types.RoundToCurrencyPrecision(result.Amount, currency)
	result.Description = c.describe(params, result)

	c.logger.WithContext(ctx).Debugw("calculated quantity change",
		"feature_id", params.FeatureID,
		"direction", result.Direction,
		"previous_quantity", params.PreviousQuantity.String(),
		"new_quantity", params.NewQuantity.String(),
		"replaceables_used", result.ReplaceablesUsed,
		"full_delta", result.FullDelta.String(),
		"coefficient", result.Coefficient.String(),
		"amount", result.Amount.String())

	return result, nil
}

func (c *quantityCalculator) describe(params QuantityChangeParams, r *QuantityChangeResult) string {
	name := params.FeatureName
	if name == "" {
		name = params.FeatureID
	}
	desc := fmt.Sprintf("%s: quantity changed from %s to %s", name, params.PreviousQuantity.String(), params.NewQuantity.String())
	if r.ReplaceablesUsed > 0 {
		desc += fmt.Sprintf(", %d freed slot(s) reused", r.ReplaceablesUsed)
	}
	if !r.Coefficient.Equal(decimal.NewFromInt(1)) {
		desc += fmt.Sprintf(" (prorated %s%% of period)", r.Coefficient.Mul(decimal.NewFromInt(100)).StringFixed(2))
	}
	if r.DeferredAmount.IsPositive() {
		desc += fmt.Sprintf(", %s %s billed next cycle", r.DeferredAmount.StringFixed(types.GetCurrencyPrecision(r.Currency)), r.Currency)
	}
	return desc
}
