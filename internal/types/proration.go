package types

import (
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/samber/lo"
)

// ProrationStrategy selects how the remaining fraction of a period is measured.
type ProrationStrategy string

const (
	StrategyDayBased    ProrationStrategy = "day_based"
	StrategySecondBased ProrationStrategy = "second_based"
)

// ProrationOnIncrease is the billing policy applied when an allocated quantity grows.
type ProrationOnIncrease string

const (
	ProrationOnIncreaseProrateImmediately ProrationOnIncrease = "prorate_immediately"
	ProrationOnIncreaseBillImmediately    ProrationOnIncrease = "bill_immediately"
	ProrationOnIncreaseBillNextCycle      ProrationOnIncrease = "bill_next_cycle"
)

func (p ProrationOnIncrease) Validate() error {
	allowed := []ProrationOnIncrease{
		ProrationOnIncreaseProrateImmediately,
		ProrationOnIncreaseBillImmediately,
		ProrationOnIncreaseBillNextCycle,
	}
	if p != "" && !lo.Contains(allowed, p) {
		return ierr.NewErrorf("invalid on_increase behavior: %s", p).
			WithHint("Please provide a valid on_increase behavior").
			WithReportableDetails(map[string]interface{}{"allowed": allowed}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ProrationOnDecrease is the billing policy applied when an allocated quantity shrinks.
type ProrationOnDecrease string

const (
	ProrationOnDecreaseProrateImmediately ProrationOnDecrease = "prorate_immediately"
	ProrationOnDecreaseRefundImmediately  ProrationOnDecrease = "refund_immediately"
	ProrationOnDecreaseNone               ProrationOnDecrease = "none"
)

func (p ProrationOnDecrease) Validate() error {
	allowed := []ProrationOnDecrease{
		ProrationOnDecreaseProrateImmediately,
		ProrationOnDecreaseRefundImmediately,
		ProrationOnDecreaseNone,
	}
	if p != "" && !lo.Contains(allowed, p) {
		return ierr.NewErrorf("invalid on_decrease behavior: %s", p).
			WithHint("Please provide a valid on_decrease behavior").
			WithReportableDetails(map[string]interface{}{"allowed": allowed}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
