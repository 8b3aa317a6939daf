package proration

import (
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// calculateProrationCoefficient returns the share of the period left at
// prorationDate, between 0 and 1.
func calculateProrationCoefficient(
	periodStart time.Time,
	periodEnd time.Time,
	prorationDate time.Time,
	loc *time.Location,
	strategy types.ProrationStrategy,
) (decimal.Decimal, error) {
	if loc == nil {
		loc = time.UTC
	}

	switch strategy {
	case types.StrategySecondBased, "":
		total := periodEnd.Sub(periodStart)
		if total <= 0 {
			return decimal.Zero, ierr.NewError("invalid billing period").
				WithHintf("total seconds is zero or negative (%v to %v)", periodStart, periodEnd).
				Mark(ierr.ErrValidation)
		}

		remaining := periodEnd.Sub(prorationDate)
		if remaining < 0 {
			remaining = 0
		}
		if remaining > total {
			remaining = total
		}
		return types.DivCredit(decimal.NewFromInt(int64(remaining)), decimal.NewFromInt(int64(total))), nil

	case types.StrategyDayBased:
		totalDays := daysInDurationWithDST(periodStart, periodEnd, loc)
		if totalDays <= 0 {
			return decimal.Zero, ierr.NewError("invalid billing period").
				WithHintf("total days is zero or negative (%v to %v)", periodStart, periodEnd).
				Mark(ierr.ErrValidation)
		}

		if prorationDate.Before(periodStart) {
			prorationDate = periodStart
		}
		remainingDays := daysInDurationWithDST(prorationDate, periodEnd, loc)
		if remainingDays < 0 {
			remainingDays = 0
		}
		return types.DivCredit(decimal.NewFromInt(int64(remainingDays)), decimal.NewFromInt(int64(totalDays))), nil

	default:
		return decimal.Zero, ierr.NewError("invalid proration strategy").
			WithHintf("invalid proration strategy: %s", strategy).
			Mark(ierr.ErrValidation)
	}
}

// daysInDurationWithDST counts calendar days from start to end in loc. Days are
// compared as dates so a DST shift never yields a partial day.
func daysInDurationWithDST(start, end time.Time, loc *time.Location) int {
	s := start.In(loc)
	e := end.In(loc)
	startDate := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	endDate := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	return int(endDate.Sub(startDate).Hours() / 24)
}
