package types

import (
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/samber/lo"
)

// EntitlementInterval is the reset cadence of an entitlement. An empty
// interval or EntitlementIntervalLifetime never resets.
type EntitlementInterval string

const (
	EntitlementIntervalMinute     EntitlementInterval = "minute"
	EntitlementIntervalHour       EntitlementInterval = "hour"
	EntitlementIntervalDay        EntitlementInterval = "day"
	EntitlementIntervalWeek       EntitlementInterval = "week"
	EntitlementIntervalMonth      EntitlementInterval = "month"
	EntitlementIntervalQuarter    EntitlementInterval = "quarter"
	EntitlementIntervalSemiAnnual EntitlementInterval = "semi_annual"
	EntitlementIntervalYear       EntitlementInterval = "year"
	EntitlementIntervalLifetime   EntitlementInterval = "lifetime"
)

func (i EntitlementInterval) Validate() error {
	if i == "" {
		return nil
	}
	allowed := []EntitlementInterval{
		EntitlementIntervalMinute,
		EntitlementIntervalHour,
		EntitlementIntervalDay,
		EntitlementIntervalWeek,
		EntitlementIntervalMonth,
		EntitlementIntervalQuarter,
		EntitlementIntervalSemiAnnual,
		EntitlementIntervalYear,
		EntitlementIntervalLifetime,
	}
	if !lo.Contains(allowed, i) {
		return ierr.NewErrorf("invalid entitlement interval: %s", i).
			WithHint("Please provide a valid entitlement interval").
			WithReportableDetails(map[string]interface{}{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Resets reports whether balances on this interval are ever reset.
func (i EntitlementInterval) Resets() bool {
	return i != "" && i != EntitlementIntervalLifetime
}

// Advance returns t moved forward by count intervals.
func (i EntitlementInterval) Advance(t time.Time, count int) time.Time {
	if count <= 0 {
		count = 1
	}
	return i.shift(t, count)
}

// Rewind returns t moved back by count intervals.
func (i EntitlementInterval) Rewind(t time.Time, count int) time.Time {
	if count <= 0 {
		count = 1
	}
	return i.shift(t, -count)
}

func (i EntitlementInterval) shift(t time.Time, n int) time.Time {
	switch i {
	case EntitlementIntervalMinute:
		return t.Add(time.Duration(n) * time.Minute)
	case EntitlementIntervalHour:
		return t.Add(time.Duration(n) * time.Hour)
	case EntitlementIntervalDay:
		return t.AddDate(0, 0, n)
	case EntitlementIntervalWeek:
		return t.AddDate(0, 0, 7*n)
	case EntitlementIntervalMonth:
		return t.AddDate(0, n, 0)
	case EntitlementIntervalQuarter:
		return t.AddDate(0, 3*n, 0)
	case EntitlementIntervalSemiAnnual:
		return t.AddDate(0, 6*n, 0)
	case EntitlementIntervalYear:
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}

// RolloverDuration is the unit of a rollover's lifetime.
type RolloverDuration string

const (
	RolloverDurationMonth   RolloverDuration = "month"
	RolloverDurationForever RolloverDuration = "forever"
)

// CustomerEntitlementStatus mirrors the status of the owning product instance.
type CustomerEntitlementStatus string

const (
	CustomerEntitlementStatusActive    CustomerEntitlementStatus = "active"
	CustomerEntitlementStatusPastDue   CustomerEntitlementStatus = "past_due"
	CustomerEntitlementStatusScheduled CustomerEntitlementStatus = "scheduled"
	CustomerEntitlementStatusExpired   CustomerEntitlementStatus = "expired"
)

// DefaultStatusFilter is the set of statuses whose rows take part in tracking.
var DefaultStatusFilter = []CustomerEntitlementStatus{
	CustomerEntitlementStatusActive,
	CustomerEntitlementStatusPastDue,
}

// OverageBehavior decides what happens when a deduction exceeds the available balance.
type OverageBehavior string

const (
	OverageBehaviorCap    OverageBehavior = "cap"
	OverageBehaviorReject OverageBehavior = "reject"
)

func (o OverageBehavior) Validate() error {
	if o == "" {
		return nil
	}
	if !lo.Contains([]OverageBehavior{OverageBehaviorCap, OverageBehaviorReject}, o) {
		return ierr.NewErrorf("invalid overage behavior: %s", o).
			WithHint("Overage behavior must be cap or reject").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DeductionOrder decides which of several overlapping grants is drained first.
type DeductionOrder string

const (
	DeductionOrderNormal   DeductionOrder = "normal"
	DeductionOrderReversed DeductionOrder = "reversed"
)

func (d DeductionOrder) Validate() error {
	if d == "" {
		return nil
	}
	if !lo.Contains([]DeductionOrder{DeductionOrderNormal, DeductionOrderReversed}, d) {
		return ierr.NewErrorf("invalid deduction order: %s", d).
			WithHint("Deduction order must be normal or reversed").
			Mark(ierr.ErrValidation)
	}
	return nil
}
