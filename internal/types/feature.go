package types

import (
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/samber/lo"
)

// FeatureType is the kind of a feature.
type FeatureType string

const (
	FeatureTypeBoolean      FeatureType = "boolean"
	FeatureTypeMetered      FeatureType = "metered"
	FeatureTypeCreditSystem FeatureType = "credit_system"
)

func (f FeatureType) Validate() error {
	allowed := []FeatureType{FeatureTypeBoolean, FeatureTypeMetered, FeatureTypeCreditSystem}
	if !lo.Contains(allowed, f) {
		return ierr.NewErrorf("invalid feature type: %s", f).
			WithHint("Please provide a valid feature type").
			WithReportableDetails(map[string]interface{}{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AggregationType is how usage events of a metered feature are combined.
type AggregationType string

const (
	AggregationCount AggregationType = "count"
	AggregationSum   AggregationType = "sum"
)

func (a AggregationType) Validate() error {
	if a == "" {
		return nil
	}
	allowed := []AggregationType{AggregationCount, AggregationSum}
	if !lo.Contains(allowed, a) {
		return ierr.NewErrorf("invalid aggregation type: %s", a).
			WithHint("Aggregation must be count or sum").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// FeatureUsageType separates usage that is consumed once (API calls) from
// quantities that stay allocated until released (seats).
type FeatureUsageType string

const (
	FeatureUsageSingleUse     FeatureUsageType = "single_use"
	FeatureUsageContinuousUse FeatureUsageType = "continuous_use"
)

func (u FeatureUsageType) Validate() error {
	if u == "" {
		return nil
	}
	allowed := []FeatureUsageType{FeatureUsageSingleUse, FeatureUsageContinuousUse}
	if !lo.Contains(allowed, u) {
		return ierr.NewErrorf("invalid feature usage type: %s", u).
			WithHint("Usage type must be single_use or continuous_use").
			WithReportableDetails(map[string]interface{}{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
