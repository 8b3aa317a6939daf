package ledger

import (
	ierr "github.com/flexprice/entitlements/internal/errors"
)

func errNoRows(featureID string) error {
	return ierr.NewErrorf("no entitlement found for feature %s", featureID).
		WithHintf("Customer has no active entitlement for feature %s", featureID).
		WithReportableDetails(map[string]interface{}{"feature_id": featureID}).
		Mark(ierr.ErrNotFound)
}

func errEntityRequired(featureID string) error {
	return ierr.NewErrorf("entity_id is required for feature %s", featureID).
		WithHint("This feature is tracked per entity, please pass entity_id").
		Mark(ierr.ErrValidation)
}

func errEntityNotFound(featureID, entityID string) error {
	return ierr.NewErrorf("entity %s has no balance for feature %s", entityID, featureID).
		WithHint("Entity not found").
		WithReportableDetails(map[string]interface{}{"feature_id": featureID, "entity_id": entityID}).
		Mark(ierr.ErrNotFound)
}

// ErrNoEntitlement is returned when a customer holds no row for a feature.
func ErrNoEntitlement(featureID string) error {
	return errNoRows(featureID)
}
