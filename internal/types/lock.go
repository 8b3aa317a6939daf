package types

import (
	"context"
	"strings"
)

const lockPrefixFeatureLedger = "lock:ledger"

// FeatureLedgerLockKey names the try-lock guarding the ledger rows of one
// customer feature. It carries no entity id since a customer wide row and an
// entity row serve every entity of the feature. Credit system rows shared with
// other features are not covered; LedgerRepo.Save rejects a stale version of
// them with ErrLockContention. The tenant and environment come from ctx so
// equal customer ids in different tenants never contend.
func FeatureLedgerLockKey(ctx context.Context, customerID, featureID string) string {
	return strings.Join([]string{
		lockPrefixFeatureLedger,
		GetTenantID(ctx),
		GetEnvironmentID(ctx),
		customerID,
		featureID,
	}, ":")
}
