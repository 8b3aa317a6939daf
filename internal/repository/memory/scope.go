package memory

import (
	"context"

	"github.com/flexprice/entitlements/internal/types"
)

// inScope reports whether an item owned by tenantID/environmentID is visible
// from ctx. An empty environment in ctx sees every environment of the tenant.
func inScope(ctx context.Context, tenantID, environmentID string) bool {
	if tenantID != types.GetTenantID(ctx) {
		return false
	}
	env := types.GetEnvironmentID(ctx)
	return env == "" || env == environmentID
}
