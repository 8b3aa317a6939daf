package ledger

import (
	"context"
	"time"

	"github.com/flexprice/entitlements/internal/types"
)

// Filter selects ledger rows of one customer.
type Filter struct {
	CustomerID string
	// FeatureIDs restricts the rows to these features; empty means all.
	FeatureIDs []string
	// Statuses restricts the rows to these statuses; empty means all.
	Statuses []types.CustomerEntitlementStatus
	// CustomerProductID restricts the rows to one product instance.
	CustomerProductID string
}

// Repository persists ledger rows. Save must apply every row or none.
type Repository interface {
	Create(ctx context.Context, row *CustomerEntitlement) error
	Get(ctx context.Context, id string) (*CustomerEntitlement, error)
	List(ctx context.Context, filter *Filter) ([]*CustomerEntitlement, error)
	Save(ctx context.Context, rows []*CustomerEntitlement) error
	// ListDueForReset returns active rows whose next_reset_at is at or before now.
	ListDueForReset(ctx context.Context, now time.Time, limit int) ([]*CustomerEntitlement, error)
}
