package memory

import (
	"context"
	"time"

	"github.com/flexprice/entitlements/internal/domain/ledger"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
)

// LedgerStore implements ledger.Repository in memory.
type LedgerStore struct {
	*Store[*ledger.CustomerEntitlement]
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{Store: NewStore[*ledger.CustomerEntitlement]()}
}

func (s *LedgerStore) Create(ctx context.Context, row *ledger.CustomerEntitlement) error {
	if row == nil {
		return ierr.NewError("customer entitlement cannot be nil").
			WithHint("Customer entitlement cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if row.TenantID == "" {
		row.TenantID = types.GetTenantID(ctx)
	}
	if row.EnvironmentID == "" {
		row.EnvironmentID = types.GetEnvironmentID(ctx)
	}
	if row.Version == 0 {
		row.Version = 1
	}
	if err := s.Store.Create(ctx, row.ID, row.Clone()); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create customer entitlement").
			WithReportableDetails(map[string]interface{}{"id": row.ID}).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *LedgerStore) Get(ctx context.Context, id string) (*ledger.CustomerEntitlement, error) {
	row, err := s.Store.Get(ctx, id)
	if err != nil || !inScope(ctx, row.TenantID, row.EnvironmentID) {
		return nil, ierr.NewError("customer entitlement not found").
			WithHint("Customer entitlement not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return row.Clone(), nil
}

func (s *LedgerStore) List(ctx context.Context, filter *ledger.Filter) ([]*ledger.CustomerEntitlement, error) {
	if filter == nil {
		filter = &ledger.Filter{}
	}
	rows := s.Store.List(ctx, func(row *ledger.CustomerEntitlement) bool {
		if !inScope(ctx, row.TenantID, row.EnvironmentID) {
			return false
		}
		if filter.CustomerID != "" && row.CustomerID != filter.CustomerID {
			return false
		}
		if len(filter.FeatureIDs) > 0 && !lo.Contains(filter.FeatureIDs, row.FeatureID) {
			return false
		}
		if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, row.Status) {
			return false
		}
		return filter.CustomerProductID == "" || row.CustomerProductID == filter.CustomerProductID
	}, byCreatedAt)
	return ledger.CloneAll(rows), nil
}

// Save replaces every row or none. Each row's Version must match the stored
// one; on success it is bumped on both the stored and the passed row.
func (s *LedgerStore) Save(ctx context.Context, rows []*ledger.CustomerEntitlement) error {
	now := time.Now().UTC()
	return s.Store.Mutate(func(items map[string]*ledger.CustomerEntitlement) error {
		for _, row := range rows {
			stored, ok := items[row.ID]
			if !ok || !inScope(ctx, stored.TenantID, stored.EnvironmentID) {
				return ierr.NewError("customer entitlement not found").
					WithHint("Customer entitlement not found").
					WithReportableDetails(map[string]interface{}{"id": row.ID}).
					Mark(ierr.ErrNotFound)
			}
			if stored.Version != row.Version {
				return errVersionConflict(row.ID, row.Version, stored.Version)
			}
		}
		for _, row := range rows {
			row.Version++
			row.UpdatedAt = now
			row.UpdatedBy = types.GetUserID(ctx)
			items[row.ID] = row.Clone()
		}
		return nil
	})
}

func (s *LedgerStore) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]*ledger.CustomerEntitlement, error) {
	rows := s.Store.List(ctx, func(row *ledger.CustomerEntitlement) bool {
		return row.NextResetAt != nil && !row.NextResetAt.After(now) &&
			lo.Contains(types.DefaultStatusFilter, row.Status) && !row.Unlimited()
	}, func(a, b *ledger.CustomerEntitlement) bool {
		return a.NextResetAt.Before(*b.NextResetAt)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return ledger.CloneAll(rows), nil
}

func byCreatedAt(a, b *ledger.CustomerEntitlement) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func errVersionConflict(id string, expected, actual int64) error {
	return ierr.NewErrorf("customer entitlement %s was modified concurrently", id).
		WithHint("Balance changed while the request was running, please retry").
		WithReportableDetails(map[string]interface{}{
			"id":               id,
			"expected_version": expected,
			"actual_version":   actual,
		}).
		Mark(ierr.ErrLockContention)
}
