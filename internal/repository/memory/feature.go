package memory

import (
	"context"

	"github.com/flexprice/entitlements/internal/domain/feature"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
)

// FeatureStore implements feature.Repository in memory. Features are kept in
// their record form so callers never share a Kind value with the store.
type FeatureStore struct {
	*Store[*feature.Record]
}

func NewFeatureStore() *FeatureStore {
	return &FeatureStore{Store: NewStore[*feature.Record]()}
}

func (s *FeatureStore) Create(ctx context.Context, f *feature.Feature) error {
	if f == nil {
		return ierr.NewError("feature cannot be nil").
			WithHint("Feature cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if f.TenantID == "" {
		f.TenantID = types.GetTenantID(ctx)
	}
	if f.EnvironmentID == "" {
		f.EnvironmentID = types.GetEnvironmentID(ctx)
	}
	if err := s.Store.Create(ctx, f.ID, f.ToRecord()); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create feature").
			WithReportableDetails(map[string]interface{}{"id": f.ID}).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *FeatureStore) Get(ctx context.Context, id string) (*feature.Feature, error) {
	r, err := s.Store.Get(ctx, id)
	if err != nil || !inScope(ctx, r.TenantID, r.EnvironmentID) {
		return nil, ierr.NewErrorf("feature %s not found", id).
			WithHint("Feature not found").
			WithReportableDetails(map[string]interface{}{"feature_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return feature.FromRecord(copyRecord(r))
}

func (s *FeatureStore) List(ctx context.Context) ([]*feature.Feature, error) {
	records := s.Store.List(ctx, func(r *feature.Record) bool {
		return inScope(ctx, r.TenantID, r.EnvironmentID)
	}, func(a, b *feature.Record) bool { return a.ID < b.ID })

	out := make([]*feature.Feature, 0, len(records))
	for _, r := range records {
		f, err := feature.FromRecord(copyRecord(r))
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *FeatureStore) ListCreditSystemsFor(ctx context.Context, featureID string) ([]*feature.Feature, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*feature.Feature, 0)
	for _, f := range all {
		if _, ok := f.CreditCostFor(featureID); ok && f.ID != featureID {
			out = append(out, f)
		}
	}
	return out, nil
}

func copyRecord(r *feature.Record) *feature.Record {
	c := *r
	c.Schema = append([]feature.SchemaItem(nil), r.Schema...)
	return &c
}
