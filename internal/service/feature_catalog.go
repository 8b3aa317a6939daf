package service

import (
	"context"

	"github.com/flexprice/entitlements/internal/cache"
	"github.com/flexprice/entitlements/internal/domain/feature"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
)

// FeatureCatalog is the read-only, cached view of feature definitions.
type FeatureCatalog interface {
	GetFeature(ctx context.Context, featureID string) (*feature.Feature, error)
	// CreditSystemsFor returns the credit systems whose schema prices featureID.
	CreditSystemsFor(ctx context.Context, featureID string) ([]*feature.Feature, error)
}

type featureCatalog struct {
	ServiceParams
}

func NewFeatureCatalog(params ServiceParams) FeatureCatalog {
	return &featureCatalog{
		ServiceParams: params,
	}
}

func (s *featureCatalog) GetFeature(ctx context.Context, featureID string) (*feature.Feature, error) {
	if featureID == "" {
		return nil, ierr.NewError("feature_id is required").
			WithHint("Please provide a feature id").
			Mark(ierr.ErrValidation)
	}

	key := cache.GenerateKey(cache.PrefixFeature, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), featureID)
	if value, found := s.Cache.Get(ctx, key); found {
		if f, ok := cache.UnmarshalCacheValue[feature.Feature](value); ok {
			return f, nil
		}
	}

	f, err := s.FeatureRepo.Get(ctx, featureID)
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, key, f, cache.ExpiryFeature)
	return f, nil
}

func (s *featureCatalog) CreditSystemsFor(ctx context.Context, featureID string) ([]*feature.Feature, error) {
	key := cache.GenerateKey(cache.PrefixFeature, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), featureID, "credit_systems")
	if value, found := s.Cache.Get(ctx, key); found {
		if list, ok := cache.UnmarshalCacheValue[[]*feature.Feature](value); ok {
			return *list, nil
		}
	}

	list, err := s.FeatureRepo.ListCreditSystemsFor(ctx, featureID)
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, key, &list, cache.ExpiryFeature)
	return list, nil
}
