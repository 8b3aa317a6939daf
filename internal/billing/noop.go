package billing

import (
	"context"

	"github.com/flexprice/entitlements/internal/logger"
)

const ProviderNone = "none"

// NoopCollaborator accepts every charge without calling out.
type NoopCollaborator struct {
	log *logger.Logger
}

func NewNoopCollaborator(log *logger.Logger) *NoopCollaborator {
	return &NoopCollaborator{log: log}
}

func (n *NoopCollaborator) Charge(ctx context.Context, charge *Charge) (*ChargeResult, error) {
	if err := charge.Validate(); err != nil {
		return nil, err
	}
	n.log.WithContext(ctx).Debugw("billing disabled, charge skipped",
		"customer_id", charge.CustomerID,
		"feature_id", charge.FeatureID,
		"amount", charge.Amount.String(),
	)
	return &ChargeResult{Provider: ProviderNone}, nil
}
