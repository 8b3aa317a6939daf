package billing

import (
	"github.com/flexprice/entitlements/internal/config"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
)

// NewCollaborator picks the billing provider from config.
func NewCollaborator(cfg *config.Configuration, log *logger.Logger) (Collaborator, error) {
	switch cfg.Billing.Provider {
	case "", ProviderNone:
		return NewNoopCollaborator(log), nil
	case ProviderStripe:
		if cfg.Billing.StripeSecretKey == "" {
			return nil, ierr.NewError("stripe secret key is required").
				WithHint("Set billing.stripe_secret_key when the stripe provider is enabled").
				Mark(ierr.ErrValidation)
		}
		return NewStripeCollaborator(cfg.Billing.StripeSecretKey, cfg.Billing.MinimumAmount, log), nil
	default:
		return nil, ierr.NewErrorf("unknown billing provider %q", cfg.Billing.Provider).
			WithHint("Billing provider must be none or stripe").
			Mark(ierr.ErrValidation)
	}
}
