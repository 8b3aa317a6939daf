package service

import (
	"github.com/flexprice/entitlements/internal/billing"
	"github.com/flexprice/entitlements/internal/cache"
	"github.com/flexprice/entitlements/internal/config"
	"github.com/flexprice/entitlements/internal/domain/feature"
	"github.com/flexprice/entitlements/internal/domain/ledger"
	"github.com/flexprice/entitlements/internal/domain/proration"
	"github.com/flexprice/entitlements/internal/domain/settings"
	"github.com/flexprice/entitlements/internal/lock"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/metrics"
	"github.com/flexprice/entitlements/internal/pubsub"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	LedgerRepo   ledger.Repository
	FeatureRepo  feature.Repository
	SettingsRepo settings.Repository

	// Collaborators
	Locker              lock.Locker
	Cache               cache.Cache
	Billing             billing.Collaborator
	EventPublisher      pubsub.EventPublisher
	ProrationCalculator proration.Calculator
	Metrics             *metrics.Metrics
}

// NewServiceParams creates a new instance of ServiceParams
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	ledgerRepo ledger.Repository,
	featureRepo feature.Repository,
	settingsRepo settings.Repository,
	locker lock.Locker,
	cache cache.Cache,
	billing billing.Collaborator,
	eventPublisher pubsub.EventPublisher,
	prorationCalculator proration.Calculator,
	metrics *metrics.Metrics,
) ServiceParams {
	return ServiceParams{
		Logger:              logger,
		Config:              config,
		LedgerRepo:          ledgerRepo,
		FeatureRepo:         featureRepo,
		SettingsRepo:        settingsRepo,
		Locker:              locker,
		Cache:               cache,
		Billing:             billing,
		EventPublisher:      eventPublisher,
		ProrationCalculator: prorationCalculator,
		Metrics:             metrics,
	}
}
