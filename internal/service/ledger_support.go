package service

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/entitlements/internal/cache"
	"github.com/flexprice/entitlements/internal/domain/events"
	"github.com/flexprice/entitlements/internal/domain/feature"
	"github.com/flexprice/entitlements/internal/domain/ledger"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/lock"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
)

// featureLedger is the loaded state of one (customer, feature[, entity]).
type featureLedger struct {
	customerID string
	feature    *feature.Feature
	config     types.LedgerConfig
	resolution *ledger.Resolution
}

func (fl *featureLedger) snapshot(now time.Time) *ledger.BalanceSnapshot {
	return ledger.Snapshot(fl.customerID, fl.resolution, fl.feature.IsBoolean(), now)
}

// withRows returns a copy of the resolution where rows with a matching id are
// replaced by their updated version.
func (fl *featureLedger) withRows(updated []*ledger.CustomerEntitlement) *featureLedger {
	byID := lo.SliceToMap(updated, func(r *ledger.CustomerEntitlement) (string, *ledger.CustomerEntitlement) {
		return r.ID, r
	})

	res := *fl.resolution
	res.Rows = make([]*ledger.ResolvedRow, len(fl.resolution.Rows))
	for i, rr := range fl.resolution.Rows {
		next := *rr
		if row, ok := byID[rr.Row.ID]; ok {
			next.Row = row
		}
		res.Rows[i] = &next
	}

	out := *fl
	out.resolution = &res
	return &out
}

// ledgerSupport holds the load, lock and commit steps shared by the balance
// operations and the reset job.
type ledgerSupport struct {
	ServiceParams
	catalog FeatureCatalog
}

func newLedgerSupport(params ServiceParams) *ledgerSupport {
	return &ledgerSupport{
		ServiceParams: params,
		catalog:       NewFeatureCatalog(params),
	}
}

// ledgerConfig returns the tenant's ledger_config setting, or the configured
// defaults when the tenant has none.
func (s *ledgerSupport) ledgerConfig(ctx context.Context) (types.LedgerConfig, error) {
	setting, err := s.SettingsRepo.GetByKey(ctx, types.SettingKeyLedgerConfig)
	if err != nil {
		if ierr.IsNotFound(err) {
			return s.Config.Ledger.Defaults(), nil
		}
		return types.LedgerConfig{}, err
	}
	return setting.ToLedgerConfig()
}

// load reads the customer's rows for featureID and every credit system that
// prices it, then resolves them.
func (s *ledgerSupport) load(ctx context.Context, customerID, featureID, entityID string) (*featureLedger, error) {
	f, err := s.catalog.GetFeature(ctx, featureID)
	if err != nil {
		return nil, err
	}

	creditSystems, err := s.catalog.CreditSystemsFor(ctx, featureID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.ledgerConfig(ctx)
	if err != nil {
		return nil, err
	}

	featureIDs := append([]string{featureID}, lo.Map(creditSystems, func(cs *feature.Feature, _ int) string {
		return cs.ID
	})...)

	rows, err := s.LedgerRepo.List(ctx, &ledger.Filter{
		CustomerID: customerID,
		FeatureIDs: featureIDs,
		Statuses:   types.DefaultStatusFilter,
	})
	if err != nil {
		return nil, err
	}

	res, err := ledger.Resolve(ledger.ResolveRequest{
		Feature:       f,
		CreditSystems: creditSystems,
		Rows:          rows,
		StatusFilter:  types.DefaultStatusFilter,
		EntityID:      entityID,
		Order:         cfg.DeductionOrder,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, ledger.ErrNoEntitlement(featureID)
	}

	return &featureLedger{
		customerID: customerID,
		feature:    f,
		config:     cfg,
		resolution: res,
	}, nil
}

// withLock runs fn while holding the try-lock of (customer, feature). A held
// lock fails immediately with ErrLockContention.
func (s *ledgerSupport) withLock(ctx context.Context, operation, customerID, featureID string, fn func() error) error {
	return s.withLocks(ctx, operation, customerID, []string{featureID}, fn)
}

// withLocks holds the try-locks of several features of one customer for the
// duration of fn. Keys are taken in sorted order and all of them are released
// when any one is contended.
func (s *ledgerSupport) withLocks(ctx context.Context, operation, customerID string, featureIDs []string, fn func() error) error {
	ids := lo.Uniq(featureIDs)
	sort.Strings(ids)

	type held struct {
		key   string
		guard lock.Guard
	}
	guards := make([]held, 0, len(ids))
	defer func() {
		for i := len(guards) - 1; i >= 0; i-- {
			if err := guards[i].guard.Release(context.WithoutCancel(ctx)); err != nil {
				s.Logger.WithContext(ctx).Warnw("failed to release ledger lock", "key", guards[i].key, "error", err)
			}
		}
	}()

	for _, featureID := range ids {
		key := types.FeatureLedgerLockKey(ctx, customerID, featureID)
		guard, err := lock.Acquire(ctx, s.Locker, key)
		if err != nil {
			if ierr.IsLockContention(err) {
				s.Metrics.ObserveLockContention(operation)
				s.Logger.WithContext(ctx).Infow("ledger lock is held",
					"operation", operation,
					"customer_id", customerID,
					"feature_id", featureID,
				)
			}
			return err
		}
		guards = append(guards, held{key: key, guard: guard})
	}

	return fn()
}

func balanceCacheKey(ctx context.Context, customerID, featureID, entityID string) string {
	return cache.GenerateKey(cache.PrefixBalance, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), customerID, featureID, entityID)
}

// committed drops every cached snapshot of the customer, since a credit
// system row is shared by several features, and publishes the new balance.
func (s *ledgerSupport) committed(ctx context.Context, op events.BalanceOperation, snap *ledger.BalanceSnapshot) {
	prefix := cache.GenerateKey(cache.PrefixBalance, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), snap.CustomerID) + ":"
	s.Cache.DeleteByPrefix(ctx, prefix)

	if s.EventPublisher == nil {
		return
	}
	event := events.NewBalanceUpdated(types.GetTenantID(ctx), types.GetEnvironmentID(ctx), op, snap)
	if err := s.EventPublisher.PublishBalanceUpdated(ctx, event); err != nil {
		s.Logger.WithContext(ctx).Errorw("failed to publish balance event",
			"event_id", event.ID,
			"customer_id", snap.CustomerID,
			"feature_id", snap.FeatureID,
			"operation", op,
			"error", err,
		)
	}
}

// changedRows keeps the rows a deduction actually touched.
func changedRows(result *ledger.DeductionResult) []*ledger.CustomerEntitlement {
	touched := make(map[string]bool, len(result.Changes))
	for _, c := range result.Changes {
		touched[c.RowID] = true
	}
	return lo.Filter(result.Rows, func(r *ledger.CustomerEntitlement, _ int) bool {
		return touched[r.ID]
	})
}
