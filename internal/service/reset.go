package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/entitlements/internal/api/dto"
	"github.com/flexprice/entitlements/internal/domain/events"
	"github.com/flexprice/entitlements/internal/domain/ledger"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/metrics"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

const (
	opReset         = "reset"
	opProductSwitch = "product_switch"
)

// ResetService runs the period lifecycle of ledger rows.
type ResetService interface {
	// ResetDueBalances starts a new period on every row whose next_reset_at
	// has passed.
	ResetDueBalances(ctx context.Context, req *dto.ResetBalancesRequest) (*dto.ResetBalancesResponse, error)
	// TransferOnProductSwitch seeds the rows of a new product instance from
	// the one it replaces and expires every old row, including features the
	// new product drops. All rows are written in one save.
	TransferOnProductSwitch(ctx context.Context, req *dto.ProductSwitchRequest) (*dto.ProductSwitchResponse, error)
}

type resetService struct {
	ServiceParams
	ledger *ledgerSupport
}

func NewResetService(params ServiceParams) ResetService {
	return &resetService{
		ServiceParams: params,
		ledger:        newLedgerSupport(params),
	}
}

type resetOutcome int

const (
	resetDone resetOutcome = iota
	resetSkipped
)

func (s *resetService) ResetDueBalances(ctx context.Context, req *dto.ResetBalancesRequest) (*dto.ResetBalancesResponse, error) {
	if req == nil {
		req = &dto.ResetBalancesRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if req.Now != nil {
		now = req.Now.UTC()
	}
	batchSize := lo.Ternary(req.BatchSize > 0, req.BatchSize, s.Config.Reset.BatchSize)

	log := s.Logger.WithContext(ctx)
	log.Infow("starting balance reset", "now", now.Format(time.RFC3339), "batch_size", batchSize)

	due, err := s.LedgerRepo.ListDueForReset(ctx, now, batchSize)
	if err != nil {
		return nil, err
	}

	var reset, skipped, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(lo.Max([]int{s.Config.Reset.Concurrency, 1}))
	for _, row := range due {
		row := row
		p.Go(func() {
			outcome, err := s.resetWithRetry(ctx, row, now)
			switch {
			case err != nil:
				failed.Add(1)
				s.Metrics.ObserveResetRow(metrics.OutcomeError)
				log.Errorw("failed to reset customer entitlement",
					"customer_entitlement_id", row.ID,
					"tenant_id", row.TenantID,
					"customer_id", row.CustomerID,
					"feature_id", row.FeatureID,
					"error", err,
				)
			case outcome == resetSkipped:
				skipped.Add(1)
				s.Metrics.ObserveResetRow(metrics.OutcomeSkipped)
			default:
				reset.Add(1)
				s.Metrics.ObserveResetRow(metrics.OutcomeSuccess)
			}
		})
	}
	p.Wait()

	resp := &dto.ResetBalancesResponse{
		Scanned: len(due),
		Reset:   int(reset.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	log.Infow("completed balance reset",
		"scanned", resp.Scanned,
		"reset", resp.Reset,
		"skipped", resp.Skipped,
		"failed", resp.Failed,
	)
	return resp, nil
}

// resetWithRetry retries lock contention with exponential backoff. Every
// other error is final.
func (s *resetService) resetWithRetry(ctx context.Context, row *ledger.CustomerEntitlement, now time.Time) (resetOutcome, error) {
	// rows come from every tenant, so the scope is taken from the row
	rowCtx := types.SetEnvironmentID(types.SetTenantID(ctx, row.TenantID), row.EnvironmentID)

	b := backoff.NewExponentialBackOff()
	if s.Config.Reset.RetryDelay > 0 {
		b.InitialInterval = s.Config.Reset.RetryDelay
	}

	var outcome resetOutcome
	operation := func() error {
		var err error
		outcome, err = s.resetRow(rowCtx, row, now)
		if err != nil && !ierr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, s.Config.Reset.MaxRetries), ctx))
	return outcome, err
}

func (s *resetService) resetRow(ctx context.Context, row *ledger.CustomerEntitlement, now time.Time) (resetOutcome, error) {
	outcome := resetSkipped

	err := s.ledger.withLock(ctx, opReset, row.CustomerID, row.FeatureID, func() error {
		// the listed copy may be stale by the time the lock is held
		current, err := s.LedgerRepo.Get(ctx, row.ID)
		if err != nil {
			return err
		}
		if err := current.Validate(); err != nil {
			return err
		}

		next, ok := ledger.ResetRow(current, now)
		if !ok {
			return nil
		}

		if err := s.LedgerRepo.Save(ctx, []*ledger.CustomerEntitlement{next}); err != nil {
			return err
		}
		outcome = resetDone

		s.Logger.WithContext(ctx).Debugw("reset customer entitlement",
			"customer_entitlement_id", next.ID,
			"customer_id", next.CustomerID,
			"feature_id", next.FeatureID,
			"balance", next.Balance.String(),
			"rollovers", len(next.Rollovers),
			"next_reset_at", next.NextResetAt,
		)

		s.publishFeature(ctx, events.OperationReset, next.CustomerID, next.FeatureID, next.EntityID, now)
		return nil
	})
	return outcome, err
}

// publishFeature reloads the merged balance of a feature and publishes it. The
// change is already committed, so failures are only logged.
func (s *resetService) publishFeature(ctx context.Context, op events.BalanceOperation, customerID, featureID, entityID string, now time.Time) {
	fl, err := s.ledger.load(ctx, customerID, featureID, entityID)
	if err != nil {
		s.Logger.WithContext(ctx).Warnw("failed to load balance for event",
			"customer_id", customerID,
			"feature_id", featureID,
			"error", err,
		)
		return
	}
	s.ledger.committed(ctx, op, fl.snapshot(now))
}

func (s *resetService) TransferOnProductSwitch(ctx context.Context, req *dto.ProductSwitchRequest) (*dto.ProductSwitchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	from, err := s.LedgerRepo.List(ctx, &ledger.Filter{
		CustomerID:        req.CustomerID,
		CustomerProductID: req.FromCustomerProductID,
		Statuses:          types.DefaultStatusFilter,
	})
	if err != nil {
		return nil, err
	}

	to, err := s.LedgerRepo.List(ctx, &ledger.Filter{
		CustomerID:        req.CustomerID,
		CustomerProductID: req.ToCustomerProductID,
	})
	if err != nil {
		return nil, err
	}
	if len(to) == 0 {
		return nil, ierr.NewErrorf("customer product %s has no entitlements", req.ToCustomerProductID).
			WithHint("The new product must be attached before switching").
			WithReportableDetails(map[string]interface{}{
				"customer_id":         req.CustomerID,
				"customer_product_id": req.ToCustomerProductID,
			}).
			Mark(ierr.ErrNotFound)
	}

	now := time.Now().UTC()

	// a feature's old rows are carried into its first new row only
	seeded := make([]*ledger.CustomerEntitlement, 0, len(to))
	transferred := make(map[string]bool, len(to))
	for _, target := range to {
		var sources []*ledger.CustomerEntitlement
		if !transferred[target.FeatureID] {
			sources = lo.Filter(from, func(r *ledger.CustomerEntitlement, _ int) bool {
				return r.FeatureID == target.FeatureID
			})
			transferred[target.FeatureID] = true
		}
		row := ledger.TransferOnSwitch(sources, target, now)
		if row.Status == "" || row.Status == types.CustomerEntitlementStatusScheduled {
			row.Status = types.CustomerEntitlementStatusActive
		}
		seeded = append(seeded, row)
	}

	// the old product ends whole, including features the new one drops
	expired := lo.Map(from, func(r *ledger.CustomerEntitlement, _ int) *ledger.CustomerEntitlement {
		out := r.Clone()
		out.Status = types.CustomerEntitlementStatusExpired
		return out
	})

	featureIDs := lo.Map(append(append([]*ledger.CustomerEntitlement{}, seeded...), expired...),
		func(r *ledger.CustomerEntitlement, _ int) string { return r.FeatureID })

	err = s.ledger.withLocks(ctx, opProductSwitch, req.CustomerID, featureIDs, func() error {
		if err := s.LedgerRepo.Save(ctx, append(seeded, expired...)); err != nil {
			return err
		}

		s.Logger.WithContext(ctx).Infow("transferred balances on product switch",
			"customer_id", req.CustomerID,
			"from_customer_product_id", req.FromCustomerProductID,
			"to_customer_product_id", req.ToCustomerProductID,
			"seeded_rows", len(seeded),
			"expired_rows", len(expired),
			"dropped_features", lo.Without(lo.Uniq(lo.Map(from, func(r *ledger.CustomerEntitlement, _ int) string {
				return r.FeatureID
			})), lo.Keys(transferred)...),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.ProductSwitchResponse{Balances: make([]*ledger.BalanceSnapshot, 0, len(seeded))}
	published := make(map[string]bool, len(seeded))
	for _, row := range seeded {
		key := row.FeatureID + ":" + row.EntityID
		if published[key] {
			continue
		}
		published[key] = true

		fl, err := s.ledger.load(ctx, req.CustomerID, row.FeatureID, row.EntityID)
		if err != nil {
			return nil, err
		}
		snap := fl.snapshot(now)
		s.ledger.committed(ctx, events.OperationProductSwitch, snap)
		resp.Balances = append(resp.Balances, snap)
	}

	return resp, nil
}
