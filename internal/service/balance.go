package service

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/entitlements/internal/api/dto"
	"github.com/flexprice/entitlements/internal/billing"
	"github.com/flexprice/entitlements/internal/cache"
	"github.com/flexprice/entitlements/internal/domain/events"
	"github.com/flexprice/entitlements/internal/domain/ledger"
	"github.com/flexprice/entitlements/internal/domain/proration"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/metrics"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	opDeduct          = "deduct"
	opSetBalance      = "set_balance"
	opSetUsage        = "set_usage"
	opQuantityChange  = "quantity_change"
	opPreviewQuantity = "preview_quantity"
	opCheckBalance    = "check_balance"
	opEntityCheck     = "entity_check"
)

// BalanceService is the entry point for every balance read and mutation.
// Mutations hold the (customer, feature) try-lock for their whole
// read-modify-write cycle.
type BalanceService interface {
	DeductUsage(ctx context.Context, req *dto.TrackUsageRequest) (*dto.BalanceResponse, error)
	CheckBalance(ctx context.Context, req *dto.CheckBalanceRequest) (*dto.BalanceResponse, error)
	UpdateBalance(ctx context.Context, req *dto.SetBalanceRequest) (*dto.BalanceResponse, error)
	UpdateUsage(ctx context.Context, req *dto.SetUsageRequest) (*dto.BalanceResponse, error)
	PreviewQuantityChange(ctx context.Context, req *dto.QuantityChangeRequest) (*dto.QuantityChangeResponse, error)
	UpdateQuantity(ctx context.Context, req *dto.QuantityChangeRequest) (*dto.QuantityChangeResponse, error)
	CheckEntityCreation(ctx context.Context, req *dto.EntityCheckRequest) (*dto.EntityCheckResponse, error)
}

type balanceService struct {
	ServiceParams
	ledger *ledgerSupport
}

func NewBalanceService(params ServiceParams) BalanceService {
	return &balanceService{
		ServiceParams: params,
		ledger:        newLedgerSupport(params),
	}
}

func (s *balanceService) observe(op string, start time.Time, err *error, outcome *string) {
	if *err != nil {
		switch {
		case ierr.IsLockContention(*err):
			*outcome = metrics.OutcomeContended
		case ierr.IsInsufficientBalance(*err), ierr.IsFeatureLimitReached(*err):
			*outcome = metrics.OutcomeRejected
		default:
			*outcome = metrics.OutcomeError
		}
	}
	s.Metrics.ObserveOperation(op, *outcome, start)
}

func (s *balanceService) DeductUsage(ctx context.Context, req *dto.TrackUsageRequest) (resp *dto.BalanceResponse, err error) {
	start, outcome := time.Now(), metrics.OutcomeSuccess
	defer s.observe(opDeduct, start, &err, &outcome)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := s.Logger.WithContext(ctx)
	now := time.Now().UTC()

	err = s.ledger.withLock(ctx, opDeduct, req.CustomerID, req.FeatureID, func() error {
		fl, err := s.ledger.load(ctx, req.CustomerID, req.FeatureID, req.EntityID)
		if err != nil {
			return err
		}

		if paidAllocated(fl) {
			resp, err = s.deductAllocated(ctx, fl, req, now)
			if err != nil {
				return err
			}
			s.Metrics.ObserveDeduction(outcome)
			return nil
		}

		policy := ledger.Policy{
			OverageBehavior: lo.Ternary(req.OverageBehavior != "", req.OverageBehavior, fl.config.DefaultOverageBehavior),
			BlockUsageLimit: fl.config.BlockUsageLimit,
		}

		result, err := ledger.Deduct(fl.resolution, req.Value, policy, now)
		if err != nil {
			if ierr.IsInsufficientBalance(err) {
				s.Metrics.ObserveDeduction(metrics.OutcomeRejected)
			}
			return err
		}

		if result.Skipped {
			outcome = metrics.OutcomeSkipped
			s.Metrics.ObserveDeduction(metrics.OutcomeSkipped)
			resp = dto.NewBalanceResponse(fl.snapshot(now), decimal.Zero)
			resp.Applied = &result.Applied
			return nil
		}

		if err := s.LedgerRepo.Save(ctx, changedRows(result)); err != nil {
			return err
		}

		snap := fl.withRows(result.Rows).snapshot(now)
		s.ledger.committed(ctx, events.OperationDeduct, snap)

		if result.Shortfall.IsPositive() {
			outcome = metrics.OutcomeCapped
		}
		s.Metrics.ObserveDeduction(outcome)

		log.Debugw("deducted usage",
			"customer_id", req.CustomerID,
			"feature_id", req.FeatureID,
			"effective_feature_id", fl.resolution.EffectiveFeatureID,
			"entity_id", req.EntityID,
			"requested", req.Value.String(),
			"applied", result.Applied.String(),
			"shortfall", result.Shortfall.String(),
		)

		resp = dto.NewBalanceResponse(snap, decimal.Zero)
		resp.Applied = &result.Applied
		resp.Shortfall = &result.Shortfall
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// paidAllocated reports whether the tracked feature is a continuous-use
// quantity with a price, such as seats. Tracking one changes the allocated
// quantity and is billed like UpdateQuantity.
func paidAllocated(fl *featureLedger) bool {
	res := fl.resolution
	if res.Unlimited || res.EffectiveFeatureID != fl.feature.ID || !fl.feature.IsContinuousUse() {
		return false
	}
	return lo.ContainsBy(res.FeatureRows(res.EffectiveFeatureID), func(r *ledger.CustomerEntitlement) bool {
		return r.Price != nil
	})
}

// deductAllocated moves the allocated quantity by req.Value. Overage is always
// rejected, and the change is billed before the lock is released; a billing
// failure restores the rows.
func (s *balanceService) deductAllocated(ctx context.Context, fl *featureLedger, req *dto.TrackUsageRequest, now time.Time) (*dto.BalanceResponse, error) {
	before := fl.snapshot(now)
	quantity := decimal.Max(before.Usage.Add(req.Value), decimal.Zero)
	qreq := &dto.QuantityChangeRequest{
		CustomerID: req.CustomerID,
		FeatureID:  req.FeatureID,
		Quantity:   quantity,
	}

	qc, err := s.priceQuantityChange(ctx, fl, qreq, now)
	if err != nil {
		return nil, err
	}

	rows, chargeID, err := s.commitQuantityChange(ctx, fl, qreq, qc, now)
	if err != nil {
		return nil, err
	}

	applied := quantity.Sub(*before.Usage)
	snap := fl.snapshot(now)
	if len(rows) > 0 {
		snap = fl.withRows(rows).snapshot(now)
		s.ledger.committed(ctx, events.OperationDeduct, snap)
	}

	s.Logger.WithContext(ctx).Infow("tracked allocated usage",
		"customer_id", req.CustomerID,
		"feature_id", req.FeatureID,
		"entity_id", req.EntityID,
		"previous_quantity", before.Usage.String(),
		"new_quantity", quantity.String(),
		"amount", qc.result.Amount.String(),
		"charge_id", chargeID,
	)

	resp := dto.NewBalanceResponse(snap, decimal.Zero)
	resp.Applied = &applied
	resp.Shortfall = lo.ToPtr(decimal.Zero)
	resp.ChargeID = chargeID
	return resp, nil
}

func (s *balanceService) CheckBalance(ctx context.Context, req *dto.CheckBalanceRequest) (resp *dto.BalanceResponse, err error) {
	start, outcome := time.Now(), metrics.OutcomeSuccess
	defer s.observe(opCheckBalance, start, &err, &outcome)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	required := decimal.NewFromInt(1)
	if req.RequiredBalance != nil {
		required = *req.RequiredBalance
	}

	key := balanceCacheKey(ctx, req.CustomerID, req.FeatureID, req.EntityID)
	if value, found := s.Cache.Get(ctx, key); found {
		if snap, ok := cache.UnmarshalCacheValue[ledger.BalanceSnapshot](value); ok {
			return dto.NewBalanceResponse(snap, required), nil
		}
	}

	fl, err := s.ledger.load(ctx, req.CustomerID, req.FeatureID, req.EntityID)
	if err != nil {
		return nil, err
	}

	snap := fl.snapshot(time.Now().UTC())
	s.Cache.Set(ctx, key, snap, cache.ExpiryBalanceSnapshot)

	return dto.NewBalanceResponse(snap, required), nil
}

// UpdateBalance sets the merged current balance. The difference is booked as
// an adjustment, so usage is unchanged and granted moves with current.
func (s *balanceService) UpdateBalance(ctx context.Context, req *dto.SetBalanceRequest) (resp *dto.BalanceResponse, err error) {
	start, outcome := time.Now(), metrics.OutcomeSuccess
	defer s.observe(opSetBalance, start, &err, &outcome)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.ledger.withLock(ctx, opSetBalance, req.CustomerID, req.FeatureID, func() error {
		fl, err := s.ledger.load(ctx, req.CustomerID, req.FeatureID, req.EntityID)
		if err != nil {
			return err
		}
		if fl.resolution.Unlimited || fl.feature.IsBoolean() {
			return ierr.NewErrorf("feature %s has no balance to set", req.FeatureID).
				WithHint("Balances can only be set on limited metered features").
				WithReportableDetails(map[string]interface{}{"feature_id": req.FeatureID}).
				Mark(ierr.ErrInvalidOperation)
		}

		rows, delta, err := ledger.SetCurrentBalance(fl.resolution, req.CurrentBalance, now)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			resp = dto.NewBalanceResponse(fl.snapshot(now), decimal.Zero)
			return nil
		}

		if err := s.LedgerRepo.Save(ctx, rows); err != nil {
			return err
		}

		snap := fl.withRows(rows).snapshot(now)
		s.ledger.committed(ctx, events.OperationSetBalance, snap)

		s.Logger.WithContext(ctx).Infow("set current balance",
			"customer_id", req.CustomerID,
			"feature_id", req.FeatureID,
			"entity_id", req.EntityID,
			"current_balance", req.CurrentBalance.String(),
			"delta", delta.String(),
		)

		resp = dto.NewBalanceResponse(snap, decimal.Zero)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateUsage deducts (or refunds) the difference between the target and the
// current merged usage, capping at the usage floor.
func (s *balanceService) UpdateUsage(ctx context.Context, req *dto.SetUsageRequest) (resp *dto.BalanceResponse, err error) {
	start, outcome := time.Now(), metrics.OutcomeSuccess
	defer s.observe(opSetUsage, start, &err, &outcome)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.ledger.withLock(ctx, opSetUsage, req.CustomerID, req.FeatureID, func() error {
		fl, err := s.ledger.load(ctx, req.CustomerID, req.FeatureID, req.EntityID)
		if err != nil {
			return err
		}

		before := fl.snapshot(now)
		if fl.resolution.Unlimited || before.Usage == nil {
			outcome = metrics.OutcomeSkipped
			resp = dto.NewBalanceResponse(before, decimal.Zero)
			return nil
		}

		diff := req.Usage.Sub(*before.Usage)
		if diff.IsZero() {
			resp = dto.NewBalanceResponse(before, decimal.Zero)
			return nil
		}
		// The snapshot is in units of the effective feature; Deduct takes
		// units of the requested one.
		if fl.resolution.EffectiveFeatureID != fl.resolution.FeatureID {
			diff = types.DivCredit(diff, fl.resolution.Rows[0].CreditCost)
		}

		result, err := ledger.Deduct(fl.resolution, diff, ledger.Policy{
			OverageBehavior: types.OverageBehaviorCap,
			BlockUsageLimit: fl.config.BlockUsageLimit,
		}, now)
		if err != nil {
			return err
		}

		if err := s.LedgerRepo.Save(ctx, changedRows(result)); err != nil {
			return err
		}

		snap := fl.withRows(result.Rows).snapshot(now)
		s.ledger.committed(ctx, events.OperationSetUsage, snap)

		s.Logger.WithContext(ctx).Infow("set usage",
			"customer_id", req.CustomerID,
			"feature_id", req.FeatureID,
			"entity_id", req.EntityID,
			"target_usage", req.Usage.String(),
			"previous_usage", before.Usage.String(),
			"shortfall", result.Shortfall.String(),
		)

		resp = dto.NewBalanceResponse(snap, decimal.Zero)
		resp.Applied = &result.Applied
		resp.Shortfall = &result.Shortfall
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// quantityChange is a priced change of an allocated quantity, not yet applied.
type quantityChange struct {
	params  proration.QuantityChangeParams
	result  *proration.QuantityChangeResult
	primary *ledger.CustomerEntitlement
}

// priceQuantityChange prices req against the first priced row of the
// effective feature. The current quantity is the merged usage.
func (s *balanceService) priceQuantityChange(ctx context.Context, fl *featureLedger, req *dto.QuantityChangeRequest, now time.Time) (*quantityChange, error) {
	if fl.resolution.Unlimited {
		return nil, ierr.NewErrorf("feature %s is unlimited", req.FeatureID).
			WithHint("Quantity changes apply to limited paid features only").
			Mark(ierr.ErrInvalidOperation)
	}

	primary, ok := lo.Find(fl.resolution.FeatureRows(fl.resolution.EffectiveFeatureID), func(r *ledger.CustomerEntitlement) bool {
		return r.Price != nil
	})
	if !ok {
		return nil, ierr.NewErrorf("feature %s has no price", req.FeatureID).
			WithHint("Quantity changes apply to paid features only").
			WithReportableDetails(map[string]interface{}{"feature_id": req.FeatureID}).
			Mark(ierr.ErrInvalidOperation)
	}

	snap := fl.snapshot(now)
	periodStart, periodEnd := billingPeriod(primary, now)

	params := proration.QuantityChangeParams{
		FeatureID:        req.FeatureID,
		FeatureName:      fl.feature.Name,
		Price:            primary.Price,
		IncludedUsage:    *snap.GrantedBalance,
		PreviousQuantity: *snap.Usage,
		NewQuantity:      req.Quantity,
		Replaceables:     len(primary.Replaceables),
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		ChangeDate:       now,
		Timezone:         req.Timezone,
		Strategy:         req.Strategy,
	}

	result, err := s.ProrationCalculator.CalculateQuantityChange(ctx, params)
	if err != nil {
		return nil, err
	}

	return &quantityChange{params: params, result: result, primary: primary}, nil
}

// billingPeriod is the current period of row. Rows that never reset are billed
// in full, so they get a period starting now.
func billingPeriod(row *ledger.CustomerEntitlement, now time.Time) (time.Time, time.Time) {
	ent := row.Entitlement
	if !ent.Interval.Resets() || row.NextResetAt == nil {
		return now, now.AddDate(0, 0, 1)
	}
	end := *row.NextResetAt
	return ent.Interval.Rewind(end, ent.IntervalCount), end
}

func (s *balanceService) PreviewQuantityChange(ctx context.Context, req *dto.QuantityChangeRequest) (resp *dto.QuantityChangeResponse, err error) {
	start, outcome := time.Now(), metrics.OutcomeSuccess
	defer s.observe(opPreviewQuantity, start, &err, &outcome)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	fl, err := s.ledger.load(ctx, req.CustomerID, req.FeatureID, "")
	if err != nil {
		return nil, err
	}

	qc, err := s.priceQuantityChange(ctx, fl, req, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return &dto.QuantityChangeResponse{Proration: qc.result}, nil
}

// applyQuantityChange books the change on copies of the resolved rows and
// returns the rows to persist.
//
// An increase first reuses freed slots, then deducts the rest with reject.
// A decrease either keeps the freed slots as replaceables (no refund policy)
// or refunds the balance.
func applyQuantityChange(fl *featureLedger, qc *quantityChange, now time.Time) ([]*ledger.CustomerEntitlement, error) {
	result := qc.result
	change := result.NewQuantity.Sub(result.PreviousQuantity)

	switch result.Direction {
	case proration.DirectionIncrease:
		amount := change.Sub(decimal.NewFromInt(int64(result.ReplaceablesUsed)))

		var rows []*ledger.CustomerEntitlement
		if amount.IsPositive() {
			deducted, err := ledger.Deduct(fl.resolution, amount, ledger.Policy{
				OverageBehavior: types.OverageBehaviorReject,
				BlockUsageLimit: true,
			}, now)
			if err != nil {
				return nil, err
			}
			rows = changedRows(deducted)
		}

		if result.ReplaceablesUsed > 0 {
			primary, ok := lo.Find(rows, func(r *ledger.CustomerEntitlement) bool { return r.ID == qc.primary.ID })
			if !ok {
				primary = qc.primary.Clone()
				rows = append(rows, primary)
			}
			ledger.ConsumeReplaceables(primary, result.ReplaceablesUsed)
		}
		return rows, nil

	case proration.DirectionDecrease:
		if result.NewReplaceables > 0 {
			return []*ledger.CustomerEntitlement{ledger.AddReplaceables(qc.primary, result.NewReplaceables, now)}, nil
		}
		refunded, err := ledger.Deduct(fl.resolution, change, ledger.Policy{}, now)
		if err != nil {
			return nil, err
		}
		return changedRows(refunded), nil
	}

	return nil, nil
}

// UpdateQuantity applies a change of an allocated paid quantity and bills the
// prorated delta.
func (s *balanceService) UpdateQuantity(ctx context.Context, req *dto.QuantityChangeRequest) (resp *dto.QuantityChangeResponse, err error) {
	start, outcome := time.Now(), metrics.OutcomeSuccess
	defer s.observe(opQuantityChange, start, &err, &outcome)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := s.Logger.WithContext(ctx)
	now := time.Now().UTC()

	err = s.ledger.withLock(ctx, opQuantityChange, req.CustomerID, req.FeatureID, func() error {
		fl, err := s.ledger.load(ctx, req.CustomerID, req.FeatureID, "")
		if err != nil {
			return err
		}

		qc, err := s.priceQuantityChange(ctx, fl, req, now)
		if err != nil {
			return err
		}

		rows, chargeID, err := s.commitQuantityChange(ctx, fl, req, qc, now)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			resp = &dto.QuantityChangeResponse{Proration: qc.result, Balance: fl.snapshot(now)}
			return nil
		}

		snap := fl.withRows(rows).snapshot(now)
		s.ledger.committed(ctx, events.OperationQuantityChange, snap)

		log.Infow("updated allocated quantity",
			"customer_id", req.CustomerID,
			"feature_id", req.FeatureID,
			"previous_quantity", qc.result.PreviousQuantity.String(),
			"new_quantity", qc.result.NewQuantity.String(),
			"amount", qc.result.Amount.String(),
			"deferred_amount", qc.result.DeferredAmount.String(),
			"charge_id", chargeID,
		)

		resp = &dto.QuantityChangeResponse{
			Proration: qc.result,
			Balance:   snap,
			ChargeID:  chargeID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// commitQuantityChange persists a priced change and bills it. The rows are
// saved before the billing call and restored if the provider fails, so the
// ledger and the provider never disagree once the lock is released. It
// returns no rows when the change leaves the ledger untouched.
func (s *balanceService) commitQuantityChange(ctx context.Context, fl *featureLedger, req *dto.QuantityChangeRequest, qc *quantityChange, now time.Time) ([]*ledger.CustomerEntitlement, string, error) {
	rows, err := applyQuantityChange(fl, qc, now)
	if err != nil || len(rows) == 0 {
		return nil, "", err
	}

	// Loaded rows are never modified, so they are the rollback image.
	originals := lo.SliceToMap(fl.resolution.AllRows(), func(r *ledger.CustomerEntitlement) (string, *ledger.CustomerEntitlement) {
		return r.ID, r
	})

	if err := s.LedgerRepo.Save(ctx, rows); err != nil {
		return nil, "", err
	}

	chargeID, err := s.charge(ctx, req, qc)
	if err != nil {
		s.rollbackQuantityChange(ctx, rows, originals)
		return nil, "", err
	}
	return rows, chargeID, nil
}

// charge hands the priced delta to the billing collaborator. Nothing is sent
// when the change is free.
func (s *balanceService) charge(ctx context.Context, req *dto.QuantityChangeRequest, qc *quantityChange) (string, error) {
	result := qc.result

	amount, deferred := result.Amount, false
	if amount.IsZero() && result.DeferredAmount.IsPositive() {
		amount, deferred = result.DeferredAmount, true
	}
	if amount.IsZero() {
		return "", nil
	}

	currency := lo.Ternary(result.Currency != "", result.Currency, s.Config.Billing.Currency)
	charge := &billing.Charge{
		CustomerID:            req.CustomerID,
		FeatureID:             req.FeatureID,
		CustomerEntitlementID: qc.primary.ID,
		Amount:                amount,
		Currency:              currency,
		Description:           result.Description,
		PeriodStart:           qc.params.PeriodStart,
		PeriodEnd:             qc.params.PeriodEnd,
		Deferred:              deferred,
		IdempotencyKey: fmt.Sprintf("%s:%d:%s", qc.primary.ID, qc.primary.Version,
			result.NewQuantity.String()),
	}

	res, err := s.Billing.Charge(ctx, charge)
	if err != nil {
		s.Metrics.ObserveBillingCharge(metrics.OutcomeError)
		if ierr.IsBillingSideEffectFailed(err) {
			return "", err
		}
		return "", ierr.WithError(err).
			WithHint("Billing provider rejected the quantity change").
			WithReportableDetails(map[string]interface{}{
				"customer_id": req.CustomerID,
				"feature_id":  req.FeatureID,
				"amount":      amount.String(),
			}).
			Mark(ierr.ErrBillingSideEffectFailed)
	}
	s.Metrics.ObserveBillingCharge(metrics.OutcomeSuccess)

	if res == nil {
		return "", nil
	}
	return res.ID, nil
}

// rollbackQuantityChange writes the pre-change rows back over the saved ones.
func (s *balanceService) rollbackQuantityChange(ctx context.Context, saved []*ledger.CustomerEntitlement, originals map[string]*ledger.CustomerEntitlement) {
	restore := make([]*ledger.CustomerEntitlement, 0, len(saved))
	for _, row := range saved {
		original, ok := originals[row.ID]
		if !ok {
			continue
		}
		r := original.Clone()
		r.Version = row.Version
		restore = append(restore, r)
	}

	if err := s.LedgerRepo.Save(ctx, restore); err != nil {
		s.Logger.WithContext(ctx).Errorw("failed to roll back quantity change after billing failure",
			"row_ids", lo.Map(restore, func(r *ledger.CustomerEntitlement, _ int) string { return r.ID }),
			"error", err,
		)
	}
}

// CheckEntityCreation verifies that count more sub-entities fit in the
// remaining allocation. It never changes the ledger.
func (s *balanceService) CheckEntityCreation(ctx context.Context, req *dto.EntityCheckRequest) (resp *dto.EntityCheckResponse, err error) {
	start, outcome := time.Now(), metrics.OutcomeSuccess
	defer s.observe(opEntityCheck, start, &err, &outcome)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	fl, err := s.ledger.load(ctx, req.CustomerID, req.FeatureID, "")
	if err != nil {
		return nil, err
	}

	snap := fl.snapshot(time.Now().UTC())
	if snap.Unlimited {
		return &dto.EntityCheckResponse{Allowed: true, Unlimited: true}, nil
	}
	if snap.UsageAllowed || snap.CurrentBalance == nil {
		return &dto.EntityCheckResponse{Allowed: true, Remaining: snap.CurrentBalance}, nil
	}

	count := decimal.NewFromInt(int64(req.Count))
	if snap.CurrentBalance.LessThan(count) {
		return nil, ierr.NewErrorf("feature %s allows %s more entities, %d requested",
			req.FeatureID, snap.CurrentBalance.String(), req.Count).
			WithHintf("Entity limit reached for %s", req.FeatureID).
			WithReportableDetails(map[string]interface{}{
				"feature_id": req.FeatureID,
				"remaining":  snap.CurrentBalance.String(),
				"requested":  req.Count,
			}).
			Mark(ierr.ErrFeatureLimitReached)
	}

	remaining := snap.CurrentBalance.Sub(count)
	return &dto.EntityCheckResponse{Allowed: true, Remaining: &remaining}, nil
}
