package ledger

import (
	"sort"

	"github.com/flexprice/entitlements/internal/domain/feature"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ResolveRequest is everything the resolver needs to pick the rows a usage
// event for Feature may touch.
type ResolveRequest struct {
	Feature *feature.Feature
	// CreditSystems are the credit-system features whose schema prices Feature.
	CreditSystems []*feature.Feature
	// Rows are all ledger rows of the customer; the resolver filters them.
	Rows         []*CustomerEntitlement
	StatusFilter []types.CustomerEntitlementStatus
	EntityID     string
	Order        types.DeductionOrder
}

// ResolvedRow is a ledger row together with the price, in row units, of one
// unit of the requested feature.
type ResolvedRow struct {
	Row        *CustomerEntitlement
	CreditCost decimal.Decimal
	// ViaCreditSystem is true when the row belongs to a credit system charged
	// on behalf of the requested feature.
	ViaCreditSystem bool
}

// Resolution is the ordered set of rows for one feature. When Unlimited is set
// the rows must not be deducted from.
type Resolution struct {
	FeatureID string
	// EffectiveFeatureID is the requested feature when it has direct rows,
	// otherwise the credit system substituted for it.
	EffectiveFeatureID string
	EntityID           string
	Rows               []*ResolvedRow
	Unlimited          bool
}

// FeatureRows returns the rows whose own feature is featureID.
func (r *Resolution) FeatureRows(featureID string) []*CustomerEntitlement {
	out := make([]*CustomerEntitlement, 0, len(r.Rows))
	for _, rr := range r.Rows {
		if rr.Row.FeatureID == featureID {
			out = append(out, rr.Row)
		}
	}
	return out
}

// AllRows returns the resolved rows in order.
func (r *Resolution) AllRows() []*CustomerEntitlement {
	return lo.Map(r.Rows, func(rr *ResolvedRow, _ int) *CustomerEntitlement { return rr.Row })
}

// Resolve picks and orders the ledger rows for req.Feature. Direct rows come
// first; rows of credit systems that price the feature follow, so a customer
// without a direct grant spends shared credits and one with an exhausted grant
// spills over into them.
func Resolve(req ResolveRequest) (*Resolution, error) {
	if req.Feature == nil {
		return nil, ierr.NewError("feature is required").
			WithHint("Cannot resolve entitlements without a feature").
			Mark(ierr.ErrValidation)
	}

	statusFilter := req.StatusFilter
	if len(statusFilter) == 0 {
		statusFilter = types.DefaultStatusFilter
	}

	relevant := lo.Filter(req.Rows, func(row *CustomerEntitlement, _ int) bool {
		if row == nil || !lo.Contains(statusFilter, row.Status) {
			return false
		}
		return row.EntityID == "" || row.EntityID == req.EntityID
	})

	for _, row := range relevant {
		if err := row.Validate(); err != nil {
			return nil, err
		}
	}

	res := &Resolution{
		FeatureID:          req.Feature.ID,
		EffectiveFeatureID: req.Feature.ID,
		EntityID:           req.EntityID,
	}

	direct := orderRows(lo.Filter(relevant, func(row *CustomerEntitlement, _ int) bool {
		return row.FeatureID == req.Feature.ID
	}), req.Order)
	for _, row := range direct {
		res.Rows = append(res.Rows, &ResolvedRow{Row: row, CreditCost: decimal.NewFromInt(1)})
	}

	// Credit systems are visited in id order so the result does not depend on
	// how the catalog listed them.
	creditSystems := append([]*feature.Feature(nil), req.CreditSystems...)
	sort.SliceStable(creditSystems, func(i, j int) bool { return creditSystems[i].ID < creditSystems[j].ID })

	for _, cs := range creditSystems {
		cost, ok := cs.CreditCostFor(req.Feature.ID)
		if !ok || cs.ID == req.Feature.ID {
			continue
		}
		rows := orderRows(lo.Filter(relevant, func(row *CustomerEntitlement, _ int) bool {
			return row.FeatureID == cs.ID
		}), req.Order)
		if len(rows) > 0 && len(direct) == 0 && res.EffectiveFeatureID == req.Feature.ID {
			res.EffectiveFeatureID = cs.ID
		}
		for _, row := range rows {
			res.Rows = append(res.Rows, &ResolvedRow{Row: row, CreditCost: cost, ViaCreditSystem: true})
		}
	}

	res.Unlimited = lo.SomeBy(res.Rows, func(rr *ResolvedRow) bool { return rr.Row.Unlimited() })

	return res, nil
}

// orderRows sorts rows by creation time (id breaks ties) and reverses the
// result for tenants that drain the newest grant first.
func orderRows(rows []*CustomerEntitlement, order types.DeductionOrder) []*CustomerEntitlement {
	out := append([]*CustomerEntitlement(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if order == types.DeductionOrderReversed {
		out = lo.Reverse(out)
	}
	return out
}
