package dto

import (
	"time"

	"github.com/flexprice/entitlements/internal/domain/ledger"
	"github.com/flexprice/entitlements/internal/domain/proration"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/flexprice/entitlements/internal/validator"
	"github.com/shopspring/decimal"
)

// TrackUsageRequest deducts Value units of a feature. A negative value refunds.
type TrackUsageRequest struct {
	CustomerID      string                `json:"customer_id" validate:"required"`
	FeatureID       string                `json:"feature_id" validate:"required"`
	EntityID        string                `json:"entity_id,omitempty"`
	Value           decimal.Decimal       `json:"value"`
	OverageBehavior types.OverageBehavior `json:"overage_behavior,omitempty"`
}

func (r *TrackUsageRequest) GetCustomerID() string { return r.CustomerID }

func (r *TrackUsageRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Value.IsZero() {
		return ierr.NewError("value must not be zero").
			WithHint("Please provide a non-zero usage value").
			Mark(ierr.ErrValidation)
	}
	return r.OverageBehavior.Validate()
}

// CheckBalanceRequest reads the merged balance of a feature.
type CheckBalanceRequest struct {
	CustomerID string `form:"customer_id" json:"customer_id" validate:"required"`
	FeatureID  string `form:"feature_id" json:"feature_id" validate:"required"`
	EntityID   string `form:"entity_id" json:"entity_id,omitempty"`
	// RequiredBalance is the amount the caller is about to use. Defaults to 1.
	RequiredBalance *decimal.Decimal `form:"-" json:"required_balance,omitempty"`
}

func (r *CheckBalanceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.RequiredBalance != nil && r.RequiredBalance.IsNegative() {
		return ierr.NewError("required_balance cannot be negative").
			WithHint("Required balance must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SetBalanceRequest overrides the merged current balance. Usage is kept.
type SetBalanceRequest struct {
	CustomerID     string          `json:"customer_id" validate:"required"`
	FeatureID      string          `json:"feature_id" validate:"required"`
	EntityID       string          `json:"entity_id,omitempty"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

func (r *SetBalanceRequest) GetCustomerID() string { return r.CustomerID }

func (r *SetBalanceRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// SetUsageRequest moves the merged usage to Usage by deducting or refunding
// the difference.
type SetUsageRequest struct {
	CustomerID string          `json:"customer_id" validate:"required"`
	FeatureID  string          `json:"feature_id" validate:"required"`
	EntityID   string          `json:"entity_id,omitempty"`
	Usage      decimal.Decimal `json:"usage"`
}

func (r *SetUsageRequest) GetCustomerID() string { return r.CustomerID }

func (r *SetUsageRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Usage.IsNegative() {
		return ierr.NewError("usage cannot be negative").
			WithHint("Usage must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// QuantityChangeRequest sets the allocated quantity of a paid continuous-use feature.
type QuantityChangeRequest struct {
	CustomerID string                  `json:"customer_id" validate:"required"`
	FeatureID  string                  `json:"feature_id" validate:"required"`
	Quantity   decimal.Decimal         `json:"quantity"`
	Strategy   types.ProrationStrategy `json:"strategy,omitempty"`
	Timezone   string                  `json:"timezone,omitempty"`
}

func (r *QuantityChangeRequest) GetCustomerID() string { return r.CustomerID }

func (r *QuantityChangeRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Quantity.IsNegative() {
		return ierr.NewError("quantity cannot be negative").
			WithHint("Quantity must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	if !r.Quantity.Equal(r.Quantity.Floor()) {
		return ierr.NewError("quantity must be a whole number").
			WithHint("Allocated quantities are whole units").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// EntityCheckRequest asks whether Count more sub-entities may be created.
type EntityCheckRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	FeatureID  string `json:"feature_id" validate:"required"`
	Count      int    `json:"count" validate:"min=1"`
}

func (r *EntityCheckRequest) GetCustomerID() string { return r.CustomerID }

func (r *EntityCheckRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ProductSwitchRequest moves rollovers and carried usage between two product instances.
type ProductSwitchRequest struct {
	CustomerID            string `json:"customer_id" validate:"required"`
	FromCustomerProductID string `json:"from_customer_product_id" validate:"required"`
	ToCustomerProductID   string `json:"to_customer_product_id" validate:"required,nefield=FromCustomerProductID"`
}

func (r *ProductSwitchRequest) GetCustomerID() string { return r.CustomerID }

func (r *ProductSwitchRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ResetBalancesRequest runs the period reset. Now defaults to the current time.
type ResetBalancesRequest struct {
	Now       *time.Time `json:"now,omitempty"`
	BatchSize int        `json:"batch_size,omitempty" validate:"omitempty,min=1,max=10000"`
}

func (r *ResetBalancesRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// BalanceResponse is the merged balance returned by every balance operation.
type BalanceResponse struct {
	*ledger.BalanceSnapshot
	Allowed bool `json:"allowed"`
	// Applied and Shortfall are set on deductions only.
	Applied   *decimal.Decimal `json:"applied,omitempty"`
	Shortfall *decimal.Decimal `json:"shortfall,omitempty"`
	// ChargeID is set when tracking a paid allocated feature was billed.
	ChargeID string `json:"charge_id,omitempty"`
}

// NewBalanceResponse wraps snap. required is the amount checked by Allowed.
func NewBalanceResponse(snap *ledger.BalanceSnapshot, required decimal.Decimal) *BalanceResponse {
	resp := &BalanceResponse{BalanceSnapshot: snap}
	switch {
	case snap.Unlimited || snap.UsageAllowed:
		resp.Allowed = true
	case snap.CurrentBalance == nil:
		// boolean features are allowed when the customer has a row at all
		resp.Allowed = true
	default:
		resp.Allowed = snap.CurrentBalance.GreaterThanOrEqual(required) && snap.Allowed()
	}
	return resp
}

// QuantityChangeResponse is the priced quantity change and, when applied, the new balance.
type QuantityChangeResponse struct {
	Proration *proration.QuantityChangeResult `json:"proration"`
	Balance   *ledger.BalanceSnapshot         `json:"balance,omitempty"`
	ChargeID  string                          `json:"charge_id,omitempty"`
}

// EntityCheckResponse reports the remaining allocation after the check.
type EntityCheckResponse struct {
	Allowed   bool             `json:"allowed"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
	Unlimited bool             `json:"unlimited"`
}

// ProductSwitchResponse lists the balances of the rows seeded on the new product.
type ProductSwitchResponse struct {
	Balances []*ledger.BalanceSnapshot `json:"balances"`
}

// ResetBalancesResponse summarises one run of the reset job.
type ResetBalancesResponse struct {
	Scanned int `json:"scanned"`
	Reset   int `json:"reset"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
