package billing

import (
	"context"
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/shopspring/decimal"
)

// Charge is a signed proration delta handed to the billing system. A negative
// Amount is a credit to the customer.
type Charge struct {
	CustomerID            string
	FeatureID             string
	CustomerEntitlementID string
	Amount                decimal.Decimal
	Currency              string
	Description           string
	PeriodStart           time.Time
	PeriodEnd             time.Time
	// Deferred charges are collected with the next regular invoice.
	Deferred bool
	// IdempotencyKey makes retries of the same quantity change safe.
	IdempotencyKey string
}

func (c *Charge) Validate() error {
	if c.CustomerID == "" {
		return ierr.NewError("customer_id is required").
			WithHint("Charge must reference a customer").
			Mark(ierr.ErrValidation)
	}
	if c.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Charge must have a currency").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ChargeResult identifies the record created by the billing system.
type ChargeResult struct {
	ID       string
	Provider string
}

// Collaborator applies proration deltas to the external billing system. An
// error means nothing was charged.
type Collaborator interface {
	Charge(ctx context.Context, charge *Charge) (*ChargeResult, error)
}

// sideEffectFailed wraps a provider error so callers can roll the ledger back.
func sideEffectFailed(err error, charge *Charge, provider string) error {
	return ierr.WithError(err).
		WithHintf("Billing provider %s rejected the change", provider).
		WithReportableDetails(map[string]interface{}{
			"customer_id": charge.CustomerID,
			"feature_id":  charge.FeatureID,
			"amount":      charge.Amount.String(),
			"currency":    charge.Currency,
		}).
		Mark(ierr.ErrBillingSideEffectFailed)
}
