package billing

import (
	"context"
	"strings"

	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

const ProviderStripe = "stripe"

// stripeAPI is the part of the stripe client used for proration charges.
type stripeAPI interface {
	NewInvoiceItem(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
	NewInvoice(params *stripe.InvoiceParams) (*stripe.Invoice, error)
}

type stripeClient struct {
	api *client.API
}

func (c *stripeClient) NewInvoiceItem(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error) {
	return c.api.InvoiceItems.New(params)
}

func (c *stripeClient) NewInvoice(params *stripe.InvoiceParams) (*stripe.Invoice, error) {
	return c.api.Invoices.New(params)
}

// StripeCollaborator books proration deltas as stripe invoice items. Immediate
// charges are invoiced right away; deferred ones stay pending until the next
// subscription invoice picks them up.
type StripeCollaborator struct {
	api           stripeAPI
	minimumAmount decimal.Decimal
	log           *logger.Logger
}

func NewStripeCollaborator(secretKey string, minimumAmount decimal.Decimal, log *logger.Logger) *StripeCollaborator {
	api := &client.API{}
	api.Init(secretKey, nil)
	return newStripeCollaborator(&stripeClient{api: api}, minimumAmount, log)
}

func newStripeCollaborator(api stripeAPI, minimumAmount decimal.Decimal, log *logger.Logger) *StripeCollaborator {
	return &StripeCollaborator{api: api, minimumAmount: minimumAmount, log: log}
}

func (s *StripeCollaborator) Charge(ctx context.Context, charge *Charge) (*ChargeResult, error) {
	if err := charge.Validate(); err != nil {
		return nil, err
	}

	log := s.log.WithContext(ctx)
	if charge.Amount.Abs().LessThan(s.minimumAmount) || charge.Amount.IsZero() {
		log.Debugw("charge below minimum amount, skipped",
			"customer_id", charge.CustomerID,
			"amount", charge.Amount.String(),
			"minimum_amount", s.minimumAmount.String(),
		)
		return &ChargeResult{Provider: ProviderStripe}, nil
	}

	currency := strings.ToLower(charge.Currency)
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(charge.CustomerID),
		Amount:      stripe.Int64(toMinorUnits(charge.Amount, currency)),
		Currency:    stripe.String(currency),
		Description: stripe.String(charge.Description),
	}
	params.Context = ctx
	if !charge.PeriodStart.IsZero() && !charge.PeriodEnd.IsZero() {
		params.Period = &stripe.InvoiceItemPeriodParams{
			Start: stripe.Int64(charge.PeriodStart.Unix()),
			End:   stripe.Int64(charge.PeriodEnd.Unix()),
		}
	}
	if charge.IdempotencyKey != "" {
		params.SetIdempotencyKey(charge.IdempotencyKey)
	}
	params.AddMetadata("feature_id", charge.FeatureID)
	params.AddMetadata("customer_entitlement_id", charge.CustomerEntitlementID)

	item, err := s.api.NewInvoiceItem(params)
	if err != nil {
		log.Errorw("failed to create stripe invoice item",
			"customer_id", charge.CustomerID,
			"feature_id", charge.FeatureID,
			"error", err,
		)
		return nil, sideEffectFailed(err, charge, ProviderStripe)
	}

	result := &ChargeResult{ID: item.ID, Provider: ProviderStripe}
	if charge.Deferred {
		return result, nil
	}

	invoiceParams := &stripe.InvoiceParams{
		Customer:                    stripe.String(charge.CustomerID),
		AutoAdvance:                 stripe.Bool(true),
		PendingInvoiceItemsBehavior: stripe.String("include"),
		Description:                 stripe.String(charge.Description),
	}
	invoiceParams.Context = ctx
	if charge.IdempotencyKey != "" {
		invoiceParams.SetIdempotencyKey(charge.IdempotencyKey + ":invoice")
	}

	invoice, err := s.api.NewInvoice(invoiceParams)
	if err != nil {
		// The pending item is still collected with the next invoice.
		log.Warnw("failed to invoice proration immediately",
			"customer_id", charge.CustomerID,
			"invoice_item_id", item.ID,
			"error", err,
		)
		return result, nil
	}

	log.Infow("proration invoiced",
		"customer_id", charge.CustomerID,
		"invoice_id", invoice.ID,
		"amount", charge.Amount.String(),
	)
	result.ID = invoice.ID
	return result, nil
}

// toMinorUnits converts a decimal amount into the currency's smallest unit.
func toMinorUnits(amount decimal.Decimal, currency string) int64 {
	return types.RoundToCurrencyPrecision(amount, currency).
		Shift(types.GetCurrencyPrecision(currency)).
		IntPart()
}
