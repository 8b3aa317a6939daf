// Package proration prices mid-period changes to an allocated, paid quantity.
package proration

import (
	"context"
)

// Calculator computes the billing delta of a quantity change. It never
// touches the ledger; the caller decides what to persist and what to bill.
type Calculator interface {
	CalculateQuantityChange(ctx context.Context, params QuantityChangeParams) (*QuantityChangeResult, error)
}
