package validator

import (
	"testing"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackRequest struct {
	CustomerID string          `validate:"required"`
	Amount     decimal.Decimal `validate:"decimal_gte0"`
}

func TestValidateRequest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateRequest(trackRequest{CustomerID: "cus_1", Amount: decimal.NewFromInt(3)}))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateRequest(trackRequest{Amount: decimal.NewFromInt(3)})
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
		assert.Contains(t, ierr.ReportableDetails(err), "CustomerID")
	})

	t.Run("negative decimal", func(t *testing.T) {
		err := ValidateRequest(trackRequest{CustomerID: "cus_1", Amount: decimal.NewFromInt(-1)})
		require.Error(t, err)
		assert.Contains(t, ierr.ReportableDetails(err), "Amount")
	})
}
