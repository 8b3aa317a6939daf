package entitlement

import (
	"testing"
	"time"

	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRolloverConfigExpiresAt(t *testing.T) {
	resetAt := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	monthly := &RolloverConfig{Max: decimal.NewFromInt(100), Length: 2, Duration: types.RolloverDurationMonth}
	expiry := monthly.ExpiresAt(resetAt)
	require.NotNil(t, expiry)
	assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), *expiry)

	forever := &RolloverConfig{Max: decimal.NewFromInt(100), Duration: types.RolloverDurationForever}
	assert.Nil(t, forever.ExpiresAt(resetAt))

	var none *RolloverConfig
	assert.Nil(t, none.ExpiresAt(resetAt))
}

func TestEntitlementValidate(t *testing.T) {
	valid := &Entitlement{
		FeatureID: "api_calls",
		Allowance: decimal.NewFromInt(100),
		Interval:  types.EntitlementIntervalMonth,
	}
	assert.NoError(t, valid.Validate())

	negative := *valid
	negative.Allowance = decimal.NewFromInt(-1)
	assert.Error(t, negative.Validate())

	badRollover := *valid
	badRollover.RolloverConfig = &RolloverConfig{Max: decimal.NewFromInt(10), Duration: "week"}
	assert.Error(t, badRollover.Validate())

	unlimited := &Entitlement{FeatureID: "api_calls", Unlimited: true, Allowance: decimal.NewFromInt(-1)}
	assert.NoError(t, unlimited.Validate())
}
