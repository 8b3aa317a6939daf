package ledger

import (
	"testing"
	"time"

	"github.com/flexprice/entitlements/internal/domain/feature"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeductScenarioAOverageWithUsageLimit(t *testing.T) {
	rows := []*CustomerEntitlement{newRow("payg", "api_calls", "5", withUsageAllowed(), withUsageLimit("10"))}

	res := resolve(metered("api_calls"), rows)
	first, err := Deduct(res, d("7"), capPolicy(), now)
	require.NoError(t, err)
	assert.Equal(t, "-2", first.Rows[0].Balance.String())

	snap := Snapshot("cus_1", resolve(metered("api_calls"), first.Rows), false, now)
	assert.Equal(t, "7", snap.Usage.String())

	second, err := Deduct(resolve(metered("api_calls"), first.Rows), d("3"), capPolicy(), now)
	require.NoError(t, err)
	assert.Equal(t, "-5", second.Rows[0].Balance.String())

	snap = Snapshot("cus_1", resolve(metered("api_calls"), second.Rows), false, now)
	assert.Equal(t, "10", snap.Usage.String())
	assert.True(t, identityHolds(snap.GrantedBalance, snap.PurchasedBalance, snap.Usage, snap.CurrentBalance))

	t.Run("floor clamps under cap", func(t *testing.T) {
		out, err := Deduct(resolve(metered("api_calls"), second.Rows), d("1"), capPolicy(), now)
		require.NoError(t, err)
		assert.Equal(t, "-5", out.Rows[0].Balance.String())
		assert.Equal(t, "1", out.Shortfall.String())
	})

	t.Run("floor rejects under reject", func(t *testing.T) {
		_, err := Deduct(resolve(metered("api_calls"), second.Rows), d("1"), rejectPolicy(), now)
		require.Error(t, err)
		assert.True(t, ierr.IsInsufficientBalance(err))
		assert.Equal(t, "-5", second.Rows[0].Balance.String())
	})

	t.Run("floor ignored when not blocking", func(t *testing.T) {
		policy := Policy{OverageBehavior: types.OverageBehaviorCap}
		out, err := Deduct(resolve(metered("api_calls"), second.Rows), d("4"), policy, now)
		require.NoError(t, err)
		assert.Equal(t, "-9", out.Rows[0].Balance.String())
		assert.True(t, out.Shortfall.IsZero())
	})
}

func TestDeductScenarioCCreditSystem(t *testing.T) {
	credits := creditSystem("credits", feature.SchemaItem{
		MeteredFeatureID: "api_calls", FeatureAmount: d("5"), CreditAmount: d("1"),
	})
	rows := []*CustomerEntitlement{newRow("pool", "credits", "100")}

	res := resolve(metered("api_calls"), rows, credits)
	out, err := Deduct(res, d("50"), capPolicy(), now)
	require.NoError(t, err)

	assert.Equal(t, "90", out.Rows[0].Balance.String())
	assert.Equal(t, "50", out.Applied.String())

	snap := Snapshot("cus_1", resolve(metered("api_calls"), out.Rows, credits), false, now)
	assert.Equal(t, "credits", snap.EffectiveFeatureID)
	assert.Equal(t, "10", snap.Usage.String())
	assert.Equal(t, "90", snap.CurrentBalance.String())
}

func TestDeductSpillsIntoCreditsAfterDirectGrant(t *testing.T) {
	credits := creditSystem("credits", feature.SchemaItem{
		MeteredFeatureID: "api_calls", FeatureAmount: d("5"), CreditAmount: d("1"),
	})
	rows := []*CustomerEntitlement{
		newRow("direct", "api_calls", "10"),
		newRow("pool", "credits", "100"),
	}

	out, err := Deduct(resolve(metered("api_calls"), rows, credits), d("35"), capPolicy(), now)
	require.NoError(t, err)

	assert.Equal(t, "0", out.Rows[0].Balance.String())
	// 25 remaining units at 0.2 credits each
	assert.Equal(t, "95", out.Rows[1].Balance.String())
	assert.True(t, out.Shortfall.IsZero())
}

func TestDeductRejectIsAllOrNothing(t *testing.T) {
	rows := []*CustomerEntitlement{
		newRow("free", "api_calls", "10"),
		newRow("addon", "api_calls", "5", withCreatedAt(t0.Add(time.Hour))),
	}

	_, err := Deduct(resolve(metered("api_calls"), rows), d("20"), rejectPolicy(), now)
	require.Error(t, err)
	assert.True(t, ierr.IsInsufficientBalance(err))
	assert.Equal(t, "10", rows[0].Balance.String())
	assert.Equal(t, "5", rows[1].Balance.String())

	out, err := Deduct(resolve(metered("api_calls"), rows), d("20"), capPolicy(), now)
	require.NoError(t, err)
	assert.Equal(t, "0", out.Rows[0].Balance.String())
	assert.Equal(t, "0", out.Rows[1].Balance.String())
	assert.Equal(t, "5", out.Shortfall.String())
	assert.Equal(t, "15", out.Applied.String())
}

func TestDeductNoOverageRowPassesThrough(t *testing.T) {
	rows := []*CustomerEntitlement{
		newRow("empty", "api_calls", "10", func(r *CustomerEntitlement) { r.Balance = d("0") }),
		newRow("payg", "api_calls", "0", withUsageAllowed(), withCreatedAt(t0.Add(time.Hour))),
	}

	out, err := Deduct(resolve(metered("api_calls"), rows), d("4"), capPolicy(), now)
	require.NoError(t, err)
	assert.Equal(t, "0", out.Rows[0].Balance.String())
	assert.Equal(t, "-4", out.Rows[1].Balance.String())
}

func TestDeductDrainsBalanceThenRolloversOldestFirst(t *testing.T) {
	soon := at(now.AddDate(0, 1, 0))
	later := at(now.AddDate(0, 2, 0))
	rows := []*CustomerEntitlement{
		newRow("plan", "api_calls", "10", withRollovers(
			rollover("never", "5", nil),
			rollover("later", "5", later),
			rollover("soon", "5", soon),
			rollover("gone", "100", at(now.Add(-time.Hour))),
		)),
	}

	out, err := Deduct(resolve(metered("api_calls"), rows), d("22"), capPolicy(), now)
	require.NoError(t, err)

	row := out.Rows[0]
	assert.Equal(t, "0", row.Balance.String())
	byID := map[string]*Rollover{}
	for _, r := range row.Rollovers {
		byID[r.ID] = r
	}
	assert.Equal(t, "0", byID["soon"].Balance.String())
	assert.Equal(t, "5", byID["soon"].Usage.String())
	assert.Equal(t, "0", byID["later"].Balance.String())
	assert.Equal(t, "3", byID["never"].Balance.String())
	assert.Equal(t, "100", byID["gone"].Balance.String(), "expired rollovers are never spent")
	assert.True(t, out.Shortfall.IsZero())
}

func TestDeductSequentialEqualsCombined(t *testing.T) {
	build := func() []*CustomerEntitlement {
		return []*CustomerEntitlement{
			newRow("free", "api_calls", "10"),
			newRow("addon", "api_calls", "20", withCreatedAt(t0.Add(time.Hour)), withRollovers(rollover("r1", "5", nil))),
			newRow("payg", "api_calls", "0", withUsageAllowed(), withCreatedAt(t0.Add(2*time.Hour))),
		}
	}

	for _, split := range [][2]string{{"3", "4"}, {"10", "25"}, {"12", "30"}, {"0", "50"}} {
		t.Run(split[0]+"+"+split[1], func(t *testing.T) {
			a, b := d(split[0]), d(split[1])

			step1, err := Deduct(resolve(metered("api_calls"), build()), a, capPolicy(), now)
			require.NoError(t, err)
			step2, err := Deduct(resolve(metered("api_calls"), step1.Rows), b, capPolicy(), now)
			require.NoError(t, err)

			once, err := Deduct(resolve(metered("api_calls"), build()), a.Add(b), capPolicy(), now)
			require.NoError(t, err)

			for i := range once.Rows {
				assert.True(t, once.Rows[i].Balance.Equal(step2.Rows[i].Balance), "row %s", once.Rows[i].ID)
				for j := range once.Rows[i].Rollovers {
					assert.True(t, once.Rows[i].Rollovers[j].Balance.Equal(step2.Rows[i].Rollovers[j].Balance))
				}
			}
		})
	}
}

func TestDeductRepeatedCreditConversionDoesNotDrift(t *testing.T) {
	credits := creditSystem("credits", feature.SchemaItem{
		MeteredFeatureID: "api_calls", FeatureAmount: d("5"), CreditAmount: d("1"),
	})
	rows := []*CustomerEntitlement{newRow("pool", "credits", "100")}

	for i := 0; i < 250; i++ {
		out, err := Deduct(resolve(metered("api_calls"), rows, credits), d("1"), capPolicy(), now)
		require.NoError(t, err)
		rows = out.Rows
	}
	assert.Equal(t, "50", rows[0].Balance.String())

	out, err := Deduct(resolve(metered("api_calls"), rows, credits), d("-250"), capPolicy(), now)
	require.NoError(t, err)
	assert.Equal(t, "100", out.Rows[0].Balance.String())
}

func TestDeductRefund(t *testing.T) {
	rows := []*CustomerEntitlement{
		newRow("free", "api_calls", "10", func(r *CustomerEntitlement) { r.Balance = d("2") }),
		newRow("addon", "api_calls", "5", withCreatedAt(t0.Add(time.Hour)), func(r *CustomerEntitlement) { r.Balance = d("0") }),
	}

	t.Run("refills rows up to reset balance in order", func(t *testing.T) {
		out, err := Deduct(resolve(metered("api_calls"), rows), d("-10"), capPolicy(), now)
		require.NoError(t, err)
		assert.Equal(t, "10", out.Rows[0].Balance.String())
		assert.Equal(t, "2", out.Rows[1].Balance.String())
		assert.True(t, out.Shortfall.IsZero())
	})

	t.Run("remainder goes to the first row", func(t *testing.T) {
		out, err := Deduct(resolve(metered("api_calls"), rows), d("-20"), rejectPolicy(), now)
		require.NoError(t, err)
		assert.Equal(t, "17", out.Rows[0].Balance.String())
		assert.Equal(t, "5", out.Rows[1].Balance.String())
	})

	t.Run("remainder dropped when skipping additional balance", func(t *testing.T) {
		policy := capPolicy()
		policy.SkipAdditionalBalance = true
		out, err := Deduct(resolve(metered("api_calls"), rows), d("-20"), policy, now)
		require.NoError(t, err)
		assert.Equal(t, "10", out.Rows[0].Balance.String())
		assert.Equal(t, "5", out.Rows[1].Balance.String())
	})
}

func TestDeductUnlimitedIsSkipped(t *testing.T) {
	rows := []*CustomerEntitlement{
		newRow("metered", "api_calls", "10"),
		newRow("unlimited", "api_calls", "0", withUnlimited()),
	}
	out, err := Deduct(resolve(metered("api_calls"), rows), d("1000"), rejectPolicy(), now)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.False(t, out.Changed())
	assert.Equal(t, "10", rows[0].Balance.String())
}

func TestDeductEntityScopedRow(t *testing.T) {
	rows := []*CustomerEntitlement{newRow("per_seat", "messages", "10", withEntities("seat_b", "seat_a"))}

	t.Run("single entity", func(t *testing.T) {
		res, err := Resolve(ResolveRequest{Feature: metered("messages"), Rows: rows, EntityID: "seat_b"})
		require.NoError(t, err)
		out, err := Deduct(res, d("4"), capPolicy(), now)
		require.NoError(t, err)
		assert.Equal(t, "6", out.Rows[0].Entities["seat_b"].Balance.String())
		assert.Equal(t, "10", out.Rows[0].Entities["seat_a"].Balance.String())
	})

	t.Run("customer level drains entities in id order", func(t *testing.T) {
		out, err := Deduct(resolve(metered("messages"), rows), d("15"), capPolicy(), now)
		require.NoError(t, err)
		assert.Equal(t, "0", out.Rows[0].Entities["seat_a"].Balance.String())
		assert.Equal(t, "5", out.Rows[0].Entities["seat_b"].Balance.String())
	})

	t.Run("unknown entity has nothing to spend", func(t *testing.T) {
		res, err := Resolve(ResolveRequest{Feature: metered("messages"), Rows: rows, EntityID: "seat_z"})
		require.NoError(t, err)
		_, err = Deduct(res, d("1"), rejectPolicy(), now)
		assert.True(t, ierr.IsInsufficientBalance(err))
	})
}
