package price

import (
	"testing"

	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func TestCalculateCostGraduated(t *testing.T) {
	p := &Price{
		ID:           "price_seats",
		BillingUnits: d("1"),
		Tiers: []Tier{
			{UpTo: dp("10"), Amount: d("10")},
			{UpTo: dp("20"), Amount: d("8")},
			{Amount: d("5")},
		},
	}

	tests := []struct {
		name     string
		overage  string
		expected string
	}{
		{"zero", "0", "0"},
		{"inside first tier", "4", "40"},
		{"exactly first boundary", "10", "100"},
		{"spans two tiers", "15", "140"},
		{"spans all tiers", "25", "205"},
		{"negative is free", "-3", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.CalculateCost(d(tt.overage))
			assert.True(t, got.Equal(d(tt.expected)), "expected %s got %s", tt.expected, got)
		})
	}
}

func TestCalculateCostPackages(t *testing.T) {
	// $5 per package of 100 units
	p := &Price{BillingUnits: d("100"), Tiers: []Tier{{Amount: d("5")}}}

	overage := p.OverageUnits(d("350"), d("100"))
	assert.True(t, overage.Equal(d("300")))
	assert.True(t, p.CalculateCost(overage).Equal(d("15")))

	assert.True(t, p.OverageUnits(d("50"), d("100")).IsZero())
}

func TestScenarioAOveragePrice(t *testing.T) {
	// included 5, $0.01 per unit, usage 10
	p := &Price{Tiers: []Tier{{Amount: d("0.01")}}}
	overage := p.OverageUnits(d("10"), d("5"))
	assert.True(t, p.CalculateCost(overage).Equal(d("0.05")))
}

func TestGetProrationConfigDefaults(t *testing.T) {
	var p *Price
	cfg := p.GetProrationConfig()
	assert.Equal(t, types.ProrationOnIncreaseProrateImmediately, cfg.OnIncrease)
	assert.Equal(t, types.ProrationOnDecreaseProrateImmediately, cfg.OnDecrease)

	p = &Price{ProrationConfig: &ProrationConfig{OnDecrease: types.ProrationOnDecreaseNone}}
	cfg = p.GetProrationConfig()
	assert.Equal(t, types.ProrationOnIncreaseProrateImmediately, cfg.OnIncrease)
	assert.Equal(t, types.ProrationOnDecreaseNone, cfg.OnDecrease)
}

func TestValidateTiers(t *testing.T) {
	assert.Error(t, (&Price{}).Validate())
	assert.Error(t, (&Price{Tiers: []Tier{{Amount: d("1")}, {UpTo: dp("10"), Amount: d("1")}}}).Validate())
	assert.Error(t, (&Price{Tiers: []Tier{{UpTo: dp("10"), Amount: d("1")}, {UpTo: dp("5"), Amount: d("1")}}}).Validate())
	assert.NoError(t, (&Price{Tiers: []Tier{{UpTo: dp("10"), Amount: d("1")}, {Amount: d("0.5")}}}).Validate())
}
