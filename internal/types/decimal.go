package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CreditPrecision is the number of fractional digits kept when usage is converted
// into credits. Conversions round half to even at this precision.
const CreditPrecision int32 = 10

// DEFAULT_PRECISION is used for currencies missing from currencyPrecision.
const DEFAULT_PRECISION = 2

var currencyPrecision = map[string]int32{
	"usd": 2, "eur": 2, "gbp": 2, "aud": 2, "cad": 2,
	"jpy": 0, "krw": 0, "vnd": 0, "clp": 0,
	"inr": 2, "idr": 2, "sgd": 2, "thb": 2, "myr": 2,
	"php": 2, "hkd": 2, "nzd": 2, "brl": 2, "chf": 2,
	"cny": 2, "czk": 2, "dkk": 2, "huf": 2, "ils": 2,
	"mxn": 2, "nok": 2, "pln": 2, "ron": 2, "rub": 2,
	"sar": 2, "sek": 2, "try": 2, "twd": 2, "zar": 2,
}

// GetCurrencyPrecision returns the number of minor-unit digits for a currency.
func GetCurrencyPrecision(currency string) int32 {
	if p, ok := currencyPrecision[strings.ToLower(currency)]; ok {
		return p
	}
	return DEFAULT_PRECISION
}

// RoundToCurrencyPrecision rounds half away from zero to the currency's minor unit.
func RoundToCurrencyPrecision(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(GetCurrencyPrecision(currency))
}

// RoundUpToMultiple rounds value up to the next multiple of unit, flooring
// negative values at zero. A non-positive unit leaves value unchanged apart from
// the floor.
func RoundUpToMultiple(value, unit decimal.Decimal) decimal.Decimal {
	if value.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if unit.LessThanOrEqual(decimal.Zero) {
		return value
	}
	return value.Div(unit).Ceil().Mul(unit)
}

// DivCredit divides with banker's rounding at CreditPrecision.
func DivCredit(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, CreditPrecision+6).RoundBank(CreditPrecision)
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the larger of a and b.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// DecimalPtr returns a pointer to d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
