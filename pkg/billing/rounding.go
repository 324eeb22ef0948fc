package billing

import "github.com/shopspring/decimal"

var (
	decimalTwo     = decimal.NewFromInt(2)
	decimalHundred = decimal.NewFromInt(100)
)

// d converts a float without picking up binary noise, so 150 × 0.0227 is
// exactly 3.405 before it is rounded.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// r2 rounds to cents, half away from zero.
func r2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// percentOf returns pct percent of v.
func percentOf(pct, v decimal.Decimal) decimal.Decimal {
	return pct.Div(decimalHundred).Mul(v)
}
