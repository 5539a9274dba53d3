// Package money does currency arithmetic in exact decimals and converts back
// to float64 only at the storage and JSON boundaries.
package money

import "github.com/shopspring/decimal"

// Places is the number of fractional digits kept for every amount.
const Places = 2

func From(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(Places)
}

// Line returns price*quantity.
func Line(price float64, quantity int) decimal.Decimal {
	return From(price).Mul(decimal.NewFromInt(int64(quantity))).Round(Places)
}

// Float rounds to cents and converts back.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Round(Places).Float64()
	return f
}

// Within reports whether |a-b| <= tolerance.
func Within(a, b decimal.Decimal, tolerance float64) bool {
	return a.Sub(b).Abs().LessThanOrEqual(decimal.NewFromFloat(tolerance))
}
