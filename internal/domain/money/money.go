// Package money holds the bounds shared by every stored amount.
package money

import (
	"github.com/shopspring/decimal"
)

const (
	// Scale is the number of fractional digits an amount may carry.
	Scale = 2
	// IntegerDigits is the number of digits allowed before the point.
	IntegerDigits = 10

	// minExponent bounds trailing zeros such as "1.000000" before any
	// rescaling happens.
	minExponent = -Scale - 16
)

// Max is the largest amount a NUMERIC(12,2) column holds.
var Max = decimal.New(1, IntegerDigits).Sub(decimal.New(1, -Scale))

// Fits reports whether v can be stored without rounding or overflow: at most
// Scale fractional digits and at most IntegerDigits integer digits. The
// exponent is checked first so that values like 1e20000000 are rejected
// without being expanded.
func Fits(v decimal.Decimal) bool {
	exp := v.Exponent()
	if exp > IntegerDigits || exp < minExponent {
		return false
	}
	if !v.Equal(v.Truncate(Scale)) {
		return false
	}
	return v.Abs().LessThanOrEqual(Max)
}
