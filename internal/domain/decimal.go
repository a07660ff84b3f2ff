package domain

import "github.com/shopspring/decimal"

// ScaleFactor is the fixed-point scale used by integer amounts in chain
// events: a wire value v represents the decimal v / ScaleFactor.
const ScaleFactor = 1_000_000

// scaleDigits is the number of decimal digits in ScaleFactor.
const scaleDigits = 6

// FromScaled converts a chain fixed-point integer into its decimal value.
func FromScaled(v uint64) decimal.Decimal {
	return decimal.NewFromUint64(v).Shift(-scaleDigits)
}

// SaturatingSub returns a-b, clamped at zero instead of going negative.
func SaturatingSub(a, b decimal.Decimal) decimal.Decimal {
	if b.GreaterThan(a) {
		return decimal.Zero
	}
	return a.Sub(b)
}
