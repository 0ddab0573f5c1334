// Package money holds the decimal helpers shared by the pricing code.
//
// Amounts are kept as decimals in major currency units everywhere and only
// converted to integer minor units (cents) when leaving the process.
package money

import "github.com/shopspring/decimal"

var (
	Zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

func init() {
	// Render amounts as JSON numbers rather than quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// FloorAtZero returns x, or zero when x is negative.
func FloorAtZero(x decimal.Decimal) decimal.Decimal {
	if x.IsNegative() {
		return Zero
	}
	return x
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi decimal.Decimal) decimal.Decimal {
	if x.LessThan(lo) {
		return lo
	}
	if x.GreaterThan(hi) {
		return hi
	}
	return x
}

// Percent returns pct percent of base.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// Times multiplies a unit price by a quantity.
func Times(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// ToCents converts major units to minor units, rounding half away from zero.
func ToCents(x decimal.Decimal) int64 {
	return x.Shift(2).Round(0).IntPart()
}

// FromCents converts minor units back to major units.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// FromFloat converts a float coming from an untyped source such as YAML.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
