// Package money provides integer minor-unit currency arithmetic.
// All amounts are USD cents; no floating point touches a balance.
package money

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Cents is a monetary amount in the smallest currency unit.
type Cents int64

// FromDollars converts a whole-dollar amount to Cents.
func FromDollars(d int64) Cents {
	return Cents(d * 100)
}

// Dollars returns the whole-dollar part, truncated toward zero.
func (c Cents) Dollars() int64 {
	return int64(c) / 100
}

// String renders the amount as a dollar figure, e.g. "$1,234.56" or "-$0.07".
func (c Cents) String() string {
	v := int64(c)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(v/100), v%100)
}

// MulBasisPoints multiplies by a basis-point rate, rounding half up away
// from zero. 100 bps = 1%.
func (c Cents) MulBasisPoints(bps int64) Cents {
	v := int64(c) * bps
	if v >= 0 {
		return Cents((v + 5000) / 10000)
	}
	return Cents((v - 5000) / 10000)
}

// MulQty multiplies a per-unit amount by a quantity.
func (c Cents) MulQty(qty int64) Cents {
	return Cents(int64(c) * qty)
}
