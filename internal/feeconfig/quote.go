package feeconfig

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// MaxSubtotal caps a checkout subtotal so the fee and total stay inside int64.
const MaxSubtotal int64 = 1_000_000_000_000

// ErrSubtotalTooLarge is returned when unit price times quantity passes MaxSubtotal.
var ErrSubtotalTooLarge = errors.New("subtotal too large")

// Quote is a checkout total in minor units.
type Quote struct {
	Subtotal int64  `json:"subtotal"`
	AdminFee int64  `json:"admin_fee"`
	Total    int64  `json:"total"`
	Percent  string `json:"admin_fee_percent"`
}

var hundred = decimal.NewFromInt(100)

// Subtotal multiplies unitPrice by qty. A non-positive qty counts as one and a
// non-positive price yields zero.
func Subtotal(unitPrice int64, qty int) (int64, error) {
	if qty <= 0 {
		qty = 1
	}
	if unitPrice <= 0 {
		return 0, nil
	}
	if int64(qty) > math.MaxInt64/unitPrice {
		return 0, ErrSubtotalTooLarge
	}
	subtotal := unitPrice * int64(qty)
	if subtotal > MaxSubtotal {
		return 0, ErrSubtotalTooLarge
	}
	return subtotal, nil
}

// Compute applies percent to subtotal, rounding the fee up to the next whole unit.
func Compute(subtotal int64, percent decimal.Decimal) Quote {
	fee := decimal.NewFromInt(subtotal).Mul(percent).Div(hundred).Ceil().IntPart()
	return Quote{
		Subtotal: subtotal,
		AdminFee: fee,
		Total:    subtotal + fee,
		Percent:  percent.String(),
	}
}
