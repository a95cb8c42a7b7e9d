// Package gst computes the jurisdiction-aware GST split applied to a
// bill. The calculator is pure; callers supply the subtotal, the two
// jurisdiction codes and the rate, and persist the result themselves.
package gst

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Rates lists the accepted GST slabs as decimal fractions of the
// subtotal. Anything outside this set is rejected.
var Rates = []decimal.Decimal{
	decimal.Zero,
	decimal.RequireFromString("0.0025"),
	decimal.RequireFromString("0.03"),
	decimal.RequireFromString("0.05"),
	decimal.RequireFromString("0.12"),
	decimal.RequireFromString("0.18"),
	decimal.RequireFromString("0.28"),
}

var (
	ErrInvalidRate      = errors.New("gst: rate outside the accepted slab set")
	ErrNegativeSubTotal = errors.New("gst: subtotal must not be negative")
)

var two = decimal.NewFromInt(2)

// Breakdown carries the tax components of one bill. Exactly one of
// CGST+SGST or IGST is populated, never both.
type Breakdown struct {
	CGST decimal.Decimal
	SGST decimal.Decimal
	IGST decimal.Decimal
}

// Total returns the summed tax amount.
func (b Breakdown) Total() decimal.Decimal {
	return b.CGST.Add(b.SGST).Add(b.IGST)
}

// ValidRate reports whether rate is one of the accepted GST slabs.
func ValidRate(rate decimal.Decimal) bool {
	for _, r := range Rates {
		if rate.Equal(r) {
			return true
		}
	}
	return false
}

// Compute splits subTotal*rate into CGST+SGST when the customer shares
// the seller's jurisdiction, or IGST otherwise. An empty customer
// jurisdiction marks an unregistered counterparty and yields a zero
// breakdown. Components are rounded half-even to two decimal places,
// once, after the split.
func Compute(subTotal decimal.Decimal, customerJurisdiction, homeJurisdiction string, rate decimal.Decimal) (Breakdown, error) {
	if subTotal.IsNegative() {
		return Breakdown{}, ErrNegativeSubTotal
	}
	if !ValidRate(rate) {
		return Breakdown{}, ErrInvalidRate
	}
	if customerJurisdiction == "" {
		return Breakdown{}, nil
	}
	tax := subTotal.Mul(rate)
	if customerJurisdiction == homeJurisdiction {
		half := tax.Div(two).RoundBank(2)
		return Breakdown{CGST: half, SGST: half}, nil
	}
	return Breakdown{IGST: tax.RoundBank(2)}, nil
}
