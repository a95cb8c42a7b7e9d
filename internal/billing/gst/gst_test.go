package gst

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeSplitsIntraJurisdiction(t *testing.T) {
	b, err := Compute(dec("1000"), "29", "29", dec("0.18"))
	require.NoError(t, err)
	require.True(t, b.CGST.Equal(dec("90")), "cgst = %s", b.CGST)
	require.True(t, b.SGST.Equal(dec("90")), "sgst = %s", b.SGST)
	require.True(t, b.IGST.IsZero())
	require.True(t, b.Total().Equal(dec("180")))
}

func TestComputeChargesIGSTAcrossJurisdictions(t *testing.T) {
	b, err := Compute(dec("1000"), "27", "29", dec("0.18"))
	require.NoError(t, err)
	require.True(t, b.CGST.IsZero())
	require.True(t, b.SGST.IsZero())
	require.True(t, b.IGST.Equal(dec("180")), "igst = %s", b.IGST)
}

func TestComputeUnregisteredCustomerPaysNoTax(t *testing.T) {
	b, err := Compute(dec("500"), "", "29", dec("0.28"))
	require.NoError(t, err)
	require.True(t, b.Total().IsZero())
}

func TestComputeZeroRate(t *testing.T) {
	b, err := Compute(dec("999.99"), "29", "29", decimal.Zero)
	require.NoError(t, err)
	require.True(t, b.Total().IsZero())
}

func TestComputeRejectsUnknownRate(t *testing.T) {
	_, err := Compute(dec("100"), "29", "29", dec("0.17"))
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = Compute(dec("100"), "29", "29", dec("-0.18"))
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestComputeRejectsNegativeSubTotal(t *testing.T) {
	_, err := Compute(dec("-1"), "29", "29", dec("0.18"))
	require.ErrorIs(t, err, ErrNegativeSubTotal)
}

func TestComputeRoundsHalfEven(t *testing.T) {
	// 5.00 * 0.05 = 0.25, half is 0.125 which lands on the tie and
	// must round to the even neighbour 0.12, not up to 0.13.
	b, err := Compute(dec("5.00"), "29", "29", dec("0.05"))
	require.NoError(t, err)
	require.True(t, b.CGST.Equal(dec("0.12")), "cgst = %s", b.CGST)
	require.True(t, b.SGST.Equal(dec("0.12")), "sgst = %s", b.SGST)

	// 15.00 * 0.05 = 0.75, half is 0.375 whose even neighbour is 0.38.
	b, err = Compute(dec("15.00"), "29", "29", dec("0.05"))
	require.NoError(t, err)
	require.True(t, b.CGST.Equal(dec("0.38")), "cgst = %s", b.CGST)

	// Inter-jurisdiction total 2.50 * 0.05 = 0.125 rounds once to 0.12.
	b, err = Compute(dec("2.50"), "07", "29", dec("0.05"))
	require.NoError(t, err)
	require.True(t, b.IGST.Equal(dec("0.12")), "igst = %s", b.IGST)
}

func TestValidRateCoversEverySlab(t *testing.T) {
	for _, r := range Rates {
		require.True(t, ValidRate(r), "rate %s", r)
	}
	require.False(t, ValidRate(dec("0.10")))
}
