package customers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidTaxID(t *testing.T) {
	require.True(t, ValidTaxID(""))
	require.True(t, ValidTaxID("29ABCDE1234F1Z5"))
	require.True(t, ValidTaxID("07AAACI1681G1ZM"))

	require.False(t, ValidTaxID("29ABCDE1234F1X5"), "missing Z marker")
	require.False(t, ValidTaxID("29abcde1234f1z5"), "lower case")
	require.False(t, ValidTaxID("29ABCDE1234F1Z"), "too short")
	require.False(t, ValidTaxID("XYABCDE1234F1Z5"), "jurisdiction must be digits")
}

func TestDeriveJurisdiction(t *testing.T) {
	require.Equal(t, "29", DeriveJurisdiction("29ABCDE1234F1Z5"))
	require.Equal(t, "07", DeriveJurisdiction("07AAACI1681G1ZM"))
	require.Equal(t, "", DeriveJurisdiction(""))
	require.Equal(t, "", DeriveJurisdiction("2"))
}

func TestNormalizeTaxID(t *testing.T) {
	require.Equal(t, "29ABCDE1234F1Z5", NormalizeTaxID("  29abcde1234f1z5 "))
}
