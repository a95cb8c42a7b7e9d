package mail

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatINRUsesIndianGrouping(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"118000", "₹1,18,000.00"},
		{"999.5", "₹999.50"},
		{"1234567.89", "₹12,34,567.89"},
		{"0", "₹0.00"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatINR(decimal.RequireFromString(tc.in)), "input %s", tc.in)
	}
}

func TestBuildOverdueReminder(t *testing.T) {
	due := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	msg := BuildOverdueReminder("billing@karnataka.example", "Karnataka Retail", "INV-2026-000042", decimal.RequireFromString("680"), due)

	require.Equal(t, []string{"billing@karnataka.example"}, msg.To)
	require.Contains(t, msg.Subject, "INV-2026-000042")
	require.Contains(t, msg.TextBody, "₹680.00")
	require.Contains(t, msg.TextBody, "04 Feb 2026")
	require.Contains(t, msg.HTMLBody, "INV-2026-000042")
}

func TestBuildPaymentReceipt(t *testing.T) {
	paid := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	msg := BuildPaymentReceipt("billing@karnataka.example", "Karnataka Retail", "INV-2026-000042", decimal.RequireFromString("118000"), paid)

	require.Contains(t, msg.Subject, "Payment received")
	require.Contains(t, msg.TextBody, "₹1,18,000.00")
	require.Contains(t, msg.HTMLBody, "14 Mar 2026")
}
