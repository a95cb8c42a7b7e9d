package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/beopar/beopar/internal/payments"
)

func payment(status payments.Status, amount string) payments.PaymentRecord {
	return payments.PaymentRecord{Status: status, AmountPaid: decimal.RequireFromString(amount)}
}

func TestReconcileCustomerInvoice(t *testing.T) {
	inv := Invoice{Kind: KindCustomer, GrandTotal: decimal.RequireFromString("1180")}

	rec := Reconcile(inv, []payments.PaymentRecord{
		payment(payments.StatusCompleted, "500"),
		payment(payments.StatusReceived, "300"),
		payment(payments.StatusPartial, "80"),
		payment(payments.StatusPending, "9999"),
		payment(payments.StatusFailed, "9999"),
		payment(payments.StatusSent, "100"), // supplier-side status, not counted here
	})

	require.True(t, rec.AmountPaid.Equal(decimal.RequireFromString("880")), "paid = %s", rec.AmountPaid)
	require.True(t, rec.RemainingBalance.Equal(decimal.RequireFromString("300")))
	require.Equal(t, StatusPartiallyPaid, rec.DerivedStatus)
}

func TestReconcileSupplierBillCountsSent(t *testing.T) {
	inv := Invoice{Kind: KindSupplier, GrandTotal: decimal.RequireFromString("1000")}

	rec := Reconcile(inv, []payments.PaymentRecord{
		payment(payments.StatusSent, "600"),
		payment(payments.StatusCompleted, "400"),
		payment(payments.StatusReceived, "123"), // customer-side status, ignored
	})

	require.True(t, rec.AmountPaid.Equal(decimal.RequireFromString("1000")))
	require.True(t, rec.RemainingBalance.IsZero())
	require.Equal(t, StatusPaid, rec.DerivedStatus)
}

func TestReconcileOverpaymentClampsAtZero(t *testing.T) {
	inv := Invoice{Kind: KindCustomer, GrandTotal: decimal.RequireFromString("200")}

	rec := Reconcile(inv, []payments.PaymentRecord{payment(payments.StatusCompleted, "250")})

	require.True(t, rec.RemainingBalance.IsZero())
	require.Equal(t, StatusPaid, rec.DerivedStatus)
}

func TestReconcileNoPaymentsStaysPending(t *testing.T) {
	inv := Invoice{Kind: KindCustomer, GrandTotal: decimal.RequireFromString("950")}

	rec := Reconcile(inv, nil)

	require.True(t, rec.AmountPaid.IsZero())
	require.True(t, rec.RemainingBalance.Equal(inv.GrandTotal))
	require.Equal(t, StatusPending, rec.DerivedStatus)
}

func TestReconcilePendingOnlyEvidenceDoesNotPay(t *testing.T) {
	inv := Invoice{Kind: KindCustomer, GrandTotal: decimal.RequireFromString("100")}

	rec := Reconcile(inv, []payments.PaymentRecord{payment(payments.StatusPending, "100")})

	require.True(t, rec.AmountPaid.IsZero())
	require.Equal(t, StatusPending, rec.DerivedStatus)
}
