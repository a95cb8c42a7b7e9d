package billing

import (
	"github.com/shopspring/decimal"

	"github.com/beopar/beopar/internal/payments"
)

// countedStatuses maps an invoice kind to the payment statuses that
// count toward its balance. Customer invoices count money received,
// supplier bills money sent; Pending and Failed never count.
var countedStatuses = map[InvoiceKind]map[payments.Status]bool{
	KindCustomer: {
		payments.StatusCompleted: true,
		payments.StatusReceived:  true,
		payments.StatusPartial:   true,
	},
	KindSupplier: {
		payments.StatusCompleted: true,
		payments.StatusSent:      true,
		payments.StatusPartial:   true,
	},
}

// Reconciliation is the authoritative balance projection for one
// invoice, rebuilt from scratch on every read.
type Reconciliation struct {
	AmountPaid       decimal.Decimal
	RemainingBalance decimal.Decimal
	DerivedStatus    InvoiceStatus
}

// Reconcile folds the invoice's payment records into its paid amount,
// remaining balance and derived status. Overpayment clamps the balance
// at zero rather than going negative. The invoice itself is never
// mutated; callers decide what, if anything, to persist.
func Reconcile(inv Invoice, records []payments.PaymentRecord) Reconciliation {
	counted := countedStatuses[inv.Kind]
	if counted == nil {
		counted = countedStatuses[KindCustomer]
	}

	amountPaid := decimal.Zero
	hasPayments := false
	for _, rec := range records {
		if !counted[rec.Status] {
			continue
		}
		amountPaid = amountPaid.Add(rec.AmountPaid)
		hasPayments = true
	}

	remaining := inv.GrandTotal.Sub(amountPaid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Reconciliation{
		AmountPaid:       amountPaid,
		RemainingBalance: remaining,
		DerivedStatus:    DeriveStatus(inv.GrandTotal, amountPaid, hasPayments),
	}
}
