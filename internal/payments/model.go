package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type marks which direction money moved.
type Type string

const (
	TypeCustomer Type = "customer"
	TypeSupplier Type = "supplier"
)

// Status is the settlement state reported for a payment. Which
// statuses count toward an invoice balance depends on the invoice
// kind; that mapping lives with the reconciler.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusPending   Status = "Pending"
	StatusFailed    Status = "Failed"
	StatusSent      Status = "Sent"
	StatusReceived  Status = "Received"
	StatusPartial   Status = "Partial"
)

// PaymentRecord is one append-only row of payment evidence. Records are
// never updated or deleted; balances are always re-derived from the
// full list.
type PaymentRecord struct {
	ID               int64
	Type             Type
	RelatedInvoiceID *int64
	AmountPaid       decimal.Decimal
	OriginalAmount   *decimal.Decimal
	Status           Status
	Method           string
	Reference        string
	PaidDate         time.Time
	CreatedAt        time.Time
}

// ValidType reports whether t is a known payment direction.
func ValidType(t Type) bool {
	return t == TypeCustomer || t == TypeSupplier
}

// ValidStatus reports whether s is a known settlement state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusCompleted, StatusPending, StatusFailed, StatusSent, StatusReceived, StatusPartial:
		return true
	}
	return false
}
