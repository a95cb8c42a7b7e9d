package billing

import "github.com/shopspring/decimal"

// statusTransitions is the table consulted for automatic status
// changes. Paid and Cancelled are terminal here; a manual override by
// a back-office actor bypasses the table entirely.
var statusTransitions = map[InvoiceStatus][]InvoiceStatus{
	StatusPending:       {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
	StatusPartiallyPaid: {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusPaid:          nil,
	StatusCancelled:     nil,
}

// ValidStatus reports whether s is a known invoice status.
func ValidStatus(s InvoiceStatus) bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether an invoice may move between the two
// statuses. Manual transitions are always permitted between valid
// statuses; automatic ones must follow the table.
func CanTransition(from, to InvoiceStatus, manual bool) bool {
	if !ValidStatus(from) || !ValidStatus(to) {
		return false
	}
	if manual {
		return true
	}
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DeriveStatus projects payment evidence onto a status. Overdue and
// Cancelled are never produced here; those are set externally.
func DeriveStatus(grandTotal, amountPaid decimal.Decimal, hasPayments bool) InvoiceStatus {
	switch {
	case amountPaid.GreaterThanOrEqual(grandTotal) && hasPayments:
		return StatusPaid
	case amountPaid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusPending
	}
}

// EffectiveStatus folds the stored status together with the one the
// reconciler derived. Terminal stored states win outright, payment
// evidence advances everything else, and an Overdue mark survives
// until money actually arrives.
func EffectiveStatus(stored, derived InvoiceStatus) InvoiceStatus {
	if stored == StatusCancelled || stored == StatusPaid {
		return stored
	}
	if derived == StatusPending {
		return stored
	}
	return derived
}
