package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceKind distinguishes customer bills (money owed to us) from
// supplier bills (money we owe). Only customer bills touch stock.
type InvoiceKind string

const (
	KindCustomer InvoiceKind = "customer"
	KindSupplier InvoiceKind = "supplier"
)

// ValidKind reports whether k is a known invoice kind.
func ValidKind(k InvoiceKind) bool {
	return k == KindCustomer || k == KindSupplier
}

// InvoiceStatus enumerates the invoice lifecycle states.
type InvoiceStatus string

const (
	StatusPending       InvoiceStatus = "Pending"
	StatusPartiallyPaid InvoiceStatus = "PartiallyPaid"
	StatusPaid          InvoiceStatus = "Paid"
	StatusOverdue       InvoiceStatus = "Overdue"
	StatusCancelled     InvoiceStatus = "Cancelled"
)

// InvoiceLine is one cart row on a bill. UnitPrice is the price
// snapshot taken when the bill was committed; later catalog price
// changes never rewrite committed lines.
type InvoiceLine struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Total returns quantity times the captured unit price.
func (l InvoiceLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// Invoice is a committed bill document. SubTotal, the tax components
// and GrandTotal are stored exactly as computed at commit time.
type Invoice struct {
	ID         int64
	InvoiceNo  string
	Kind       InvoiceKind
	CustomerID int64
	Lines      []InvoiceLine
	GSTRate    decimal.Decimal
	SubTotal   decimal.Decimal
	CGST       decimal.Decimal
	SGST       decimal.Decimal
	IGST       decimal.Decimal
	GrandTotal decimal.Decimal
	Status     InvoiceStatus
	IssueDate  time.Time
	DueDate    time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TaxTotal returns the summed tax components.
func (i Invoice) TaxTotal() decimal.Decimal {
	return i.CGST.Add(i.SGST).Add(i.IGST)
}

// StockShortfall reports one product whose stock cannot cover the
// requested consumption.
type StockShortfall struct {
	ProductID int64 `json:"product_id"`
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

// InsufficientStockError aborts a commit when any resolved delta would
// drive stock negative. It lists every violating product so the caller
// can fix the whole cart in one pass.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("product %d requested %d available %d", s.ProductID, s.Requested, s.Available))
	}
	return "billing: insufficient stock: " + strings.Join(parts, "; ")
}
