package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item. Stock is the single source of truth for
// availability; bill commits and manual adjustments both mutate it
// under row locks and neither may take it negative.
type Product struct {
	ID        int64
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	Stock     int64
	Unit      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
