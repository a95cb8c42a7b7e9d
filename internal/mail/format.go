package mail

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var inr = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders an amount with Indian digit grouping, so one lakh
// eighteen thousand reads ₹1,18,000.00.
func FormatINR(amount decimal.Decimal) string {
	value := number.Decimal(amount.InexactFloat64(),
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	)
	return inr.Sprintf("₹%v", value)
}
