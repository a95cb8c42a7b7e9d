package mail

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "02 Jan 2006"

// BuildOverdueReminder composes the dunning mail sent when an invoice
// passes its due date with an open balance.
func BuildOverdueReminder(to, customerName, invoiceNo string, balance decimal.Decimal, dueDate time.Time) Message {
	amount := FormatINR(balance)
	due := dueDate.Format(dateLayout)

	text := fmt.Sprintf(
		"Dear %s,\n\nInvoice %s fell due on %s and still carries an open balance of %s.\nPlease arrange payment at your earliest convenience. If you have already paid, kindly ignore this reminder.\n\nThank you.",
		customerName, invoiceNo, due, amount,
	)
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Payment reminder</h2>
  <p>Dear %s,</p>
  <p>Invoice <strong>%s</strong> fell due on %s and still carries an open balance of <strong>%s</strong>.</p>
  <p>Please arrange payment at your earliest convenience. If you have already paid, kindly ignore this reminder.</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">This is an automated reminder.</p>
</body>
</html>`, customerName, invoiceNo, due, amount)

	return Message{
		To:       []string{to},
		Subject:  fmt.Sprintf("Payment overdue: invoice %s", invoiceNo),
		TextBody: text,
		HTMLBody: html,
	}
}

// BuildPaymentReceipt composes the confirmation mail sent once an
// invoice is settled in full.
func BuildPaymentReceipt(to, customerName, invoiceNo string, amount decimal.Decimal, paidDate time.Time) Message {
	total := FormatINR(amount)
	paid := paidDate.Format(dateLayout)

	text := fmt.Sprintf(
		"Dear %s,\n\nWe have received payment in full for invoice %s. The last payment was recorded on %s, settling a total of %s.\n\nThank you for your business.",
		customerName, invoiceNo, paid, total,
	)
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Payment received</h2>
  <p>Dear %s,</p>
  <p>We have received payment in full for invoice <strong>%s</strong>.</p>
  <p>The last payment was recorded on %s, settling a total of <strong>%s</strong>.</p>
  <p>Thank you for your business.</p>
</body>
</html>`, customerName, invoiceNo, paid, total)

	return Message{
		To:       []string{to},
		Subject:  fmt.Sprintf("Payment received: invoice %s", invoiceNo),
		TextBody: text,
		HTMLBody: html,
	}
}
