package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/beopar/beopar/internal/billing"
	"github.com/beopar/beopar/internal/customers"
	jobmetrics "github.com/beopar/beopar/internal/jobs"
	"github.com/beopar/beopar/internal/mail"
	"github.com/beopar/beopar/internal/payments"
	"github.com/beopar/beopar/internal/shared"
)

// NewPaymentNotifyHandler builds the handler that follows up on a
// recorded payment: when the payment settles a customer invoice in
// full, the customer gets a receipt.
func NewPaymentNotifyHandler(paymentsSvc *payments.Service, billingSvc *billing.Service, customersSvc *customers.Service, sender mail.Sender, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PaymentNotifyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("payment_notify")

		payment, err := paymentsSvc.Get(ctx, payload.PaymentID)
		if errors.Is(err, shared.ErrNotFound) {
			// The payment vanished between enqueue and execution.
			return tracker.End(nil)
		}
		if err != nil {
			return tracker.End(err)
		}
		if payment.RelatedInvoiceID == nil || payment.Type != payments.TypeCustomer {
			return tracker.End(nil)
		}

		inv, rec, err := billingSvc.Get(ctx, *payment.RelatedInvoiceID)
		if err != nil {
			return tracker.End(err)
		}
		if rec.RemainingBalance.IsPositive() {
			return tracker.End(nil)
		}

		if sender == nil {
			return tracker.End(nil)
		}
		counterparty, err := customersSvc.Get(ctx, inv.CustomerID)
		if err != nil || counterparty.Email == "" {
			return tracker.End(nil)
		}
		msg := mail.BuildPaymentReceipt(
			counterparty.Email,
			counterparty.Name,
			inv.InvoiceNo,
			inv.GrandTotal,
			payment.PaidDate,
		)
		if err := sender.Send(ctx, msg); err != nil {
			metrics.AddMail("payment_receipt", "failure")
			logger.Warn("jobs: payment receipt mail",
				slog.Int64("payment_id", payment.ID),
				slog.Int64("invoice_id", inv.ID),
				slog.Any("error", err),
			)
			return tracker.End(nil)
		}
		metrics.AddMail("payment_receipt", "success")
		return tracker.End(nil)
	}
}
