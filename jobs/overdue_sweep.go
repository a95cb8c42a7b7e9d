package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/beopar/beopar/internal/billing"
	"github.com/beopar/beopar/internal/customers"
	jobmetrics "github.com/beopar/beopar/internal/jobs"
	"github.com/beopar/beopar/internal/mail"
	"github.com/beopar/beopar/internal/platform/cache"
)

// NewOverdueSweepHandler builds the handler that walks past-due
// invoices, flips open ones to Overdue and mails reminders. One bad
// invoice never stops the sweep; failures are logged and skipped.
func NewOverdueSweepHandler(billingSvc *billing.Service, customersSvc *customers.Service, sender mail.Sender, c *cache.Cache, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OverdueSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("overdue_sweep")

		asOf := payload.ScheduledFor
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}

		candidates, err := billingSvc.OverdueCandidates(ctx, asOf)
		if err != nil {
			return tracker.End(err)
		}

		flipped := 0
		for _, cand := range candidates {
			if err := billingSvc.MarkOverdue(ctx, cand.Invoice.ID); err != nil {
				logger.Error("jobs: mark overdue",
					slog.Int64("invoice_id", cand.Invoice.ID),
					slog.Any("error", err),
				)
				continue
			}
			flipped++

			if cand.Invoice.Kind != billing.KindCustomer || sender == nil {
				continue
			}
			counterparty, err := customersSvc.Get(ctx, cand.Invoice.CustomerID)
			if err != nil || counterparty.Email == "" {
				continue
			}
			msg := mail.BuildOverdueReminder(
				counterparty.Email,
				counterparty.Name,
				cand.Invoice.InvoiceNo,
				cand.Reconciliation.RemainingBalance,
				cand.Invoice.DueDate,
			)
			if err := sender.Send(ctx, msg); err != nil {
				metrics.AddMail("overdue_reminder", "failure")
				logger.Warn("jobs: overdue reminder mail",
					slog.Int64("invoice_id", cand.Invoice.ID),
					slog.Any("error", err),
				)
				continue
			}
			metrics.AddMail("overdue_reminder", "success")
		}

		metrics.AddOverdueFlips(flipped)
		if flipped > 0 {
			_ = c.Bump(ctx)
		}
		logger.Info("jobs: overdue sweep done",
			slog.Int("candidates", len(candidates)),
			slog.Int("flipped", flipped),
		)
		return tracker.End(nil)
	}
}
