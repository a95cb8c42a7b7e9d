package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/beopar/beopar/internal/payments"
)

// DashboardTotals buckets payment volume by direction plus the amounts
// still marked Pending on either side.
type DashboardTotals struct {
	Received decimal.Decimal `json:"received"`
	Sent     decimal.Decimal `json:"sent"`
	Pending  decimal.Decimal `json:"pending"`
}

// DashboardMetrics is the back-office landing page payload. It is a
// pure fold over payment and invoice state, recomputed on demand and
// cached under the global cache version.
type DashboardMetrics struct {
	Today                 DashboardTotals `json:"today"`
	AllTime               DashboardTotals `json:"all_time"`
	OutstandingReceivable decimal.Decimal `json:"outstanding_receivable"`
	OutstandingPayable    decimal.Decimal `json:"outstanding_payable"`
	OpenInvoices          int             `json:"open_invoices"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// DashboardMetrics serves the dashboard fold. Concurrent readers of
// the same day's metrics share one computation, and results live in
// the cache until the next payment write bumps the version.
func (s *Service) DashboardMetrics(ctx context.Context) (DashboardMetrics, error) {
	key, err := s.cache.BuildKey(ctx, "billing", "dashboard", s.today().Format("2006-01-02"))
	if err != nil {
		// Degraded cache never blocks the dashboard.
		return s.computeDashboard(ctx)
	}

	ch := s.sf.DoChan(key, func() (any, error) {
		var m DashboardMetrics
		err := s.cache.FetchJSON(ctx, key, &m, func(ctx context.Context) (any, error) {
			return s.computeDashboard(ctx)
		})
		return m, err
	})

	select {
	case <-ctx.Done():
		return DashboardMetrics{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return DashboardMetrics{}, res.Err
		}
		return res.Val.(DashboardMetrics), nil
	}
}

func (s *Service) computeDashboard(ctx context.Context) (DashboardMetrics, error) {
	var records []payments.PaymentRecord
	var open []Invoice

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.payments == nil {
			return nil
		}
		var err error
		records, err = s.payments.ListAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		open, err = s.repo.ListOpenInvoices(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardMetrics{}, err
	}

	m := DashboardMetrics{GeneratedAt: s.now()}
	today := s.today()
	for _, rec := range records {
		addToTotals(&m.AllTime, rec)
		if truncateToDay(rec.PaidDate).Equal(today) {
			addToTotals(&m.Today, rec)
		}
	}

	byInvoice := groupByInvoice(records)
	for _, inv := range open {
		rec := Reconcile(inv, byInvoice[inv.ID])
		if !rec.RemainingBalance.IsPositive() {
			continue
		}
		m.OpenInvoices++
		if inv.Kind == KindSupplier {
			m.OutstandingPayable = m.OutstandingPayable.Add(rec.RemainingBalance)
		} else {
			m.OutstandingReceivable = m.OutstandingReceivable.Add(rec.RemainingBalance)
		}
	}
	return m, nil
}

func addToTotals(t *DashboardTotals, rec payments.PaymentRecord) {
	switch {
	case rec.Status == payments.StatusPending:
		t.Pending = t.Pending.Add(rec.AmountPaid)
	case rec.Type == payments.TypeCustomer && countedStatuses[KindCustomer][rec.Status]:
		t.Received = t.Received.Add(rec.AmountPaid)
	case rec.Type == payments.TypeSupplier && countedStatuses[KindSupplier][rec.Status]:
		t.Sent = t.Sent.Add(rec.AmountPaid)
	}
}

func groupByInvoice(records []payments.PaymentRecord) map[int64][]payments.PaymentRecord {
	out := map[int64][]payments.PaymentRecord{}
	for _, rec := range records {
		if rec.RelatedInvoiceID == nil {
			continue
		}
		out[*rec.RelatedInvoiceID] = append(out[*rec.RelatedInvoiceID], rec)
	}
	return out
}
