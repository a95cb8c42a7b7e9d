package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/beopar/beopar/internal/billing/gst"
	"github.com/beopar/beopar/internal/customers"
	"github.com/beopar/beopar/internal/payments"
	"github.com/beopar/beopar/internal/platform/cache"
	"github.com/beopar/beopar/internal/shared"
)

// CustomerPort resolves counterparties for tax routing.
type CustomerPort interface {
	Get(ctx context.Context, id int64) (customers.Customer, error)
}

// PaymentsPort reads payment evidence. Billing never writes payments;
// it only folds them into balances.
type PaymentsPort interface {
	ListForInvoice(ctx context.Context, invoiceID int64) ([]payments.PaymentRecord, error)
	ListForInvoices(ctx context.Context, invoiceIDs []int64) (map[int64][]payments.PaymentRecord, error)
	ListAll(ctx context.Context) ([]payments.PaymentRecord, error)
}

// Config carries the billing policy knobs.
type Config struct {
	// HomeJurisdiction is the seller's own jurisdiction code, used to
	// split tax into CGST+SGST versus IGST.
	HomeJurisdiction string
	// DueDays is added to the issue date when no due date is given.
	DueDays int
}

// LineInput is one requested cart row. Prices are never taken from the
// client; the commit snapshots them from the catalog under lock.
type LineInput struct {
	ProductID int64
	Quantity  int64
}

// CreateBillInput carries everything needed to commit a new bill.
type CreateBillInput struct {
	Kind           InvoiceKind
	CustomerID     int64
	Lines          []LineInput
	GSTRate        decimal.Decimal
	IssueDate      time.Time // zero value means today
	IdempotencyKey string
	ActorID        int64
}

// EditBillInput carries the target state for an existing bill. The
// number, kind, counterparty, dates and status all stay put on edit.
type EditBillInput struct {
	Lines          []LineInput
	GSTRate        decimal.Decimal
	IdempotencyKey string
	ActorID        int64
}

// Service is the commit coordinator. It validates input, resolves
// stock deltas, computes tax and lands invoice, lines and stock moves
// in one transaction.
type Service struct {
	repo        RepositoryPort
	customers   CustomerPort
	payments    PaymentsPort
	cache       *cache.Cache
	audit       *shared.AuditLogger
	idempotency *shared.IdempotencyStore
	cfg         Config
	sf          singleflight.Group
	now         func() time.Time
}

// NewService wires the billing coordinator.
func NewService(repo RepositoryPort, customersPort CustomerPort, paymentsPort PaymentsPort, c *cache.Cache, audit *shared.AuditLogger, idempotency *shared.IdempotencyStore, cfg Config) *Service {
	if cfg.DueDays <= 0 {
		cfg.DueDays = 30
	}
	return &Service{
		repo:        repo,
		customers:   customersPort,
		payments:    paymentsPort,
		cache:       c,
		audit:       audit,
		idempotency: idempotency,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) today() time.Time {
	return truncateToDay(s.now())
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// normalizeLines drops zero-quantity rows (they mean removal), rejects
// negatives and unknown ids, and refuses an empty cart.
func normalizeLines(in []LineInput) ([]InvoiceLine, error) {
	lines := make([]InvoiceLine, 0, len(in))
	for _, l := range in {
		if l.ProductID <= 0 {
			return nil, shared.Validationf("billing: line references invalid product %d", l.ProductID)
		}
		if l.Quantity < 0 {
			return nil, shared.Validationf("billing: line quantity must not be negative")
		}
		if l.Quantity == 0 {
			continue
		}
		lines = append(lines, InvoiceLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	if len(lines) == 0 {
		return nil, shared.Validationf("billing: bill requires at least one line")
	}
	return lines, nil
}

// lockSet is the ascending union of every product the commit reads or
// writes. Locking in one global order keeps concurrent commits off
// each other's toes.
func lockSet(target []InvoiceLine, deltas map[int64]int64) []int64 {
	seen := make(map[int64]bool, len(target)+len(deltas))
	for _, l := range target {
		seen[l.ProductID] = true
	}
	for id := range deltas {
		seen[id] = true
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedDeltaIDs(deltas map[int64]int64) []int64 {
	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// checkStock walks the consuming deltas against locked stock and
// collects every shortfall instead of stopping at the first.
func checkStock(deltas map[int64]int64, states map[int64]ProductState) error {
	var shortfalls []StockShortfall
	for _, id := range sortedDeltaIDs(deltas) {
		d := deltas[id]
		if d >= 0 {
			continue
		}
		st, ok := states[id]
		if !ok {
			return shared.Validationf("billing: unknown product %d", id)
		}
		if st.Stock+d < 0 {
			shortfalls = append(shortfalls, StockShortfall{ProductID: id, Requested: -d, Available: st.Stock})
		}
	}
	if len(shortfalls) > 0 {
		return &InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

// priceLines snapshots unit prices onto the target lines. Products
// kept from the previous line set retain their captured price; new
// ones take the current catalog price read under the same lock.
func priceLines(target []InvoiceLine, previous []InvoiceLine, states map[int64]ProductState) ([]InvoiceLine, error) {
	captured := make(map[int64]decimal.Decimal, len(previous))
	for _, l := range previous {
		if _, ok := captured[l.ProductID]; !ok {
			captured[l.ProductID] = l.UnitPrice
		}
	}
	priced := make([]InvoiceLine, len(target))
	for i, l := range target {
		if price, ok := captured[l.ProductID]; ok {
			l.UnitPrice = price
		} else {
			st, ok := states[l.ProductID]
			if !ok {
				return nil, shared.Validationf("billing: unknown product %d", l.ProductID)
			}
			l.UnitPrice = st.UnitPrice
		}
		priced[i] = l
	}
	return priced, nil
}

func subTotalOf(lines []InvoiceLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

func (s *Service) resolveCustomer(ctx context.Context, id int64) (customers.Customer, error) {
	c, err := s.customers.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return customers.Customer{}, shared.Validationf("billing: unknown customer %d", id)
	}
	return c, err
}

func (s *Service) checkIdempotency(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "billing"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) releaseIdempotency(ctx context.Context, inserted bool, key string) {
	if inserted {
		_ = s.idempotency.Delete(ctx, key)
	}
}

// Create commits a brand-new bill: snapshot prices, check stock, number
// the invoice and land header, lines and stock deltas atomically.
func (s *Service) Create(ctx context.Context, in CreateBillInput) (Invoice, error) {
	kind := in.Kind
	if kind == "" {
		kind = KindCustomer
	}
	if !ValidKind(kind) {
		return Invoice{}, shared.Validationf("billing: unknown invoice kind %q", in.Kind)
	}
	if in.CustomerID <= 0 {
		return Invoice{}, shared.Validationf("billing: customer is required")
	}
	target, err := normalizeLines(in.Lines)
	if err != nil {
		return Invoice{}, err
	}
	if !gst.ValidRate(in.GSTRate) {
		return Invoice{}, shared.Validationf("billing: gst rate %s outside the accepted slab set", in.GSTRate)
	}

	counterparty, err := s.resolveCustomer(ctx, in.CustomerID)
	if err != nil {
		return Invoice{}, err
	}

	issue := s.today()
	if !in.IssueDate.IsZero() {
		issue = truncateToDay(in.IssueDate)
	}
	due := issue.AddDate(0, 0, s.cfg.DueDays)

	inserted, err := s.checkIdempotency(ctx, in.IdempotencyKey)
	if err != nil {
		return Invoice{}, err
	}

	var committed Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deltas := map[int64]int64{}
		if kind == KindCustomer {
			deltas = ResolveDeltas(nil, target)
		}

		states, err := tx.GetProductsForUpdate(ctx, lockSet(target, deltas))
		if err != nil {
			return err
		}
		if kind == KindCustomer {
			if err := checkStock(deltas, states); err != nil {
				return err
			}
		}

		priced, err := priceLines(target, nil, states)
		if err != nil {
			return err
		}
		subTotal := subTotalOf(priced)
		breakdown, err := gst.Compute(subTotal, counterparty.Jurisdiction, s.cfg.HomeJurisdiction, in.GSTRate)
		if err != nil {
			return shared.Validationf("%s", err)
		}

		invoiceNo, err := tx.NextInvoiceNo(ctx, kind, issue)
		if err != nil {
			return err
		}

		inv := Invoice{
			InvoiceNo:  invoiceNo,
			Kind:       kind,
			CustomerID: in.CustomerID,
			GSTRate:    in.GSTRate,
			SubTotal:   subTotal,
			CGST:       breakdown.CGST,
			SGST:       breakdown.SGST,
			IGST:       breakdown.IGST,
			GrandTotal: subTotal.Add(breakdown.Total()),
			Status:     StatusPending,
			IssueDate:  issue,
			DueDate:    due,
		}
		inv, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, inv.ID, priced); err != nil {
			return err
		}
		for _, id := range sortedDeltaIDs(deltas) {
			if err := tx.ApplyStockDelta(ctx, id, deltas[id]); err != nil {
				return err
			}
		}
		inv.Lines = priced
		committed = inv
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, inserted, in.IdempotencyKey)
		return Invoice{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "billing:create",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(committed.ID, 10),
		Meta: map[string]any{
			"invoice_no":  committed.InvoiceNo,
			"kind":        committed.Kind,
			"customer_id": committed.CustomerID,
			"grand_total": committed.GrandTotal.String(),
		},
	})
	return committed, nil
}

// Edit re-commits an existing bill against its target line set. Stock
// moves by the diff between the previous and target lines, retained
// products keep their captured prices, and totals are recomputed with
// the supplied rate. Number, status and dates stay untouched.
func (s *Service) Edit(ctx context.Context, id int64, in EditBillInput) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, fmt.Errorf("billing: invoice %d: %w", id, shared.ErrNotFound)
	}
	target, err := normalizeLines(in.Lines)
	if err != nil {
		return Invoice{}, err
	}
	if !gst.ValidRate(in.GSTRate) {
		return Invoice{}, shared.Validationf("billing: gst rate %s outside the accepted slab set", in.GSTRate)
	}

	inserted, err := s.checkIdempotency(ctx, in.IdempotencyKey)
	if err != nil {
		return Invoice{}, err
	}

	var committed Invoice
	var appliedDeltas map[int64]int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prev, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}

		counterparty, err := s.resolveCustomer(ctx, prev.CustomerID)
		if err != nil {
			return err
		}

		deltas := map[int64]int64{}
		if prev.Kind == KindCustomer {
			deltas = ResolveDeltas(prev.Lines, target)
		}

		states, err := tx.GetProductsForUpdate(ctx, lockSet(target, deltas))
		if err != nil {
			return err
		}
		if prev.Kind == KindCustomer {
			if err := checkStock(deltas, states); err != nil {
				return err
			}
		}

		priced, err := priceLines(target, prev.Lines, states)
		if err != nil {
			return err
		}
		subTotal := subTotalOf(priced)
		breakdown, err := gst.Compute(subTotal, counterparty.Jurisdiction, s.cfg.HomeJurisdiction, in.GSTRate)
		if err != nil {
			return shared.Validationf("%s", err)
		}

		next := prev
		next.GSTRate = in.GSTRate
		next.SubTotal = subTotal
		next.CGST = breakdown.CGST
		next.SGST = breakdown.SGST
		next.IGST = breakdown.IGST
		next.GrandTotal = subTotal.Add(breakdown.Total())

		if err := tx.UpdateInvoice(ctx, next); err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, id, priced); err != nil {
			return err
		}
		for _, pid := range sortedDeltaIDs(deltas) {
			if err := tx.ApplyStockDelta(ctx, pid, deltas[pid]); err != nil {
				return err
			}
		}
		next.Lines = priced
		committed = next
		appliedDeltas = deltas
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, inserted, in.IdempotencyKey)
		return Invoice{}, err
	}

	deltaMeta := make(map[string]any, len(appliedDeltas))
	for pid, d := range appliedDeltas {
		deltaMeta[strconv.FormatInt(pid, 10)] = d
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "billing:edit",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(id, 10),
		Meta: map[string]any{
			"invoice_no":  committed.InvoiceNo,
			"grand_total": committed.GrandTotal.String(),
			"deltas":      deltaMeta,
		},
	})
	return committed, nil
}

// SetStatus moves an invoice to a new lifecycle status. Manual moves
// by a back-office actor may bypass the transition table; automatic
// ones, like the overdue sweep, must follow it.
func (s *Service) SetStatus(ctx context.Context, id int64, to InvoiceStatus, manual bool, actorID int64) (Invoice, error) {
	if !ValidStatus(to) {
		return Invoice{}, shared.Validationf("billing: unknown status %q", to)
	}

	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == to {
			updated = inv
			return nil
		}
		if !CanTransition(inv.Status, to, manual) {
			return shared.Validationf("billing: cannot move invoice from %s to %s", inv.Status, to)
		}
		if err := tx.SetInvoiceStatus(ctx, id, to); err != nil {
			return err
		}
		inv.Status = to
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "billing:set_status",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"status": updated.Status, "manual": manual},
	})
	return updated, nil
}

// Get returns one invoice together with its reconciliation, which is
// rebuilt from payment evidence on every read.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, Reconciliation, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, Reconciliation{}, err
	}
	records, err := s.paymentsFor(ctx, id)
	if err != nil {
		return Invoice{}, Reconciliation{}, err
	}
	return inv, Reconcile(inv, records), nil
}

func (s *Service) paymentsFor(ctx context.Context, invoiceID int64) ([]payments.PaymentRecord, error) {
	if s.payments == nil {
		return nil, nil
	}
	return s.payments.ListForInvoice(ctx, invoiceID)
}

// InvoiceSummary is a list row: the header plus its reconciled balance
// and the status the UI should badge it with.
type InvoiceSummary struct {
	Invoice
	AmountPaid       decimal.Decimal
	RemainingBalance decimal.Decimal
	EffectiveStatus  InvoiceStatus
}

// List returns one reconciled page of invoices.
func (s *Service) List(ctx context.Context, f ListFilter) ([]InvoiceSummary, shared.Pagination, error) {
	invoices, total, err := s.repo.ListInvoices(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}

	byInvoice := map[int64][]payments.PaymentRecord{}
	if s.payments != nil && len(invoices) > 0 {
		ids := make([]int64, len(invoices))
		for i, inv := range invoices {
			ids[i] = inv.ID
		}
		if byInvoice, err = s.payments.ListForInvoices(ctx, ids); err != nil {
			return nil, shared.Pagination{}, err
		}
	}

	out := make([]InvoiceSummary, len(invoices))
	for i, inv := range invoices {
		rec := Reconcile(inv, byInvoice[inv.ID])
		out[i] = InvoiceSummary{
			Invoice:          inv,
			AmountPaid:       rec.AmountPaid,
			RemainingBalance: rec.RemainingBalance,
			EffectiveStatus:  EffectiveStatus(inv.Status, rec.DerivedStatus),
		}
	}
	return out, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// PaymentsForInvoice lists the payment evidence behind one invoice.
func (s *Service) PaymentsForInvoice(ctx context.Context, id int64) ([]payments.PaymentRecord, error) {
	if _, err := s.repo.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	return s.paymentsFor(ctx, id)
}

// GetRef exposes the minimal invoice view the payments service needs
// to validate incoming records.
func (s *Service) GetRef(ctx context.Context, id int64) (payments.InvoiceRef, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return payments.InvoiceRef{}, err
	}
	return payments.InvoiceRef{
		ID:         inv.ID,
		InvoiceNo:  inv.InvoiceNo,
		Kind:       string(inv.Kind),
		CustomerID: inv.CustomerID,
		GrandTotal: inv.GrandTotal,
	}, nil
}

// OverdueInvoice pairs a past-due invoice with its reconciliation.
type OverdueInvoice struct {
	Invoice        Invoice
	Reconciliation Reconciliation
}

// OverdueCandidates returns live invoices whose due date lies before
// asOf and whose balance is still open.
func (s *Service) OverdueCandidates(ctx context.Context, asOf time.Time) ([]OverdueInvoice, error) {
	due, err := s.repo.ListDueBefore(ctx, truncateToDay(asOf))
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}

	byInvoice := map[int64][]payments.PaymentRecord{}
	if s.payments != nil {
		ids := make([]int64, len(due))
		for i, inv := range due {
			ids[i] = inv.ID
		}
		if byInvoice, err = s.payments.ListForInvoices(ctx, ids); err != nil {
			return nil, err
		}
	}

	var out []OverdueInvoice
	for _, inv := range due {
		rec := Reconcile(inv, byInvoice[inv.ID])
		if rec.RemainingBalance.IsPositive() {
			out = append(out, OverdueInvoice{Invoice: inv, Reconciliation: rec})
		}
	}
	return out, nil
}

// MarkOverdue flips one invoice to Overdue through the transition
// table. It re-checks the balance first so money that arrived after
// the candidate scan cancels the flip.
func (s *Service) MarkOverdue(ctx context.Context, id int64) error {
	records, err := s.paymentsFor(ctx, id)
	if err != nil {
		return err
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if rec := Reconcile(inv, records); !rec.RemainingBalance.IsPositive() {
		return nil
	}
	if !CanTransition(inv.Status, StatusOverdue, false) {
		return nil
	}
	_, err = s.SetStatus(ctx, id, StatusOverdue, false, 0)
	return err
}
