package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/beopar/beopar/internal/customers"
	"github.com/beopar/beopar/internal/payments"
	"github.com/beopar/beopar/internal/shared"
)

type memoryRepo struct {
	invoices      map[int64]Invoice
	products      map[int64]ProductState
	counters      map[string]int64
	nextInvoiceID int64

	failReplaceLines bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices:      map[int64]Invoice{},
		products:      map[int64]ProductState{},
		counters:      map[string]int64{},
		nextInvoiceID: 1,
	}
}

func cloneInvoice(inv Invoice) Invoice {
	lines := make([]InvoiceLine, len(inv.Lines))
	copy(lines, inv.Lines)
	inv.Lines = lines
	return inv
}

type repoSnapshot struct {
	invoices      map[int64]Invoice
	products      map[int64]ProductState
	counters      map[string]int64
	nextInvoiceID int64
}

func (m *memoryRepo) snapshot() repoSnapshot {
	s := repoSnapshot{
		invoices:      make(map[int64]Invoice, len(m.invoices)),
		products:      make(map[int64]ProductState, len(m.products)),
		counters:      make(map[string]int64, len(m.counters)),
		nextInvoiceID: m.nextInvoiceID,
	}
	for id, inv := range m.invoices {
		s.invoices[id] = cloneInvoice(inv)
	}
	for id, st := range m.products {
		s.products[id] = st
	}
	for k, v := range m.counters {
		s.counters[k] = v
	}
	return s
}

func (m *memoryRepo) restore(s repoSnapshot) {
	m.invoices = s.invoices
	m.products = s.products
	m.counters = s.counters
	m.nextInvoiceID = s.nextInvoiceID
}

// WithTx mimics the all-or-nothing commit: mutations run against live
// state and roll back wholesale on error.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	backup := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(backup)
		return err
	}
	return nil
}

func (m *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("billing: invoice %d: %w", id, shared.ErrNotFound)
	}
	return cloneInvoice(inv), nil
}

func (m *memoryRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return m.GetInvoice(ctx, id)
}

func (m *memoryRepo) GetProductsForUpdate(_ context.Context, productIDs []int64) (map[int64]ProductState, error) {
	states := map[int64]ProductState{}
	for _, id := range productIDs {
		if st, ok := m.products[id]; ok {
			states[id] = st
		}
	}
	return states, nil
}

func (m *memoryRepo) NextInvoiceNo(_ context.Context, kind InvoiceKind, issued time.Time) (string, error) {
	key := fmt.Sprintf("%s-%d", kind, issued.Year())
	m.counters[key]++
	prefix := "INV"
	if kind == KindSupplier {
		prefix = "BILL"
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, issued.Year(), m.counters[key]), nil
}

func (m *memoryRepo) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	inv.ID = m.nextInvoiceID
	m.nextInvoiceID++
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	m.invoices[inv.ID] = cloneInvoice(inv)
	return inv, nil
}

func (m *memoryRepo) UpdateInvoice(_ context.Context, inv Invoice) error {
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return fmt.Errorf("billing: invoice %d: %w", inv.ID, shared.ErrNotFound)
	}
	stored.GSTRate = inv.GSTRate
	stored.SubTotal = inv.SubTotal
	stored.CGST = inv.CGST
	stored.SGST = inv.SGST
	stored.IGST = inv.IGST
	stored.GrandTotal = inv.GrandTotal
	stored.UpdatedAt = time.Now()
	m.invoices[inv.ID] = stored
	return nil
}

func (m *memoryRepo) ReplaceLines(_ context.Context, invoiceID int64, lines []InvoiceLine) error {
	if m.failReplaceLines {
		return errors.New("billing: simulated line write failure")
	}
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("billing: invoice %d: %w", invoiceID, shared.ErrNotFound)
	}
	inv.Lines = make([]InvoiceLine, len(lines))
	copy(inv.Lines, lines)
	m.invoices[invoiceID] = inv
	return nil
}

func (m *memoryRepo) ApplyStockDelta(_ context.Context, productID, delta int64) error {
	st, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("billing: product %d: %w", productID, shared.ErrNotFound)
	}
	if st.Stock+delta < 0 {
		return errors.New("billing: stock check constraint violated")
	}
	st.Stock += delta
	m.products[productID] = st
	return nil
}

func (m *memoryRepo) SetInvoiceStatus(_ context.Context, id int64, status InvoiceStatus) error {
	inv, ok := m.invoices[id]
	if !ok {
		return fmt.Errorf("billing: invoice %d: %w", id, shared.ErrNotFound)
	}
	inv.Status = status
	m.invoices[id] = inv
	return nil
}

func (m *memoryRepo) ListInvoices(_ context.Context, f ListFilter) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if f.Kind != "" && inv.Kind != f.Kind {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.CustomerID > 0 && inv.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListDueBefore(_ context.Context, day time.Time) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if (inv.Status == StatusPending || inv.Status == StatusPartiallyPaid) && inv.DueDate.Before(day) {
			out = append(out, cloneInvoice(inv))
		}
	}
	return out, nil
}

func (m *memoryRepo) ListOpenInvoices(_ context.Context) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.Status == StatusPaid || inv.Status == StatusCancelled {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	return out, nil
}

type fakeCustomers struct {
	byID map[int64]customers.Customer
}

func (f *fakeCustomers) Get(_ context.Context, id int64) (customers.Customer, error) {
	c, ok := f.byID[id]
	if !ok {
		return customers.Customer{}, shared.ErrNotFound
	}
	return c, nil
}

type fakePayments struct {
	byInvoice map[int64][]payments.PaymentRecord
}

func (f *fakePayments) ListForInvoice(_ context.Context, invoiceID int64) ([]payments.PaymentRecord, error) {
	return f.byInvoice[invoiceID], nil
}

func (f *fakePayments) ListForInvoices(_ context.Context, invoiceIDs []int64) (map[int64][]payments.PaymentRecord, error) {
	out := map[int64][]payments.PaymentRecord{}
	for _, id := range invoiceIDs {
		if recs, ok := f.byInvoice[id]; ok {
			out[id] = recs
		}
	}
	return out, nil
}

func (f *fakePayments) ListAll(_ context.Context) ([]payments.PaymentRecord, error) {
	var out []payments.PaymentRecord
	for _, recs := range f.byInvoice {
		out = append(out, recs...)
	}
	return out, nil
}

var testClock = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryRepo, *fakePayments) {
	t.Helper()
	repo := newMemoryRepo()
	repo.products[1] = ProductState{Stock: 50, UnitPrice: dec("500")}
	repo.products[2] = ProductState{Stock: 10, UnitPrice: dec("120")}
	repo.products[3] = ProductState{Stock: 45, UnitPrice: dec("80")}

	cust := &fakeCustomers{byID: map[int64]customers.Customer{
		1: {ID: 1, Name: "Karnataka Retail", TaxID: "29ABCDE1234F1Z5", Jurisdiction: "29", Email: "billing@karnataka.example"},
		2: {ID: 2, Name: "Mumbai Wholesale", TaxID: "27ZYXWV9876K1Z2", Jurisdiction: "27"},
		3: {ID: 3, Name: "Walk-in"},
	}}
	pays := &fakePayments{byInvoice: map[int64][]payments.PaymentRecord{}}

	svc := NewService(repo, cust, pays, nil, nil, nil, Config{HomeJurisdiction: "29", DueDays: 30})
	svc.now = func() time.Time { return testClock }
	return svc, repo, pays
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func TestCreateSameJurisdictionBill(t *testing.T) {
	svc, repo, _ := newTestService(t)

	inv, err := svc.Create(context.Background(), CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	require.Equal(t, "INV-2026-000001", inv.InvoiceNo)
	require.Equal(t, KindCustomer, inv.Kind)
	require.Equal(t, StatusPending, inv.Status)
	requireDec(t, "1000", inv.SubTotal)
	requireDec(t, "90", inv.CGST)
	requireDec(t, "90", inv.SGST)
	requireDec(t, "0", inv.IGST)
	requireDec(t, "1180", inv.GrandTotal)
	require.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	require.Equal(t, time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC), inv.DueDate)

	require.Len(t, inv.Lines, 1)
	requireDec(t, "500", inv.Lines[0].UnitPrice)
	require.EqualValues(t, 48, repo.products[1].Stock)
}

func TestCreateCrossJurisdictionBill(t *testing.T) {
	svc, _, _ := newTestService(t)

	inv, err := svc.Create(context.Background(), CreateBillInput{
		CustomerID: 2,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	requireDec(t, "0", inv.CGST)
	requireDec(t, "0", inv.SGST)
	requireDec(t, "180", inv.IGST)
	requireDec(t, "1180", inv.GrandTotal)
}

func TestCreateUnregisteredCustomerPaysNoTax(t *testing.T) {
	svc, _, _ := newTestService(t)

	inv, err := svc.Create(context.Background(), CreateBillInput{
		CustomerID: 3,
		Lines:      []LineInput{{ProductID: 2, Quantity: 5}},
		GSTRate:    dec("0.28"),
	})
	require.NoError(t, err)

	requireDec(t, "600", inv.SubTotal)
	requireDec(t, "0", inv.TaxTotal())
	requireDec(t, "600", inv.GrandTotal)
}

func TestCreateInsufficientStockRejectsWholeCommit(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 2, Quantity: 12}},
		GSTRate:    dec("0.18"),
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, []StockShortfall{{ProductID: 2, Requested: 12, Available: 10}}, stockErr.Shortfalls)

	require.EqualValues(t, 10, repo.products[2].Stock)
	require.Empty(t, repo.invoices)
}

func TestCreateReportsEveryShortfall(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateBillInput{
		CustomerID: 1,
		Lines: []LineInput{
			{ProductID: 1, Quantity: 60},
			{ProductID: 2, Quantity: 12},
		},
		GSTRate: dec("0.18"),
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, []StockShortfall{
		{ProductID: 1, Requested: 60, Available: 50},
		{ProductID: 2, Requested: 12, Available: 10},
	}, stockErr.Shortfalls)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateBillInput{CustomerID: 1, GSTRate: dec("0.18")})
	require.True(t, shared.IsValidation(err), "empty cart: %v", err)

	_, err = svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 0}},
		GSTRate:    dec("0.18"),
	})
	require.True(t, shared.IsValidation(err), "cart empty after drops: %v", err)

	_, err = svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: -1}},
		GSTRate:    dec("0.18"),
	})
	require.True(t, shared.IsValidation(err), "negative quantity: %v", err)

	_, err = svc.Create(ctx, CreateBillInput{
		Lines:   []LineInput{{ProductID: 1, Quantity: 1}},
		GSTRate: dec("0.18"),
	})
	require.True(t, shared.IsValidation(err), "missing customer: %v", err)

	_, err = svc.Create(ctx, CreateBillInput{
		CustomerID: 99,
		Lines:      []LineInput{{ProductID: 1, Quantity: 1}},
		GSTRate:    dec("0.18"),
	})
	require.True(t, shared.IsValidation(err), "unknown customer: %v", err)

	_, err = svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 42, Quantity: 1}},
		GSTRate:    dec("0.18"),
	})
	require.True(t, shared.IsValidation(err), "unknown product: %v", err)

	_, err = svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 1}},
		GSTRate:    dec("0.19"),
	})
	require.True(t, shared.IsValidation(err), "rate outside slabs: %v", err)
}

func TestCreateSupplierBillSkipsStock(t *testing.T) {
	svc, repo, _ := newTestService(t)

	inv, err := svc.Create(context.Background(), CreateBillInput{
		Kind:       KindSupplier,
		CustomerID: 2,
		Lines:      []LineInput{{ProductID: 2, Quantity: 100}},
		GSTRate:    dec("0.12"),
	})
	require.NoError(t, err)

	require.Equal(t, "BILL-2026-000001", inv.InvoiceNo)
	// Stock is untouched even though the quantity exceeds it.
	require.EqualValues(t, 10, repo.products[2].Stock)
}

func TestEditGrowingQuantityConsumesOnlyTheDelta(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 3, Quantity: 5}},
		GSTRate:    dec("0.05"),
	})
	require.NoError(t, err)
	require.EqualValues(t, 40, repo.products[3].Stock)

	// A catalog price change after billing must not reprice the line.
	repo.products[3] = ProductState{Stock: repo.products[3].Stock, UnitPrice: dec("999")}

	edited, err := svc.Edit(ctx, inv.ID, EditBillInput{
		Lines:   []LineInput{{ProductID: 3, Quantity: 8}},
		GSTRate: dec("0.05"),
	})
	require.NoError(t, err)

	require.EqualValues(t, 37, repo.products[3].Stock)
	require.Len(t, edited.Lines, 1)
	requireDec(t, "80", edited.Lines[0].UnitPrice)
	requireDec(t, "640", edited.SubTotal)
}

func TestEditShrinkAndRemoveRestoresStock(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines: []LineInput{
			{ProductID: 1, Quantity: 10},
			{ProductID: 3, Quantity: 5},
		},
		GSTRate: dec("0.18"),
	})
	require.NoError(t, err)
	require.EqualValues(t, 40, repo.products[1].Stock)
	require.EqualValues(t, 40, repo.products[3].Stock)

	// Shrink product 1 to 3 and remove product 3 via a zero quantity.
	edited, err := svc.Edit(ctx, inv.ID, EditBillInput{
		Lines: []LineInput{
			{ProductID: 1, Quantity: 3},
			{ProductID: 3, Quantity: 0},
		},
		GSTRate: dec("0.18"),
	})
	require.NoError(t, err)

	require.EqualValues(t, 47, repo.products[1].Stock)
	require.EqualValues(t, 45, repo.products[3].Stock)
	require.Len(t, edited.Lines, 1)
	require.EqualValues(t, 1, edited.Lines[0].ProductID)
	requireDec(t, "1500", edited.SubTotal)
}

func TestEditAddsNewProductAtCurrentPrice(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, inv.ID, EditBillInput{
		Lines: []LineInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 4},
		},
		GSTRate: dec("0.18"),
	})
	require.NoError(t, err)

	require.EqualValues(t, 48, repo.products[1].Stock)
	require.EqualValues(t, 6, repo.products[2].Stock)
	requireDec(t, "1480", edited.SubTotal)
}

func TestEditPreservesNumberStatusAndDates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, inv.ID, StatusPartiallyPaid, true, 7)
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, inv.ID, EditBillInput{
		Lines:   []LineInput{{ProductID: 1, Quantity: 4}},
		GSTRate: dec("0.12"),
	})
	require.NoError(t, err)

	require.Equal(t, inv.InvoiceNo, edited.InvoiceNo)
	require.Equal(t, StatusPartiallyPaid, edited.Status)
	require.Equal(t, inv.IssueDate, edited.IssueDate)
	require.Equal(t, inv.DueDate, edited.DueDate)
	requireDec(t, "2000", edited.SubTotal)
	requireDec(t, "120", edited.CGST)
}

func TestEditInsufficientStockLeavesStateUntouched(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 2, Quantity: 4}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)
	require.EqualValues(t, 6, repo.products[2].Stock)

	_, err = svc.Edit(ctx, inv.ID, EditBillInput{
		Lines:   []LineInput{{ProductID: 2, Quantity: 20}},
		GSTRate: dec("0.18"),
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, []StockShortfall{{ProductID: 2, Requested: 16, Available: 6}}, stockErr.Shortfalls)

	require.EqualValues(t, 6, repo.products[2].Stock)
	current, err := svc.repo.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, current.Lines, 1)
	require.EqualValues(t, 4, current.Lines[0].Quantity)
}

func TestCreateRollsBackWhenAnyWriteFails(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.failReplaceLines = true

	_, err := svc.Create(context.Background(), CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.Error(t, err)

	require.EqualValues(t, 50, repo.products[1].Stock)
	require.Empty(t, repo.invoices)
}

func TestSetStatusAutomaticFollowsTable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 1}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, inv.ID, StatusPaid, false, 0)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.Status)

	// Paid is terminal for automatic transitions.
	_, err = svc.SetStatus(ctx, inv.ID, StatusOverdue, false, 0)
	require.True(t, shared.IsValidation(err), "expected blocked transition, got %v", err)

	// A manual override may still reverse it.
	updated, err = svc.SetStatus(ctx, inv.ID, StatusPending, true, 7)
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.Status)
}

func TestGetReturnsFreshReconciliation(t *testing.T) {
	svc, _, pays := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	pays.byInvoice[inv.ID] = []payments.PaymentRecord{
		{Type: payments.TypeCustomer, Status: payments.StatusCompleted, AmountPaid: dec("500")},
	}

	_, rec, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	requireDec(t, "500", rec.AmountPaid)
	requireDec(t, "680", rec.RemainingBalance)
	require.Equal(t, StatusPartiallyPaid, rec.DerivedStatus)
}

func TestMarkOverdueSkipsSettledInvoices(t *testing.T) {
	svc, repo, pays := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	pays.byInvoice[inv.ID] = []payments.PaymentRecord{
		{Type: payments.TypeCustomer, Status: payments.StatusCompleted, AmountPaid: dec("1180")},
	}

	require.NoError(t, svc.MarkOverdue(ctx, inv.ID))
	require.Equal(t, StatusPending, repo.invoices[inv.ID].Status)

	// An open balance flips the invoice.
	pays.byInvoice[inv.ID] = nil
	require.NoError(t, svc.MarkOverdue(ctx, inv.ID))
	require.Equal(t, StatusOverdue, repo.invoices[inv.ID].Status)
}

func TestOverdueCandidatesFilterSettledBills(t *testing.T) {
	svc, _, pays := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 1}},
		GSTRate:    dec("0.18"),
		IssueDate:  time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	second, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 3, Quantity: 1}},
		GSTRate:    dec("0.18"),
		IssueDate:  time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// Settle the second one in full.
	pays.byInvoice[second.ID] = []payments.PaymentRecord{
		{Type: payments.TypeCustomer, Status: payments.StatusCompleted, AmountPaid: second.GrandTotal},
	}

	candidates, err := svc.OverdueCandidates(ctx, testClock)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, first.ID, candidates[0].Invoice.ID)
	requireDec(t, first.GrandTotal.String(), candidates[0].Reconciliation.RemainingBalance)
}

func TestListBadgesEffectiveStatus(t *testing.T) {
	svc, _, pays := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	pays.byInvoice[inv.ID] = []payments.PaymentRecord{
		{Type: payments.TypeCustomer, Status: payments.StatusReceived, AmountPaid: dec("100")},
	}

	summaries, _, err := svc.List(ctx, ListFilter{Page: 1, PerPage: 20})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, StatusPending, summaries[0].Invoice.Status, "stored status untouched")
	require.Equal(t, StatusPartiallyPaid, summaries[0].EffectiveStatus)
	requireDec(t, "1080", summaries[0].RemainingBalance)
}

func TestDashboardMetricsFoldsLedger(t *testing.T) {
	svc, _, pays := newTestService(t)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateBillInput{
		CustomerID: 1,
		Lines:      []LineInput{{ProductID: 1, Quantity: 2}},
		GSTRate:    dec("0.18"),
	})
	require.NoError(t, err)

	today := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	id := inv.ID
	pays.byInvoice[id] = []payments.PaymentRecord{
		{Type: payments.TypeCustomer, RelatedInvoiceID: &id, Status: payments.StatusCompleted, AmountPaid: dec("500"), PaidDate: today},
		{Type: payments.TypeCustomer, RelatedInvoiceID: &id, Status: payments.StatusPending, AmountPaid: dec("100"), PaidDate: today},
	}
	pays.byInvoice[0] = []payments.PaymentRecord{
		{Type: payments.TypeSupplier, Status: payments.StatusSent, AmountPaid: dec("250"), PaidDate: yesterday},
	}

	m, err := svc.DashboardMetrics(ctx)
	require.NoError(t, err)

	requireDec(t, "500", m.AllTime.Received)
	requireDec(t, "250", m.AllTime.Sent)
	requireDec(t, "100", m.AllTime.Pending)
	requireDec(t, "500", m.Today.Received)
	requireDec(t, "0", m.Today.Sent)
	requireDec(t, "100", m.Today.Pending)
	requireDec(t, "680", m.OutstandingReceivable)
	require.Equal(t, 1, m.OpenInvoices)
}
