package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/beopar/beopar/internal/platform/cache"
	"github.com/beopar/beopar/internal/shared"
)

type memoryRepo struct {
	records    map[int64]PaymentRecord
	nextID     int64
	failCreate bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[int64]PaymentRecord{}}
}

func (m *memoryRepo) Create(_ context.Context, p PaymentRecord) (PaymentRecord, error) {
	if m.failCreate {
		return PaymentRecord{}, errors.New("payments: simulated insert failure")
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	m.records[p.ID] = p
	return p, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (PaymentRecord, error) {
	p, ok := m.records[id]
	if !ok {
		return PaymentRecord{}, fmt.Errorf("payments: payment %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (m *memoryRepo) List(_ context.Context, f ListFilter) ([]PaymentRecord, int, error) {
	var out []PaymentRecord
	for _, p := range m.records {
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.InvoiceID > 0 && (p.RelatedInvoiceID == nil || *p.RelatedInvoiceID != f.InvoiceID) {
			continue
		}
		if !f.From.IsZero() && p.PaidDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && p.PaidDate.After(f.To) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListForInvoice(_ context.Context, invoiceID int64) ([]PaymentRecord, error) {
	var out []PaymentRecord
	for _, p := range m.records {
		if p.RelatedInvoiceID != nil && *p.RelatedInvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeInvoices struct {
	byID map[int64]InvoiceRef
}

func (f *fakeInvoices) GetRef(_ context.Context, id int64) (InvoiceRef, error) {
	ref, ok := f.byID[id]
	if !ok {
		return InvoiceRef{}, shared.ErrNotFound
	}
	return ref, nil
}

type fakeNotifier struct {
	notified []int64
	err      error
}

func (f *fakeNotifier) PaymentRecorded(_ context.Context, id int64) error {
	f.notified = append(f.notified, id)
	return f.err
}

var testClock = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, c *cache.Cache) (*Service, *memoryRepo, *fakeNotifier) {
	t.Helper()
	repo := newMemoryRepo()
	invoices := &fakeInvoices{byID: map[int64]InvoiceRef{
		10: {ID: 10, InvoiceNo: "INV-2026-000010", Kind: "customer", CustomerID: 1, GrandTotal: decimal.RequireFromString("1180")},
		20: {ID: 20, InvoiceNo: "BILL-2026-000003", Kind: "supplier", CustomerID: 2, GrandTotal: decimal.RequireFromString("900")},
	}}
	notifier := &fakeNotifier{}
	svc := NewService(repo, invoices, notifier, c, nil, nil)
	svc.now = func() time.Time { return testClock }
	return svc, repo, notifier
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateAppliesDefaults(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	created, err := svc.Create(context.Background(), CreatePaymentInput{
		Type:       TypeCustomer,
		AmountPaid: dec("250"),
	})
	require.NoError(t, err)

	require.Equal(t, StatusCompleted, created.Status)
	require.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), created.PaidDate)
	require.NotEmpty(t, created.Reference, "a reference is generated when none is given")
	require.Nil(t, created.RelatedInvoiceID)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreatePaymentInput{Type: "cheque", AmountPaid: dec("10")})
	require.True(t, shared.IsValidation(err), "unknown type: %v", err)

	_, err = svc.Create(ctx, CreatePaymentInput{Type: TypeCustomer, AmountPaid: dec("0")})
	require.True(t, shared.IsValidation(err), "zero amount: %v", err)

	_, err = svc.Create(ctx, CreatePaymentInput{Type: TypeCustomer, AmountPaid: dec("-5")})
	require.True(t, shared.IsValidation(err), "negative amount: %v", err)

	_, err = svc.Create(ctx, CreatePaymentInput{Type: TypeCustomer, AmountPaid: dec("10"), Status: StatusSent})
	require.True(t, shared.IsValidation(err), "customer payment marked Sent: %v", err)

	_, err = svc.Create(ctx, CreatePaymentInput{Type: TypeSupplier, AmountPaid: dec("10"), Status: StatusReceived})
	require.True(t, shared.IsValidation(err), "supplier payment marked Received: %v", err)

	bad := dec("-1")
	_, err = svc.Create(ctx, CreatePaymentInput{Type: TypeCustomer, AmountPaid: dec("10"), OriginalAmount: &bad})
	require.True(t, shared.IsValidation(err), "non-positive original amount: %v", err)
}

func TestCreateChecksInvoiceReference(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	missing := int64(404)
	_, err := svc.Create(ctx, CreatePaymentInput{
		Type:             TypeCustomer,
		AmountPaid:       dec("10"),
		RelatedInvoiceID: &missing,
	})
	require.True(t, shared.IsValidation(err), "unknown invoice: %v", err)

	supplierBill := int64(20)
	_, err = svc.Create(ctx, CreatePaymentInput{
		Type:             TypeCustomer,
		AmountPaid:       dec("10"),
		RelatedInvoiceID: &supplierBill,
	})
	require.True(t, shared.IsValidation(err), "kind mismatch: %v", err)

	customerInvoice := int64(10)
	created, err := svc.Create(ctx, CreatePaymentInput{
		Type:             TypeCustomer,
		AmountPaid:       dec("10"),
		RelatedInvoiceID: &customerInvoice,
	})
	require.NoError(t, err)
	require.Equal(t, customerInvoice, *created.RelatedInvoiceID)
}

func TestCreateBumpsCacheAndNotifies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewCache(client, time.Minute)

	svc, _, notifier := newTestService(t, c)
	ctx := context.Background()

	_, err := c.Version(ctx)
	require.NoError(t, err)

	created, err := svc.Create(ctx, CreatePaymentInput{
		Type:       TypeCustomer,
		AmountPaid: dec("99"),
	})
	require.NoError(t, err)

	ver, err := c.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, ver, "payment write must orphan cached dashboards")

	require.Equal(t, []int64{created.ID}, notifier.notified)
}

func TestCreateSurvivesNotifierFailure(t *testing.T) {
	svc, repo, notifier := newTestService(t, nil)
	notifier.err = errors.New("queue down")

	created, err := svc.Create(context.Background(), CreatePaymentInput{
		Type:       TypeSupplier,
		AmountPaid: dec("45"),
		Status:     StatusSent,
	})
	require.NoError(t, err)
	require.Contains(t, repo.records, created.ID)
	require.Equal(t, []int64{created.ID}, notifier.notified)
}

func TestCreatePropagatesRepoFailure(t *testing.T) {
	svc, repo, notifier := newTestService(t, nil)
	repo.failCreate = true

	_, err := svc.Create(context.Background(), CreatePaymentInput{
		Type:       TypeCustomer,
		AmountPaid: dec("45"),
	})
	require.Error(t, err)
	require.Empty(t, notifier.notified, "failed writes must not notify")
}

func TestListWrapsPagination(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, PaymentRecord{Type: TypeCustomer, Status: StatusCompleted, AmountPaid: dec("10")})
		require.NoError(t, err)
	}

	records, pagination, err := svc.List(ctx, ListFilter{Type: TypeCustomer, Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, records, 3, "the fake repo does not page; the service only wraps")
	require.Equal(t, 3, pagination.Total)
	require.Equal(t, 2, pagination.TotalPages)
}
