package payments

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beopar/beopar/internal/platform/cache"
	"github.com/beopar/beopar/internal/shared"
)

// RepositoryPort abstracts payment persistence for the service.
type RepositoryPort interface {
	Create(ctx context.Context, p PaymentRecord) (PaymentRecord, error)
	Get(ctx context.Context, id int64) (PaymentRecord, error)
	List(ctx context.Context, f ListFilter) ([]PaymentRecord, int, error)
	ListForInvoice(ctx context.Context, invoiceID int64) ([]PaymentRecord, error)
}

// InvoiceRef is the slice of invoice state needed to validate an
// incoming payment.
type InvoiceRef struct {
	ID         int64
	InvoiceNo  string
	Kind       string
	CustomerID int64
	GrandTotal decimal.Decimal
}

// InvoiceReader resolves invoices for payment validation.
type InvoiceReader interface {
	GetRef(ctx context.Context, id int64) (InvoiceRef, error)
}

// Notifier fans a recorded payment out to interested parties, e.g. the
// worker queue that mails receipts. Failures never undo the payment.
type Notifier interface {
	PaymentRecorded(ctx context.Context, paymentID int64) error
}

// CreatePaymentInput carries one new payment record.
type CreatePaymentInput struct {
	Type             Type
	RelatedInvoiceID *int64
	AmountPaid       decimal.Decimal
	OriginalAmount   *decimal.Decimal
	Status           Status
	Method           string
	Reference        string
	PaidDate         time.Time // zero value means today
	IdempotencyKey   string
	ActorID          int64
}

// Service owns the append-only payment ledger.
type Service struct {
	repo        RepositoryPort
	invoices    InvoiceReader
	notifier    Notifier
	cache       *cache.Cache
	audit       *shared.AuditLogger
	idempotency *shared.IdempotencyStore
	now         func() time.Time
}

// NewService wires the payments service.
func NewService(repo RepositoryPort, invoices InvoiceReader, notifier Notifier, c *cache.Cache, audit *shared.AuditLogger, idempotency *shared.IdempotencyStore) *Service {
	return &Service{
		repo:        repo,
		invoices:    invoices,
		notifier:    notifier,
		cache:       c,
		audit:       audit,
		idempotency: idempotency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) validate(in CreatePaymentInput) (PaymentRecord, error) {
	if !ValidType(in.Type) {
		return PaymentRecord{}, shared.Validationf("payments: unknown type %q", in.Type)
	}
	status := in.Status
	if status == "" {
		status = StatusCompleted
	}
	if !ValidStatus(status) {
		return PaymentRecord{}, shared.Validationf("payments: unknown status %q", in.Status)
	}
	if in.Type == TypeCustomer && status == StatusSent {
		return PaymentRecord{}, shared.Validationf("payments: customer payments cannot be Sent")
	}
	if in.Type == TypeSupplier && status == StatusReceived {
		return PaymentRecord{}, shared.Validationf("payments: supplier payments cannot be Received")
	}
	if !in.AmountPaid.IsPositive() {
		return PaymentRecord{}, shared.Validationf("payments: amount must be positive")
	}
	if in.OriginalAmount != nil && !in.OriginalAmount.IsPositive() {
		return PaymentRecord{}, shared.Validationf("payments: original amount must be positive")
	}

	paidDate := in.PaidDate
	if paidDate.IsZero() {
		now := s.now()
		paidDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	reference := strings.TrimSpace(in.Reference)
	if reference == "" {
		reference = uuid.NewString()
	}

	return PaymentRecord{
		Type:             in.Type,
		RelatedInvoiceID: in.RelatedInvoiceID,
		AmountPaid:       in.AmountPaid,
		OriginalAmount:   in.OriginalAmount,
		Status:           status,
		Method:           strings.TrimSpace(in.Method),
		Reference:        reference,
		PaidDate:         paidDate,
	}, nil
}

// Create validates and appends one payment record. When the record
// references an invoice, the invoice must exist and its kind must
// match the payment direction. A successful write bumps the cache
// version and pings the notifier.
func (s *Service) Create(ctx context.Context, in CreatePaymentInput) (PaymentRecord, error) {
	record, err := s.validate(in)
	if err != nil {
		return PaymentRecord{}, err
	}

	if record.RelatedInvoiceID != nil {
		ref, err := s.invoices.GetRef(ctx, *record.RelatedInvoiceID)
		if errors.Is(err, shared.ErrNotFound) {
			return PaymentRecord{}, shared.Validationf("payments: unknown invoice %d", *record.RelatedInvoiceID)
		}
		if err != nil {
			return PaymentRecord{}, err
		}
		if ref.Kind != string(record.Type) {
			return PaymentRecord{}, shared.Validationf("payments: %s payment cannot settle a %s invoice", record.Type, ref.Kind)
		}
	}

	inserted := false
	if in.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, "payments"); err != nil {
			return PaymentRecord{}, err
		}
		inserted = true
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, in.IdempotencyKey)
		}
		return PaymentRecord{}, err
	}

	// The dashboard fold is cached under the global version; every
	// payment write invalidates it.
	_ = s.cache.Bump(ctx)

	if s.notifier != nil {
		_ = s.notifier.PaymentRecorded(ctx, created.ID)
	}

	meta := map[string]any{
		"type":   created.Type,
		"status": created.Status,
		"amount": created.AmountPaid.String(),
	}
	if created.RelatedInvoiceID != nil {
		meta["invoice_id"] = *created.RelatedInvoiceID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "payments:create",
		Entity:   "payment",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     meta,
	})
	return created, nil
}

// Get returns one payment record.
func (s *Service) Get(ctx context.Context, id int64) (PaymentRecord, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page of payments plus pagination metadata.
func (s *Service) List(ctx context.Context, f ListFilter) ([]PaymentRecord, shared.Pagination, error) {
	records, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// ListForInvoice returns the payments recorded against one invoice.
func (s *Service) ListForInvoice(ctx context.Context, invoiceID int64) ([]PaymentRecord, error) {
	return s.repo.ListForInvoice(ctx, invoiceID)
}
