package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/beopar/beopar/internal/shared"
)

// Repository persists payment records in PostgreSQL. The table is
// append-only; there is no update or delete.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListFilter narrows payment listings. Zero values mean "any".
type ListFilter struct {
	Type      Type
	Status    Status
	InvoiceID int64
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

const paymentColumns = `id, type, related_invoice_id, amount_paid, original_amount, status,
	COALESCE(method, ''), COALESCE(reference, ''), paid_date, created_at`

func scanPayment(row pgx.Row) (PaymentRecord, error) {
	var p PaymentRecord
	var original decimal.NullDecimal
	err := row.Scan(&p.ID, &p.Type, &p.RelatedInvoiceID, &p.AmountPaid, &original, &p.Status,
		&p.Method, &p.Reference, &p.PaidDate, &p.CreatedAt)
	if err != nil {
		return PaymentRecord{}, err
	}
	if original.Valid {
		v := original.Decimal
		p.OriginalAmount = &v
	}
	return p, nil
}

// Create appends one payment record and returns it with the generated
// id and timestamp filled in.
func (r *Repository) Create(ctx context.Context, p PaymentRecord) (PaymentRecord, error) {
	var original decimal.NullDecimal
	if p.OriginalAmount != nil {
		original = decimal.NewNullDecimal(*p.OriginalAmount)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO payments (type, related_invoice_id, amount_paid, original_amount, status, method, reference, paid_date)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		RETURNING id, created_at`,
		p.Type, p.RelatedInvoiceID, p.AmountPaid, original, p.Status, p.Method, p.Reference, p.PaidDate,
	)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return PaymentRecord{}, shared.Validationf("payments: related invoice does not exist")
		}
		return PaymentRecord{}, fmt.Errorf("payments: create: %w", shared.MapStoreError(err))
	}
	return p, nil
}

// Get fetches one payment record by id.
func (r *Repository) Get(ctx context.Context, id int64) (PaymentRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentRecord{}, fmt.Errorf("payments: %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("payments: get %d: %w", id, shared.MapStoreError(err))
	}
	return p, nil
}

func (r *Repository) collect(rows pgx.Rows) ([]PaymentRecord, error) {
	defer rows.Close()
	var out []PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payments: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List returns one page of payments, newest first, plus the total
// count for pagination.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]PaymentRecord, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	argPos := 1
	add := func(cond string, val any) {
		where += fmt.Sprintf(" AND "+cond, argPos)
		args = append(args, val)
		argPos++
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.InvoiceID > 0 {
		add("related_invoice_id = $%d", f.InvoiceID)
	}
	if !f.From.IsZero() {
		add("paid_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("paid_date <= $%d", f.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("payments: count: %w", shared.MapStoreError(err))
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	query := `SELECT ` + paymentColumns + ` FROM payments` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("payments: list: %w", shared.MapStoreError(err))
	}
	out, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListForInvoice returns every payment recorded against one invoice,
// oldest first.
func (r *Repository) ListForInvoice(ctx context.Context, invoiceID int64) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE related_invoice_id = $1
		ORDER BY paid_date, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("payments: list for invoice %d: %w", invoiceID, shared.MapStoreError(err))
	}
	return r.collect(rows)
}

// ListForInvoices groups the payments of many invoices in one round
// trip, for reconciled list pages.
func (r *Repository) ListForInvoices(ctx context.Context, invoiceIDs []int64) (map[int64][]PaymentRecord, error) {
	out := make(map[int64][]PaymentRecord, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE related_invoice_id = ANY($1)
		ORDER BY paid_date, id`, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("payments: list for invoices: %w", shared.MapStoreError(err))
	}
	records, err := r.collect(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range records {
		if p.RelatedInvoiceID == nil {
			continue
		}
		out[*p.RelatedInvoiceID] = append(out[*p.RelatedInvoiceID], p)
	}
	return out, nil
}

// ListAll streams the whole payment ledger for the dashboard fold.
func (r *Repository) ListAll(ctx context.Context) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("payments: list all: %w", shared.MapStoreError(err))
	}
	return r.collect(rows)
}
