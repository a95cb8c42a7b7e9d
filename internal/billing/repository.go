package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/beopar/beopar/internal/platform/db"
	"github.com/beopar/beopar/internal/shared"
)

// ProductState is the stock and price snapshot read under a row lock
// inside a commit transaction.
type ProductState struct {
	Stock     int64
	UnitPrice decimal.Decimal
}

// ListFilter narrows invoice listings. Zero values mean "any".
type ListFilter struct {
	Kind       InvoiceKind
	Status     InvoiceStatus
	CustomerID int64
	Page       int
	PerPage    int
}

// TxRepository exposes the operations available inside one atomic
// commit. Everything called through it either lands together or not
// at all.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	GetProductsForUpdate(ctx context.Context, productIDs []int64) (map[int64]ProductState, error)
	NextInvoiceNo(ctx context.Context, kind InvoiceKind, issued time.Time) (string, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	ReplaceLines(ctx context.Context, invoiceID int64, lines []InvoiceLine) error
	ApplyStockDelta(ctx context.Context, productID, delta int64) error
	SetInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
}

// RepositoryPort is the persistence surface the coordinator depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, f ListFilter) ([]Invoice, int, error)
	ListDueBefore(ctx context.Context, day time.Time) ([]Invoice, error)
	ListOpenInvoices(ctx context.Context) ([]Invoice, error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists invoices, their lines and the stock they move.
type Repository struct {
	pool *pgxpool.Pool
	q    dbtx
}

// NewRepository builds a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// WithTx runs fn inside one repeatable-read transaction. Serialization
// failures surface as conflicts for the caller to retry with fresh
// state.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{pool: r.pool, q: tx})
	})
	return shared.MapStoreError(err)
}

const invoiceColumns = `id, invoice_no, kind, customer_id, gst_rate, sub_total, cgst, sgst, igst,
	grand_total, status, issue_date, due_date, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNo, &inv.Kind, &inv.CustomerID, &inv.GSTRate,
		&inv.SubTotal, &inv.CGST, &inv.SGST, &inv.IGST,
		&inv.GrandTotal, &inv.Status, &inv.IssueDate, &inv.DueDate,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	return inv, err
}

func (r *Repository) loadLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT product_id, quantity, unit_price
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY line_no`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetInvoice fetches one invoice with its lines, without locking.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	row := r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("billing: invoice %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("billing: get invoice %d: %w", id, shared.MapStoreError(err))
	}
	if inv.Lines, err = r.loadLines(ctx, id); err != nil {
		return Invoice{}, fmt.Errorf("billing: load lines %d: %w", id, shared.MapStoreError(err))
	}
	return inv, nil
}

// GetInvoiceForUpdate fetches one invoice with its lines and holds the
// row's write lock for the rest of the transaction.
func (r *Repository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	row := r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("billing: invoice %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("billing: lock invoice %d: %w", id, shared.MapStoreError(err))
	}
	if inv.Lines, err = r.loadLines(ctx, id); err != nil {
		return Invoice{}, fmt.Errorf("billing: load lines %d: %w", id, shared.MapStoreError(err))
	}
	return inv, nil
}

// GetProductsForUpdate locks the product rows in ascending id order and
// returns their current stock and price. Products absent from the
// result do not exist.
func (r *Repository) GetProductsForUpdate(ctx context.Context, productIDs []int64) (map[int64]ProductState, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, stock, unit_price
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("billing: lock products: %w", shared.MapStoreError(err))
	}
	defer rows.Close()

	states := make(map[int64]ProductState, len(productIDs))
	for rows.Next() {
		var id int64
		var st ProductState
		if err := rows.Scan(&id, &st.Stock, &st.UnitPrice); err != nil {
			return nil, fmt.Errorf("billing: scan product: %w", err)
		}
		states[id] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("billing: lock products: %w", shared.MapStoreError(err))
	}
	return states, nil
}

// NextInvoiceNo reserves the next number in the per-kind yearly series.
// The underlying counter row stays locked until the transaction ends,
// so numbers of committed invoices never repeat.
func (r *Repository) NextInvoiceNo(ctx context.Context, kind InvoiceKind, issued time.Time) (string, error) {
	var no string
	err := r.q.QueryRow(ctx, `SELECT generate_invoice_no($1, $2)`, string(kind), issued.Year()).Scan(&no)
	if err != nil {
		return "", fmt.Errorf("billing: next invoice no: %w", shared.MapStoreError(err))
	}
	return no, nil
}

// InsertInvoice stores a new invoice header and returns it with the
// generated id and timestamps filled in.
func (r *Repository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO invoices (invoice_no, kind, customer_id, gst_rate, sub_total, cgst, sgst, igst,
			grand_total, status, issue_date, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		inv.InvoiceNo, inv.Kind, inv.CustomerID, inv.GSTRate, inv.SubTotal, inv.CGST, inv.SGST, inv.IGST,
		inv.GrandTotal, inv.Status, inv.IssueDate, inv.DueDate,
	)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, fmt.Errorf("billing: insert invoice: %w", shared.MapStoreError(err))
	}
	return inv, nil
}

// UpdateInvoice rewrites the recomputed totals of an edited invoice.
// Number, kind, customer, dates and status stay put.
func (r *Repository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE invoices
		SET gst_rate = $2, sub_total = $3, cgst = $4, sgst = $5, igst = $6, grand_total = $7, updated_at = NOW()
		WHERE id = $1`,
		inv.ID, inv.GSTRate, inv.SubTotal, inv.CGST, inv.SGST, inv.IGST, inv.GrandTotal,
	)
	if err != nil {
		return fmt.Errorf("billing: update invoice %d: %w", inv.ID, shared.MapStoreError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("billing: invoice %d: %w", inv.ID, shared.ErrNotFound)
	}
	return nil
}

// ReplaceLines swaps an invoice's line set for the given one.
func (r *Repository) ReplaceLines(ctx context.Context, invoiceID int64, lines []InvoiceLine) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("billing: clear lines %d: %w", invoiceID, shared.MapStoreError(err))
	}
	for i, line := range lines {
		_, err := r.q.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, line_no, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			invoiceID, i+1, line.ProductID, line.Quantity, line.UnitPrice, line.Total(),
		)
		if err != nil {
			return fmt.Errorf("billing: insert line %d/%d: %w", invoiceID, line.ProductID, shared.MapStoreError(err))
		}
	}
	return nil
}

// ApplyStockDelta moves a product's stock by the signed delta. Callers
// verify availability under the row lock first; the table's own check
// constraint is the last line of defence.
func (r *Repository) ApplyStockDelta(ctx context.Context, productID, delta int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`,
		productID, delta,
	)
	if err != nil {
		return fmt.Errorf("billing: apply stock delta %d: %w", productID, shared.MapStoreError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("billing: product %d: %w", productID, shared.ErrNotFound)
	}
	return nil
}

// SetInvoiceStatus writes a new status without touching anything else.
func (r *Repository) SetInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("billing: set status %d: %w", id, shared.MapStoreError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("billing: invoice %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// ListInvoices returns one page of invoice headers, newest first, plus
// the total count for pagination. Lines are not loaded on list paths.
func (r *Repository) ListInvoices(ctx context.Context, f ListFilter) ([]Invoice, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	argPos := 1
	if f.Kind != "" {
		where += fmt.Sprintf(" AND kind = $%d", argPos)
		args = append(args, f.Kind)
		argPos++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, f.Status)
		argPos++
	}
	if f.CustomerID > 0 {
		where += fmt.Sprintf(" AND customer_id = $%d", argPos)
		args = append(args, f.CustomerID)
		argPos++
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count invoices: %w", shared.MapStoreError(err))
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("billing: list invoices: %w", shared.MapStoreError(err))
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("billing: scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("billing: list rows: %w", shared.MapStoreError(err))
	}
	return out, total, nil
}

// ListOpenInvoices returns the headers of every invoice that can still
// owe money, for the dashboard fold. Terminal stored statuses are
// filtered out up front since they reconcile to nothing.
func (r *Repository) ListOpenInvoices(ctx context.Context) ([]Invoice, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE status NOT IN ($1, $2)
		ORDER BY id`,
		StatusPaid, StatusCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("billing: list open: %w", shared.MapStoreError(err))
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("billing: scan open invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListDueBefore returns the headers of live invoices whose due date
// has passed, for the overdue sweep.
func (r *Repository) ListDueBefore(ctx context.Context, day time.Time) ([]Invoice, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE status IN ($1, $2) AND due_date < $3
		ORDER BY due_date, id`,
		StatusPending, StatusPartiallyPaid, day,
	)
	if err != nil {
		return nil, fmt.Errorf("billing: list due: %w", shared.MapStoreError(err))
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("billing: scan due invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
