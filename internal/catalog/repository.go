package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beopar/beopar/internal/shared"
)

// ErrStockBelowZero rejects an adjustment that would take stock
// negative.
var ErrStockBelowZero = errors.New("catalog: adjustment would take stock below zero")

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, name, sku, unit_price, stock, COALESCE(unit_of_measure, ''), created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.UnitPrice, &p.Stock, &p.Unit, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a new product and returns the stored row.
func (r *Repository) Create(ctx context.Context, p Product) (Product, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (name, sku, unit_price, stock, unit_of_measure)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING `+productColumns,
		p.Name, p.SKU, p.UnitPrice, p.Stock, p.Unit,
	)
	created, err := scanProduct(row)
	if isUniqueViolation(err) {
		return Product{}, shared.Validationf("catalog: sku %q already in use", p.SKU)
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: create: %w", shared.MapStoreError(err))
	}
	return created, nil
}

// Get fetches one product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: get %d: %w", id, shared.MapStoreError(err))
	}
	return p, nil
}

// List returns one page of products plus the total count. A non-empty
// search term matches name or sku, case-insensitively.
func (r *Repository) List(ctx context.Context, search string, page, perPage int) ([]Product, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM products
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%'`, search).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", shared.MapStoreError(err))
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%'
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, search, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", shared.MapStoreError(err))
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("catalog: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("catalog: list rows: %w", shared.MapStoreError(err))
	}
	return out, total, nil
}

// Update rewrites a product's descriptive fields. Stock is not touched
// here; it only moves through AdjustStock or a bill commit.
func (r *Repository) Update(ctx context.Context, p Product) (Product, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE products
		SET name = $2, sku = $3, unit_price = $4, unit_of_measure = NULLIF($5, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, p.SKU, p.UnitPrice, p.Unit,
	)
	updated, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("catalog: product %d: %w", p.ID, shared.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return Product{}, shared.Validationf("catalog: sku %q already in use", p.SKU)
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: update %d: %w", p.ID, shared.MapStoreError(err))
	}
	return updated, nil
}

// AdjustStock applies a signed delta under the row's write lock. The
// guarded predicate keeps a concurrent bill commit from racing the
// adjustment past zero.
func (r *Repository) AdjustStock(ctx context.Context, id int64, delta int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns, id, delta)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row means the product is missing or the delta would go
		// negative; a follow-up read tells the two apart.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Product{}, getErr
		}
		return Product{}, ErrStockBelowZero
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: adjust stock %d: %w", id, shared.MapStoreError(err))
	}
	return p, nil
}
