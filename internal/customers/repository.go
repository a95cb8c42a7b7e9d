package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beopar/beopar/internal/shared"
)

// Repository persists customers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerColumns = `id, name, COALESCE(tax_id, ''), COALESCE(jurisdiction_code, ''),
	COALESCE(email, ''), COALESCE(phone, ''), created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.TaxID, &c.Jurisdiction, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Create inserts a new customer and returns the stored row.
func (r *Repository) Create(ctx context.Context, c Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO customers (name, tax_id, jurisdiction_code, email, phone)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		RETURNING `+customerColumns,
		c.Name, c.TaxID, c.Jurisdiction, c.Email, c.Phone,
	)
	created, err := scanCustomer(row)
	if err != nil {
		return Customer{}, fmt.Errorf("customers: create: %w", shared.MapStoreError(err))
	}
	return created, nil
}

// Get fetches one customer by id.
func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customers: %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: get %d: %w", id, shared.MapStoreError(err))
	}
	return c, nil
}

// List returns one page of customers ordered by name, plus the total
// row count for pagination.
func (r *Repository) List(ctx context.Context, page, perPage int) ([]Customer, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("customers: count: %w", shared.MapStoreError(err))
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		ORDER BY name, id
		LIMIT $1 OFFSET $2`, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("customers: list: %w", shared.MapStoreError(err))
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("customers: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("customers: list rows: %w", shared.MapStoreError(err))
	}
	return out, total, nil
}

// Update rewrites a customer's mutable fields and returns the stored
// row.
func (r *Repository) Update(ctx context.Context, c Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE customers
		SET name = $2,
		    tax_id = NULLIF($3, ''),
		    jurisdiction_code = NULLIF($4, ''),
		    email = NULLIF($5, ''),
		    phone = NULLIF($6, ''),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+customerColumns,
		c.ID, c.Name, c.TaxID, c.Jurisdiction, c.Email, c.Phone,
	)
	updated, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customers: %d: %w", c.ID, shared.ErrNotFound)
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: update %d: %w", c.ID, shared.MapStoreError(err))
	}
	return updated, nil
}
