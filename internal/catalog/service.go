package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/beopar/beopar/internal/shared"
)

// RepositoryPort abstracts product persistence for the service.
type RepositoryPort interface {
	Create(ctx context.Context, p Product) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context, search string, page, perPage int) ([]Product, int, error)
	Update(ctx context.Context, p Product) (Product, error)
	AdjustStock(ctx context.Context, id int64, delta int64) (Product, error)
}

// ProductInput carries the mutable product fields.
type ProductInput struct {
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	Stock     int64
	Unit      string
}

// Service owns the product catalog and manual stock corrections.
type Service struct {
	repo  RepositoryPort
	audit *shared.AuditLogger
}

// NewService wires the catalog service.
func NewService(repo RepositoryPort, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) validate(in ProductInput) (Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Product{}, shared.Validationf("catalog: name is required")
	}
	sku := strings.ToUpper(strings.TrimSpace(in.SKU))
	if sku == "" {
		return Product{}, shared.Validationf("catalog: sku is required")
	}
	if in.UnitPrice.IsNegative() {
		return Product{}, shared.Validationf("catalog: unit price must not be negative")
	}
	return Product{
		Name:      name,
		SKU:       sku,
		UnitPrice: in.UnitPrice,
		Stock:     in.Stock,
		Unit:      strings.TrimSpace(in.Unit),
	}, nil
}

// Create validates and stores a new product with its opening stock.
func (s *Service) Create(ctx context.Context, in ProductInput, actorID int64) (Product, error) {
	p, err := s.validate(in)
	if err != nil {
		return Product{}, err
	}
	if in.Stock < 0 {
		return Product{}, shared.Validationf("catalog: opening stock must not be negative")
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "catalog:create",
		Entity:   "product",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     map[string]any{"sku": created.SKU, "stock": created.Stock},
	})
	return created, nil
}

// Update rewrites a product's descriptive fields. Stock moves only
// through AdjustStock or a bill commit.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput, actorID int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
	}
	p, err := s.validate(in)
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return Product{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "catalog:update",
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"sku": updated.SKU},
	})
	return updated, nil
}

// AdjustStock applies a signed manual correction, e.g. a goods receipt
// or a damage write-off. The repository refuses adjustments that would
// take stock below zero.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int64, reason string, actorID int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
	}
	if delta == 0 {
		return Product{}, shared.Validationf("catalog: adjustment delta must not be zero")
	}
	p, err := s.repo.AdjustStock(ctx, id, delta)
	if err != nil {
		return Product{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "catalog:adjust_stock",
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"delta": delta, "stock_after": p.Stock, "reason": reason},
	})
	return p, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
	}
	return s.repo.Get(ctx, id)
}

// List returns one page of products plus pagination metadata.
func (s *Service) List(ctx context.Context, search string, page, perPage int) ([]Product, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, strings.TrimSpace(search), page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}
