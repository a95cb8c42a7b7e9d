package customers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/beopar/beopar/internal/shared"
)

// RepositoryPort abstracts customer persistence for the service.
type RepositoryPort interface {
	Create(ctx context.Context, c Customer) (Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	List(ctx context.Context, page, perPage int) ([]Customer, int, error)
	Update(ctx context.Context, c Customer) (Customer, error)
}

// CustomerInput carries the mutable fields for create and update.
type CustomerInput struct {
	Name  string
	TaxID string
	Email string
	Phone string
}

// Service owns customer writes and the jurisdiction derivation rule.
type Service struct {
	repo  RepositoryPort
	audit *shared.AuditLogger
}

// NewService wires the customer service.
func NewService(repo RepositoryPort, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) validate(in CustomerInput) (Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Customer{}, shared.Validationf("customers: name is required")
	}
	taxID := NormalizeTaxID(in.TaxID)
	if !ValidTaxID(taxID) {
		return Customer{}, shared.Validationf("customers: malformed tax id %q", taxID)
	}
	return Customer{
		Name:         name,
		TaxID:        taxID,
		Jurisdiction: DeriveJurisdiction(taxID),
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
	}, nil
}

// Create validates the input, derives the jurisdiction from the tax id
// and stores the customer.
func (s *Service) Create(ctx context.Context, in CustomerInput, actorID int64) (Customer, error) {
	c, err := s.validate(in)
	if err != nil {
		return Customer{}, err
	}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "customers:create",
		Entity:   "customer",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     map[string]any{"name": created.Name, "jurisdiction": created.Jurisdiction},
	})
	return created, nil
}

// Update rewrites the customer's fields, re-deriving the jurisdiction.
func (s *Service) Update(ctx context.Context, id int64, in CustomerInput, actorID int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.Validationf("customers: invalid id %d", id)
	}
	c, err := s.validate(in)
	if err != nil {
		return Customer{}, err
	}
	c.ID = id
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "customers:update",
		Entity:   "customer",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"name": updated.Name, "jurisdiction": updated.Jurisdiction},
	})
	return updated, nil
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, fmt.Errorf("customers: %d: %w", id, shared.ErrNotFound)
	}
	return s.repo.Get(ctx, id)
}

// List returns one page of customers plus pagination metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Customer, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}
