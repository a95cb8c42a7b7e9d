package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/beopar/beopar/internal/shared"
)

type memoryRepo struct {
	nextID   int64
	products map[int64]Product
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, products: map[int64]Product{}}
}

func (m *memoryRepo) Create(_ context.Context, p Product) (Product, error) {
	for _, existing := range m.products {
		if existing.SKU == p.SKU {
			return Product{}, shared.Validationf("catalog: sku %q already in use", p.SKU)
		}
	}
	p.ID = m.nextID
	m.nextID++
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) List(_ context.Context, _ string, _, _ int) ([]Product, int, error) {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Update(_ context.Context, p Product) (Product, error) {
	existing, ok := m.products[p.ID]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	p.Stock = existing.Stock
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) AdjustStock(_ context.Context, id int64, delta int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return Product{}, ErrStockBelowZero
	}
	p.Stock += delta
	m.products[id] = p
	return p, nil
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateNormalizesSKU(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	created, err := svc.Create(context.Background(), ProductInput{
		Name:      "Basmati Rice 5kg",
		SKU:       " rice-5kg ",
		UnitPrice: price("550"),
		Stock:     40,
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "RICE-5KG", created.SKU)
	require.EqualValues(t, 40, created.Stock)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), ProductInput{SKU: "X", UnitPrice: price("1")}, 1)
	require.True(t, shared.IsValidation(err), "missing name: %v", err)

	_, err = svc.Create(context.Background(), ProductInput{Name: "X", SKU: "X", UnitPrice: price("-1")}, 1)
	require.True(t, shared.IsValidation(err), "negative price: %v", err)

	_, err = svc.Create(context.Background(), ProductInput{Name: "X", SKU: "X", UnitPrice: price("1"), Stock: -5}, 1)
	require.True(t, shared.IsValidation(err), "negative stock: %v", err)
}

func TestAdjustStockAppliesSignedDelta(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), ProductInput{Name: "X", SKU: "X", UnitPrice: price("10"), Stock: 10}, 1)
	require.NoError(t, err)

	p, err := svc.AdjustStock(context.Background(), created.ID, 5, "goods receipt", 1)
	require.NoError(t, err)
	require.EqualValues(t, 15, p.Stock)

	p, err = svc.AdjustStock(context.Background(), created.ID, -12, "damage", 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, p.Stock)
}

func TestAdjustStockRefusesNegativeResult(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), ProductInput{Name: "X", SKU: "X", UnitPrice: price("10"), Stock: 3}, 1)
	require.NoError(t, err)

	_, err = svc.AdjustStock(context.Background(), created.ID, -4, "", 1)
	require.ErrorIs(t, err, ErrStockBelowZero)

	_, err = svc.AdjustStock(context.Background(), created.ID, 0, "", 1)
	require.True(t, shared.IsValidation(err), "zero delta: %v", err)
}
