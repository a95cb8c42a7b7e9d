package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/beopar/beopar/internal/platform/httpx"
	"github.com/beopar/beopar/internal/shared"
)

// Handler exposes the product API.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler builds the product handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validator: validator.New()}
}

// MountRoutes registers the product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/stock-adjustment", h.adjustStock)
}

type productForm struct {
	Name      string          `json:"name" validate:"required,max=200"`
	SKU       string          `json:"sku" validate:"required,max=64"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int64           `json:"stock" validate:"gte=0"`
	Unit      string          `json:"unit" validate:"omitempty,max=16"`
}

type adjustStockForm struct {
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

type productResponse struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int64           `json:"stock"`
	Unit      string          `json:"unit,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toResponse(p Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		UnitPrice: p.UnitPrice,
		Stock:     p.Stock,
		Unit:      p.Unit,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request, form any) bool {
	if err := httpx.DecodeJSON(r, form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return false
	}
	if err := h.validator.Struct(form); err != nil {
		fields := map[string]any{}
		for _, fe := range err.(validator.ValidationErrors) {
			fields[fe.Field()] = fe.Tag()
		}
		httpx.ProblemWith(w, http.StatusBadRequest, "Validation Failed", "one or more fields are invalid", map[string]any{"fields": fields})
		return false
	}
	return true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form productForm
	if !h.decodeForm(w, r, &form) {
		return
	}
	created, err := h.service.Create(r.Context(), ProductInput{
		Name:      form.Name,
		SKU:       form.SKU,
		UnitPrice: form.UnitPrice,
		Stock:     form.Stock,
		Unit:      form.Unit,
	}, httpx.ActorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid product id")
		return
	}
	var form productForm
	if !h.decodeForm(w, r, &form) {
		return
	}
	updated, err := h.service.Update(r.Context(), id, ProductInput{
		Name:      form.Name,
		SKU:       form.SKU,
		UnitPrice: form.UnitPrice,
		Unit:      form.Unit,
	}, httpx.ActorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid product id")
		return
	}
	var form adjustStockForm
	if !h.decodeForm(w, r, &form) {
		return
	}
	p, err := h.service.AdjustStock(r.Context(), id, form.Delta, form.Reason, httpx.ActorID(r))
	if errors.Is(err, ErrStockBelowZero) {
		httpx.ProblemWith(w, http.StatusConflict, "Insufficient Stock", err.Error(), map[string]any{"product_id": id})
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid product id")
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageFromQuery(q)
	items, pagination, err := h.service.List(r.Context(), q.Get("q"), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]productResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products":   out,
		"pagination": pagination,
	})
}
