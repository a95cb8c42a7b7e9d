package payments

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

// Handler exposes the payment API.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler builds the payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validator: validator.New()}
}

// MountRoutes registers the payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
}

type paymentForm struct {
	Type             string           `json:"type" validate:"required,oneof=customer supplier"`
	RelatedInvoiceID *int64           `json:"related_invoice_id" validate:"omitempty,gt=0"`
	AmountPaid       decimal.Decimal  `json:"amount_paid"`
	OriginalAmount   *decimal.Decimal `json:"original_amount"`
	Status           string           `json:"status" validate:"omitempty,oneof=Completed Pending Failed Sent Received Partial"`
	Method           string           `json:"method" validate:"omitempty,max=64"`
	Reference        string           `json:"reference" validate:"omitempty,max=128"`
	PaidDate         string           `json:"paid_date" validate:"omitempty,datetime=2006-01-02"`
}

type paymentResponse struct {
	ID               int64            `json:"id"`
	Type             Type             `json:"type"`
	RelatedInvoiceID *int64           `json:"related_invoice_id,omitempty"`
	AmountPaid       decimal.Decimal  `json:"amount_paid"`
	OriginalAmount   *decimal.Decimal `json:"original_amount,omitempty"`
	Status           Status           `json:"status"`
	Method           string           `json:"method,omitempty"`
	Reference        string           `json:"reference,omitempty"`
	PaidDate         string           `json:"paid_date"`
	CreatedAt        time.Time        `json:"created_at"`
}

const dateLayout = "2006-01-02"

func toResponse(p PaymentRecord) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		Type:             p.Type,
		RelatedInvoiceID: p.RelatedInvoiceID,
		AmountPaid:       p.AmountPaid,
		OriginalAmount:   p.OriginalAmount,
		Status:           p.Status,
		Method:           p.Method,
		Reference:        p.Reference,
		PaidDate:         p.PaidDate.Format(dateLayout),
		CreatedAt:        p.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form paymentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := map[string]any{}
			for _, fe := range fieldErrs {
				fields[fe.Field()] = fe.Tag()
			}
			httpx.ProblemWith(w, http.StatusBadRequest, "Validation Failed", "one or more fields are invalid", map[string]any{"fields": fields})
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := CreatePaymentInput{
		Type:             Type(form.Type),
		RelatedInvoiceID: form.RelatedInvoiceID,
		AmountPaid:       form.AmountPaid,
		OriginalAmount:   form.OriginalAmount,
		Status:           Status(form.Status),
		Method:           form.Method,
		Reference:        form.Reference,
		IdempotencyKey:   httpx.IdempotencyKey(r),
		ActorID:          httpx.ActorID(r),
	}
	if form.PaidDate != "" {
		paid, err := time.Parse(dateLayout, form.PaidDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paid_date must be YYYY-MM-DD")
			return
		}
		in.PaidDate = paid
	}

	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid payment id")
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
	filter := ListFilter{
		Type:    Type(q.Get("type")),
		Status:  Status(q.Get("status")),
		Page:    page,
		PerPage: perPage,
	}
	if id, ok := httpx.URLParamInt64(q.Get("invoice_id")); ok {
		filter.InvoiceID = id
	}
	if filter.Type != "" && !ValidType(filter.Type) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown payment type")
		return
	}
	if filter.Status != "" && !ValidStatus(filter.Status) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown payment status")
		return
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = t
	}

	records, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(records))
	for _, p := range records {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"payments":   out,
		"pagination": pagination,
	})
}
