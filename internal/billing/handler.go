package billing

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/beopar/beopar/internal/payments"
	"github.com/beopar/beopar/internal/platform/httpx"
	"github.com/beopar/beopar/internal/shared"
)

// Handler exposes the invoice API.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler builds the invoice handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validator: validator.New()}
}

// MountRoutes registers the invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.edit)
	r.Post("/{id}/status", h.setStatus)
	r.Get("/{id}/payments", h.listPayments)
}

// MountDashboard registers the dashboard routes.
func (h *Handler) MountDashboard(r chi.Router) {
	r.Get("/metrics", h.dashboard)
}

type lineForm struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"gte=0"`
}

type createBillForm struct {
	Kind       string          `json:"kind" validate:"omitempty,oneof=customer supplier"`
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	Lines      []lineForm      `json:"lines" validate:"required,min=1,dive"`
	GSTRate    decimal.Decimal `json:"gst_rate"`
	IssueDate  string          `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
}

type editBillForm struct {
	Lines   []lineForm      `json:"lines" validate:"required,min=1,dive"`
	GSTRate decimal.Decimal `json:"gst_rate"`
}

type statusForm struct {
	Status string `json:"status" validate:"required"`
	Manual bool   `json:"manual"`
}

type lineResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type invoiceResponse struct {
	ID         int64           `json:"id"`
	InvoiceNo  string          `json:"invoice_no"`
	Kind       InvoiceKind     `json:"kind"`
	CustomerID int64           `json:"customer_id"`
	GSTRate    decimal.Decimal `json:"gst_rate"`
	SubTotal   decimal.Decimal `json:"sub_total"`
	CGST       decimal.Decimal `json:"cgst"`
	SGST       decimal.Decimal `json:"sgst"`
	IGST       decimal.Decimal `json:"igst"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Status     InvoiceStatus   `json:"status"`
	IssueDate  string          `json:"issue_date"`
	DueDate    string          `json:"due_date"`
	Lines      []lineResponse  `json:"lines,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type invoiceDetailResponse struct {
	invoiceResponse
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	EffectiveStatus  InvoiceStatus   `json:"effective_status"`
}

type paymentResponse struct {
	ID               int64            `json:"id"`
	Type             payments.Type    `json:"type"`
	RelatedInvoiceID *int64           `json:"related_invoice_id,omitempty"`
	AmountPaid       decimal.Decimal  `json:"amount_paid"`
	OriginalAmount   *decimal.Decimal `json:"original_amount,omitempty"`
	Status           payments.Status  `json:"status"`
	Method           string           `json:"method,omitempty"`
	Reference        string           `json:"reference,omitempty"`
	PaidDate         string           `json:"paid_date"`
	CreatedAt        time.Time        `json:"created_at"`
}

const dateLayout = "2006-01-02"

func toInvoiceResponse(inv Invoice) invoiceResponse {
	lines := make([]lineResponse, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, lineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.Total(),
		})
	}
	return invoiceResponse{
		ID:         inv.ID,
		InvoiceNo:  inv.InvoiceNo,
		Kind:       inv.Kind,
		CustomerID: inv.CustomerID,
		GSTRate:    inv.GSTRate,
		SubTotal:   inv.SubTotal,
		CGST:       inv.CGST,
		SGST:       inv.SGST,
		IGST:       inv.IGST,
		GrandTotal: inv.GrandTotal,
		Status:     inv.Status,
		IssueDate:  inv.IssueDate.Format(dateLayout),
		DueDate:    inv.DueDate.Format(dateLayout),
		Lines:      lines,
		CreatedAt:  inv.CreatedAt,
		UpdatedAt:  inv.UpdatedAt,
	}
}

func toPaymentResponse(p payments.PaymentRecord) paymentResponse {
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

func (h *Handler) invalidForm(w http.ResponseWriter, err error) {
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
}

// respondError adds the stock shortfall payload on top of the shared
// error mapping so clients can fix the whole cart in one round trip.
func respondError(w http.ResponseWriter, err error) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		httpx.ProblemWith(w, http.StatusConflict, "Insufficient Stock", stockErr.Error(), map[string]any{"shortfalls": stockErr.Shortfalls})
		return
	}
	httpx.RespondError(w, err)
}

func toLineInputs(forms []lineForm) []LineInput {
	lines := make([]LineInput, len(forms))
	for i, f := range forms {
		lines[i] = LineInput{ProductID: f.ProductID, Quantity: f.Quantity}
	}
	return lines
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form createBillForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		h.invalidForm(w, err)
		return
	}

	in := CreateBillInput{
		Kind:           InvoiceKind(form.Kind),
		CustomerID:     form.CustomerID,
		Lines:          toLineInputs(form.Lines),
		GSTRate:        form.GSTRate,
		IdempotencyKey: httpx.IdempotencyKey(r),
		ActorID:        httpx.ActorID(r),
	}
	if form.IssueDate != "" {
		issue, err := time.Parse(dateLayout, form.IssueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "issue_date must be YYYY-MM-DD")
			return
		}
		in.IssueDate = issue
	}

	inv, err := h.service.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid invoice id")
		return
	}
	var form editBillForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		h.invalidForm(w, err)
		return
	}

	inv, err := h.service.Edit(r.Context(), id, EditBillInput{
		Lines:          toLineInputs(form.Lines),
		GSTRate:        form.GSTRate,
		IdempotencyKey: httpx.IdempotencyKey(r),
		ActorID:        httpx.ActorID(r),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid invoice id")
		return
	}
	var form statusForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		h.invalidForm(w, err)
		return
	}

	inv, err := h.service.SetStatus(r.Context(), id, InvoiceStatus(form.Status), form.Manual, httpx.ActorID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid invoice id")
		return
	}
	inv, rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceDetailResponse{
		invoiceResponse:  toInvoiceResponse(inv),
		AmountPaid:       rec.AmountPaid,
		RemainingBalance: rec.RemainingBalance,
		EffectiveStatus:  EffectiveStatus(inv.Status, rec.DerivedStatus),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageFromQuery(q)
	filter := ListFilter{
		Kind:    InvoiceKind(q.Get("kind")),
		Status:  InvoiceStatus(q.Get("status")),
		Page:    page,
		PerPage: perPage,
	}
	if id, ok := httpx.URLParamInt64(q.Get("customer_id")); ok {
		filter.CustomerID = id
	}
	if filter.Kind != "" && !ValidKind(filter.Kind) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown invoice kind")
		return
	}
	if filter.Status != "" && !ValidStatus(filter.Status) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown invoice status")
		return
	}

	summaries, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]invoiceDetailResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, invoiceDetailResponse{
			invoiceResponse:  toInvoiceResponse(s.Invoice),
			AmountPaid:       s.AmountPaid,
			RemainingBalance: s.RemainingBalance,
			EffectiveStatus:  s.EffectiveStatus,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices":   out,
		"pagination": pagination,
	})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid invoice id")
		return
	}
	records, err := h.service.PaymentsForInvoice(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(records))
	for _, p := range records {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.DashboardMetrics(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, metrics)
}
