package invoice

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/rbac"
	"github.com/sppi/sppi-po/internal/shared"
)

// Handler exposes invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   rbac.Middleware
}

// NewHandler builds the invoice handler.
func NewHandler(logger *slog.Logger, service *Service, authz rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers /invoices routes for the field team.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.authz.RequireRoles(rbac.Field...))
	r.Get("/", h.list)
	r.Get("/preview", h.preview)
	r.Post("/generate", h.generate)
	r.Get("/{id}", h.get)
	r.Put("/{id}/issue", h.issue)
	r.Put("/{id}/payment", h.payment)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/pdf", h.pdf)
	r.Post("/{id}/pdf", h.requestPDF)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	var err error
	if filter.DapurID, err = queryID(q.Get("dapur_id"), "dapur_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: limit harus berupa angka", shared.ErrValidation))
			return
		}
	}
	invoices, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.OK(w, "OK", invoices)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := parsePeriod(q.Get("dapur_id"), q.Get("periode_start"), q.Get("periode_end"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	candidates, err := h.service.Preview(r.Context(), period)
	if err != nil {
		h.fail(w, "preview invoice", err)
		return
	}
	if candidates == nil {
		candidates = []Candidate{}
	}
	total := decimal.Zero
	for _, c := range candidates {
		total = total.Add(c.TotalJual)
	}
	httpx.OK(w, "OK", map[string]any{"pos": candidates, "total_pos": len(candidates), "total_amount": total})
}

type generateRequest struct {
	DapurID      int64  `json:"dapur_id" validate:"required,gt=0"`
	PeriodeStart string `json:"periode_start" validate:"required,datetime=2006-01-02"`
	PeriodeEnd   string `json:"periode_end" validate:"required,datetime=2006-01-02"`
	UpNama       string `json:"up_nama"`
}

type generateResponse struct {
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalPOs      int             `json:"total_pos"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, _ := time.Parse(time.DateOnly, req.PeriodeStart)
	end, _ := time.Parse(time.DateOnly, req.PeriodeEnd)
	in := GenerateInput{Period: Period{DapurID: req.DapurID, Start: start, End: end}, UpNama: req.UpNama}
	inv, err := h.service.Generate(r.Context(), principal(r), in)
	if err != nil {
		h.fail(w, "generate invoice", err)
		return
	}
	httpx.Created(w, "Invoice berhasil dibuat", generateResponse{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		TotalPOs:      len(inv.Items),
		TotalAmount:   inv.TotalAmount,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.OK(w, "OK", inv)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Issue(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, "issue invoice", err)
		return
	}
	httpx.OK(w, "Invoice berhasil di-issue", inv)
}

type paymentRequest struct {
	MetodePembayaran string          `json:"metode_pembayaran" validate:"required"`
	SisaTagihan      decimal.Decimal `json:"sisa_tagihan"`
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.MarkPaid(r.Context(), principal(r), id, PaymentInput(req))
	if err != nil {
		h.fail(w, "pay invoice", err)
		return
	}
	httpx.OK(w, "Pembayaran berhasil dicatat", inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), principal(r), id); err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	httpx.OK(w, "Invoice berhasil dihapus", nil)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, body, err := h.service.RenderPDF(r.Context(), id)
	if err != nil {
		h.fail(w, "render invoice pdf", err)
		return
	}
	name := strings.ReplaceAll(inv.InvoiceNumber, "/", "-") + ".pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) requestPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RequestPDF(r.Context(), id); err != nil {
		h.fail(w, "enqueue invoice pdf", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, httpx.Envelope{Success: true, Message: "PDF invoice sedang dibuat", Data: map[string]int64{"invoice_id": id}})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func principal(r *http.Request) shared.Principal {
	p, _ := shared.PrincipalFromContext(r.Context())
	return p
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

func queryID(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return httpx.PathInt64(raw, field)
}

func parsePeriod(dapurID, start, end string) (Period, error) {
	var (
		p   Period
		err error
	)
	if p.DapurID, err = queryID(dapurID, "dapur_id"); err != nil {
		return p, err
	}
	if start != "" {
		if p.Start, err = time.Parse(time.DateOnly, start); err != nil {
			return p, fmt.Errorf("%w: periode_start harus berformat YYYY-MM-DD", shared.ErrValidation)
		}
	}
	if end != "" {
		if p.End, err = time.Parse(time.DateOnly, end); err != nil {
			return p, fmt.Errorf("%w: periode_end harus berformat YYYY-MM-DD", shared.ErrValidation)
		}
	}
	return p, nil
}
