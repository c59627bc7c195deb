package procurement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/rbac"
	"github.com/sppi/sppi-po/internal/shared"
)

// Handler exposes the purchase order lifecycle over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     rbac.Middleware
	maxUpload int64
}

// NewHandler builds the procurement handler. maxUpload bounds each attached file.
func NewHandler(logger *slog.Logger, service *Service, authz rbac.Middleware, maxUpload int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz, maxUpload: maxUpload}
}

// MountPORoutes registers /po routes. Callers mount it behind bearer auth.
func (h *Handler) MountPORoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRoles(rbac.POReaders...))
		r.Get("/", h.list)
		r.Get("/stats", h.stats)
		r.Get("/stats/daily", h.dailyStats)
		r.Get("/stats/top-items", h.topItems)
		r.Get("/{id}", h.get)
		r.Get("/{id}/approvals", h.approvals)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRoles(rbac.POAuthors...))
		r.Post("/", h.create)
		r.Post("/{id}/submit", h.submit)
		r.Delete("/{id}", h.delete)
	})
}

type createItemRequest struct {
	NamaBarang      string              `json:"nama_barang" validate:"required"`
	KategoriSayuran string              `json:"kategori_sayuran"`
	QtyEstimasi     decimal.Decimal     `json:"qty_estimasi"`
	Satuan          string              `json:"satuan" validate:"required"`
	HargaEstimasi   decimal.Decimal     `json:"harga_estimasi"`
	EstimasiSusut   decimal.NullDecimal `json:"estimasi_susut"`
	HargaModal      decimal.NullDecimal `json:"harga_modal"`
}

type createRequest struct {
	TanggalPO    string              `json:"tanggal_po" validate:"required,datetime=2006-01-02"`
	DapurID      *int64              `json:"dapur_id" validate:"omitempty,gt=0"`
	CatatanAdmin string              `json:"catatan_admin"`
	Items        []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tanggal, _ := time.Parse(time.DateOnly, req.TanggalPO)
	in := CreateInput{TanggalPO: tanggal, DapurID: req.DapurID, CatatanAdmin: req.CatatanAdmin}
	for _, item := range req.Items {
		in.Items = append(in.Items, CreateItemInput(item))
	}
	po, err := h.service.Create(r.Context(), principal(r), in)
	if err != nil {
		h.fail(w, "create po", err)
		return
	}
	httpx.Created(w, "PO berhasil dibuat", po)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: POStatus(q.Get("status"))}
	var err error
	if filter.Page, err = queryInt(q.Get("page")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pos, page, err := h.service.List(r.Context(), principal(r), filter)
	if err != nil {
		h.fail(w, "list po", err)
		return
	}
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	httpx.OK(w, "OK", map[string]any{"items": pos, "pagination": page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	po, err := h.service.Get(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, "get po", err)
		return
	}
	httpx.OK(w, "OK", po)
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	logs, err := h.service.ApprovalTrail(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, "po approval trail", err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.OK(w, "OK", logs)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	po, err := h.service.Submit(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, "submit po", err)
		return
	}
	httpx.OK(w, "PO berhasil disubmit untuk approval", po)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), principal(r), id); err != nil {
		h.fail(w, "delete po", err)
		return
	}
	httpx.OK(w, "PO berhasil dihapus", nil)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, "po stats", err)
		return
	}
	httpx.OK(w, "OK", s)
}

func (h *Handler) dailyStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.DailyStats(r.Context())
	if err != nil {
		h.fail(w, "po daily stats", err)
		return
	}
	httpx.OK(w, "OK", s)
}

func (h *Handler) topItems(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.TopItems(r.Context())
	if err != nil {
		h.fail(w, "po top items", err)
		return
	}
	httpx.OK(w, "OK", s)
}

func (h *Handler) respondList(w http.ResponseWriter, op string, pos []PurchaseOrder, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	httpx.OK(w, "OK", pos)
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

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := httpx.PathInt64(chi.URLParam(r, name), name)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, validationf("page dan limit harus berupa angka positif")
	}
	return n, nil
}
