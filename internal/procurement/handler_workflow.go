package procurement

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/rbac"
)

// MountApprovalRoutes registers the manager's /approval routes.
func (h *Handler) MountApprovalRoutes(r chi.Router) {
	r.Use(h.authz.RequireRoles(rbac.Approvers...))
	r.Get("/pending", func(w http.ResponseWriter, r *http.Request) {
		pos, err := h.service.PendingApprovals(r.Context())
		h.respondList(w, "approval pending", pos, err)
	})
	r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		pos, err := h.service.ApprovalHistory(r.Context())
		h.respondList(w, "approval history", pos, err)
	})
	r.Post("/{poId}/process", h.process)
}

// MountFinanceRoutes registers the partial funding /keuangan routes.
func (h *Handler) MountFinanceRoutes(r chi.Router) {
	r.Use(h.authz.RequireRoles(rbac.Finance...))
	r.Get("/pending", func(w http.ResponseWriter, r *http.Request) {
		pos, err := h.service.FinancePending(r.Context())
		h.respondList(w, "finance pending", pos, err)
	})
	r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		pos, err := h.service.FinanceHistory(r.Context())
		h.respondList(w, "finance history", pos, err)
	})
	r.Post("/{poId}/transfer", h.fund)
}

// MountTransferRoutes registers the whole-PO /transfer routes.
func (h *Handler) MountTransferRoutes(r chi.Router) {
	r.Use(h.authz.RequireRoles(rbac.Finance...))
	r.Get("/pending", func(w http.ResponseWriter, r *http.Request) {
		pos, err := h.service.LegacyPending(r.Context())
		h.respondList(w, "transfer pending", pos, err)
	})
	r.Post("/{poId}", h.legacyTransfer)
}

// MountShoppingRoutes registers the field team's /shopping routes.
func (h *Handler) MountShoppingRoutes(r chi.Router) {
	r.Use(h.authz.RequireRoles(rbac.Field...))
	r.Get("/active", func(w http.ResponseWriter, r *http.Request) {
		pos, err := h.service.ShoppingActive(r.Context())
		h.respondList(w, "shopping active", pos, err)
	})
	r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		pos, err := h.service.ShoppingHistory(r.Context())
		h.respondList(w, "shopping history", pos, err)
	})
	r.Post("/{poId}/items", h.updateShoppingItems)
	r.Post("/{poId}/proof", h.uploadProofs)
	r.Post("/{poId}/complete", h.completeShopping)
}

type adjustedPriceRequest struct {
	ItemID    int64           `json:"item_id" validate:"required,gt=0"`
	HargaJual decimal.Decimal `json:"harga_jual"`
}

type processRequest struct {
	Action         string                 `json:"action" validate:"required,oneof=approve reject"`
	CatatanManajer string                 `json:"catatan_manajer"`
	AdjustedPrices []adjustedPriceRequest `json:"adjusted_prices" validate:"dive"`
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "poId")
	if !ok {
		return
	}
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ProcessInput{Approve: req.Action == "approve", CatatanManajer: req.CatatanManajer}
	for _, p := range req.AdjustedPrices {
		in.AdjustedPrices = append(in.AdjustedPrices, AdjustedPrice(p))
	}
	po, err := h.service.Process(r.Context(), principal(r), id, in)
	if err != nil {
		h.fail(w, "process po", err)
		return
	}
	msg := "PO berhasil ditolak"
	if in.Approve {
		msg = "PO berhasil disetujui"
	}
	httpx.OK(w, msg, po)
}

type fundRequest struct {
	NominalTransfer decimal.Decimal `json:"nominal_transfer"`
	TanggalTransfer string          `json:"tanggal_transfer"`
	CatatanKeuangan string          `json:"catatan_keuangan"`
	ItemIDs         []int64         `json:"item_ids"`
}

func (h *Handler) fund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "poId")
	if !ok {
		return
	}
	in, err := h.decodeFund(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	po, err := h.service.Fund(r.Context(), principal(r), id, in)
	if err != nil {
		h.fail(w, "fund po", err)
		return
	}
	httpx.OK(w, "Transfer berhasil dicatat", po)
}

func (h *Handler) decodeFund(w http.ResponseWriter, r *http.Request) (FundInput, error) {
	var in FundInput
	if !isMultipart(r) {
		var req fundRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return in, err
		}
		tanggal, err := parseDate(req.TanggalTransfer, "tanggal_transfer")
		if err != nil {
			return in, err
		}
		return FundInput{NominalTransfer: req.NominalTransfer, TanggalTransfer: tanggal, CatatanKeuangan: req.CatatanKeuangan, ItemIDs: req.ItemIDs}, nil
	}
	if err := h.parseMultipart(w, r, 1); err != nil {
		return in, err
	}
	var err error
	if in.NominalTransfer, err = parseDecimal(r.FormValue("nominal_transfer"), "nominal_transfer"); err != nil {
		return in, err
	}
	if in.TanggalTransfer, err = parseDate(r.FormValue("tanggal_transfer"), "tanggal_transfer"); err != nil {
		return in, err
	}
	if in.ItemIDs, err = parseItemIDs(r.MultipartForm.Value["item_ids"]); err != nil {
		return in, err
	}
	in.CatatanKeuangan = r.FormValue("catatan_keuangan")
	in.Proof, err = h.formFile(r, "proof_image")
	return in, err
}

func (h *Handler) legacyTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "poId")
	if !ok {
		return
	}
	if err := h.parseMultipart(w, r, 1); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var (
		in  LegacyTransferInput
		err error
	)
	if in.NominalTransfer, err = parseDecimal(r.FormValue("nominal_transfer"), "nominal_transfer"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if in.TanggalTransfer, err = parseDate(r.FormValue("tanggal_transfer"), "tanggal_transfer"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.MetodeTransfer = r.FormValue("metode_transfer")
	in.NomorRekeningTujuan = r.FormValue("nomor_rekening_tujuan")
	if in.Proof, err = h.formFile(r, "bukti_transfer"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.LegacyTransfer(r.Context(), principal(r), id, in)
	if err != nil {
		h.fail(w, "legacy transfer", err)
		return
	}
	httpx.OK(w, "Dana berhasil ditransfer", po)
}

type realItemRequest struct {
	ItemID    int64               `json:"item_id" validate:"required,gt=0"`
	QtyReal   decimal.NullDecimal `json:"qty_real"`
	HargaReal decimal.Decimal     `json:"harga_real"`
}

type shoppingItemsRequest struct {
	Items           []realItemRequest `json:"items" validate:"required,min=1,dive"`
	TanggalBelanja  string            `json:"tanggal_belanja" validate:"omitempty,datetime=2006-01-02"`
	CatatanLapangan string            `json:"catatan_lapangan"`
}

func (h *Handler) updateShoppingItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "poId")
	if !ok {
		return
	}
	var req shoppingItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ShoppingUpdateInput{CatatanLapangan: req.CatatanLapangan}
	if req.TanggalBelanja != "" {
		in.TanggalBelanja, _ = time.Parse(time.DateOnly, req.TanggalBelanja)
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, RealItemInput(item))
	}
	po, err := h.service.UpdateShoppingItems(r.Context(), principal(r), id, in)
	if err != nil {
		h.fail(w, "update shopping items", err)
		return
	}
	httpx.OK(w, "Data belanja berhasil diperbarui", po)
}

func (h *Handler) uploadProofs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "poId")
	if !ok {
		return
	}
	if err := h.parseMultipart(w, r, MaxShoppingProofs); err != nil {
		httpx.RespondError(w, err)
		return
	}
	files, err := h.formFiles(r, "bukti_belanja")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ProofInput{Files: files, Keterangan: r.FormValue("keterangan")}
	if raw := r.FormValue("tanggal_belanja"); raw != "" {
		tanggal, err := parseDate(raw, "tanggal_belanja")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.TanggalBelanja = &tanggal
	}
	proofs, err := h.service.UploadShoppingProofs(r.Context(), principal(r), id, in)
	if err != nil {
		h.fail(w, "upload shopping proofs", err)
		return
	}
	httpx.Created(w, "Bukti belanja berhasil di-upload", proofs)
}

func (h *Handler) completeShopping(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "poId")
	if !ok {
		return
	}
	in, err := h.decodeComplete(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.CompleteShopping(r.Context(), principal(r), id, in)
	if err != nil {
		h.fail(w, "complete shopping", err)
		return
	}
	httpx.OK(w, "Belanja berhasil diselesaikan", po)
}

func (h *Handler) decodeComplete(w http.ResponseWriter, r *http.Request) (CompleteInput, error) {
	var in CompleteInput
	var raw []byte
	if isMultipart(r) {
		// Each item may carry its own proof file.
		if err := h.parseMultipart(w, r, 10); err != nil {
			return in, err
		}
		raw = []byte(r.FormValue("real_prices"))
		proofs, err := h.itemProofs(r)
		if err != nil {
			return in, err
		}
		in.Proofs = proofs
	} else {
		var body struct {
			RealPrices json.RawMessage `json:"real_prices"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			return in, err
		}
		raw = body.RealPrices
	}
	var prices []realItemRequest
	if err := json.Unmarshal(raw, &prices); err != nil {
		return in, validationf("format real_prices tidak valid")
	}
	for _, p := range prices {
		in.RealPrices = append(in.RealPrices, RealItemInput(p))
	}
	return in, nil
}
