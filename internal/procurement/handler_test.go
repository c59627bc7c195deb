package procurement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sppi/sppi-po/internal/rbac"
	"github.com/sppi/sppi-po/internal/shared"
)

const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(f fixture) http.Handler {
	h := NewHandler(nil, f.svc, rbac.Middleware{}, 1<<20)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p shared.Principal
			switch shared.Role(r.Header.Get("X-Test-Role")) {
			case shared.RoleAdmin:
				p = admin
			case shared.RoleManajer:
				p = manajer
			case shared.RoleKeuangan:
				p = keuangan
			case shared.RolePurchasing:
				p = shared.Principal{UserID: 5, Role: shared.RolePurchasing}
			default:
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
		})
	})
	r.Route("/po", h.MountPORoutes)
	r.Route("/approval", h.MountApprovalRoutes)
	r.Route("/keuangan", h.MountFinanceRoutes)
	r.Route("/transfer", h.MountTransferRoutes)
	r.Route("/shopping", h.MountShoppingRoutes)
	return r
}

func do(t *testing.T, router http.Handler, role shared.Role, req *http.Request) (int, envelope) {
	t.Helper()
	req.Header.Set("X-Test-Role", string(role))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	var env envelope
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &env))
	return res.Code, env
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandlerCreateAndSubmit(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	code, env := do(t, router, shared.RoleAdmin, jsonRequest(http.MethodPost, "/po", `{
		"tanggal_po": "2025-03-14",
		"items": [{"nama_barang": "bayam", "qty_estimasi": 2, "satuan": "ikat", "harga_estimasi": "3500"}]
	}`))
	require.Equal(t, http.StatusCreated, code)
	require.True(t, env.Success)
	var po PurchaseOrder
	require.NoError(t, json.Unmarshal(env.Data, &po))
	requireDecimal(t, "7000", po.TotalEstimasi)

	code, _ = do(t, router, shared.RoleManajer, jsonRequest(http.MethodPost, "/po", `{}`))
	require.Equal(t, http.StatusForbidden, code)

	code, env = do(t, router, shared.RoleAdmin, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/po/%d/submit", po.ID), nil))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, StatusWaitingApproval, f.status(t, po.ID))

	code, env = do(t, router, shared.RoleAdmin, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/po/%d", po.ID), nil))
	require.Equal(t, http.StatusBadRequest, code)
	require.False(t, env.Success)
	require.Contains(t, env.Message, "DRAFT")
}

func TestHandlerCreateValidation(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	code, env := do(t, router, shared.RoleAdmin, jsonRequest(http.MethodPost, "/po", `{"tanggal_po": "14-03-2025", "items": []}`))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "validation failed", env.Message)

	code, _ = do(t, router, "", jsonRequest(http.MethodGet, "/po", ""))
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestHandlerProcess(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)
	po := f.create(t, item("bayam", "10", "4"))
	_, err := f.svc.Submit(context.Background(), admin, po.ID)
	require.NoError(t, err)
	path := fmt.Sprintf("/approval/%d/process", po.ID)

	code, _ := do(t, router, shared.RoleManajer, jsonRequest(http.MethodPost, path, `{"action": "maybe"}`))
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, shared.RoleKeuangan, jsonRequest(http.MethodPost, path, `{"action": "approve"}`))
	require.Equal(t, http.StatusForbidden, code)

	body := fmt.Sprintf(`{"action": "approve", "adjusted_prices": [{"item_id": %d, "harga_jual": 5}]}`, po.Items[0].ID)
	code, env := do(t, router, shared.RoleManajer, jsonRequest(http.MethodPost, path, body))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "PO berhasil disetujui", env.Message)

	code, env = do(t, router, shared.RoleManajer, httptest.NewRequest(http.MethodGet, "/approval/history", nil))
	require.Equal(t, http.StatusOK, code)
	var history []PurchaseOrder
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	requireDecimal(t, "50", history[0].TotalApproved.Decimal)
}

func TestHandlerFundMultipart(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)
	po := f.approved(t, item("a", "1", "100"), item("b", "1", "100"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("nominal_transfer", "100"))
	require.NoError(t, mw.WriteField("tanggal_transfer", "2025-03-15"))
	require.NoError(t, mw.WriteField("item_ids", fmt.Sprintf("[%d]", po.Items[0].ID)))
	fw, err := mw.CreateFormFile("proof_image", "bukti.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte(pngHeader))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/keuangan/%d/transfer", po.ID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Idempotency-Key", "k-1")
	code, env := do(t, router, shared.RoleKeuangan, req)
	require.Equal(t, http.StatusOK, code, env.Message)
	require.Equal(t, StatusPartialTransfer, f.status(t, po.ID))
	require.Len(t, f.sink.saved, 1)
	require.Contains(t, f.sink.saved[0], "bukti.png")
}

func TestHandlerCompleteShoppingJSON(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)
	po := f.approved(t, item("a", "1", "100"))
	_, err := f.svc.Fund(context.Background(), keuangan, po.ID, FundInput{NominalTransfer: dec("100"), TanggalTransfer: f.svc.now(), ItemIDs: itemIDs(po)})
	require.NoError(t, err)
	path := fmt.Sprintf("/shopping/%d/complete", po.ID)

	code, _ := do(t, router, shared.RolePurchasing, jsonRequest(http.MethodPost, path, `{"real_prices": "not-an-array"}`))
	require.Equal(t, http.StatusBadRequest, code)

	body := fmt.Sprintf(`{"real_prices": [{"item_id": %d, "harga_real": 120}]}`, po.Items[0].ID)
	code, env := do(t, router, shared.RolePurchasing, jsonRequest(http.MethodPost, path, body))
	require.Equal(t, http.StatusOK, code, env.Message)
	var done PurchaseOrder
	require.NoError(t, json.Unmarshal(env.Data, &done))
	require.Equal(t, StatusBelanjaSelesai, done.Status)
	requireDecimal(t, "120", done.TotalReal.Decimal)
}
