package app_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sppi/sppi-po/internal/app"
	"github.com/sppi/sppi-po/internal/auth"
	"github.com/sppi/sppi-po/internal/dapur"
	"github.com/sppi/sppi-po/internal/invoice"
	"github.com/sppi/sppi-po/internal/observability"
	"github.com/sppi/sppi-po/internal/procurement"
	"github.com/sppi/sppi-po/internal/rbac"
	"github.com/sppi/sppi-po/internal/shared"
	"github.com/sppi/sppi-po/jobs"
	_ "github.com/sppi/sppi-po/testing"
)

const secret = "router-test-secret-0123456789"

func newRouter(t *testing.T, uploads string) http.Handler {
	t.Helper()
	authz := rbac.Middleware{}
	authService := auth.NewService(nil, auth.NewTokens(secret, time.Hour), nil)
	return app.NewRouter(app.RouterParams{
		Config:             &app.Config{AppEnv: "test", RateLimitPerMin: 1000},
		AuthService:        authService,
		AuthHandler:        auth.NewHandler(nil, authService, 10),
		DapurHandler:       dapur.NewHandler(nil, nil, authz),
		ProcurementHandler: procurement.NewHandler(nil, nil, authz, 0),
		InvoiceHandler:     invoice.NewHandler(nil, nil, authz),
		JobHandler:         jobs.NewHandler(nil, nil),
		RBACMiddleware:     authz,
		Metrics:            observability.NewMetrics(),
		UploadsDir:         uploads,
	})
}

func token(t *testing.T, role shared.Role) string {
	t.Helper()
	raw, _, err := auth.NewTokens(secret, time.Hour).Issue(auth.User{ID: 1, Username: "u", Role: role})
	require.NoError(t, err)
	return raw
}

func get(router http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newRouter(t, t.TempDir())

	res := get(router, "/healthz", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))

	res = get(router, "/jobs/health", "")
	require.Equal(t, http.StatusOK, res.Code)

	res = get(router, "/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "sppi_http_requests_total")

	res = get(router, "/nope", "")
	require.Equal(t, http.StatusNotFound, res.Code)
	var env struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &env))
	require.False(t, env.Success)
}

func TestRouterRequiresBearerAndRole(t *testing.T) {
	router := newRouter(t, t.TempDir())

	require.Equal(t, http.StatusUnauthorized, get(router, "/api/po", "").Code)
	require.Equal(t, http.StatusUnauthorized, get(router, "/api/po", "garbage").Code)
	require.Equal(t, http.StatusForbidden, get(router, "/api/invoices", token(t, shared.RoleAdmin)).Code)
	require.Equal(t, http.StatusForbidden, get(router, "/api/approval/pending", token(t, shared.RoleKeuangan)).Code)
	require.Equal(t, http.StatusForbidden, get(router, "/api/keuangan/pending", token(t, shared.RoleLapangan)).Code)
}

func TestRouterServesUploads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "transfers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transfers", "a.pdf"), []byte("%PDF-1.4"), 0o644))
	router := newRouter(t, dir)

	res := get(router, "/uploads/transfers/a.pdf", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "%PDF-1.4", res.Body.String())
	require.Equal(t, "application/pdf", res.Header().Get("Content-Type"))
	require.Contains(t, res.Header().Get("Cache-Control"), "max-age")
}

func TestRouterHidesOtherUploadTypes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	router := newRouter(t, dir)

	require.Equal(t, http.StatusNotFound, get(router, "/uploads/notes.txt", "").Code)
}
