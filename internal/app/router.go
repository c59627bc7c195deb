package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/audit"
	"github.com/sppi/sppi-po/internal/auth"
	"github.com/sppi/sppi-po/internal/dapur"
	"github.com/sppi/sppi-po/internal/invoice"
	"github.com/sppi/sppi-po/internal/observability"
	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/procurement"
	"github.com/sppi/sppi-po/internal/rbac"
	"github.com/sppi/sppi-po/internal/shared"
	"github.com/sppi/sppi-po/jobs"
	"github.com/sppi/sppi-po/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthService        *auth.Service
	AuthHandler        *auth.Handler
	DapurHandler       *dapur.Handler
	ProcurementHandler *procurement.Handler
	InvoiceHandler     *invoice.Handler
	ReportHandler      *report.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
	RBACMiddleware     rbac.Middleware
	Metrics            *observability.Metrics
	// UploadsDir is served under /uploads when set.
	UploadsDir string
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route tidak ditemukan", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method tidak diizinkan", nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, "OK", map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.UploadsDir != "" {
		fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(params.UploadsDir)))
		r.Handle("/uploads/*", uploadsCacheHandler(fileServer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Group(func(r chi.Router) {
			r.Use(params.AuthService.RequireBearer(params.Logger))
			r.Route("/dapur", params.DapurHandler.MountRoutes)
			r.Route("/po", params.ProcurementHandler.MountPORoutes)
			r.Route("/approval", params.ProcurementHandler.MountApprovalRoutes)
			r.Route("/keuangan", params.ProcurementHandler.MountFinanceRoutes)
			r.Route("/transfer", params.ProcurementHandler.MountTransferRoutes)
			r.Route("/shopping", params.ProcurementHandler.MountShoppingRoutes)
			r.Route("/invoices", params.InvoiceHandler.MountRoutes)
			if params.ReportHandler != nil {
				r.Route("/report", func(r chi.Router) {
					r.Use(params.RBACMiddleware.RequireRoles(shared.RoleAdmin))
					params.ReportHandler.MountRoutes(r)
				})
			}
			if params.AuditHandler != nil {
				r.Route("/audit", func(r chi.Router) {
					r.Use(params.RBACMiddleware.RequireRoles(shared.RoleAdmin))
					params.AuditHandler.MountRoutes(r)
				})
			}
		})
	})

	return r
}

// uploadsCacheHandler serves only attachment file types and lets browsers
// cache them for an hour. Stored names are random so a path never changes
// content.
func uploadsCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType := attachment.ContentType(r.URL.Path)
		if contentType == "" {
			httpx.Fail(w, http.StatusNotFound, "file tidak ditemukan", nil)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
