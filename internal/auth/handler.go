package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	loginPerMinute int
}

// NewHandler constructs a Handler instance. loginPerMinute caps login attempts per client IP.
func NewHandler(logger *slog.Logger, service *Service, loginPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loginPerMinute <= 0 {
		loginPerMinute = 10
	}
	return &Handler{logger: logger, service: service, loginPerMinute: loginPerMinute}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(h.loginPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "too many login attempts", nil)
		}),
	)).Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.service.RequireBearer(h.logger))
		r.Get("/me", h.handleMe)
		r.Post("/logout", h.handleLogout)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn("login failed", slog.String("username", req.Username), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("login", slog.Int64("user_id", result.User.ID), slog.String("role", string(result.User.Role)))
	httpx.OK(w, "Login berhasil", result)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	user, err := h.service.Me(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "OK", user)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Logout(r.Context(), principal); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "Logout berhasil", nil)
}
