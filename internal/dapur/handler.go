package dapur

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/rbac"
)

// Handler exposes kitchen endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service, authz rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers kitchen routes. Callers mount it behind bearer auth.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRoles(rbac.DapurAdmins...))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Patch("/{id}/toggle", h.toggle)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "active must be true or false", err)
			return
		}
		filter.Active = &active
	}
	filter.Search = r.URL.Query().Get("search")
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list dapur", err)
		return
	}
	if items == nil {
		items = []Dapur{}
	}
	httpx.OK(w, "OK", items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get dapur", err)
		return
	}
	httpx.OK(w, "OK", d)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create dapur", err)
		return
	}
	httpx.Created(w, "Dapur berhasil dibuat", d)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update dapur", err)
		return
	}
	httpx.OK(w, "Dapur berhasil diperbarui", d)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete dapur", err)
		return
	}
	httpx.OK(w, "Dapur berhasil dihapus", nil)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Toggle(r.Context(), id)
	if err != nil {
		h.fail(w, "toggle dapur", err)
		return
	}
	httpx.OK(w, "Status dapur diperbarui", d)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
