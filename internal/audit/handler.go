package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/shared"
)

const (
	exportRate       = 10
	exportWindow     = time.Minute
	defaultDateRange = 7 * 24 * time.Hour
)

// Handler exposes the audit timeline to administrators.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers the timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRate, exportWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "too many requests", nil)
		}),
	)
	r.Get("/", h.timeline)
	r.With(limiter).Get("/export.csv", h.export)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "audit timeline", err)
		return
	}
	httpx.OK(w, "OK", result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.fail(w, "audit export", err)
		return
	}
	body, err := WriteCSV(rows)
	if err != nil {
		h.fail(w, "audit csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	to := h.now().UTC().Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: to harus berformat YYYY-MM-DD", shared.ErrValidation)
		}
		to = parsed
	}
	from := to.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: from harus berformat YYYY-MM-DD", shared.ErrValidation)
		}
		from = parsed
	}
	page, err := positiveInt(q.Get("page"), "page")
	if err != nil {
		return Filters{}, err
	}
	pageSize, err := positiveInt(q.Get("page_size"), "page_size")
	if err != nil {
		return Filters{}, err
	}
	return Filters{
		From:     from,
		To:       to,
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func positiveInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s harus bilangan positif", shared.ErrValidation, field)
	}
	return v, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok && p.UserID > 0 {
		return "user:" + strconv.FormatInt(p.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
