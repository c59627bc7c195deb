package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	poTransitions   *prometheus.CounterVec
	invoices        prometheus.Counter
	attachments     *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sppi_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sppi_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sppi_po_transitions_total",
		Help: "Perpindahan status PO.",
	}, []string{"from", "to"})
	invoices := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sppi_invoices_generated_total",
		Help: "Jumlah invoice yang dibuat.",
	})
	attachments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sppi_attachments_total",
		Help: "Upload lampiran per sink dan hasil.",
	}, []string{"sink", "result"})
	registry.MustRegister(requests, duration, transitions, invoices, attachments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		requestsTotal:   requests,
		requestDuration: duration,
		poTransitions:   transitions,
		invoices:        invoices,
		attachments:     attachments,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePOTransition mencatat perpindahan status PO.
func (m *Metrics) ObservePOTransition(from, to string) {
	if m == nil {
		return
	}
	m.poTransitions.WithLabelValues(from, to).Inc()
}

// ObserveInvoiceGenerated menambah hitungan invoice.
func (m *Metrics) ObserveInvoiceGenerated() {
	if m == nil {
		return
	}
	m.invoices.Inc()
}

// ObserveAttachment mencatat hasil upload per sink.
func (m *Metrics) ObserveAttachment(sink string, err error) {
	if m == nil {
		return
	}
	m.attachments.WithLabelValues(sink, result(err)).Inc()
}

// Gatherer mengekspos registry untuk dibaca di test.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
