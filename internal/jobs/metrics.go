// Package jobmetrics instruments asynq task runs.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeSkipped marks runs that returned asynq.SkipRetry, such as a
	// render request for an invoice deleted in the meantime.
	OutcomeSkipped = "skipped"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	inflight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
	affected *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sppi_jobs_total",
			Help: "Task runs by task type and outcome.",
		}, []string{"job", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sppi_jobs_failures_total",
			Help: "Task runs that will be retried or archived.",
		}, []string{"job"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sppi_jobs_inflight",
			Help: "Tasks currently running.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sppi_job_duration_seconds",
			Help:    "Task run duration.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		affected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sppi_job_affected_total",
			Help: "Rows or documents a task touched.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.failures, m.inflight, m.duration, m.affected)
	return m
}

// Tracker measures one run.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track starts measuring a run of job.
func (m *Metrics) Track(job string) *Tracker {
	if m != nil {
		m.inflight.WithLabelValues(job).Inc()
	}
	return &Tracker{m: m, job: job, start: time.Now()}
}

// End records the outcome of err and returns err unchanged, so handlers can
// write `defer func() { err = tracker.End(err) }()`.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil {
		return err
	}
	outcome := Outcome(err)
	if outcome == OutcomeFailure {
		t.m.failures.WithLabelValues(t.job).Inc()
	}
	t.m.inflight.WithLabelValues(t.job).Dec()
	t.m.runs.WithLabelValues(t.job, outcome).Inc()
	t.m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Outcome classifies a handler result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeSkipped
	default:
		return OutcomeFailure
	}
}

// AddAffected counts what a run touched, for example purged idempotency keys.
func (m *Metrics) AddAffected(job string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.affected.WithLabelValues(job).Add(float64(n))
}
