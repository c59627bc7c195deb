package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskInvoiceRenderPDF renders an invoice and stores the PDF.
	TaskInvoiceRenderPDF = "invoice:render_pdf"
	// TaskStatsWarmup recomputes the cached PO dashboard stats.
	TaskStatsWarmup = "po:stats_warmup"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Cron schedules, evaluated in UTC.
const (
	StatsWarmupSpec        = "*/10 * * * *"
	IdempotencyCleanupSpec = "30 19 * * *"
)

// DefaultIdempotencyRetention is how long processed keys are kept.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

// InvoicePDFPayload identifies the invoice to render.
type InvoicePDFPayload struct {
	InvoiceID int64 `json:"invoice_id"`
}

// IdempotencyCleanupPayload overrides the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewInvoicePDFTask constructs an invoice render task.
func NewInvoicePDFTask(invoiceID int64) (*asynq.Task, error) {
	data, err := json.Marshal(InvoicePDFPayload{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceRenderPDF, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.Timeout(2*time.Minute)), nil
}

// NewStatsWarmupTask constructs the stats warm-up task.
func NewStatsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskStatsWarmup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// NewIdempotencyCleanupTask constructs the cleanup task. A zero retention uses the default.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
