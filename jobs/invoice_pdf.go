package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sppi/sppi-po/internal/jobs"
	"github.com/sppi/sppi-po/internal/shared"
)

// InvoicePDFStore renders an invoice and persists the document.
type InvoicePDFStore interface {
	StorePDF(ctx context.Context, invoiceID int64) (string, error)
}

// InvoicePDFJob handles TaskInvoiceRenderPDF.
type InvoicePDFJob struct {
	Store   InvoicePDFStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInvoicePDFJob wires the render handler.
func NewInvoicePDFJob(store InvoicePDFStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvoicePDFJob {
	return &InvoicePDFJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle renders the invoice named in the payload.
func (j *InvoicePDFJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("invoice pdf: handler not configured")
	}
	var payload InvoicePDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.InvoiceID <= 0 {
		return fmt.Errorf("invoice pdf: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskInvoiceRenderPDF)
	defer func() {
		err = tracker.End(err)
	}()

	logger := jobLogger(j.Logger, TaskInvoiceRenderPDF).With(slog.Int64("invoice_id", payload.InvoiceID))
	url, err := j.Store.StorePDF(ctx, payload.InvoiceID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Warn("invoice gone, dropping task")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		logger.Error("render invoice pdf", slog.Any("error", err))
		return err
	}
	j.Metrics.AddAffected(TaskInvoiceRenderPDF, 1)
	logger.Info("invoice pdf stored", slog.String("url", url))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
