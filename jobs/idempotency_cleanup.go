package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sppi/sppi-po/internal/jobs"
)

// KeyCleaner deletes idempotency keys older than the given age.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob handles TaskIdempotencyCleanup.
type IdempotencyCleanupJob struct {
	Keys    KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires the cleanup handler.
func NewIdempotencyCleanupJob(keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Keys: keys, Logger: logger, Metrics: metrics}
}

// Handle purges keys past the retention window.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := DefaultIdempotencyRetention
	if len(t.Payload()) > 0 {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RetentionHours > 0 {
			retention = time.Duration(payload.RetentionHours) * time.Hour
		}
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	deleted, err := j.Keys.Cleanup(ctx, retention)
	if err != nil {
		jobLogger(j.Logger, TaskIdempotencyCleanup).Error("purge idempotency keys", slog.Any("error", err))
		return err
	}
	j.Metrics.AddAffected(TaskIdempotencyCleanup, deleted)
	jobLogger(j.Logger, TaskIdempotencyCleanup).Info("purged idempotency keys", slog.Int64("deleted", deleted), slog.Duration("retention", retention))
	return nil
}
