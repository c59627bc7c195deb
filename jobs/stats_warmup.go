package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sppi/sppi-po/internal/jobs"
)

// StatsWarmer recomputes cached dashboard stats.
type StatsWarmer interface {
	WarmStats(ctx context.Context) error
}

// StatsWarmupJob handles TaskStatsWarmup.
type StatsWarmupJob struct {
	Stats   StatsWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewStatsWarmupJob wires the warm-up handler.
func NewStatsWarmupJob(stats StatsWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	return &StatsWarmupJob{Stats: stats, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle refreshes the stats cache.
func (j *StatsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Stats == nil {
		return errors.New("stats warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskStatsWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	if err := j.Stats.WarmStats(ctx); err != nil {
		jobLogger(j.Logger, TaskStatsWarmup).Error("warm stats", slog.Any("error", err))
		return err
	}
	jobLogger(j.Logger, TaskStatsWarmup).Debug("stats warmed", slog.Duration("duration", time.Since(start)))
	return nil
}
