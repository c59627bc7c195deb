package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sppi/sppi-po/internal/app"
	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/dapur"
	"github.com/sppi/sppi-po/internal/invoice"
	jobmetrics "github.com/sppi/sppi-po/internal/jobs"
	"github.com/sppi/sppi-po/internal/observability"
	"github.com/sppi/sppi-po/internal/platform/cache"
	"github.com/sppi/sppi-po/internal/platform/db"
	"github.com/sppi/sppi-po/internal/procurement"
	"github.com/sppi/sppi-po/internal/shared"
	"github.com/sppi/sppi-po/jobs"
	"github.com/sppi/sppi-po/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "worker")

	pool, err := db.New(ctx, cfg.Postgres("worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	sink, _, err := attachment.FromConfig(cfg.Attachments(), logger, metrics)
	if err != nil {
		logger.Error("init attachment sink", slog.Any("error", err))
		os.Exit(1)
	}

	renderer, err := invoice.NewRenderer(report.NewClient(cfg.GotenbergURL))
	if err != nil {
		logger.Error("init invoice renderer", slog.Any("error", err))
		os.Exit(1)
	}
	invoiceService := invoice.NewService(invoice.Deps{
		Repo:     invoice.NewRepository(pool),
		Renderer: renderer,
		Sink:     sink,
		Logger:   logger,
	})
	procurementService := procurement.NewService(procurement.Deps{
		Repo:   procurement.NewRepository(pool),
		Dapur:  dapur.NewService(dapur.NewRepository(pool), nil),
		Stats:  cache.NewCache(redisClient, "po:stats", cfg.StatsCacheTTL),
		Logger: logger,
	})

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().Asynq(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoiceRenderPDF, Handler: jobs.NewInvoicePDFJob(invoiceService, logger, jobMetrics).Handle},
			{Type: jobs.TaskStatsWarmup, Handler: jobs.NewStatsWarmupJob(procurementService, logger, jobMetrics).Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, jobMetrics).Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.StatsWarmupSpec, Task: jobs.NewStatsWarmupTask()},
			{Spec: jobs.IdempotencyCleanupSpec, Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
