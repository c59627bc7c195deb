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

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/internal/app"
	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/audit"
	"github.com/sppi/sppi-po/internal/auth"
	"github.com/sppi/sppi-po/internal/dapur"
	"github.com/sppi/sppi-po/internal/invoice"
	"github.com/sppi/sppi-po/internal/observability"
	"github.com/sppi/sppi-po/internal/platform/cache"
	"github.com/sppi/sppi-po/internal/platform/db"
	"github.com/sppi/sppi-po/internal/platform/httpx"
	"github.com/sppi/sppi-po/internal/procurement"
	"github.com/sppi/sppi-po/internal/rbac"
	"github.com/sppi/sppi-po/internal/shared"
	"github.com/sppi/sppi-po/jobs"
	"github.com/sppi/sppi-po/migrations"
	"github.com/sppi/sppi-po/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "api")
	httpx.ExposeErrorDetail(!cfg.IsProduction())
	decimal.MarshalJSONWithoutQuotes = true

	if cfg.DBAutoMigrate {
		if err := db.Migrate(migrations.FS, cfg.PGDSN); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.Postgres("api"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	authz := rbac.Middleware{Logger: logger}

	sink, disk, err := attachment.FromConfig(cfg.Attachments(), logger, metrics)
	if err != nil {
		logger.Error("init attachment sink", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	authService := auth.NewService(auth.NewRepository(dbpool), auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL), auth.NewDenylist(redisClient))
	authHandler := auth.NewHandler(logger, authService, 10)

	dapurService := dapur.NewService(dapur.NewRepository(dbpool), auditLogger)
	dapurHandler := dapur.NewHandler(logger, dapurService, authz)

	procurementService := procurement.NewService(procurement.Deps{
		Repo:        procurement.NewRepository(dbpool),
		Dapur:       dapurService,
		Sink:        sink,
		Approvals:   approvalRecorder,
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Stats:       cache.NewCache(redisClient, "po:stats", cfg.StatsCacheTTL),
		Observer:    procurement.MetricsObserver{Metrics: metrics},
		Logger:      logger,
	})
	procurementHandler := procurement.NewHandler(logger, procurementService, authz, cfg.AttachmentMaxBytes)

	reportClient := report.NewClient(cfg.GotenbergURL)
	renderer, err := invoice.NewRenderer(reportClient)
	if err != nil {
		logger.Error("init invoice renderer", slog.Any("error", err))
		os.Exit(1)
	}
	redisOpts := cfg.Redis().Asynq()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	invoiceService := invoice.NewService(invoice.Deps{
		Repo:     invoice.NewRepository(dbpool),
		Dapur:    dapurService,
		Audit:    auditLogger,
		Renderer: renderer,
		Enqueuer: jobClient,
		Sink:     sink,
		Metrics:  metrics,
		Logger:   logger,
	})
	invoiceHandler := invoice.NewHandler(logger, invoiceService, authz)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthService:        authService,
		AuthHandler:        authHandler,
		DapurHandler:       dapurHandler,
		ProcurementHandler: procurementHandler,
		InvoiceHandler:     invoiceHandler,
		ReportHandler:      report.NewHandler(reportClient, logger),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:         jobs.NewHandler(inspector, logger),
		RBACMiddleware:     authz,
		Metrics:            metrics,
		UploadsDir:         disk.Dir(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
