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

	"github.com/odyssey-erp/sales-discount/internal/app"
	"github.com/odyssey-erp/sales-discount/internal/ar"
	"github.com/odyssey-erp/sales-discount/internal/platform/cache"
	platformdb "github.com/odyssey-erp/sales-discount/internal/platform/db"
	"github.com/odyssey-erp/sales-discount/internal/sales/orders"
	"github.com/odyssey-erp/sales-discount/internal/shared"
	"github.com/odyssey-erp/sales-discount/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := platformdb.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	telemetry := app.NewWorkerTelemetry()
	if server := app.NewWorkerServer(cfg, telemetry); server != nil {
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker metrics server", slog.Any("error", err))
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("worker metrics shutdown", slog.Any("error", err))
			}
		}()
	}

	idempotencyStore := shared.NewIdempotencyStore(pool)
	summaryCache := orders.NewSummaryCache(redisClient, cfg.SalesSummaryTTL)
	orderService := orders.NewService(orders.NewRepository(pool), orders.Deps{
		Invoicer: ar.NewService(ar.NewRepository(pool), idempotencyStore),
		Audit:    shared.NewAuditLogger(pool),
		Cache:    summaryCache,
		Metrics:  telemetry.Metrics,
		Logger:   logger,
	})

	recomputeJob := orders.NewRecomputeJob(orderService, summaryCache, telemetry.Jobs, logger)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, telemetry.Jobs)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{
		RetentionHours: int(cfg.IdempotencyRetention.Hours()),
	})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSalesOrderRecompute, Handler: recomputeJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
