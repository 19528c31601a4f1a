package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossbridge/crossbridge/internal/app"
	"github.com/crossbridge/crossbridge/internal/billing"
	"github.com/crossbridge/crossbridge/internal/observability"
	"github.com/crossbridge/crossbridge/internal/platform/cache"
	"github.com/crossbridge/crossbridge/internal/platform/db"
	"github.com/crossbridge/crossbridge/internal/settlement"
	"github.com/crossbridge/crossbridge/jobs"
)

// monthlySettlementSpec runs the previous month's batch at 03:00 UTC on the 1st.
const monthlySettlementSpec = "0 3 1 * *"

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

	var pool *pgxpool.Pool
	if cfg.BillStore == app.BillStorePostgres {
		pool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
	}

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

	store, closeStore, err := app.OpenBillStore(ctx, cfg, pool)
	if err != nil {
		logger.Error("open bill store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = closeStore() }()

	metrics := observability.NewMetrics()
	runner := settlement.NewRunner(
		billing.NewService(store),
		settlement.NewRedisLocker(redisClient, cfg.SettlementLockTTL, cfg.SettlementLockWait),
		settlement.Options{Concurrency: cfg.SettlementConcurrency, Logger: logger, Metrics: metrics.Jobs()},
	)
	batchJob := jobs.NewSettlementBatchJob(runner, logger, metrics.Jobs())

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	monthlyTask, err := jobs.NewSettlementBatchTask(jobs.SettlementBatchPayload{Period: jobs.PeriodPrevious})
	if err != nil {
		logger.Error("build settlement task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSettlementBatch, Handler: batchJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: monthlySettlementSpec, Task: monthlyTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
