package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/crossbridge/crossbridge/cmd/crossbridge/cli"
	"github.com/crossbridge/crossbridge/internal/app"
	"github.com/crossbridge/crossbridge/internal/billing"
	billinghttp "github.com/crossbridge/crossbridge/internal/billing/http"
	"github.com/crossbridge/crossbridge/internal/fx"
	"github.com/crossbridge/crossbridge/internal/ledger"
	ledgerhttp "github.com/crossbridge/crossbridge/internal/ledger/http"
	"github.com/crossbridge/crossbridge/internal/observability"
	"github.com/crossbridge/crossbridge/internal/platform/cache"
	"github.com/crossbridge/crossbridge/internal/platform/db"
	"github.com/crossbridge/crossbridge/internal/settlement"
	"github.com/crossbridge/crossbridge/jobs"
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
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(cli.Run(ctx, cfg.RedisAddr, os.Args[2:], os.Stdout, os.Stderr))
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	var pool *pgxpool.Pool
	if cfg.BillStore == app.BillStorePostgres {
		p, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-process locks and no cache", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	store, closeStore, err := app.OpenBillStore(ctx, cfg, pool)
	if err != nil {
		return fmt.Errorf("open bill store: %w", err)
	}
	defer func() { _ = closeStore() }()

	metrics := observability.NewMetrics()
	billingService := billing.NewService(store)
	runner := settlement.NewRunner(billingService, newLocker(cfg, redisClient), settlement.Options{
		Concurrency: cfg.SettlementConcurrency,
		Logger:      logger,
		Metrics:     metrics.Jobs(),
	})

	var (
		enqueuer   billinghttp.BatchEnqueuer
		jobHandler *jobs.Handler
	)
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		enqueuer = client

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	var ledgerHandler *ledgerhttp.Handler
	if pool != nil {
		conv := fx.NewConverter(fx.Policy{ReferenceCurrency: cfg.ReferenceCurrency})
		var ledgerCache *ledger.Cache
		if redisClient != nil {
			ledgerCache = ledger.NewCache(redisClient, cfg.LedgerCacheTTL)
		}
		ledgerService := ledger.NewService(ledger.NewPGAccountSource(pool), ledger.New(conv), ledgerCache, logger)
		ledgerHandler = ledgerhttp.NewHandler(ledgerService, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		LedgerHandler:  ledgerHandler,
		BillingHandler: billinghttp.NewHandler(billingService, runner, enqueuer, logger),
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("bill_store", cfg.BillStore),
			slog.String("reference_currency", cfg.ReferenceCurrency),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLocker(cfg *app.Config, client *redis.Client) settlement.Locker {
	if client == nil {
		return settlement.NewLocalLocker(cfg.SettlementLockWait)
	}
	return settlement.NewRedisLocker(client, cfg.SettlementLockTTL, cfg.SettlementLockWait)
}
