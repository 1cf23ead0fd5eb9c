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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/ledger/internal/accounting/compound"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/app"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/internal/platform/cache"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/shared"
	"github.com/odyssey-erp/ledger/jobs"
)

// metricsAddr serves worker metrics separately from the API process.
const metricsAddr = ":9091"

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

	pool, err := db.New(ctx, cfg.PGDSN)
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

	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	journalService := journals.NewService(journals.NewRepository(pool), shared.NewAuditLogger(pool))
	journalService.WithRetries(cfg.NumberRetries)

	compoundService := compound.NewService(compound.NewRepository(pool), journalService, logger)
	compoundService.WithLocker(cache.NewLocker(redisClient, cfg.CompoundLockTTL))
	compoundService.WithRecorder(metrics)
	compoundService.WithConcurrency(cfg.CompoundTickConcurrency)

	tickJob := jobs.NewCompoundTickJob(compoundService, logger, metrics)
	executeJob := jobs.NewCompoundExecuteJob(compoundService, logger, metrics)

	tickTask, err := jobs.NewCompoundTickTask()
	if err != nil {
		logger.Error("build tick task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.CompoundTickConcurrency + 1,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCompoundTick, Handler: tickJob.Handle},
			{Type: jobs.TaskCompoundExecute, Handler: executeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CompoundTickSpec, Task: tickTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
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
