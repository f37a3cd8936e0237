package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/petrofield/fieldops/internal/agreements"
	"github.com/petrofield/fieldops/internal/app"
	"github.com/petrofield/fieldops/internal/observability"
	"github.com/petrofield/fieldops/internal/platform/cache"
	"github.com/petrofield/fieldops/internal/platform/db"
	"github.com/petrofield/fieldops/internal/shared"
	"github.com/petrofield/fieldops/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
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
	agreementService := agreements.NewService(agreements.NewRepository(pool), logger)

	verifyJob := &jobs.LedgerVerifyJob{
		Verifier:   agreementService,
		Locker:     shared.NewLocker(redisClient),
		Metrics:    metrics,
		Logger:     logger,
		AutoRepair: cfg.LedgerAutoRepair,
	}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     shared.NewIdempotencyStore(pool),
		Retention: cfg.IdempotencyRetention,
		Metrics:   metrics,
		Logger:    logger,
	}

	nightlyVerify, err := jobs.NewLedgerVerifyTask(jobs.LedgerVerifyPayload{Repair: cfg.LedgerAutoRepair})
	if err != nil {
		logger.Error("build ledger verify task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.RedisOpts(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerVerify, Handler: verifyJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.NightlyLedgerVerifyCron, Task: nightlyVerify, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: jobs.HourlyIdempotencyCleanupCron, Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Bool("auto_repair", cfg.LedgerAutoRepair))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
