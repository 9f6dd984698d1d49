package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-reports/internal/app"
	"github.com/odyssey-erp/odyssey-reports/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-reports/internal/platform/db"
	"github.com/odyssey-erp/odyssey-reports/jobs"
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
	deps := app.ServiceDeps{Logger: logger}

	pool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Warn("connect database, postgres reports disabled", slog.Any("error", err))
	} else {
		defer pool.Close()
		deps.Postgres = pool
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		// Warmups only make sense with a cache to fill.
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	deps.Redis = redisClient

	service, err := app.NewReportService(cfg, deps)
	if err != nil {
		logger.Error("init report service", slog.Any("error", err))
		os.Exit(1)
	}
	warmupJob := jobs.NewReportWarmupJob(service, logger, nil)

	warmupTask, err := jobs.NewReportsWarmupTask(jobs.ReportsWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReportsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReportsWarmupCron, Task: warmupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("warmup_cron", cfg.ReportsWarmupCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
