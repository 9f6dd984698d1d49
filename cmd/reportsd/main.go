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
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-reports/internal/app"
	"github.com/odyssey-erp/odyssey-reports/internal/observability"
	"github.com/odyssey-erp/odyssey-reports/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-reports/internal/platform/db"
	reportshttp "github.com/odyssey-erp/odyssey-reports/internal/reports/http"
	"github.com/odyssey-erp/odyssey-reports/jobs"
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
	deps := app.ServiceDeps{Logger: logger}

	dbpool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Warn("connect postgres, postgres reports disabled", slog.Any("error", err))
	} else {
		defer dbpool.Close()
		deps.Postgres = dbpool
	}

	var redisClient *redis.Client
	redisClient, err = cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("connect redis, report cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		deps.Redis = redisClient
	}

	metrics := observability.NewMetrics()
	deps.Registerer = metrics.Registerer()

	service, err := app.NewReportService(cfg, deps)
	if err != nil {
		logger.Error("init report service", slog.Any("error", err))
		os.Exit(1)
	}
	reportHandler := reportshttp.NewHandler(logger, service,
		reportshttp.WithRequestTimeout(cfg.AppRequestTimeout),
		reportshttp.WithExportLimit(cfg.ExportRateLimit, time.Minute),
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ReportHandler: reportHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
		Ready: func(r *http.Request) error {
			if redisClient == nil {
				return errors.New("redis not connected")
			}
			return cache.Ping(r.Context(), redisClient, 2*time.Second)
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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
