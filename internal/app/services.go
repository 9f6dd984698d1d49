package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-reports/internal/fetch"
	"github.com/odyssey-erp/odyssey-reports/internal/reports"
)

// Source names a catalog definition may reference.
const (
	SourcePostgres = "postgres"
	SourceBackend  = "backend"
)

// ServiceDeps carries the connections a report service is built on. Nil
// members disable what depends on them.
type ServiceDeps struct {
	Logger     *slog.Logger
	Redis      *redis.Client
	Postgres   fetch.Querier
	Registerer prometheus.Registerer
}

// NewReportService loads the catalog and registers every configured source.
func NewReportService(cfg *Config, deps ServiceDeps) (*reports.Service, error) {
	catalog, err := reports.LoadCatalog(cfg.ReportsCatalog)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sources := reports.NewSources()
	if deps.Postgres != nil {
		sources.Register(SourcePostgres, fetch.NewPostgresSource(deps.Postgres))
	}
	if cfg.BackendURL != "" {
		sources.Register(SourceBackend, fetch.NewHTTPSource(cfg.BackendURL, cfg.BackendTimeout))
	}
	registered := make(map[string]bool)
	for _, name := range sources.Names() {
		registered[name] = true
	}
	for _, def := range catalog.Definitions() {
		if !registered[def.Source] {
			logger.Warn("report source not configured", slog.String("report", def.Name), slog.String("source", def.Source))
		}
	}

	opts := []reports.Option{
		reports.WithLogger(logger),
		reports.WithParallelism(cfg.SliceParallelism),
		reports.WithFailFast(cfg.ReportsFailFast),
		reports.WithBuildTimeout(cfg.ReportsBuildLimit),
	}
	if deps.Redis != nil {
		opts = append(opts, reports.WithCache(reports.NewCache(deps.Redis, cfg.ReportsCacheTTL)))
	}
	if deps.Registerer != nil {
		metrics, err := reports.NewMetrics(deps.Registerer)
		if err != nil {
			return nil, fmt.Errorf("report metrics: %w", err)
		}
		opts = append(opts, reports.WithMetrics(metrics))
	}
	logger.Info("report catalog loaded", slog.String("path", cfg.ReportsCatalog), slog.Int("reports", len(catalog.Names())))
	return reports.NewService(catalog, sources, opts...), nil
}
