package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-reports/internal/jobs"
	"github.com/odyssey-erp/odyssey-reports/internal/reports"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const warmupReportTimeout = 2 * time.Minute

// ReportRunner is the part of the report service the warmup job drives.
type ReportRunner interface {
	Run(ctx context.Context, req reports.RunRequest) (reports.Report, error)
	Catalog() *reports.Catalog
}

// ReportWarmupJob re-runs catalog reports with their default axes so the
// cache holds fresh results before users ask for them.
type ReportWarmupJob struct {
	Runner  ReportRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(runner ReportRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Runner:  runner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks. Every named report is attempted;
// failures are joined into the returned error so asynq retries the task.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("report warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	names := payload.Reports
	if len(names) == 0 {
		names = j.Runner.Catalog().Names()
	}
	logger := j.logger()
	logger.Info("starting report warmup", slog.Int("reports", len(names)))

	start := j.now()
	var errs []error
	warmed := 0
	for _, name := range names {
		status, err := j.warm(ctx, name)
		j.metrics().ReportWarmed(name, status)
		if err != nil {
			logger.Error("warm report", slog.String("report", name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if status == reports.StatusPartial {
			logger.Warn("report warmed partially", slog.String("report", name))
		}
		warmed++
	}

	resultErr = errors.Join(errs...)
	logger.Info("completed report warmup", slog.Int("warmed", warmed), slog.Int("failed", len(errs)), slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *ReportWarmupJob) warm(ctx context.Context, name string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, warmupReportTimeout)
	defer cancel()
	report, err := j.Runner.Run(runCtx, reports.RunRequest{Report: name, Refresh: true})
	if err != nil {
		return reports.StatusFailed, err
	}
	if report.Partial {
		return reports.StatusPartial, nil
	}
	return reports.StatusComplete, nil
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
