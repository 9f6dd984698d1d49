package reports

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run statuses recorded by Metrics.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// Metrics observes report runs.
type Metrics struct {
	runs          *prometheus.CounterVec
	sliceFailures *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
	cacheMiss     *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics registers the report collectors. Collectors that already
// exist on reg are reused, so several services may share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{}
	var err error
	if m.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_reports_runs_total",
		Help: "Report runs partitioned by report and status.",
	}, []string{"report", "status"})); err != nil {
		return nil, err
	}
	if m.sliceFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_reports_slice_failures_total",
		Help: "Slice fetches skipped because the source failed.",
	}, []string{"report"})); err != nil {
		return nil, err
	}
	if m.cacheHits, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_reports_cache_hits_total",
		Help: "Report runs answered from cache.",
	}, []string{"report"})); err != nil {
		return nil, err
	}
	if m.cacheMiss, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_reports_cache_miss_total",
		Help: "Report runs that had to be built.",
	}, []string{"report"})); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_reports_build_duration_seconds",
		Help:    "Duration required to fetch and build a report.",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(T)
			if !ok {
				return c, fmt.Errorf("reports metrics: unexpected collector type %T", already.ExistingCollector)
			}
			return existing, nil
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeRun(report, status string, failures int, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(report, status).Inc()
	if failures > 0 {
		m.sliceFailures.WithLabelValues(report).Add(float64(failures))
	}
	if took > 0 {
		m.duration.WithLabelValues(report).Observe(took.Seconds())
	}
}

func (m *Metrics) cacheHit(report string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(report).Inc()
}

func (m *Metrics) cacheMissed(report string) {
	if m == nil {
		return
	}
	m.cacheMiss.WithLabelValues(report).Inc()
}
