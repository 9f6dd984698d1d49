package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	require.NoError(t, metrics.Track("reports:warmup").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("reports:warmup").End(boom), boom)
	metrics.ReportWarmed("leads-by-city", "partial")

	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_total", map[string]string{"status": "success"}))
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_total", map[string]string{"status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_failures_total", nil))
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_reports_warmed_total", map[string]string{"report": "leads-by-city"}))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	require.NoError(t, metrics.Track("x").End(nil))
	metrics.ReportWarmed("x", "complete")
}
