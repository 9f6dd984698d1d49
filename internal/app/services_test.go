package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-reports/internal/reports"
	odysseytest "github.com/odyssey-erp/odyssey-reports/testing"
)

const backendCatalog = `
reports:
  - name: visits
    source: backend
    query: visits
    axes:
      - name: month
        values: [Apr]
    key: {fields: [city]}
    measures: [visits]
    rules:
      visits: {kind: sum}
`

func TestNewReportServiceRunsAgainstBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"city":"Pune","month":"` + r.URL.Query().Get("month") + `","visits":7}]}`))
	}))
	t.Cleanup(backend.Close)

	path := filepath.Join(t.TempDir(), "reports.yaml")
	require.NoError(t, os.WriteFile(path, []byte(backendCatalog), 0o600))

	client, _ := odysseytest.NewRedis(t)

	cfg := &Config{
		ReportsCatalog:   path,
		ReportsCacheTTL:  time.Minute,
		SliceParallelism: 2,
		BackendURL:       backend.URL,
		BackendTimeout:   time.Second,
	}
	svc, err := NewReportService(cfg, ServiceDeps{Redis: client, Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)

	report, err := svc.Run(context.Background(), reports.RunRequest{Report: "visits"})
	require.NoError(t, err)
	require.Equal(t, 7.0, report.Primary().Total.Value("visits").Float())

	cached, err := svc.Run(context.Background(), reports.RunRequest{Report: "visits"})
	require.NoError(t, err)
	require.True(t, cached.Cached)
}

func TestNewReportServiceMissingCatalog(t *testing.T) {
	_, err := NewReportService(&Config{ReportsCatalog: filepath.Join(t.TempDir(), "none.yaml")}, ServiceDeps{})
	require.Error(t, err)
}
