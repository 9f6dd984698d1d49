package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-reports/internal/fetch"
	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

type fakeSource struct {
	mu    sync.Mutex
	data  map[string]fetch.Static
	fail  map[string]error
	calls int
	gate  chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, q fetch.Query, sel rollup.Selection) ([]rollup.Row, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	err := f.fail[q.Text+"|"+sel.String()]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return f.data[q.Text].Fetch(ctx, q, sel)
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		data: map[string]fetch.Static{
			"leads": {
				rollup.RowOf("City", "Hubli", "month", "Apr", "leads", 4, "converted", 1),
				rollup.RowOf("cityName", "Mysore", "month", "Apr", "leads", 10, "converted", 5),
				rollup.RowOf("city", "Mysore", "month", "May", "leads", "10", "converted", 5),
			},
			"sales": {
				rollup.RowOf("city", "Bangalore", "month", "May", "amount", 900, "avg_ticket", 300),
			},
		},
		fail: map[string]error{},
	}
}

func newTestService(t *testing.T, src *fakeSource, opts ...Option) *Service {
	t.Helper()
	sources := NewSources()
	sources.Register("warehouse", src)
	return NewService(loadTestCatalog(t), sources, opts...)
}

func TestServiceRunBuildsAlignedTables(t *testing.T) {
	src := newFakeSource()
	svc := newTestService(t, src)

	report, err := svc.Run(context.Background(), RunRequest{Report: "leads-by-city"})
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.False(t, report.Partial)
	require.False(t, report.Cached)
	require.Len(t, report.Tables, 2)

	leads := report.Primary()
	require.Equal(t, 2, leads.Slices)
	require.Equal(t, []string{"Bangalore", "Mysore", "Hubli"}, fieldValues(leads.Rows, "city"))
	mysore := leads.Rows[1]
	require.Equal(t, 20.0, mysore.Value("leads").Float())
	require.NotNil(t, leads.Total)
	require.Equal(t, rollup.LabelGrandTotal, leads.Total.Value("city").String())
	require.InDelta(t, 100*11.0/24.0, leads.Total.Value("conv_pct").Float(), 1e-9)

	sales := report.Tables[1]
	require.Equal(t, []string{"Bangalore", "Mysore", "Hubli"}, fieldValues(sales.Rows, "city"))
	require.Equal(t, 900.0, sales.Total.Value("amount").Float())
	require.Equal(t, 100.0, sales.Total.Value("avg_ticket").Float())
	require.Equal(t, "City", sales.Columns[0].Header())
}

func TestServiceRunUsesCache(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	cache, _, _ := newTestCache(t)
	svc := newTestService(t, src, WithCache(cache))

	first, err := svc.Run(ctx, RunRequest{Report: "sales-by-city"})
	require.NoError(t, err)
	calls := src.callCount()

	second, err := svc.Run(ctx, RunRequest{Report: "sales-by-city"})
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.RunID, second.RunID)
	require.Equal(t, calls, src.callCount())
	require.Equal(t, first.Primary().Total.Value("amount").Float(), second.Primary().Total.Value("amount").Float())

	refreshed, err := svc.Run(ctx, RunRequest{Report: "sales-by-city", Refresh: true})
	require.NoError(t, err)
	require.False(t, refreshed.Cached)
	require.Greater(t, src.callCount(), calls)

	calls = src.callCount()
	_, err = svc.Bump(ctx)
	require.NoError(t, err)
	_, err = svc.Run(ctx, RunRequest{Report: "sales-by-city"})
	require.NoError(t, err)
	require.Greater(t, src.callCount(), calls)
}

func TestServicePartialRunsAreNotCached(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.fail["sales|month=May"] = errors.New("warehouse timeout")
	cache, _, _ := newTestCache(t)
	svc := newTestService(t, src, WithCache(cache))

	report, err := svc.Run(ctx, RunRequest{Report: "sales-by-city", Axes: map[string][]string{"month": {"Apr", "May"}}})
	require.NoError(t, err)
	require.True(t, report.Partial)
	require.Len(t, report.Primary().Failures, 1)
	require.Equal(t, "May", report.Primary().Failures[0].Selection["month"])
	require.Contains(t, report.Primary().Failures[0].Error, "warehouse timeout")

	calls := src.callCount()
	again, err := svc.Run(ctx, RunRequest{Report: "sales-by-city", Axes: map[string][]string{"month": {"Apr", "May"}}})
	require.NoError(t, err)
	require.False(t, again.Cached)
	require.Greater(t, src.callCount(), calls)
}

func TestServiceFailFast(t *testing.T) {
	src := newFakeSource()
	src.fail["sales|month=Apr"] = errors.New("down")
	svc := newTestService(t, src, WithFailFast(true))

	_, err := svc.Run(context.Background(), RunRequest{Report: "sales-by-city"})
	require.ErrorIs(t, err, rollup.ErrSliceFetch)
}

func TestServiceRejectsBadRequests(t *testing.T) {
	svc := newTestService(t, newFakeSource())
	ctx := context.Background()

	_, err := svc.Run(ctx, RunRequest{Report: "nope"})
	require.ErrorIs(t, err, ErrUnknownReport)
	require.True(t, IsClientError(err))

	_, err = svc.Run(ctx, RunRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Run(ctx, RunRequest{Report: "sales-by-city", Axes: map[string][]string{"region": {"south"}}})
	require.ErrorIs(t, err, ErrInvalidRequest)

	bare := NewService(loadTestCatalog(t), nil)
	_, err = bare.Run(ctx, RunRequest{Report: "sales-by-city"})
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestServiceSharesConcurrentBuilds(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	svc := newTestService(t, src)
	req := RunRequest{Report: "sales-by-city", Axes: map[string][]string{"month": {"May"}}}

	var wg sync.WaitGroup
	reports := make([]Report, 2)
	errs := make([]error, 2)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = svc.Run(context.Background(), req)
		}(i)
		if i == 0 {
			require.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, 5*time.Millisecond)
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, reports[0].RunID, reports[1].RunID)
	require.Equal(t, 1, src.callCount())
}

func TestServiceSharedBuildOutlivesFirstCaller(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	svc := newTestService(t, src)
	req := RunRequest{Report: "sales-by-city"}

	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Run(short, req)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		report Report
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		report, err := svc.Run(context.Background(), req)
		second <- outcome{report, err}
	}()

	require.ErrorIs(t, <-firstErr, context.DeadlineExceeded)
	close(src.gate)

	got := <-second
	require.NoError(t, got.err)
	require.False(t, got.report.Partial)
	require.Empty(t, got.report.Primary().Failures)
	require.Equal(t, 900.0, got.report.Primary().Total.Value("amount").Float())
	require.Equal(t, 2, src.callCount())
}

func TestServiceBuildTimeoutFailsRun(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	defer close(src.gate)
	svc := newTestService(t, src, WithBuildTimeout(20*time.Millisecond))

	_, err := svc.Run(context.Background(), RunRequest{Report: "sales-by-city"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, rollup.ErrSliceFetch)
}

func TestServiceRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	again, err := NewMetrics(reg)
	require.NoError(t, err)
	require.Same(t, metrics.runs, again.runs)

	src := newFakeSource()
	src.fail["sales|month=May"] = errors.New("down")
	svc := newTestService(t, src, WithMetrics(metrics))
	_, err = svc.Run(context.Background(), RunRequest{Report: "sales-by-city"})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	require.Equal(t, 1.0, values["odyssey_reports_runs_total"])
	require.Equal(t, 1.0, values["odyssey_reports_slice_failures_total"])
}

func fieldValues(rows []rollup.Row, field string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Value(field).String()
	}
	return out
}
