package rollup

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingFetcher struct {
	mu    sync.Mutex
	calls []Selection
	rows  map[string][]Row
	fail  map[string]error
	delay map[string]time.Duration
}

func (f *recordingFetcher) Fetch(ctx context.Context, sel Selection) ([]Row, error) {
	key := sel.String()
	f.mu.Lock()
	f.calls = append(f.calls, sel)
	wait := f.delay[key]
	f.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	return f.rows[key], nil
}

func TestSelectionsCartesianProduct(t *testing.T) {
	sels := Selections([]Axis{
		{Name: "month", Values: []string{"Apr", "May"}},
		{Name: "channel"},
		{Name: "city", Values: []string{"A", "B"}},
	})
	got := make([]string, 0, len(sels))
	for _, s := range sels {
		got = append(got, s.String())
	}
	require.Equal(t, []string{
		"city=A,month=Apr",
		"city=B,month=Apr",
		"city=A,month=May",
		"city=B,month=May",
	}, got)
	_, constrained := sels[0].Get("channel")
	require.False(t, constrained)
}

func TestCombineSlicesUnfilteredFetchesOnce(t *testing.T) {
	fetcher := &recordingFetcher{rows: map[string][]Row{"*": {RowOf("city", "X")}}}
	combined, err := CombineSlices(context.Background(), []Axis{{Name: "month"}, {Name: "quarter"}}, fetcher)
	require.NoError(t, err)
	require.Len(t, fetcher.calls, 1)
	require.Empty(t, fetcher.calls[0])
	require.Equal(t, 1, combined.Slices)
	require.Len(t, combined.Rows, 1)

	fetcher.calls = nil
	_, err = CombineSlices(context.Background(), nil, fetcher)
	require.NoError(t, err)
	require.Len(t, fetcher.calls, 1)
}

func TestCombineSlicesConcatenatesInGenerationOrder(t *testing.T) {
	fetcher := &recordingFetcher{rows: map[string][]Row{
		"month=Apr": {RowOf("month", "Apr", "v", 1), RowOf("month", "Apr", "v", 2)},
		"month=May": {RowOf("month", "May", "v", 3)},
	}}
	combined, err := CombineSlices(context.Background(), []Axis{{Name: "month", Values: []string{"Apr", "May"}}}, fetcher)
	require.NoError(t, err)
	require.Equal(t, "Apr", fetcher.calls[0]["month"])
	require.Equal(t, "May", fetcher.calls[1]["month"])
	require.Len(t, combined.Rows, 3)
	require.Equal(t, "Apr", combined.Rows[0].Value("month").String())
	require.Equal(t, "May", combined.Rows[2].Value("month").String())
	require.False(t, combined.Partial())
}

func TestCombineSlicesParallelKeepsGenerationOrder(t *testing.T) {
	fetcher := &recordingFetcher{
		rows: map[string][]Row{
			"month=Apr": {RowOf("month", "Apr")},
			"month=May": {RowOf("month", "May")},
			"month=Jun": {RowOf("month", "Jun")},
		},
		// Apr resolves last.
		delay: map[string]time.Duration{"month=Apr": 60 * time.Millisecond, "month=May": 20 * time.Millisecond},
	}
	axes := []Axis{{Name: "month", Values: []string{"Apr", "May", "Jun"}}}
	combined, err := CombineSlices(context.Background(), axes, fetcher, WithParallelism(3))
	require.NoError(t, err)
	require.Len(t, combined.Rows, 3)
	require.Equal(t, "Apr", combined.Rows[0].Value("month").String())
	require.Equal(t, "May", combined.Rows[1].Value("month").String())
	require.Equal(t, "Jun", combined.Rows[2].Value("month").String())
}

func TestCombineSlicesSkipsFailedSlice(t *testing.T) {
	boom := errors.New("backend 502")
	fetcher := &recordingFetcher{
		rows: map[string][]Row{"month=Apr": {RowOf("month", "Apr", "v", 1)}},
		fail: map[string]error{"month=May": boom},
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	combined, err := CombineSlices(context.Background(), []Axis{{Name: "month", Values: []string{"Apr", "May"}}}, fetcher, WithLogger(logger))
	require.NoError(t, err)
	require.Len(t, combined.Rows, 1)
	require.True(t, combined.Partial())
	require.Len(t, combined.Failures, 1)
	require.Equal(t, 1, combined.Failures[0].Index)
	require.Equal(t, "May", combined.Failures[0].Selection["month"])
	require.ErrorIs(t, combined.Failures[0], boom)
	require.Contains(t, logs.String(), "skip slice")
}

func TestCombineSlicesParallelSkipsFailedSlice(t *testing.T) {
	boom := errors.New("timeout")
	fetcher := &recordingFetcher{
		rows: map[string][]Row{"month=Apr": {RowOf("month", "Apr")}, "month=Jun": {RowOf("month", "Jun")}},
		fail: map[string]error{"month=May": boom},
	}
	axes := []Axis{{Name: "month", Values: []string{"Apr", "May", "Jun"}}}
	combined, err := CombineSlices(context.Background(), axes, fetcher, WithParallelism(2))
	require.NoError(t, err)
	require.Len(t, combined.Rows, 2)
	require.Len(t, combined.Failures, 1)
	require.Equal(t, 3, combined.Slices)
}

func TestCombineSlicesFailFast(t *testing.T) {
	boom := errors.New("boom")
	fetcher := &recordingFetcher{fail: map[string]error{"month=Apr": boom}}
	axes := []Axis{{Name: "month", Values: []string{"Apr", "May"}}}

	_, err := CombineSlices(context.Background(), axes, fetcher, WithFailFast())
	require.ErrorIs(t, err, ErrSliceFetch)
	require.ErrorIs(t, err, boom)
	require.Len(t, fetcher.calls, 1)

	_, err = CombineSlices(context.Background(), axes, &recordingFetcher{fail: map[string]error{"month=May": boom}}, WithFailFast(), WithParallelism(2))
	require.ErrorIs(t, err, ErrSliceFetch)
}

func TestCombineSlicesStopsWhenContextDone(t *testing.T) {
	axes := []Axis{{Name: "month", Values: []string{"Apr", "May", "Jun"}}}
	slow := map[string]time.Duration{"month=Apr": time.Second, "month=May": time.Second, "month=Jun": time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	fetcher := &recordingFetcher{delay: slow}
	combined, err := CombineSlices(ctx, axes, fetcher)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrSliceFetch)
	require.Empty(t, combined.Failures)
	require.Len(t, fetcher.calls, 1)

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	combined, err = CombineSlices(ctx, axes, &recordingFetcher{delay: slow}, WithParallelism(3))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, combined.Failures)

	canceled, stop := context.WithCancel(context.Background())
	stop()
	fetcher = &recordingFetcher{}
	_, err = CombineSlices(canceled, axes, fetcher)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fetcher.calls)
}

func TestCombineSlicesRequiresFetcher(t *testing.T) {
	_, err := CombineSlices(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNoFetcher)
}
