package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Axis is a filter dimension with its candidate values. An empty value list
// places no restriction on the dimension.
type Axis struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Selection maps axis names to the value chosen for one slice. Axes without
// a constraint are absent.
type Selection map[string]string

// Get returns the value selected for axis.
func (s Selection) Get(axis string) (string, bool) {
	v, ok := s[axis]
	return v, ok
}

// String renders the selection as sorted axis=value pairs, "*" when empty.
func (s Selection) String() string {
	if len(s) == 0 {
		return "*"
	}
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+s[name])
	}
	return strings.Join(parts, ",")
}

// Fetcher returns the rows of one slice.
type Fetcher interface {
	Fetch(ctx context.Context, sel Selection) ([]Row, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, sel Selection) ([]Row, error)

// Fetch calls f.
func (f FetchFunc) Fetch(ctx context.Context, sel Selection) ([]Row, error) {
	return f(ctx, sel)
}

// SliceFailure records a slice whose fetch failed and was skipped.
type SliceFailure struct {
	Index     int
	Selection Selection
	Err       error
}

func (f SliceFailure) Error() string {
	return fmt.Sprintf("slice %d [%s]: %v", f.Index, f.Selection, f.Err)
}

func (f SliceFailure) Unwrap() error { return f.Err }

// Combined is the concatenation of every successfully fetched slice.
type Combined struct {
	Rows     []Row
	Slices   int
	Failures []SliceFailure
}

// Partial reports whether any slice was skipped.
func (c Combined) Partial() bool { return len(c.Failures) > 0 }

// CombineOption tunes CombineSlices.
type CombineOption func(*combineConfig)

type combineConfig struct {
	parallelism int
	failFast    bool
	logger      *slog.Logger
}

// WithParallelism fetches up to n slices at once. Rows are still assembled
// in slice generation order.
func WithParallelism(n int) CombineOption {
	return func(c *combineConfig) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithFailFast aborts on the first failed slice instead of skipping it.
func WithFailFast() CombineOption {
	return func(c *combineConfig) { c.failFast = true }
}

// WithLogger logs skipped slices.
func WithLogger(logger *slog.Logger) CombineOption {
	return func(c *combineConfig) { c.logger = logger }
}

// Selections enumerates the cartesian product of the axes, outermost axis
// first. Axes with no values do not multiply the product and are left out of
// each selection. With no constrained axis a single empty selection results.
func Selections(axes []Axis) []Selection {
	out := []Selection{{}}
	for _, axis := range axes {
		if len(axis.Values) == 0 {
			continue
		}
		next := make([]Selection, 0, len(out)*len(axis.Values))
		for _, sel := range out {
			for _, v := range axis.Values {
				s := make(Selection, len(sel)+1)
				for k, val := range sel {
					s[k] = val
				}
				s[axis.Name] = v
				next = append(next, s)
			}
		}
		out = next
	}
	return out
}

// CombineSlices fetches every selection produced by the axes and
// concatenates the rows in generation order without deduplication. A failed
// slice is skipped and recorded in Combined.Failures. The error return is
// used for a missing fetcher, a done ctx (its error is returned as is) and,
// with WithFailFast, the first failure.
func CombineSlices(ctx context.Context, axes []Axis, fetch Fetcher, opts ...CombineOption) (Combined, error) {
	if fetch == nil {
		return Combined{}, ErrNoFetcher
	}
	cfg := combineConfig{parallelism: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	sels := Selections(axes)
	results := make([][]Row, len(sels))
	errs := make([]error, len(sels))

	if cfg.parallelism <= 1 {
		for i, sel := range sels {
			if err := ctx.Err(); err != nil {
				return Combined{Slices: len(sels)}, err
			}
			results[i], errs[i] = fetch.Fetch(ctx, sel)
			if errs[i] != nil && ctx.Err() != nil {
				return Combined{Slices: len(sels)}, ctx.Err()
			}
			if errs[i] != nil && cfg.failFast {
				return Combined{Slices: len(sels)}, fmt.Errorf("%w: %w", ErrSliceFetch, SliceFailure{Index: i, Selection: sel, Err: errs[i]})
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.parallelism)
		fetchCtx := ctx
		if cfg.failFast {
			fetchCtx = gctx
		}
		for i, sel := range sels {
			g.Go(func() error {
				rows, err := fetch.Fetch(fetchCtx, sel)
				results[i], errs[i] = rows, err
				if err != nil && cfg.failFast {
					return SliceFailure{Index: i, Selection: sel, Err: err}
				}
				return nil
			})
		}
		err := g.Wait()
		if ctx.Err() != nil {
			return Combined{Slices: len(sels)}, ctx.Err()
		}
		if err != nil {
			return Combined{Slices: len(sels)}, fmt.Errorf("%w: %w", ErrSliceFetch, err)
		}
	}

	out := Combined{Slices: len(sels)}
	for i, sel := range sels {
		if errs[i] != nil {
			failure := SliceFailure{Index: i, Selection: sel, Err: errs[i]}
			out.Failures = append(out.Failures, failure)
			if cfg.logger != nil {
				cfg.logger.Warn("skip slice", slog.Int("slice", i), slog.String("selection", sel.String()), slog.Any("error", errs[i]))
			}
			continue
		}
		out.Rows = append(out.Rows, results[i]...)
	}
	return out, nil
}
