package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

// RunRequest asks for one report. Axes override the default candidate
// values of the named axes; Refresh bypasses the cache.
type RunRequest struct {
	Report  string              `json:"-" validate:"required"`
	Axes    map[string][]string `json:"axes" validate:"omitempty,dive,keys,required,endkeys,dive,required"`
	Refresh bool                `json:"refresh"`
}

// Report is a finished run: the primary table followed by its companions.
type Report struct {
	RunID       string              `json:"run_id"`
	Name        string              `json:"name"`
	Title       string              `json:"title,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Selection   map[string][]string `json:"selection,omitempty"`
	Tables      []TableView         `json:"tables"`
	Partial     bool                `json:"partial"`
	Cached      bool                `json:"cached"`
}

// Primary returns the table of the requested report.
func (r Report) Primary() TableView {
	if len(r.Tables) == 0 {
		return TableView{}
	}
	return r.Tables[0]
}

// TableView is one rendered table.
type TableView struct {
	Report    string         `json:"report"`
	Title     string         `json:"title,omitempty"`
	KeyFields []string       `json:"key_fields"`
	Columns   []Column       `json:"columns"`
	Rows      []rollup.Row   `json:"rows"`
	Total     *rollup.Row    `json:"total,omitempty"`
	Slices    int            `json:"slices"`
	Failures  []Failure      `json:"failures,omitempty"`
	Issues    []rollup.Issue `json:"issues,omitempty"`
}

// Failure describes a skipped slice.
type Failure struct {
	Selection map[string]string `json:"selection"`
	Error     string            `json:"error"`
}

// Service runs catalog reports against registered sources.
type Service struct {
	catalog     *Catalog
	sources     *Sources
	cache       *Cache
	metrics     *Metrics
	logger      *slog.Logger
	parallelism  int
	failFast     bool
	buildTimeout time.Duration
	group        singleflight.Group
	now          func() time.Time
}

const defaultBuildTimeout = 2 * time.Minute

// Option configures a Service.
type Option func(*Service)

// WithCache enables result caching.
func WithCache(c *Cache) Option { return func(s *Service) { s.cache = c } }

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithParallelism sets how many slices are fetched concurrently.
func WithParallelism(n int) Option { return func(s *Service) { s.parallelism = n } }

// WithFailFast fails a run on the first slice error for every report.
func WithFailFast(on bool) Option { return func(s *Service) { s.failFast = on } }

// WithBuildTimeout bounds a shared build. Builds run detached from the
// callers waiting on them, so this is the only deadline a build sees.
func WithBuildTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.buildTimeout = d
		}
	}
}

// WithClock overrides the service clock for testing.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the report service.
func NewService(catalog *Catalog, sources *Sources, opts ...Option) *Service {
	s := &Service{
		catalog:      catalog,
		sources:      sources,
		logger:       slog.Default(),
		parallelism:  1,
		buildTimeout: defaultBuildTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sources == nil {
		s.sources = NewSources()
	}
	return s
}

// Catalog exposes the report catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Bump invalidates every cached run.
func (s *Service) Bump(ctx context.Context) (int64, error) {
	ver, err := s.cache.Bump(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("report cache bumped", slog.Int64("version", ver))
	return ver, nil
}

// Run resolves the report, answers from cache when possible and otherwise
// builds it once for all concurrent identical requests. Partial runs are
// returned but never cached.
func (s *Service) Run(ctx context.Context, req RunRequest) (Report, error) {
	if err := validate.Struct(req); err != nil {
		return Report{}, fmt.Errorf("%w: %s", ErrInvalidRequest, describeValidation(err))
	}
	def, err := s.catalog.Get(req.Report)
	if err != nil {
		return Report{}, err
	}
	logger := s.logger.With(slog.String("report", def.Name))

	key, err := s.cache.BuildKey(ctx, def.Name, selectionKey(req.Axes))
	if err != nil {
		logger.Warn("report cache key", slog.Any("error", err))
		key = def.Name + ":" + selectionKey(req.Axes)
	}

	if !req.Refresh && s.cache.Enabled() {
		var cached Report
		hit, err := s.cache.Load(ctx, key, &cached)
		if err != nil {
			logger.Warn("report cache load", slog.Any("error", err))
		}
		if hit {
			s.metrics.cacheHit(def.Name)
			cached.Cached = true
			return cached, nil
		}
		s.metrics.cacheMissed(def.Name)
	}

	val, err, shared := s.shareBuild(ctx, key, func(ctx context.Context) (any, error) {
		return s.build(ctx, def, req.Axes, key, logger)
	})
	if err != nil {
		return Report{}, err
	}
	if shared {
		logger.Debug("report run shared")
	}
	return val.(Report), nil
}

// shareBuild runs fn once per key for all concurrent callers. fn gets a
// context that survives the caller who started it; each caller stops
// waiting when its own ctx is done.
func (s *Service) shareBuild(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := s.group.DoChan(key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		return fn(buildCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}

func (s *Service) build(ctx context.Context, def Definition, overrides map[string][]string, key string, logger *slog.Logger) (Report, error) {
	start := s.now()
	defs := []Definition{def}
	for _, name := range def.Companions {
		companion, err := s.catalog.Get(name)
		if err != nil {
			return Report{}, err
		}
		defs = append(defs, companion)
	}

	plans := make([]rollup.Plan, len(defs))
	fetchers := make([]rollup.Fetcher, len(defs))
	for i, d := range defs {
		axes := overrides
		if i > 0 {
			axes = restrictAxes(d, overrides)
		}
		plan, err := d.Plan(axes)
		if err != nil {
			return Report{}, err
		}
		fetcher, err := s.sources.Fetcher(d)
		if err != nil {
			return Report{}, err
		}
		plans[i] = plan
		fetchers[i] = fetcher
	}

	opts := []rollup.CombineOption{
		rollup.WithParallelism(s.parallelism),
		rollup.WithLogger(logger),
	}
	if s.failFast || def.FailFast {
		opts = append(opts, rollup.WithFailFast())
	}

	var results []rollup.Result
	if len(plans) == 1 {
		res, err := rollup.Run(ctx, plans[0], fetchers[0], opts...)
		if err != nil {
			s.metrics.observeRun(def.Name, StatusFailed, 0, s.now().Sub(start))
			return Report{}, err
		}
		results = []rollup.Result{res}
	} else {
		res, err := rollup.RunAligned(ctx, plans, fetchers, opts...)
		if err != nil {
			s.metrics.observeRun(def.Name, StatusFailed, 0, s.now().Sub(start))
			return Report{}, err
		}
		results = res
	}

	report := Report{
		RunID:       uuid.NewString(),
		Name:        def.Name,
		Title:       def.Title,
		GeneratedAt: s.now().UTC(),
		Selection:   overrides,
		Tables:      make([]TableView, len(results)),
	}
	failures := 0
	for i, res := range results {
		report.Tables[i] = tableView(defs[i], res)
		failures += len(res.Failures)
		if res.Partial() {
			report.Partial = true
		}
		if len(res.Issues) > 0 {
			logger.Debug("lenient aggregation", slog.String("table", defs[i].Name), slog.Int("issues", len(res.Issues)))
		}
	}

	status := StatusComplete
	if report.Partial {
		status = StatusPartial
		logger.Warn("partial report", slog.String("run_id", report.RunID), slog.Int("failed_slices", failures))
	}
	s.metrics.observeRun(def.Name, status, failures, s.now().Sub(start))

	if !report.Partial {
		if err := s.cache.Store(ctx, key, report); err != nil {
			logger.Warn("report cache store", slog.Any("error", err))
		}
	}
	return report, nil
}

func tableView(def Definition, res rollup.Result) TableView {
	data := res.Rows
	var total *rollup.Row
	if t, ok := res.Total(); ok {
		total = &t
		data = data[:len(data)-1]
	}
	view := TableView{
		Report:    def.Name,
		Title:     def.Title,
		KeyFields: append([]string(nil), def.Key.Fields...),
		Columns:   def.ColumnsFor(res.Table.Fields()),
		Rows:      data,
		Total:     total,
		Slices:    res.Slices,
		Issues:    res.Issues,
	}
	for _, f := range res.Failures {
		sel := make(map[string]string, len(f.Selection))
		for k, v := range f.Selection {
			sel[k] = v
		}
		view.Failures = append(view.Failures, Failure{Selection: sel, Error: f.Err.Error()})
	}
	return view
}

// restrictAxes keeps the overrides a companion definition understands.
func restrictAxes(def Definition, overrides map[string][]string) map[string][]string {
	if len(overrides) == 0 {
		return nil
	}
	out := make(map[string][]string, len(overrides))
	for name, values := range overrides {
		if def.hasAxis(name) {
			out[name] = values
		}
	}
	return out
}

// IsClientError reports whether err stems from the request rather than
// from a source or the cache.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnknownReport)
}
