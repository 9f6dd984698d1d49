package reportshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-reports/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-reports/internal/reports"
	"github.com/odyssey-erp/odyssey-reports/internal/reports/export"
	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

const defaultRequestTimeout = 30 * time.Second

// Service is the report runner the handler drives.
type Service interface {
	Run(ctx context.Context, req reports.RunRequest) (reports.Report, error)
	Catalog() *reports.Catalog
	Bump(ctx context.Context) (int64, error)
}

// Handler serves the report HTTP API.
type Handler struct {
	logger         *slog.Logger
	service        Service
	requestTimeout time.Duration
	exportLimit    int
	exportWindow   time.Duration
	csvPool        sync.Pool
}

// HandlerOption tunes a Handler.
type HandlerOption func(*Handler)

// WithRequestTimeout bounds each report run.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

// WithExportLimit sets how many CSV exports a client may request per window.
func WithExportLimit(n int, window time.Duration) HandlerOption {
	return func(h *Handler) {
		if n > 0 && window > 0 {
			h.exportLimit, h.exportWindow = n, window
		}
	}
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service Service, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:         logger,
		service:        service,
		requestTimeout: defaultRequestTimeout,
		exportLimit:    rateLimit,
		exportWindow:   rateWindow,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

type catalogEntry struct {
	Name       string            `json:"name"`
	Title      string            `json:"title,omitempty"`
	Axes       []reports.AxisDef `json:"axes"`
	KeyFields  []string          `json:"key_fields"`
	Measures   []string          `json:"measures,omitempty"`
	Companions []string          `json:"companions,omitempty"`
}

type runBody struct {
	Axes    map[string][]string `json:"axes"`
	Refresh bool                `json:"refresh"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	defs := h.service.Catalog().Definitions()
	out := make([]catalogEntry, 0, len(defs))
	for _, def := range defs {
		out = append(out, catalogEntry{
			Name:       def.Name,
			Title:      def.Title,
			Axes:       def.Axes,
			KeyFields:  def.Key.Fields,
			Measures:   def.Measures,
			Companions: def.Companions,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reports": out})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: decode body: %v", httpx.ErrValidation, err))
		return
	}
	report, err := h.run(r, reports.RunRequest{
		Report:  chi.URLParam(r, "name"),
		Axes:    body.Axes,
		Refresh: body.Refresh,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	req, tag, err := parseExportQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Report = chi.URLParam(r, "name")
	report, err := h.run(r, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	var formatter *export.Formatter
	if tag != language.Und {
		formatter = export.NewFormatter(tag, export.WithoutGrouping())
	}
	if err := export.WriteCSV(buf, report, formatter); err != nil {
		h.respondError(w, r, fmt.Errorf("write csv: %w", err))
		return
	}
	filename := fmt.Sprintf("%s-%s.csv", report.Name, report.GeneratedAt.Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if report.Partial {
		w.Header().Set("X-Report-Partial", "true")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) handleBump(w http.ResponseWriter, r *http.Request) {
	ver, err := h.service.Bump(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"version": ver})
}

func (h *Handler) run(r *http.Request, req reports.RunRequest) (reports.Report, error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()
	return h.service.Run(ctx, req)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reports.ErrUnknownReport):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, reports.ErrInvalidRequest):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, rollup.ErrSliceFetch), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("report source failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
	default:
		h.logger.Error("report request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// parseExportQuery reads axis overrides from the query string. Values are
// comma separated; refresh and locale are reserved parameter names.
func parseExportQuery(r *http.Request) (reports.RunRequest, language.Tag, error) {
	var req reports.RunRequest
	tag := language.Und
	for name, values := range r.URL.Query() {
		switch name {
		case "refresh":
			on, err := strconv.ParseBool(values[0])
			if err != nil {
				return req, tag, fmt.Errorf("%w: refresh: %v", httpx.ErrValidation, err)
			}
			req.Refresh = on
		case "locale":
			parsed, err := language.Parse(values[0])
			if err != nil {
				return req, tag, fmt.Errorf("%w: locale: %v", httpx.ErrValidation, err)
			}
			tag = parsed
		default:
			if req.Axes == nil {
				req.Axes = make(map[string][]string)
			}
			for _, v := range values {
				for _, part := range strings.Split(v, ",") {
					if part = strings.TrimSpace(part); part != "" {
						req.Axes[name] = append(req.Axes[name], part)
					}
				}
			}
		}
	}
	return req, tag, nil
}
