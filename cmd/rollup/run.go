package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-reports/internal/fetch"
	"github.com/odyssey-erp/odyssey-reports/internal/platform/db"
	"github.com/odyssey-erp/odyssey-reports/internal/reports"
	"github.com/odyssey-erp/odyssey-reports/internal/reports/export"
)

const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

type runOptions struct {
	sqlitePath  string
	pgDSN       string
	backendURL  string
	axes        []string
	format      string
	locale      string
	parallelism int
	failFast    bool
}

func runCmd(state *cliState) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <report>",
		Short: "Run one report and print its tables",
		Example: `  rollup run leads-by-city --sqlite crm.db --axis month=Apr,May
  rollup run sales-by-city --backend http://127.0.0.1:9000 --format csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), cmd.OutOrStdout(), state, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.sqlitePath, "sqlite", "", "SQLite database serving source \"sqlite\"")
	flags.StringVar(&opts.pgDSN, "pg", "", "Postgres DSN serving source \"postgres\"")
	flags.StringVar(&opts.backendURL, "backend", "", "HTTP backend serving source \"backend\"")
	flags.StringArrayVar(&opts.axes, "axis", nil, "axis override name=v1,v2 (repeatable)")
	flags.StringVar(&opts.format, "format", formatTable, "output format: table, csv or json")
	flags.StringVar(&opts.locale, "locale", "en", "locale for number formatting")
	flags.IntVar(&opts.parallelism, "parallel", 1, "slices fetched concurrently")
	flags.BoolVar(&opts.failFast, "fail-fast", false, "fail on the first slice error instead of skipping it")
	return cmd
}

func runReport(ctx context.Context, out io.Writer, state *cliState, name string, opts runOptions) error {
	switch opts.format {
	case formatTable, formatCSV, formatJSON:
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
	tag, err := language.Parse(opts.locale)
	if err != nil {
		return fmt.Errorf("locale: %w", err)
	}
	axes, err := parseAxes(opts.axes)
	if err != nil {
		return err
	}
	catalog, err := reports.LoadCatalog(state.v.GetString("catalog"))
	if err != nil {
		return err
	}

	sources := reports.NewSources()
	if opts.sqlitePath != "" {
		conn, err := sql.Open("sqlite3", opts.sqlitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer conn.Close()
		sources.Register("sqlite", fetch.NewSQLSource(conn))
	}
	if opts.pgDSN != "" {
		pool, err := db.New(ctx, opts.pgDSN, 4)
		if err != nil {
			return err
		}
		defer pool.Close()
		sources.Register("postgres", fetch.NewPostgresSource(pool))
	}
	if opts.backendURL != "" {
		sources.Register("backend", fetch.NewHTTPSource(opts.backendURL, 30*time.Second))
	}

	svc := reports.NewService(catalog, sources,
		reports.WithLogger(state.logger),
		reports.WithParallelism(opts.parallelism),
		reports.WithFailFast(opts.failFast),
	)
	report, err := svc.Run(ctx, reports.RunRequest{Report: name, Axes: axes})
	if err != nil {
		return err
	}

	switch opts.format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case formatCSV:
		return export.WriteCSV(out, report, export.NewFormatter(tag, export.WithoutGrouping()))
	default:
		return writeTables(out, report, export.NewFormatter(tag))
	}
}

// parseAxes turns name=v1,v2 flags into request overrides. A bare name
// clears the axis defaults.
func parseAxes(flags []string) (map[string][]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(flags))
	for _, flag := range flags {
		name, raw, _ := strings.Cut(flag, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("axis %q: name required", flag)
		}
		var values []string
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		out[name] = append(out[name], values...)
	}
	return out, nil
}

func writeTables(out io.Writer, report reports.Report, f *export.Formatter) error {
	st := newStyles(out)
	for i, table := range report.Tables {
		if i > 0 {
			fmt.Fprintln(out)
		}
		title := table.Title
		if title == "" {
			title = table.Report
		}
		fmt.Fprintln(out, st.title.Render(title))

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		header := make([]string, len(table.Columns))
		for j, col := range table.Columns {
			header[j] = col.Header()
		}
		fmt.Fprintln(w, strings.Join(header, "\t")+"\t")
		for _, row := range table.Rows {
			fmt.Fprintln(w, strings.Join(f.Row(table.Columns, row), "\t")+"\t")
		}
		if table.Total != nil {
			fmt.Fprintln(w, strings.Join(f.Row(table.Columns, *table.Total), "\t")+"\t")
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for _, failure := range table.Failures {
			fmt.Fprintln(out, st.warn.Render(fmt.Sprintf("skipped %v: %s", failure.Selection, failure.Error)))
		}
	}
	if report.Partial {
		fmt.Fprintln(out, st.muted.Render("partial result: some slices could not be fetched"))
	}
	return nil
}
