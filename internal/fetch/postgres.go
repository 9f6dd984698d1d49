package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

// Querier is the subset of pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource runs report queries against Postgres. Queries reference
// axes as named arguments, e.g.
//
//	SELECT city, SUM(leads) AS leads FROM lead_facts
//	WHERE (@month::text IS NULL OR month = @month) GROUP BY city
type PostgresSource struct {
	db Querier
}

// NewPostgresSource wraps a pgx pool or connection.
func NewPostgresSource(db Querier) *PostgresSource {
	return &PostgresSource{db: db}
}

// Fetch executes q with the selection bound as pgx.NamedArgs.
func (s *PostgresSource) Fetch(ctx context.Context, q Query, sel rollup.Selection) ([]rollup.Row, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("fetch: postgres source not configured")
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrNoQuery
	}
	rows, err := s.db.Query(ctx, q.Text, namedArgs(q.Params, sel))
	if err != nil {
		return nil, fmt.Errorf("fetch: postgres query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	out := make([]rollup.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("fetch: postgres values: %w", err)
		}
		out = append(out, buildRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch: postgres rows: %w", err)
	}
	return out, nil
}

func namedArgs(params []string, sel rollup.Selection) pgx.NamedArgs {
	args := make(pgx.NamedArgs, len(params)+len(sel))
	for _, p := range params {
		args[p] = nil
	}
	for axis, value := range sel {
		args[axis] = value
	}
	return args
}
