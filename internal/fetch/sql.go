package fetch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

// SQLSource runs report queries through database/sql. Axes are bound with
// sql.Named, so queries reference them as @axis (or :axis and $axis with
// drivers such as go-sqlite3 that accept those prefixes).
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource wraps an open database handle.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Fetch executes q for sel. Only parameters that appear in the query text
// are bound; absent axes are bound as NULL.
func (s *SQLSource) Fetch(ctx context.Context, q Query, sel rollup.Selection) ([]rollup.Row, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("fetch: sql source not configured")
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrNoQuery
	}

	rows, err := s.db.QueryContext(ctx, q.Text, sqlArgs(q.Text, q.Params, sel)...)
	if err != nil {
		return nil, fmt.Errorf("fetch: sql query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("fetch: sql columns: %w", err)
	}

	out := make([]rollup.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("fetch: sql scan: %w", err)
		}
		out = append(out, buildRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch: sql rows: %w", err)
	}
	return out, nil
}

func sqlArgs(query string, params []string, sel rollup.Selection) []any {
	names := make([]string, 0, len(params)+len(sel))
	names = append(names, params...)
	for axis := range sel {
		if !containsName(names, axis) {
			names = append(names, axis)
		}
	}
	args := make([]any, 0, len(names))
	for _, name := range names {
		if !referenced(query, name) {
			continue
		}
		var v any
		if value, ok := sel[name]; ok {
			v = value
		}
		args = append(args, sql.Named(name, v))
	}
	return args
}

func referenced(query, name string) bool {
	for _, prefix := range []string{"@", ":", "$"} {
		token := prefix + name
		idx := 0
		for {
			i := strings.Index(query[idx:], token)
			if i < 0 {
				break
			}
			end := idx + i + len(token)
			if end == len(query) || !isIdentByte(query[end]) {
				return true
			}
			idx = end
		}
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func containsName(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}
