// Package fetch provides the row sources that feed report slices: Postgres,
// any database/sql driver and HTTP backends, plus field-name normalisation
// applied at that boundary.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

var (
	// ErrNoQuery is returned when a source is asked to run an empty query.
	ErrNoQuery = errors.New("fetch: query required")
	// ErrUnexpectedStatus is returned when an HTTP backend answers with a
	// non-success status.
	ErrUnexpectedStatus = errors.New("fetch: unexpected status")
)

// Query is the source-specific statement of a report together with the
// names of the axes it may reference. Params absent from a selection are
// bound as NULL by SQL sources and omitted by HTTP sources.
type Query struct {
	Text   string
	Params []string
}

// Source runs a query for one slice selection.
type Source interface {
	Fetch(ctx context.Context, q Query, sel rollup.Selection) ([]rollup.Row, error)
}

// Bind fixes the query of src so it can be handed to the slice combiner.
func Bind(src Source, q Query) rollup.Fetcher {
	return rollup.FetchFunc(func(ctx context.Context, sel rollup.Selection) ([]rollup.Row, error) {
		if src == nil {
			return nil, fmt.Errorf("fetch: source not configured")
		}
		return src.Fetch(ctx, q, sel)
	})
}

// Static serves a fixed row set for every selection, filtering on axis
// fields the rows carry. It backs demos and tests.
type Static []rollup.Row

// Fetch returns the rows whose fields match every selected axis value.
func (s Static) Fetch(_ context.Context, _ Query, sel rollup.Selection) ([]rollup.Row, error) {
	out := make([]rollup.Row, 0, len(s))
	for _, row := range s {
		if matches(row, sel) {
			out = append(out, row)
		}
	}
	return out, nil
}

func matches(row rollup.Row, sel rollup.Selection) bool {
	for axis, want := range sel {
		v, ok := row.Get(axis)
		if !ok {
			continue
		}
		if v.String() != want {
			return false
		}
	}
	return true
}
