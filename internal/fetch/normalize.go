package fetch

import (
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

// Normalizer maps backend field-name variants onto canonical names before
// rows reach the aggregation engine, e.g. city <- City, cityName.
type Normalizer struct {
	// Aliases lists, per canonical field, the variants to look for in
	// priority order. The canonical name itself is always tried first.
	Aliases map[string][]string
	// FoldCase also matches variants that differ only in letter case.
	FoldCase bool
}

// Row rewrites one row. The first present, non-null variant supplies the
// canonical value and every matched variant is dropped. Fields not covered
// by an alias pass through unchanged.
func (n Normalizer) Row(in rollup.Row) rollup.Row {
	if len(n.Aliases) == 0 && !n.FoldCase {
		return in
	}
	fields := in.Fields()
	claimed := make(map[string]string, len(fields))
	for canonical, variants := range n.Aliases {
		candidates := append([]string{canonical}, variants...)
		for _, want := range candidates {
			for _, f := range fields {
				if _, taken := claimed[f]; taken {
					continue
				}
				if f == want || (n.FoldCase && strings.EqualFold(f, want)) {
					claimed[f] = canonical
				}
			}
		}
	}

	var out rollup.Row
	for _, f := range fields {
		canonical, ok := claimed[f]
		if !ok {
			if !out.Has(f) {
				out.Set(f, in.Value(f))
			}
			continue
		}
		if out.Has(canonical) {
			continue
		}
		out.Set(canonical, n.pick(in, canonical, fields, claimed))
	}
	return out
}

// pick walks the variants of canonical in priority order.
func (n Normalizer) pick(in rollup.Row, canonical string, fields []string, claimed map[string]string) rollup.Value {
	candidates := append([]string{canonical}, n.Aliases[canonical]...)
	fallback := rollup.Null
	seen := false
	for _, want := range candidates {
		for _, f := range fields {
			if claimed[f] != canonical {
				continue
			}
			if f == want || (n.FoldCase && strings.EqualFold(f, want)) {
				v := in.Value(f)
				if !v.IsNull() && v.String() != "" {
					return v
				}
				if !seen {
					fallback, seen = v, true
				}
			}
		}
	}
	return fallback
}

// Rows rewrites every row.
func (n Normalizer) Rows(in []rollup.Row) []rollup.Row {
	out := make([]rollup.Row, len(in))
	for i, row := range in {
		out[i] = n.Row(row)
	}
	return out
}

// Wrap decorates next so every fetched row is normalised.
func (n Normalizer) Wrap(next rollup.Fetcher) rollup.Fetcher {
	return rollup.FetchFunc(func(ctx context.Context, sel rollup.Selection) ([]rollup.Row, error) {
		rows, err := next.Fetch(ctx, sel)
		if err != nil {
			return nil, err
		}
		return n.Rows(rows), nil
	})
}
