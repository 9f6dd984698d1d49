package rollup

import "fmt"

// IssueKind classifies data-quality findings raised while aggregating.
type IssueKind string

const (
	// IssueMalformedNumber marks a measure value that did not parse; it was
	// summed as 0.
	IssueMalformedNumber IssueKind = "malformed_number"
	// IssueMissingKeyField marks a row without one of the key fields; the
	// component was taken as "".
	IssueMissingKeyField IssueKind = "missing_key_field"
)

// Issue describes one lenient recovery performed during aggregation.
type Issue struct {
	Kind  IssueKind `json:"kind"`
	Index int       `json:"index"`
	Field string    `json:"field"`
	Key   string    `json:"key"`
	Raw   string    `json:"raw,omitempty"`
}

func (i Issue) String() string {
	if i.Raw != "" {
		return fmt.Sprintf("%s: row %d field %q (key %q) value %q", i.Kind, i.Index, i.Field, i.Key, i.Raw)
	}
	return fmt.Sprintf("%s: row %d field %q (key %q)", i.Kind, i.Index, i.Field, i.Key)
}

// Aggregate groups rows by spec and sums the measure fields of rows sharing
// a key. The first row seen under a key is copied as-is, so every
// non-measure field keeps its first value. Measures of later rows are added
// numerically with unparsable or missing values counting as 0. A key field
// absent from a row contributes "" to the key, so rows lacking every key
// field collapse into a single entry.
func Aggregate(rows []Row, spec KeySpec, measures []string) *Table {
	t, _ := aggregate(rows, spec, measures)
	return t
}

// AggregateChecked behaves like Aggregate and also reports every malformed
// measure value and missing key field it recovered from.
func AggregateChecked(rows []Row, spec KeySpec, measures []string) (*Table, []Issue) {
	return aggregate(rows, spec, measures)
}

func aggregate(rows []Row, spec KeySpec, measures []string) (*Table, []Issue) {
	t := NewTable(spec)
	var issues []Issue
	for i, row := range rows {
		parts, missing := spec.Components(row)
		key := spec.Join(parts)
		for _, f := range missing {
			issues = append(issues, Issue{Kind: IssueMissingKeyField, Index: i, Field: f, Key: key})
		}
		for _, m := range measures {
			v := row.Value(m)
			if _, bad := coerce(v); bad {
				issues = append(issues, Issue{Kind: IssueMalformedNumber, Index: i, Field: m, Key: key, Raw: v.String()})
			}
		}

		existing, ok := t.rows[key]
		if !ok {
			t.put(key, parts, row.Clone())
			continue
		}
		for _, m := range measures {
			sum := existing.Value(m).Float() + row.Value(m).Float()
			existing.Set(m, Num(sum))
		}
		t.rows[key] = existing
	}
	return t, issues
}
