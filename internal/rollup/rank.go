package rollup

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Priority orders rows by a list of values that must come first.
type Priority struct {
	Field     string   `json:"field"`
	Values    []string `json:"values"`
	Secondary string   `json:"secondary,omitempty"`
}

// Rank orders rows with English collation. See RankWithLocale.
func Rank(rows []Row, field string, priority []string, secondary string) []Row {
	return RankWithLocale(language.English, rows, field, priority, secondary)
}

// RankWithLocale returns a new ordering of rows: rows whose field value is
// listed in priority come first by list position, then the remaining rows in
// ascending collation order of field, and rows lacking field last. Ties are
// broken by secondary when given and otherwise keep their input order.
func RankWithLocale(tag language.Tag, rows []Row, field string, priority []string, secondary string) []Row {
	index := make(map[string]int, len(priority))
	for i, v := range priority {
		if _, ok := index[v]; !ok {
			index[v] = i
		}
	}

	type entry struct {
		row       Row
		class     int
		pos       int
		primary   string
		second    string
		hasSecond bool
	}
	entries := make([]entry, len(rows))
	for i, row := range rows {
		e := entry{row: row}
		v := row.Value(field)
		switch {
		case v.IsNull():
			e.class = 2
		default:
			e.primary = v.String()
			if pos, ok := index[e.primary]; ok {
				e.class, e.pos = 0, pos
			} else {
				e.class = 1
			}
		}
		if secondary != "" {
			if sv := row.Value(secondary); !sv.IsNull() {
				e.second, e.hasSecond = sv.String(), true
			}
		}
		entries[i] = e
	}

	col := collate.New(tag)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.class != b.class {
			return a.class < b.class
		}
		switch a.class {
		case 0:
			if a.pos != b.pos {
				return a.pos < b.pos
			}
		case 1:
			if c := col.CompareString(a.primary, b.primary); c != 0 {
				return c < 0
			}
		}
		if secondary == "" || a.hasSecond != b.hasSecond {
			return a.hasSecond && !b.hasSecond
		}
		return col.CompareString(a.second, b.second) < 0
	})

	out := make([]Row, len(entries))
	for i, e := range entries {
		out[i] = e.row
	}
	return out
}
