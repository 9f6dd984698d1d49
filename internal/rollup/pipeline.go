package rollup

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"
)

// Plan describes one report: how to slice the fetch, how to group and merge
// rows, how to total and how to order them.
type Plan struct {
	Name     string
	Axes     []Axis
	Key      KeySpec
	Measures []string
	Rules    map[string]ColumnRule
	Priority *Priority
	// TotalLabel labels the total row; "" uses LabelGrandTotal.
	TotalLabel string
	// SkipTotal disables the total row.
	SkipTotal bool
	// Locale drives collation when ranking; the zero tag means English.
	Locale language.Tag
	// StrictKeys turns a missing key field into ErrKeyFieldMissing.
	StrictKeys bool
	// DeriveRatios fills ratio rule columns on every data row as well as on
	// the total row.
	DeriveRatios bool
}

// Validate checks the key spec and rules.
func (p Plan) Validate() error {
	if err := p.Key.Validate(); err != nil {
		return fmt.Errorf("plan %q: %w", p.Name, err)
	}
	for field, rule := range p.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("plan %q column %q: %w", p.Name, field, err)
		}
	}
	return nil
}

// Result is the outcome of one report run.
type Result struct {
	// Table holds the aggregated rows in first-seen order plus the total.
	Table *Table
	// Rows holds the ranked data rows followed by the total row.
	Rows     []Row
	Slices   int
	Failures []SliceFailure
	Issues   []Issue
}

// Partial reports whether any slice was skipped.
func (r Result) Partial() bool { return len(r.Failures) > 0 }

// Total returns the total row.
func (r Result) Total() (Row, bool) { return r.Table.Total() }

// Build aggregates already fetched rows according to p, then totals and
// ranks them.
func Build(p Plan, rows []Row) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	table, issues, err := p.aggregate(rows)
	if err != nil {
		return Result{Issues: issues}, err
	}
	return p.finish(table, issues), nil
}

// Run combines the slices of p through fetch and builds the result. Failed
// slices are carried in Result.Failures unless WithFailFast is given.
func Run(ctx context.Context, p Plan, fetch Fetcher, opts ...CombineOption) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	combined, err := CombineSlices(ctx, p.Axes, fetch, opts...)
	if err != nil {
		return Result{Slices: combined.Slices}, err
	}
	table, issues, err := p.aggregate(combined.Rows)
	if err != nil {
		return Result{Slices: combined.Slices, Failures: combined.Failures, Issues: issues}, err
	}
	res := p.finish(table, issues)
	res.Slices = combined.Slices
	res.Failures = combined.Failures
	return res, nil
}

// RunAligned runs several plans that share key fields, synchronizes their
// tables so each holds the same keys, then totals every table. Only the
// first plan is ranked; every other table takes the lead table's key order,
// so row i refers to the same entity everywhere even when the priority field
// exists in the lead table alone.
func RunAligned(ctx context.Context, plans []Plan, fetchers []Fetcher, opts ...CombineOption) ([]Result, error) {
	if len(plans) == 0 {
		return nil, nil
	}
	if len(fetchers) != len(plans) {
		return nil, fmt.Errorf("rollup: %d plans but %d fetchers", len(plans), len(fetchers))
	}
	keyFields := plans[0].Key.Fields
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if !p.Key.SameFields(keyFields) {
			return nil, fmt.Errorf("%w: %q groups by %v, %q by %v", ErrKeyMismatch, plans[0].Name, keyFields, p.Name, p.Key.Fields)
		}
	}

	tables := make([]*Table, len(plans))
	results := make([]Result, len(plans))
	for i, p := range plans {
		combined, err := CombineSlices(ctx, p.Axes, fetchers[i], opts...)
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", p.Name, err)
		}
		table, issues, err := p.aggregate(combined.Rows)
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", p.Name, err)
		}
		tables[i] = table
		results[i] = Result{Slices: combined.Slices, Failures: combined.Failures, Issues: issues}
	}

	aligned := Synchronize(tables, keyFields)
	var order []string
	for i, p := range plans {
		if i > 0 {
			p.Priority = nil
		}
		finished := p.finish(aligned[i], results[i].Issues)
		if i == 0 {
			order = rowKeys(finished, p.Key)
		} else {
			finished.Rows = orderRows(finished, p.Key, order)
		}
		finished.Slices = results[i].Slices
		finished.Failures = results[i].Failures
		results[i] = finished
	}
	return results, nil
}

// dataRows splits res.Rows into data rows and the trailing total, if any.
func (r Result) dataRows() (data, total []Row) {
	if _, ok := r.Table.Total(); ok && len(r.Rows) > 0 {
		return r.Rows[:len(r.Rows)-1], r.Rows[len(r.Rows)-1:]
	}
	return r.Rows, nil
}

func rowKeys(res Result, spec KeySpec) []string {
	data, _ := res.dataRows()
	keys := make([]string, len(data))
	for i, row := range data {
		keys[i] = spec.Key(row)
	}
	return keys
}

// orderRows lays out the data rows of res in the given key order. Keys the
// order does not name keep their relative position after the named ones.
func orderRows(res Result, spec KeySpec, order []string) []Row {
	data, total := res.dataRows()
	byKey := make(map[string]Row, len(data))
	for _, row := range data {
		byKey[spec.Key(row)] = row
	}
	out := make([]Row, 0, len(res.Rows))
	for _, key := range order {
		if row, ok := byKey[key]; ok {
			out = append(out, row)
			delete(byKey, key)
		}
	}
	for _, row := range data {
		if _, ok := byKey[spec.Key(row)]; ok {
			out = append(out, row)
		}
	}
	return append(out, total...)
}

func (p Plan) aggregate(rows []Row) (*Table, []Issue, error) {
	table, issues := AggregateChecked(rows, p.Key, p.Measures)
	if p.StrictKeys {
		var errs []error
		for _, issue := range issues {
			if issue.Kind == IssueMissingKeyField {
				errs = append(errs, fmt.Errorf("%w: row %d lacks %q", ErrKeyFieldMissing, issue.Index, issue.Field))
			}
		}
		if len(errs) > 0 {
			return nil, issues, errors.Join(errs...)
		}
	}
	return table, issues, nil
}

func (p Plan) finish(table *Table, issues []Issue) Result {
	if p.DeriveRatios {
		table = DeriveRatios(table, p.Rules)
	}
	if !p.SkipTotal {
		table = AppendGrandTotal(table, p.Rules, WithLabel(p.TotalLabel))
	}
	rows := table.DataRows()
	if p.Priority != nil && p.Priority.Field != "" {
		tag := p.Locale
		if tag == language.Und {
			tag = language.English
		}
		rows = RankWithLocale(tag, rows, p.Priority.Field, p.Priority.Values, p.Priority.Secondary)
	}
	if total, ok := table.Total(); ok {
		rows = append(rows, total)
	}
	return Result{Table: table, Rows: rows, Issues: issues}
}
