package reports

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-reports/internal/fetch"
	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

// Rule kinds accepted in a definition.
const (
	RuleSum     = "sum"
	RuleAverage = "average"
	RuleRatio   = "ratio"
	RulePercent = "percent"
)

// Column formats accepted in a definition.
const (
	FormatText    = "text"
	FormatNumber  = "number"
	FormatPercent = "percent"
)

// Definition declares one report of the catalog.
type Definition struct {
	Name         string              `mapstructure:"name" json:"name" validate:"required,max=64"`
	Title        string              `mapstructure:"title" json:"title"`
	Source       string              `mapstructure:"source" json:"source" validate:"required"`
	Query        string              `mapstructure:"query" json:"-" validate:"required"`
	Axes         []AxisDef           `mapstructure:"axes" json:"axes" validate:"dive"`
	Key          KeyDef              `mapstructure:"key" json:"key"`
	Measures     []string            `mapstructure:"measures" json:"measures" validate:"dive,required"`
	Rules        map[string]RuleDef  `mapstructure:"rules" json:"rules,omitempty" validate:"dive"`
	Priority     *PriorityDef        `mapstructure:"priority" json:"priority,omitempty"`
	TotalLabel   string              `mapstructure:"total_label" json:"total_label,omitempty"`
	SkipTotal    bool                `mapstructure:"skip_total" json:"skip_total,omitempty"`
	Columns      []Column            `mapstructure:"columns" json:"columns,omitempty" validate:"dive"`
	Aliases      map[string][]string `mapstructure:"aliases" json:"-"`
	Companions   []string            `mapstructure:"companions" json:"companions,omitempty"`
	StrictKeys   bool                `mapstructure:"strict_keys" json:"strict_keys,omitempty"`
	DeriveRatios bool                `mapstructure:"derive_ratios" json:"derive_ratios,omitempty"`
	FailFast     bool                `mapstructure:"fail_fast" json:"fail_fast,omitempty"`
	Locale       string              `mapstructure:"locale" json:"locale,omitempty"`
}

// AxisDef is a filter dimension with its default candidate values.
type AxisDef struct {
	Name   string   `mapstructure:"name" json:"name" validate:"required"`
	Values []string `mapstructure:"values" json:"values"`
}

// KeyDef names the grouping fields.
type KeyDef struct {
	Fields    []string `mapstructure:"fields" json:"fields" validate:"required,min=1,max=2,dive,required"`
	Separator string   `mapstructure:"separator" json:"separator,omitempty"`
}

// RuleDef is the total-row rule of a column.
type RuleDef struct {
	Kind        string `mapstructure:"kind" json:"kind" validate:"required,oneof=sum average ratio percent"`
	Numerator   string `mapstructure:"numerator" json:"numerator,omitempty" validate:"required_if=Kind ratio,required_if=Kind percent"`
	Denominator string `mapstructure:"denominator" json:"denominator,omitempty" validate:"required_if=Kind ratio,required_if=Kind percent"`
}

// PriorityDef is the display order of the identity key field.
type PriorityDef struct {
	Field     string   `mapstructure:"field" json:"field" validate:"required"`
	Values    []string `mapstructure:"values" json:"values"`
	Secondary string   `mapstructure:"secondary" json:"secondary,omitempty"`
}

// Column describes how one field is presented.
type Column struct {
	Field    string `mapstructure:"field" json:"field" validate:"required"`
	Title    string `mapstructure:"title" json:"title,omitempty"`
	Format   string `mapstructure:"format" json:"format,omitempty" validate:"omitempty,oneof=text number percent"`
	Decimals int    `mapstructure:"decimals" json:"decimals,omitempty" validate:"min=0,max=6"`
}

// Header returns the column title, falling back to the field name.
func (c Column) Header() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return c.Field
}

// KeySpec converts the key definition.
func (d Definition) KeySpec() rollup.KeySpec {
	spec := rollup.KeySpec{Fields: append([]string(nil), d.Key.Fields...)}
	return spec.WithSeparator(d.Key.Separator)
}

// AxisNames returns the declared axis names in order.
func (d Definition) AxisNames() []string {
	names := make([]string, len(d.Axes))
	for i, a := range d.Axes {
		names[i] = a.Name
	}
	return names
}

// FetchQuery returns the source query of d.
func (d Definition) FetchQuery() fetch.Query {
	return fetch.Query{Text: d.Query, Params: d.AxisNames()}
}

// Normalizer returns the alias mapping of d.
func (d Definition) Normalizer() fetch.Normalizer {
	return fetch.Normalizer{Aliases: d.Aliases, FoldCase: true}
}

// Plan builds the rollup plan for the given axis overrides. Axes missing
// from overrides keep their defaults; an override with no values removes
// the restriction on that axis.
func (d Definition) Plan(overrides map[string][]string) (rollup.Plan, error) {
	for name := range overrides {
		if !d.hasAxis(name) {
			return rollup.Plan{}, fmt.Errorf("%w: %q has no axis %q", ErrInvalidRequest, d.Name, name)
		}
	}
	axes := make([]rollup.Axis, len(d.Axes))
	for i, a := range d.Axes {
		values := a.Values
		if override, ok := overrides[a.Name]; ok {
			values = override
		}
		axes[i] = rollup.Axis{Name: a.Name, Values: cleanValues(values)}
	}

	rules := make(map[string]rollup.ColumnRule, len(d.Rules))
	for field, r := range d.Rules {
		rule, err := r.columnRule()
		if err != nil {
			return rollup.Plan{}, fmt.Errorf("report %q column %q: %w", d.Name, field, err)
		}
		rules[field] = rule
	}

	plan := rollup.Plan{
		Name:         d.Name,
		Axes:         axes,
		Key:          d.KeySpec(),
		Measures:     append([]string(nil), d.Measures...),
		Rules:        rules,
		TotalLabel:   d.TotalLabel,
		SkipTotal:    d.SkipTotal,
		StrictKeys:   d.StrictKeys,
		DeriveRatios: d.DeriveRatios,
	}
	if d.Priority != nil {
		plan.Priority = &rollup.Priority{
			Field:     d.Priority.Field,
			Values:    append([]string(nil), d.Priority.Values...),
			Secondary: d.Priority.Secondary,
		}
	}
	if d.Locale != "" {
		tag, err := language.Parse(d.Locale)
		if err != nil {
			return rollup.Plan{}, fmt.Errorf("report %q locale: %w", d.Name, err)
		}
		plan.Locale = tag
	}
	return plan, plan.Validate()
}

// ColumnsFor returns the presentation columns, deriving them from the row
// fields when none are declared.
func (d Definition) ColumnsFor(fields []string) []Column {
	if len(d.Columns) > 0 {
		return d.Columns
	}
	cols := make([]Column, 0, len(fields))
	for _, f := range fields {
		col := Column{Field: f, Format: FormatText}
		if rule, ok := d.Rules[f]; ok {
			col.Format = FormatNumber
			col.Decimals = 0
			if rule.Kind == RulePercent {
				col.Format = FormatPercent
				col.Decimals = 2
			}
			if rule.Kind == RuleAverage || rule.Kind == RuleRatio {
				col.Decimals = 2
			}
		} else if containsString(d.Measures, f) {
			col.Format = FormatNumber
		}
		cols = append(cols, col)
	}
	return cols
}

func (d Definition) hasAxis(name string) bool {
	for _, a := range d.Axes {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (r RuleDef) columnRule() (rollup.ColumnRule, error) {
	switch strings.ToLower(strings.TrimSpace(r.Kind)) {
	case RuleSum:
		return rollup.Sum(), nil
	case RuleAverage:
		return rollup.Average(), nil
	case RuleRatio:
		return rollup.Ratio(r.Numerator, r.Denominator), nil
	case RulePercent:
		return rollup.Percent(r.Numerator, r.Denominator), nil
	default:
		return rollup.ColumnRule{}, fmt.Errorf("%w: kind %q", rollup.ErrInvalidRule, r.Kind)
	}
}

// selectionKey renders overrides deterministically for cache keys.
func selectionKey(overrides map[string][]string) string {
	if len(overrides) == 0 {
		return "default"
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strings.Join(cleanValues(overrides[name]), ",")
	}
	return strings.Join(parts, ";")
}

func cleanValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
