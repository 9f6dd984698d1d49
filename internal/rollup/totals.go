package rollup

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Total row labels.
const (
	LabelGrandTotal = "Grand Total"
	LabelTotal      = "TOTAL"
)

// RuleKind selects how a column combines on the total row.
type RuleKind uint8

const (
	// RuleSum adds the column over all data rows.
	RuleSum RuleKind = iota + 1
	// RuleAverage divides the column sum by the number of data rows.
	RuleAverage
	// RuleRatio divides the sum of a numerator column by the sum of a
	// denominator column.
	RuleRatio
)

func (k RuleKind) String() string {
	switch k {
	case RuleSum:
		return "sum"
	case RuleAverage:
		return "average"
	case RuleRatio:
		return "ratio"
	default:
		return "unknown"
	}
}

// ColumnRule is the total-row combination rule of one measure column.
type ColumnRule struct {
	Kind        RuleKind
	Numerator   string
	Denominator string
	// Scale multiplies ratio results; 100 yields a percentage. Zero means 1.
	Scale float64
}

// Sum totals a column by addition.
func Sum() ColumnRule { return ColumnRule{Kind: RuleSum} }

// Average totals a column by its mean over every data row.
func Average() ColumnRule { return ColumnRule{Kind: RuleAverage} }

// Ratio totals a column as sum(num) / sum(den).
func Ratio(num, den string) ColumnRule {
	return ColumnRule{Kind: RuleRatio, Numerator: num, Denominator: den, Scale: 1}
}

// Percent totals a column as sum(num) / sum(den) * 100.
func Percent(num, den string) ColumnRule {
	return ColumnRule{Kind: RuleRatio, Numerator: num, Denominator: den, Scale: 100}
}

// Validate checks that ratio rules name both operands.
func (r ColumnRule) Validate() error {
	switch r.Kind {
	case RuleSum, RuleAverage:
		return nil
	case RuleRatio:
		if strings.TrimSpace(r.Numerator) == "" || strings.TrimSpace(r.Denominator) == "" {
			return fmt.Errorf("%w: ratio needs numerator and denominator", ErrInvalidRule)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidRule, r.Kind)
	}
}

func (r ColumnRule) String() string {
	if r.Kind == RuleRatio {
		return fmt.Sprintf("ratio(%s/%s x%g)", r.Numerator, r.Denominator, r.scale())
	}
	return r.Kind.String()
}

func (r ColumnRule) scale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// TotalOption tunes AppendGrandTotal.
type TotalOption func(*totalConfig)

type totalConfig struct {
	label string
}

// WithLabel sets the identity-field label of the total row.
func WithLabel(label string) TotalOption {
	return func(c *totalConfig) {
		if label != "" {
			c.label = label
		}
	}
}

// AppendGrandTotal returns a copy of t carrying a total row computed from
// the data rows only, so an existing total is replaced rather than summed.
// The identity key field holds the label, other key fields "", columns with
// no rule null. Divisions by zero yield 0.
func AppendGrandTotal(t *Table, rules map[string]ColumnRule, opts ...TotalOption) *Table {
	if t == nil {
		return nil
	}
	cfg := totalConfig{label: LabelGrandTotal}
	for _, opt := range opts {
		opt(&cfg)
	}

	data := t.DataRows()
	sum := func(field string) float64 {
		var s float64
		for _, row := range data {
			s += row.Value(field).Float()
		}
		return s
	}

	fields, _ := t.schema()
	ruleFields := make([]string, 0, len(rules))
	for f := range rules {
		if !contains(fields, f) {
			ruleFields = append(ruleFields, f)
		}
	}
	sort.Strings(ruleFields)

	keyFields := t.spec.Fields
	total := Row{values: make(map[string]Value, len(fields)+len(ruleFields)+len(keyFields))}
	for i, f := range keyFields {
		if i == 0 {
			total.Set(f, Text(cfg.label))
			continue
		}
		total.Set(f, Text(""))
	}
	for _, f := range append(fields, ruleFields...) {
		if total.Has(f) {
			continue
		}
		rule, ok := rules[f]
		if !ok {
			total.Set(f, Null)
			continue
		}
		var v float64
		switch rule.Kind {
		case RuleSum:
			v = sum(f)
		case RuleAverage:
			v = safeDiv(sum(f), float64(len(data)))
		case RuleRatio:
			v = safeDiv(sum(rule.Numerator), sum(rule.Denominator)) * rule.scale()
		}
		total.Set(f, Num(finite(v)))
	}

	out := t.clone()
	out.total = &total
	return out
}

// DeriveRatios returns a copy of t whose data rows carry every ratio rule
// column computed from that row's own numerator and denominator. Values
// already present are replaced, since a merged row keeps the ratio of the
// first slice it came from. The total row is left alone.
func DeriveRatios(t *Table, rules map[string]ColumnRule) *Table {
	if t == nil {
		return nil
	}
	fields := make([]string, 0, len(rules))
	for f, rule := range rules {
		if rule.Kind == RuleRatio {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return t
	}
	sort.Strings(fields)

	out := t.clone()
	for key, row := range out.rows {
		row = row.Clone()
		for _, f := range fields {
			rule := rules[f]
			v := safeDiv(row.Value(rule.Numerator).Float(), row.Value(rule.Denominator).Float()) * rule.scale()
			row.Set(f, Num(finite(v)))
		}
		out.rows[key] = row
	}
	return out
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
