// Package export renders finished report runs for people: locale-aware
// number formatting and CSV downloads.
package export

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/odyssey-reports/internal/reports"
	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

// Formatter renders cell values according to their column format.
type Formatter struct {
	printer  *message.Printer
	grouping bool
}

// FormatOption tunes a Formatter.
type FormatOption func(*Formatter)

// WithoutGrouping drops thousand separators, as machine-readable exports
// expect.
func WithoutGrouping() FormatOption {
	return func(f *Formatter) { f.grouping = false }
}

// NewFormatter builds a formatter for tag. language.Und falls back to
// English.
func NewFormatter(tag language.Tag, opts ...FormatOption) *Formatter {
	if tag == language.Und {
		tag = language.English
	}
	f := &Formatter{printer: message.NewPrinter(tag), grouping: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cell formats v for col. Text columns and values that are not numeric are
// rendered verbatim; numbers are rounded half away from zero to the column
// decimals. Percent columns get a "%" suffix.
func (f *Formatter) Cell(col reports.Column, v rollup.Value) string {
	if v.IsNull() {
		return ""
	}
	if col.Format == "" || col.Format == reports.FormatText {
		return v.String()
	}
	d, ok := toDecimal(v)
	if !ok {
		return v.String()
	}
	out := f.Number(d, col.Decimals)
	if col.Format == reports.FormatPercent {
		out += "%"
	}
	return out
}

// Number renders d with exactly decimals fraction digits.
func (f *Formatter) Number(d decimal.Decimal, decimals int) string {
	rounded := d.Round(int32(decimals))
	opts := []number.Option{number.Scale(decimals)}
	if !f.grouping {
		opts = append(opts, number.NoSeparator())
	}
	return f.printer.Sprint(number.Decimal(rounded.InexactFloat64(), opts...))
}

// Row formats every column of row in order.
func (f *Formatter) Row(cols []reports.Column, row rollup.Row) []string {
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = f.Cell(col, row.Value(col.Field))
	}
	return out
}

func toDecimal(v rollup.Value) (decimal.Decimal, bool) {
	if n, ok := v.Number(); ok {
		return decimal.NewFromFloat(n), true
	}
	s, ok := v.Str()
	if !ok {
		return decimal.Zero, false
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
