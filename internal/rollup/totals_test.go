package rollup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendGrandTotalSum(t *testing.T) {
	table := Aggregate([]Row{RowOf("a", 1, "x", 10), RowOf("a", 2, "x", 20)}, SingleKey("a"), []string{"x"})
	out := AppendGrandTotal(table, map[string]ColumnRule{"x": Sum()})

	total, ok := out.Total()
	require.True(t, ok)
	require.Equal(t, 30.0, total.Value("x").Float())
	require.Equal(t, LabelGrandTotal, total.Value("a").String())

	_, inputHasTotal := table.Total()
	require.False(t, inputHasTotal)
}

func TestAppendGrandTotalRatioIsRatioOfSums(t *testing.T) {
	rows := []Row{
		RowOf("city", "A", "conv", 2, "appt", 10, "pct", 20),
		RowOf("city", "B", "conv", 3, "appt", 5, "pct", 60),
	}
	table := Aggregate(rows, SingleKey("city"), []string{"conv", "appt"})
	out := AppendGrandTotal(table, map[string]ColumnRule{
		"conv": Sum(),
		"appt": Sum(),
		"pct":  Percent("conv", "appt"),
	})
	total, _ := out.Total()
	require.InDelta(t, 33.333333, total.Value("pct").Float(), 1e-5)
	require.NotEqual(t, 40.0, total.Value("pct").Float())

	fraction := AppendGrandTotal(table, map[string]ColumnRule{"pct": Ratio("conv", "appt")})
	total, _ = fraction.Total()
	require.InDelta(t, 1.0/3.0, total.Value("pct").Float(), 1e-9)
}

func TestAppendGrandTotalAverageCountsZeroRows(t *testing.T) {
	rows := []Row{RowOf("k", "a", "g", 10), RowOf("k", "b", "g", 0), RowOf("k", "c", "g", 20), RowOf("k", "d")}
	out := AppendGrandTotal(Aggregate(rows[:3], SingleKey("k"), []string{"g"}), map[string]ColumnRule{"g": Average()})
	total, _ := out.Total()
	require.Equal(t, 10.0, total.Value("g").Float())

	// a row without the field still counts in the denominator
	out = AppendGrandTotal(Aggregate(rows, SingleKey("k"), []string{"g"}), map[string]ColumnRule{"g": Average()})
	total, _ = out.Total()
	require.Equal(t, 7.5, total.Value("g").Float())
}

func TestAppendGrandTotalTwiceDoesNotDoubleCount(t *testing.T) {
	table := Aggregate([]Row{RowOf("a", 1, "x", 10), RowOf("a", 2, "x", 20)}, SingleKey("a"), []string{"x"})
	rules := map[string]ColumnRule{"x": Sum()}
	out := AppendGrandTotal(AppendGrandTotal(table, rules), rules, WithLabel(LabelTotal))

	total, _ := out.Total()
	require.Equal(t, 30.0, total.Value("x").Float())
	require.Equal(t, LabelTotal, total.Value("a").String())
	require.Len(t, out.Rows(), 3)
}

func TestAppendGrandTotalDivisionByZero(t *testing.T) {
	empty := NewTable(SingleKey("city"))
	out := AppendGrandTotal(empty, map[string]ColumnRule{"avg": Average(), "pct": Percent("conv", "appt")})
	total, ok := out.Total()
	require.True(t, ok)
	require.Equal(t, 0.0, total.Value("avg").Float())
	require.Equal(t, 0.0, total.Value("pct").Float())

	zeroDen := Aggregate([]Row{RowOf("city", "A", "conv", 3, "appt", 0)}, SingleKey("city"), nil)
	total, _ = AppendGrandTotal(zeroDen, map[string]ColumnRule{"pct": Percent("conv", "appt")}).Total()
	require.Equal(t, 0.0, total.Value("pct").Float())
}

func TestAppendGrandTotalLayout(t *testing.T) {
	table := Aggregate([]Row{
		RowOf("city", "A", "branch", "x", "leads", "1,000", "owner", "Ravi"),
	}, CompositeKey("city", "branch"), []string{"leads"})
	total, _ := AppendGrandTotal(table, map[string]ColumnRule{"leads": Sum()}).Total()

	require.Equal(t, []string{"city", "branch", "leads", "owner"}, total.Fields())
	require.Equal(t, LabelGrandTotal, total.Value("city").String())
	require.Equal(t, "", total.Value("branch").String())
	require.Equal(t, 1000.0, total.Value("leads").Float())
	require.True(t, total.Value("owner").IsNull())
}

func TestColumnRuleValidate(t *testing.T) {
	require.NoError(t, Sum().Validate())
	require.NoError(t, Percent("a", "b").Validate())
	require.ErrorIs(t, Ratio("a", "").Validate(), ErrInvalidRule)
	require.ErrorIs(t, ColumnRule{}.Validate(), ErrInvalidRule)
}

func TestDeriveRatiosFillsDataRows(t *testing.T) {
	table := Aggregate([]Row{
		RowOf("city", "Pune", "leads", 10, "converted", 2, "conv_pct", 50),
		RowOf("city", "Pune", "leads", 30, "converted", 8, "conv_pct", 10),
		RowOf("city", "Goa", "leads", 0, "converted", 0),
	}, SingleKey("city"), []string{"leads", "converted"})
	rules := map[string]ColumnRule{"leads": Sum(), "conv_pct": Percent("converted", "leads")}

	out := DeriveRatios(table, rules)
	pune, ok := out.Row("Pune")
	require.True(t, ok)
	require.InDelta(t, 25.0, pune.Value("conv_pct").Float(), 1e-9)
	goa, _ := out.Row("Goa")
	require.Equal(t, Num(0), goa.Value("conv_pct"))
	require.False(t, goa.Value("leads").IsNull())

	before, _ := table.Row("Pune")
	require.Equal(t, 50.0, before.Value("conv_pct").Float())
	require.Same(t, table, DeriveRatios(table, map[string]ColumnRule{"leads": Sum()}))
}
