package rollup

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateDistinctKeysReturnsInputUnmerged(t *testing.T) {
	rows := []Row{
		RowOf("city", "Bangalore", "load", 10, "note", "a"),
		RowOf("city", "Mysore", "load", 7, "note", "b"),
		RowOf("city", "Mangalore", "load", 3),
	}
	table := Aggregate(rows, SingleKey("city"), []string{"load"})

	require.Equal(t, 3, table.Len())
	require.Equal(t, []string{"Bangalore", "Mysore", "Mangalore"}, table.Keys())
	for i, row := range table.DataRows() {
		require.True(t, row.Equal(rows[i]), "row %d changed: %v", i, row.Map())
	}
}

func TestAggregateSumsMeasuresAndKeepsFirstSeenFields(t *testing.T) {
	rows := []Row{
		RowOf("city", "X", "load", 10, "note", "a"),
		RowOf("city", "X", "load", 5, "note", "b"),
	}
	table := Aggregate(rows, SingleKey("city"), []string{"load"})

	require.Equal(t, 1, table.Len())
	merged, ok := table.Row("X")
	require.True(t, ok)
	require.True(t, merged.Equal(RowOf("city", "X", "load", 15, "note", "a")), "got %v", merged.Map())
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	first := RowOf("city", "X", "load", 10)
	Aggregate([]Row{first, RowOf("city", "X", "load", 5)}, SingleKey("city"), []string{"load"})
	require.Equal(t, 10.0, first.Value("load").Float())
}

func TestAggregateCoercesFormattedNumbers(t *testing.T) {
	rows := []Row{
		RowOf("city", "X", "revenue", "1,200", "growth", "12.5%"),
		RowOf("city", "X", "revenue", "1 300.50", "growth", "2.5%"),
		RowOf("city", "X", "revenue", "n/a", "growth", nil),
		RowOf("city", "X"),
	}
	table := Aggregate(rows, SingleKey("city"), []string{"revenue", "growth"})

	merged, _ := table.Row("X")
	require.InDelta(t, 2500.5, merged.Value("revenue").Float(), 1e-9)
	require.InDelta(t, 15.0, merged.Value("growth").Float(), 1e-9)
	_, isNum := merged.Value("revenue").Number()
	require.True(t, isNum)
}

func TestAggregateCompositeKey(t *testing.T) {
	rows := []Row{
		RowOf("city", "Bangalore", "branch", "HSR", "leads", 4),
		RowOf("city", "Bangalore", "branch", "Whitefield", "leads", 2),
		RowOf("city", "Bangalore", "branch", "HSR", "leads", 1),
	}
	table := Aggregate(rows, CompositeKey("city", "branch"), []string{"leads"})

	require.Equal(t, []string{"Bangalore-HSR", "Bangalore-Whitefield"}, table.Keys())
	row, _ := table.Row("Bangalore-HSR")
	require.Equal(t, 5.0, row.Value("leads").Float())
	require.Equal(t, []string{"Bangalore", "HSR"}, table.Components("Bangalore-HSR"))
}

func TestAggregateMissingKeyFieldsCollapse(t *testing.T) {
	rows := []Row{
		RowOf("leads", 1),
		RowOf("leads", 2),
		RowOf("city", "", "leads", 3),
	}
	table, issues := AggregateChecked(rows, SingleKey("city"), []string{"leads"})

	require.Equal(t, []string{""}, table.Keys())
	row, _ := table.Row("")
	require.Equal(t, 6.0, row.Value("leads").Float())
	require.Len(t, issues, 2)
	require.Equal(t, IssueMissingKeyField, issues[0].Kind)
	require.Equal(t, 0, issues[0].Index)
	require.Equal(t, 1, issues[1].Index)
}

func TestAggregateCheckedReportsMalformedNumbers(t *testing.T) {
	rows := []Row{
		RowOf("city", "X", "load", "abc"),
		RowOf("city", "X", "load", "  "),
	}
	_, issues := AggregateChecked(rows, SingleKey("city"), []string{"load"})
	require.Len(t, issues, 1)
	require.Equal(t, IssueMalformedNumber, issues[0].Kind)
	require.Equal(t, "abc", issues[0].Raw)
}

func TestAggregateEmptyInput(t *testing.T) {
	table := Aggregate(nil, SingleKey("city"), []string{"load"})
	require.Equal(t, 0, table.Len())
	require.Empty(t, table.Rows())
}

func TestAggregateOrderIsDeterministic(t *testing.T) {
	rows := []Row{
		RowOf("k", "c", "v", 1),
		RowOf("k", "a", "v", 1),
		RowOf("k", "b", "v", 1),
		RowOf("k", "a", "v", 1),
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, []string{"c", "a", "b"}, Aggregate(rows, SingleKey("k"), []string{"v"}).Keys())
	}
}

func TestRowJSONKeepsFieldOrder(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":1,"alpha":"x","mid":null}`), &row))
	require.Equal(t, []string{"zeta", "alpha", "mid"}, row.Fields())
	require.True(t, row.Value("mid").IsNull())

	out, err := json.Marshal(row)
	require.NoError(t, err)
	require.JSONEq(t, `{"zeta":1,"alpha":"x","mid":null}`, string(out))
	require.Equal(t, `{"zeta":1,"alpha":"x","mid":null}`, string(out))
}

func TestRowJSONRejectsNestedValues(t *testing.T) {
	var row Row
	require.Error(t, json.Unmarshal([]byte(`{"a":{"b":1}}`), &row))
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &row))
}
