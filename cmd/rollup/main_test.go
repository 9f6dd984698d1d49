package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const cliCatalog = `
reports:
  - name: leads-by-city
    title: Leads by city
    source: sqlite
    query: SELECT city, month, leads FROM leads WHERE (@month IS NULL OR month = @month)
    axes:
      - name: month
        values: [Apr, May]
    key:
      fields: [city]
    measures: [leads]
    rules:
      leads: {kind: sum}
    columns:
      - {field: city, title: City}
      - {field: leads, title: Leads, format: number}
`

type fixture struct {
	catalog string
	db      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	catalog := filepath.Join(dir, "reports.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(cliCatalog), 0o600))

	path := filepath.Join(dir, "crm.db")
	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(`CREATE TABLE leads (city TEXT, month TEXT, leads INTEGER)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO leads VALUES ('Pune', 'Apr', 5), ('Goa', 'Apr', 3), ('Pune', 'May', 7)`)
	require.NoError(t, err)
	return fixture{catalog: catalog, db: path}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListPrintsCatalog(t *testing.T) {
	fx := newFixture(t)
	out, err := execute(t, "list", "--catalog", fx.catalog)
	require.NoError(t, err)
	require.Contains(t, out, "NAME")
	require.Contains(t, out, "leads-by-city")
	require.Contains(t, out, "month=Apr,May")
	require.Contains(t, out, "Leads by city")
}

func TestRunPrintsTable(t *testing.T) {
	fx := newFixture(t)
	out, err := execute(t, "run", "leads-by-city", "--catalog", fx.catalog, "--sqlite", fx.db)
	require.NoError(t, err)
	require.Contains(t, out, "Leads by city")
	require.Regexp(t, `Pune\s+12`, out)
	require.Regexp(t, `Goa\s+3`, out)
	require.Regexp(t, `Grand Total\s+15`, out)
}

func TestRunWritesCSV(t *testing.T) {
	fx := newFixture(t)
	out, err := execute(t, "run", "leads-by-city", "--catalog", fx.catalog, "--sqlite", fx.db, "--format", "csv", "--axis", "month=May")
	require.NoError(t, err)
	require.Contains(t, out, "City,Leads\r\n")
	require.Contains(t, out, "Pune,7\r\n")
	require.Contains(t, out, "Grand Total,7\r\n")
	require.NotContains(t, out, "Goa")
}

func TestRunWritesJSON(t *testing.T) {
	fx := newFixture(t)
	out, err := execute(t, "run", "leads-by-city", "--catalog", fx.catalog, "--sqlite", fx.db, "--format", "json")
	require.NoError(t, err)

	var decoded struct {
		Name    string `json:"name"`
		Partial bool   `json:"partial"`
		Tables  []struct {
			Slices int `json:"slices"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "leads-by-city", decoded.Name)
	require.False(t, decoded.Partial)
	require.Len(t, decoded.Tables, 1)
	require.Equal(t, 2, decoded.Tables[0].Slices)
}

func TestRunRejectsBadInput(t *testing.T) {
	fx := newFixture(t)
	_, err := execute(t, "run", "leads-by-city", "--catalog", fx.catalog, "--format", "xml")
	require.ErrorContains(t, err, `unknown format "xml"`)

	_, err = execute(t, "run", "missing", "--catalog", fx.catalog, "--sqlite", fx.db)
	require.Error(t, err)

	_, err = execute(t, "run", "leads-by-city", "--catalog", fx.catalog)
	require.ErrorContains(t, err, "sqlite")
}

func TestParseAxes(t *testing.T) {
	axes, err := parseAxes([]string{"month=Apr, May", "city=Pune", "month=Jun", "channel"})
	require.NoError(t, err)
	require.Equal(t, map[string][]string{
		"month":   {"Apr", "May", "Jun"},
		"city":    {"Pune"},
		"channel": nil,
	}, axes)

	axes, err = parseAxes(nil)
	require.NoError(t, err)
	require.Nil(t, axes)

	_, err = parseAxes([]string{"=Apr"})
	require.Error(t, err)
}
