package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-reports/internal/reports"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	// Comments bypass the csv writer, so pending records go first.
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	_, err := s.buf.WriteString(strings.TrimRight(line, "\r\n") + "\r\n")
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteCSV streams every table of report: a comment block naming the table
// and its skipped slices, the header from column titles, the data rows and
// finally the total row. Tables are separated by an empty record. A nil
// formatter renders plain English numbers without grouping.
func WriteCSV(w io.Writer, report reports.Report, f *Formatter) error {
	if f == nil {
		f = NewFormatter(language.English, WithoutGrouping())
	}
	streamer := newCSVStreamer(w)
	for i, table := range report.Tables {
		if i > 0 {
			if err := streamer.writeRow(make([]string, len(table.Columns))); err != nil {
				return err
			}
		}
		if err := writeMetadata(streamer, report, table); err != nil {
			return err
		}
		header := make([]string, len(table.Columns))
		for j, col := range table.Columns {
			header[j] = col.Header()
		}
		if err := streamer.writeRow(header); err != nil {
			return err
		}
		for _, row := range table.Rows {
			if err := streamer.writeRow(f.Row(table.Columns, row)); err != nil {
				return err
			}
		}
		if table.Total != nil {
			if err := streamer.writeRow(f.Row(table.Columns, *table.Total)); err != nil {
				return err
			}
		}
	}
	return streamer.Flush()
}

func writeMetadata(streamer *csvStreamer, report reports.Report, table reports.TableView) error {
	title := table.Title
	if title == "" {
		title = table.Report
	}
	if err := streamer.writeComment(fmt.Sprintf("# Report: %s", title)); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Run: %s | Generated: %s | Selection: %s",
		report.RunID, report.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"), describeSelection(report.Selection))); err != nil {
		return err
	}
	if len(table.Failures) == 0 {
		return nil
	}
	skipped := make([]string, len(table.Failures))
	for i, failure := range table.Failures {
		skipped[i] = describeSelection(singleValues(failure.Selection))
	}
	return streamer.writeComment("# Skipped slices: " + strings.Join(skipped, "; "))
}

func describeSelection(sel map[string][]string) string {
	if len(sel) == 0 {
		return "default"
	}
	names := make([]string, 0, len(sel))
	for name := range sel {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strings.Join(sel[name], ",")
	}
	return strings.Join(parts, " ")
}

func singleValues(sel map[string]string) map[string][]string {
	out := make(map[string][]string, len(sel))
	for k, v := range sel {
		out[k] = []string{v}
	}
	return out
}
