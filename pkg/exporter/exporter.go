// Package exporter writes generated suites, query results and run reports to
// files.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/atomicdeploy/pql-testkit/pkg/client"
	"github.com/atomicdeploy/pql-testkit/pkg/generator"
	"github.com/atomicdeploy/pql-testkit/pkg/runner"
)

// ExportFormat represents the export format type
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatText ExportFormat = "text"
)

// ErrUnsupportedFormat is returned for formats a writer cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts a format name, or a file extension such as ".xlsx".
func ParseFormat(s string) (ExportFormat, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "text", "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// FormatFromPath infers the format from a file name.
func FormatFromPath(path string) (ExportFormat, error) {
	return ParseFormat(filepath.Ext(path))
}

// SuiteHeader is the column layout of tabular suite exports.
var SuiteHeader = []string{
	"Test Case ID", "API", "Category", "Test Description", "PQL", "Limit", "Offset", "Expected Results",
}

// ReportHeader is the column layout of tabular run reports.
var ReportHeader = []string{
	"Test Case ID", "API", "Category", "PQL", "Status Code", "Latency (ms)", "Items", "Passed", "Error",
}

func suiteRows(suite *generator.Suite) [][]string {
	rows := make([][]string, len(suite.Cases))
	for i, tc := range suite.Cases {
		rows[i] = []string{
			tc.ID,
			tc.API,
			string(tc.Category),
			tc.Description,
			tc.Request.PQL,
			strconv.Itoa(tc.Request.Limit),
			strconv.Itoa(tc.Request.Offset),
			tc.Expected,
		}
	}
	return rows
}

func reportRows(report *runner.Report) [][]string {
	rows := make([][]string, len(report.Outcomes))
	for i, o := range report.Outcomes {
		rows[i] = []string{
			o.Case.ID,
			o.Case.API,
			string(o.Case.Category),
			o.Case.Request.PQL,
			strconv.Itoa(o.StatusCode),
			strconv.FormatInt(o.Latency.Milliseconds(), 10),
			strconv.Itoa(o.Items),
			strconv.FormatBool(o.Passed),
			o.Error,
		}
	}
	return rows
}

// Exporter writes suites, items and reports.
type Exporter struct {
	// SheetName names the single worksheet of XLSX exports.
	SheetName string
}

// NewExporter creates a new exporter
func NewExporter() *Exporter {
	return &Exporter{SheetName: "Test Cases"}
}

// ExportSuite writes suite to path in the given format.
func (e *Exporter) ExportSuite(suite *generator.Suite, format ExportFormat, path string) error {
	return writeFile(path, func(w io.Writer) error {
		return e.WriteSuite(w, suite, format)
	})
}

// WriteSuite writes suite to w.
func (e *Exporter) WriteSuite(w io.Writer, suite *generator.Suite, format ExportFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, suite)
	case FormatCSV:
		return writeCSV(w, SuiteHeader, suiteRows(suite))
	case FormatXLSX:
		return e.writeXLSX(w, SuiteHeader, suiteRows(suite))
	case FormatText:
		return writeText(w, suite)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// ExportReport writes a run report to path. Text is not supported.
func (e *Exporter) ExportReport(report *runner.Report, format ExportFormat, path string) error {
	return writeFile(path, func(w io.Writer) error {
		return e.WriteReport(w, report, format)
	})
}

func (e *Exporter) WriteReport(w io.Writer, report *runner.Report, format ExportFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatCSV:
		return writeCSV(w, ReportHeader, reportRows(report))
	case FormatXLSX:
		return e.writeXLSX(w, ReportHeader, reportRows(report))
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// ExportItems writes query result items to a CSV file.
func (e *Exporter) ExportItems(items []map[string]any, path string) error {
	return writeFile(path, func(w io.Writer) error {
		return e.WriteItems(w, items)
	})
}

// WriteItems writes items as CSV. The header is the sorted union of keys;
// missing values are left empty.
func (e *Exporter) WriteItems(w io.Writer, items []map[string]any) error {
	cols := client.Columns(items)
	rows := make([][]string, len(items))
	for i, item := range items {
		row := make([]string, len(cols))
		for j, col := range cols {
			row[j] = cell(item[col])
		}
		rows[i] = row
	}
	return writeCSV(w, cols, rows)
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		data, _ := json.Marshal(val)
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (e *Exporter) writeXLSX(w io.Writer, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := e.SheetName
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	write := func(r int, values []string) error {
		cellName, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cellName, &row)
	}

	if err := write(1, header); err != nil {
		return fmt.Errorf("failed to write XLSX header: %w", err)
	}
	for i, r := range rows {
		if err := write(i+2, r); err != nil {
			return fmt.Errorf("failed to write XLSX row: %w", err)
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write XLSX: %w", err)
	}
	return nil
}

func writeText(w io.Writer, suite *generator.Suite) error {
	var b strings.Builder
	fmt.Fprintf(&b, "PQL test suite (seed %d, %d cases)\n", suite.Seed, len(suite.Cases))

	api := ""
	for _, tc := range suite.Cases {
		if tc.API != api {
			api = tc.API
			fmt.Fprintf(&b, "\n== %s ==\n", api)
		}
		fmt.Fprintf(&b, "\n%s [%s]\n", tc.ID, tc.Category)
		fmt.Fprintf(&b, "  %s\n", tc.Description)
		fmt.Fprintf(&b, "  PQL:      %s\n", tc.Request.PQL)
		fmt.Fprintf(&b, "  Limit:    %d  Offset: %d\n", tc.Request.Limit, tc.Request.Offset)
		fmt.Fprintf(&b, "  Expected: %s\n", tc.Expected)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write text: %w", err)
	}
	return nil
}
