// Package tabular reads delimited and spreadsheet files into frames.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ntduc11/statgenSTA/domain/frame"
)

// ReadFile loads a table from path, choosing the reader by extension.
// Anything that is not a spreadsheet is treated as CSV.
func ReadFile(path string) (*frame.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadExcel(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	}
}

// ReadCSV parses comma-separated input with a header row
func ReadCSV(r io.Reader) (*frame.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return fromRows(records)
}

// ReadExcel reads the first sheet of a spreadsheet
func ReadExcel(path string) (*frame.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*frame.Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("input needs a header row and at least one data row")
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
		if headers[i] == "" {
			return nil, fmt.Errorf("empty column name at position %d", i+1)
		}
	}
	return frame.FromRecords(headers, rows[1:]), nil
}
