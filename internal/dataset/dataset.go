// Package dataset loads the tabular data certificates are generated from.
//
// CSV and XLSX files are supported. The first row holds column names.
// Column names and values are trimmed, and rows where every value is empty
// are dropped. A .csv upload that is really an XLSX workbook (a common
// spreadsheet export mistake) is detected and read as a workbook.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrNoRows is returned when no usable row remains after cleaning.
	ErrNoRows = errors.New("the data file is empty: no rows to generate certificates from")
	// ErrUnsupportedFormat is returned for extensions other than .csv,
	// .xlsx and .xls.
	ErrUnsupportedFormat = errors.New("unsupported file type")
)

var zipMagic = []byte("PK\x03\x04")

// Row maps trimmed column names to trimmed cell values.
type Row map[string]string

// Table is a cleaned data file.
type Table struct {
	// Columns in source order.
	Columns []string
	Rows    []Row
}

// Values returns the row's values in column order.
func (t *Table) Values(r Row) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = r[c]
	}
	return out
}

// Load reads the data file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, filepath.Base(path))
}

// Read parses data from r; name is used for the format decision and in
// error messages.
func Read(r io.Reader, name string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv", ".xlsx", ".xls":
	default:
		return nil, fmt.Errorf("%w '%s': please upload a .csv or .xlsx file", ErrUnsupportedFormat, ext)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read '%s': %w", name, err)
	}

	var records [][]string
	if ext == ".csv" && !bytes.HasPrefix(data, zipMagic) {
		records, err = readCSV(data)
		if err != nil {
			return nil, fmt.Errorf("could not read '%s': it appears to be neither valid CSV nor Excel (%v)", name, err)
		}
	} else {
		records, err = readWorkbook(data)
		if err != nil {
			return nil, fmt.Errorf("could not read '%s' as Excel (%v)", name, err)
		}
	}

	return build(records)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

func readWorkbook(data []byte) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return wb.GetRows(sheets[0])
}

func build(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrNoRows
	}

	columns := headerNames(records[0])
	table := &Table{Columns: columns}
	for _, rec := range records[1:] {
		row := make(Row, len(columns))
		empty := true
		for i, col := range columns {
			var v string
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			if v != "" {
				empty = false
			}
			row[col] = v
		}
		if !empty {
			table.Rows = append(table.Rows, row)
		}
	}

	if len(table.Rows) == 0 {
		return nil, ErrNoRows
	}
	return table, nil
}

// headerNames trims the header row, names blank headers by position and
// suffixes duplicates with ".N".
func headerNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := used[name]; dup {
			used[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			used[name] = 0
		}
		names[i] = name
	}
	return names
}
