package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Dialect is a delimited-file convention. Quoting always uses '"'.
type Dialect struct {
	Comma      rune
	LazyQuotes bool
}

var (
	// Easydb is the export convention of the easydb asset system.
	Easydb = Dialect{Comma: ';'}
	// TSV is the tab-separated convention of the authority lists.
	TSV = Dialect{Comma: '\t', LazyQuotes: true}
)

// RowError describes one malformed row.
type RowError struct {
	Row     int // 1-based; the header is row 1
	Columns int
	Err     error
}

func (e RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d: %d columns", e.Row, e.Columns)
}

// ValidationError lists every row that does not match the header.
type ValidationError struct {
	Expected int
	Rows     []RowError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for i, r := range e.Rows {
		if i == 5 {
			parts = append(parts, fmt.Sprintf("and %d more", len(e.Rows)-5))
			break
		}
		parts = append(parts, r.Error())
	}
	return fmt.Sprintf("%d malformed rows (expected %d columns): %s", len(e.Rows), e.Expected, strings.Join(parts, "; "))
}

// Table is a fully read and validated delimited file.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable reads every row of r and checks that each has the header's
// column count. Nothing is returned unless the whole file is well formed.
func ReadTable(r io.Reader, d Dialect) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = d.Comma
	reader.LazyQuotes = d.LazyQuotes
	// Column counts are checked below so every bad row is reported.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: no header row found")
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{Header: header}
	verr := &ValidationError{Expected: len(header)}
	rowNum := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			verr.Rows = append(verr.Rows, RowError{Row: rowNum, Err: err})
			continue
		}
		if len(row) != len(header) {
			verr.Rows = append(verr.Rows, RowError{Row: rowNum, Columns: len(row)})
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if len(verr.Rows) > 0 {
		return nil, verr
	}
	return t, nil
}

// ReadTableFile reads a delimited file from disk.
func ReadTableFile(path string, d Dialect) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadTable(f, d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Records converts the rows into records keyed by header.
func (t *Table) Records() []*Record {
	out := make([]*Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := NewRecord()
		for i, h := range t.Header {
			r.Set(h, row[i])
		}
		out = append(out, r)
	}
	return out
}

// Iterator iterates over the rows as records.
func (t *Table) Iterator() Iterator {
	return NewSliceIterator(t.Records())
}

// Column returns the index of the named column.
func (t *Table) Column(name string) (int, error) {
	for i, h := range t.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no column %q", name)
}

// Distinct returns the non-empty trimmed values of column i, first
// occurrence first.
func (t *Table) Distinct(i int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range t.Rows {
		if i < 0 || i >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[i])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// DistinctNamed is Distinct for a column given by name.
func (t *Table) DistinctNamed(name string) ([]string, error) {
	i, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	return t.Distinct(i), nil
}
