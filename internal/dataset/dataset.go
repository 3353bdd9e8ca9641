// Package dataset reads the processed feature tables and label columns produced by
// the upstream data preparation step (header row, one record per line).
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("dataset: malformed csv")

// Table is a dense numeric feature matrix with named columns.
type Table struct {
	Columns []string
	Rows    [][]float64
}

func (t Table) Len() int { return len(t.Rows) }

// Index returns the position of column name, or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t Table) Column(name string) ([]float64, bool) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// Means returns the per-column arithmetic mean. An empty table yields zeros.
func (t Table) Means() map[string]float64 {
	out := make(map[string]float64, len(t.Columns))
	if len(t.Rows) == 0 {
		for _, c := range t.Columns {
			out[c] = 0
		}
		return out
	}
	sums := make([]float64, len(t.Columns))
	for _, row := range t.Rows {
		for j, v := range row {
			sums[j] += v
		}
	}
	for j, c := range t.Columns {
		out[c] = sums[j] / float64(len(t.Rows))
	}
	return out
}

func ReadTable(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	header, err := readHeader(cr)
	if err != nil {
		return Table{}, err
	}
	t := Table{Columns: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return Table{}, fmt.Errorf("%w: line %d column %q: %v", ErrMalformed, line, header[j], err)
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()
	t, err := ReadTable(f)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadLabels reads the first column of a one-column label file. Values written as
// floats ("1.0") are accepted as long as they are exactly 0 or 1.
func ReadLabels(r io.Reader) ([]int, error) {
	t, err := ReadTable(r)
	if err != nil {
		return nil, err
	}
	if len(t.Columns) != 1 {
		return nil, fmt.Errorf("%w: label file has %d columns, want 1", ErrMalformed, len(t.Columns))
	}
	out := make([]int, len(t.Rows))
	for i, row := range t.Rows {
		switch row[0] {
		case 0:
			out[i] = 0
		case 1:
			out[i] = 1
		default:
			return nil, fmt.Errorf("%w: line %d label %v is not 0 or 1", ErrMalformed, i+2, row[0])
		}
	}
	return out, nil
}

func LoadLabels(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	labels, err := ReadLabels(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}

// LoadHeader returns only the column names of a CSV file.
func LoadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	header, err := readHeader(csv.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return header, nil
}

func readHeader(cr *csv.Reader) ([]string, error) {
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	seen := make(map[string]struct{}, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			return nil, fmt.Errorf("%w: empty column name at %d", ErrMalformed, i)
		}
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrMalformed, h)
		}
		seen[h] = struct{}{}
		out[i] = h
	}
	return out, nil
}
