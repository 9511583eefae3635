// Package tabular provides header-once, append-after CSV file helpers shared by
// session recordings and the cumulative datasets.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrHeaderMismatch is returned when appending rows whose width differs from
// the header of an existing file.
var ErrHeaderMismatch = errors.New("row width does not match header")

// IsMissingOrEmpty reports whether path does not exist or has zero size.
func IsMissingOrEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.Size() == 0
}

// AppendCSV writes rows to path. When the file is missing or empty it is
// created with header as its first line; otherwise rows are appended without
// a header. Parent directories are created as needed.
func AppendCSV(path string, header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	for i, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("%w: row %d has %d fields, header has %d", ErrHeaderMismatch, i, len(row), len(header))
		}
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	writeHeader := IsMissingOrEmpty(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}

	return f.Close()
}

// ReadCSV reads a CSV file with a header line. A missing or empty file yields
// a nil header and no rows.
func ReadCSV(path string) ([]string, [][]string, error) {
	if IsMissingOrEmpty(path) {
		return nil, nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}

	return header, rows, nil
}

// ColumnIndex returns the position of name in header, or -1.
func ColumnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// ReadHeader returns the first record of a CSV file, or nil when the file is
// missing or empty.
func ReadHeader(path string) ([]string, error) {
	if IsMissingOrEmpty(path) {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	return header, nil
}

// WriteCSV replaces path with header followed by rows.
func WriteCSV(path string, header []string, rows [][]string) error {
	for i, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("%w: row %d has %d fields, header has %d", ErrHeaderMismatch, i, len(row), len(header))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}

	return f.Close()
}
