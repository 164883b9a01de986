package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mercator-hq/claimaudit/pkg/record"
)

// Common sentinel errors.
var (
	// ErrNoHeader is returned when the input has no header row.
	ErrNoHeader = errors.New("input has no header row")

	// ErrRowTooWide is returned when a row has more fields than the header.
	ErrRowTooWide = errors.New("row has more fields than the header")
)

const readBufferSize = 256 * 1024

// ReadCSVFile reads a CSV file into a frame.
func ReadCSVFile(path string) (*record.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	f, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}

// ReadCSV reads a header row followed by data rows. Short rows are padded with
// nulls; blank cells and whitespace-only cells are null.
func ReadCSV(r io.Reader) (*record.Frame, error) {
	reader := newCSVReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}

	cols := make([][]record.Value, len(names))
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(row) > len(names) {
			if !trailingBlank(row[len(names):]) {
				return nil, fmt.Errorf("%w: line %d has %d fields, header has %d", ErrRowTooWide, line, len(row), len(names))
			}
			row = row[:len(names)]
		}
		for c := range names {
			v := record.Null()
			if c < len(row) && strings.TrimSpace(row[c]) != "" {
				v = record.String(row[c])
			}
			cols[c] = append(cols[c], v)
		}
	}

	if len(names) > 0 && cols[0] == nil {
		for c := range cols {
			cols[c] = []record.Value{}
		}
	}
	return record.FromColumns(names, cols)
}

func newCSVReader(r io.Reader) *csv.Reader {
	buf := bufio.NewReaderSize(r, readBufferSize)

	// Skip UTF-8 BOM if present
	bom, err := buf.Peek(3)
	if err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	reader := csv.NewReader(buf)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	return reader
}

func trailingBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// WriteCSVFile writes f to path, replacing any existing file.
func WriteCSVFile(path string, f *record.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(file, f); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// WriteCSV writes the header and every row of f. List values are written as
// JSON arrays.
func WriteCSV(w io.Writer, f *record.Frame) error {
	writer := csv.NewWriter(w)
	names := f.Columns()
	if err := writer.Write(names); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	cols := make([][]record.Value, len(names))
	for i, name := range names {
		cols[i], _ = f.Column(name)
	}

	row := make([]string, len(names))
	for r := 0; r < f.Len(); r++ {
		for c := range names {
			cell, err := cellText(cols[c][r])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", r, names[c], err)
			}
			row[c] = cell
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func cellText(v record.Value) (string, error) {
	if v.Kind() != record.KindList {
		return v.Text(), nil
	}
	b, err := json.Marshal(v.Items())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
