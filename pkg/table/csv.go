package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const readBufferSize = 256 * 1024

// ErrEmptyInput is returned when a file has no header row.
var ErrEmptyInput = errors.New("empty input")

// ReadFile loads a table from a CSV or Parquet file, picked by extension.
func ReadFile(path string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return ReadParquetFile(path)
	}
	return ReadCSVFile(path)
}

// ReadCSVFile loads a table from a CSV file with a header row.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// ReadCSV reads a header row followed by data rows. Short rows are padded
// with missing values; column kinds are inferred once all rows are read.
func ReadCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReaderSize(r, readBufferSize)

	// Skip UTF-8 BOM if present
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		if _, err := br.Discard(3); err != nil {
			return nil, fmt.Errorf("skip BOM: %w", err)
		}
	}

	reader := csv.NewReader(br)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := mangleHeaders(header)

	cols := make([][]string, len(names))
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for j := range cols {
			v := ""
			if j < len(rec) {
				v = rec[j]
			}
			cols[j] = append(cols[j], v)
		}
	}

	t := Empty(0)
	if len(names) > 0 {
		t = Empty(len(cols[0]))
	}
	for j, name := range names {
		if err := t.Set(FromStrings(name, cols[j])); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// mangleHeaders trims names and de-duplicates them as x, x.1, x.2.
func mangleHeaders(header []string) []string {
	out := make([]string, len(header))
	used := map[string]bool{}
	next := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for used[name] {
			next[h]++
			name = h + "." + strconv.Itoa(next[h])
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// WriteCSVFile writes the table to path, creating parent directories.
func WriteCSVFile(path string, t *Table) (retErr error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()
	return WriteCSV(f, t)
}

// WriteCSV writes a header row and the text view of every row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, t.Width())
	for i := 0; i < t.Len(); i++ {
		for j, c := range t.cols {
			rec[j] = c.String(i)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
