package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

const parquetReadBatch = 8192

// ReadParquetFile loads a flat Parquet file. Each leaf column becomes a
// table column; nested paths are joined with dots.
func ReadParquetFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	t, err := ReadParquet(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// ReadParquet reads all rows from r. Values are converted to text and kinds
// inferred the same way as CSV input.
func ReadParquet(r io.ReaderAt) (*Table, error) {
	reader := parquet.NewReader(r)
	defer reader.Close()

	paths := reader.Schema().Columns()
	if len(paths) == 0 {
		return nil, ErrEmptyInput
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = strings.Join(p, ".")
	}
	names = mangleHeaders(names)

	total := int(reader.NumRows())
	cols := make([][]string, len(names))
	for j := range cols {
		cols[j] = make([]string, 0, total)
	}

	buf := make([]parquet.Row, parquetReadBatch)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			vals := make([]string, len(names))
			for _, v := range row {
				if c := v.Column(); c >= 0 && c < len(vals) {
					vals[c] = valueString(v)
				}
			}
			for j := range cols {
				cols[j] = append(cols[j], vals[j])
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}

	t := Empty(len(cols[0]))
	for j, name := range names {
		if err := t.Set(FromStrings(name, cols[j])); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func valueString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return "True"
		}
		return "False"
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return FormatFloat(float64(v.Float()))
	case parquet.Double:
		return FormatFloat(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return v.String()
}
