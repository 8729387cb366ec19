// Package table is a small column-oriented data frame used to carry claims,
// patient and feature data between the preparation, training and scoring steps.
package table

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

var (
	// ErrLengthMismatch is returned when columns of different lengths are combined.
	ErrLengthMismatch = errors.New("column length mismatch")

	// ErrColumnNotFound is returned when a named column does not exist.
	ErrColumnNotFound = errors.New("column not found")
)

// Table is an ordered set of equally long columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New creates a table from columns. Names must be unique and lengths equal.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if i == 0 {
			t.rows = c.Len()
		}
		if err := t.Set(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Empty returns a table with n rows and no columns.
func Empty(n int) *Table {
	return &Table{index: map[string]int{}, rows: n}
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Columns returns the columns in order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// Has reports whether the table has a column with the exact name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// MustColumn returns the named column or an error wrapping ErrColumnNotFound.
func (t *Table) MustColumn(name string) (*Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return c, nil
}

// Set replaces the column with the same name in place, or appends it.
func (t *Table) Set(c *Column) error {
	if c == nil {
		return errors.New("nil column")
	}
	if len(t.cols) == 0 && t.rows == 0 {
		t.rows = c.Len()
	}
	if c.Len() != t.rows {
		return fmt.Errorf("%w: %s has %d rows, table has %d", ErrLengthMismatch, c.Name, c.Len(), t.rows)
	}
	if i, ok := t.index[c.Name]; ok {
		t.cols[i] = c
		return nil
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := Empty(t.rows)
	for _, c := range t.cols {
		if !skip[c.Name] {
			out.index[c.Name] = len(out.cols)
			out.cols = append(out.cols, c)
		}
	}
	return out
}

// Select returns a table with exactly the named columns in the given order.
func (t *Table) Select(names []string) (*Table, error) {
	out := Empty(t.rows)
	for _, n := range names {
		c, err := t.MustColumn(n)
		if err != nil {
			return nil, err
		}
		if err := out.Set(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Take returns the rows at idx, in that order.
func (t *Table) Take(idx []int) *Table {
	out := Empty(len(idx))
	for _, c := range t.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.Take(idx))
	}
	return out
}

// Filter returns the rows where keep is true.
func (t *Table) Filter(keep []bool) (*Table, error) {
	if len(keep) != t.rows {
		return nil, fmt.Errorf("%w: mask has %d rows, table has %d", ErrLengthMismatch, len(keep), t.rows)
	}
	idx := make([]int, 0, t.rows)
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return t.Take(idx), nil
}

// Record returns row i as a map of column name to text value; missing
// values are omitted.
func (t *Table) Record(i int) map[string]string {
	rec := make(map[string]string, len(t.cols))
	for _, c := range t.cols {
		if !c.IsNull(i) {
			rec[c.Name] = c.String(i)
		}
	}
	return rec
}

// FromRecords builds a table from row maps such as decoded JSON objects.
// Columns are ordered by first appearance; keys absent from a row are
// missing. String values keep their text, so "0389" reads the same as it
// does from CSV.
func FromRecords(recs []map[string]any) (*Table, error) {
	var order []string
	seen := map[string]bool{}
	for _, r := range recs {
		for _, k := range sortedKeys(r) {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}

	t := Empty(len(recs))
	for _, name := range order {
		vals := make([]string, len(recs))
		for i, r := range recs {
			if v, ok := r[name]; ok && v != nil {
				vals[i] = formatAny(v)
			}
		}
		if err := t.Set(FromStrings(name, vals)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func formatAny(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return FormatFloat(x)
	case float32:
		return FormatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case interface{ String() string }:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
