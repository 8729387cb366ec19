package table

import (
	"math"
	"strconv"
	"strings"
)

// Kind is the inferred type of a column.
type Kind int

const (
	// Numeric columns hold numbers (booleans are treated as 0/1).
	Numeric Kind = iota
	// Categorical columns hold free text values.
	Categorical
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"-NaN": true,
	"null": true,
	"NULL": true,
	"None": true,
	"<NA>": true,
	"#N/A": true,
}

// IsMissingToken reports whether s is read as a missing value.
func IsMissingToken(s string) bool {
	return missingTokens[strings.TrimSpace(s)]
}

// ParseFloat parses numbers and the boolean tokens true/false.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	switch strings.ToLower(s) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	return math.NaN(), false
}

// FormatFloat renders a number the way it is written back to CSV.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Column is a named, typed vector of values. Missing values are tracked
// explicitly; for numeric columns they are also NaN in the parsed vector.
type Column struct {
	Name string
	Kind Kind

	raw  []string
	num  []float64
	null []bool
}

// NewNumeric creates a numeric column; NaN entries are missing.
func NewNumeric(name string, vals []float64) *Column {
	c := &Column{
		Name: name,
		Kind: Numeric,
		raw:  make([]string, len(vals)),
		num:  make([]float64, len(vals)),
		null: make([]bool, len(vals)),
	}
	for i, v := range vals {
		c.num[i] = v
		c.null[i] = math.IsNaN(v)
		c.raw[i] = FormatFloat(v)
	}
	return c
}

// NewCategorical creates a categorical column. A nil null mask means no
// value is missing.
func NewCategorical(name string, vals []string, null []bool) *Column {
	c := &Column{
		Name: name,
		Kind: Categorical,
		raw:  make([]string, len(vals)),
		num:  make([]float64, len(vals)),
		null: make([]bool, len(vals)),
	}
	copy(c.raw, vals)
	if null != nil {
		copy(c.null, null)
	}
	for i := range c.raw {
		if c.null[i] {
			c.raw[i] = ""
			c.num[i] = math.NaN()
			continue
		}
		c.num[i], _ = ParseFloat(c.raw[i])
	}
	return c
}

// NewConstant creates a column of n copies of v. Strings produce a
// categorical column, numbers a numeric one.
func NewConstant(name string, v any, n int) *Column {
	switch x := v.(type) {
	case string:
		vals := make([]string, n)
		for i := range vals {
			vals[i] = x
		}
		return NewCategorical(name, vals, nil)
	default:
		f, _ := toFloat(x)
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = f
		}
		return NewNumeric(name, vals)
	}
}

// FromStrings builds a column from text, inferring its kind: a column whose
// every non-missing value parses as a number is numeric.
func FromStrings(name string, vals []string) *Column {
	c := &Column{
		Name: name,
		Kind: Numeric,
		raw:  make([]string, len(vals)),
		num:  make([]float64, len(vals)),
		null: make([]bool, len(vals)),
	}
	for i, s := range vals {
		if IsMissingToken(s) {
			c.null[i] = true
			c.num[i] = math.NaN()
			continue
		}
		c.raw[i] = s
		v, ok := ParseFloat(s)
		c.num[i] = v
		if !ok {
			c.Kind = Categorical
		}
	}
	return c
}

// Len returns the number of values.
func (c *Column) Len() int { return len(c.raw) }

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool { return c.null[i] }

// Float returns row i as a number, NaN when missing or not numeric.
func (c *Column) Float(i int) float64 { return c.num[i] }

// String returns row i as text, empty when missing.
func (c *Column) String(i int) string { return c.raw[i] }

// Floats returns a copy of the numeric view.
func (c *Column) Floats() []float64 {
	out := make([]float64, len(c.num))
	copy(out, c.num)
	return out
}

// Strings returns a copy of the text view.
func (c *Column) Strings() []string {
	out := make([]string, len(c.raw))
	copy(out, c.raw)
	return out
}

// NullCount returns the number of missing values.
func (c *Column) NullCount() int {
	n := 0
	for _, b := range c.null {
		if b {
			n++
		}
	}
	return n
}

// Key returns a join/group key for row i. Numbers are canonicalized so that
// "007" and "7" match, as they would after numeric parsing.
func (c *Column) Key(i int) string {
	if c.null[i] {
		return ""
	}
	if c.Kind == Numeric {
		return FormatFloat(c.num[i])
	}
	return c.raw[i]
}

// Rename returns a shallow copy of the column with a new name.
func (c *Column) Rename(name string) *Column {
	out := *c
	out.Name = name
	return &out
}

// Take returns a new column holding rows idx; an index of -1 yields a
// missing value.
func (c *Column) Take(idx []int) *Column {
	out := &Column{
		Name: c.Name,
		Kind: c.Kind,
		raw:  make([]string, len(idx)),
		num:  make([]float64, len(idx)),
		null: make([]bool, len(idx)),
	}
	for j, i := range idx {
		if i < 0 {
			out.null[j] = true
			out.num[j] = math.NaN()
			continue
		}
		out.raw[j] = c.raw[i]
		out.num[j] = c.num[i]
		out.null[j] = c.null[i]
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), false
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		return ParseFloat(x)
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		return f, err == nil
	}
	return math.NaN(), false
}
