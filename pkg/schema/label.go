// Package schema locates and normalizes the readmission label column.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mchmarny/readmit/pkg/table"
)

// ErrLabelNotFound is wrapped by every ConfigError raised by DetectLabel.
var ErrLabelNotFound = errors.New("label column not found")

// LabelAliases are tried in order when no label column is named explicitly.
var LabelAliases = []string{
	"readmitted",
	"readmission",
	"readmission_30d",
	"readmitted_30d",
	"is_readmitted",
	"readmit",
	"readmit_30d",
	"readmit_flag",
	"target",
}

// ConfigError reports a label setting that does not match the data.
type ConfigError struct {
	Explicit string
	Columns  []string
}

func (e *ConfigError) Error() string {
	if e.Explicit != "" {
		return fmt.Sprintf("LABEL_COL=%q not found in columns: %v", e.Explicit, e.Columns)
	}
	return "could not find a label column, set LABEL_COL or rename your target"
}

func (e *ConfigError) Unwrap() error { return ErrLabelNotFound }

// DetectLabel returns the name of the label column in t. An explicit name is
// matched exactly, then case-insensitively, and is an error when absent.
// Otherwise the aliases are tried exactly, then case-insensitively, then the
// first column containing "readmit" wins.
func DetectLabel(t *table.Table, explicit string) (string, error) {
	names := t.Names()

	if explicit != "" {
		if t.Has(explicit) {
			return explicit, nil
		}
		for _, c := range names {
			if strings.EqualFold(c, explicit) {
				return c, nil
			}
		}
		return "", &ConfigError{Explicit: explicit, Columns: names}
	}

	for _, a := range LabelAliases {
		if t.Has(a) {
			return a, nil
		}
	}

	// the last column wins on case-insensitive collisions
	lower := make(map[string]string, len(names))
	for _, c := range names {
		lower[strings.ToLower(c)] = c
	}
	for _, a := range LabelAliases {
		if c, ok := lower[a]; ok {
			return c, nil
		}
	}

	for _, c := range names {
		if strings.Contains(strings.ToLower(c), "readmit") {
			return c, nil
		}
	}
	return "", &ConfigError{Columns: names}
}

var labelValues = map[string]float64{
	"yes": 1, "y": 1, "true": 1, "t": 1, "1": 1,
	"no": 0, "n": 0, "false": 0, "f": 0, "0": 0,
}

// Canonicalize trims and lowercases a raw label value.
func Canonicalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EncodeLabel returns the label as a numeric column. Numeric columns pass
// through unchanged; text values are mapped through the yes/no vocabulary
// and anything unrecognized becomes missing.
func EncodeLabel(c *table.Column) *table.Column {
	if c.Kind == table.Numeric {
		return c
	}
	vals := make([]float64, c.Len())
	for i := range vals {
		vals[i] = math.NaN()
		if c.IsNull(i) {
			continue
		}
		if v, ok := labelValues[Canonicalize(c.String(i))]; ok {
			vals[i] = v
		}
	}
	return table.NewNumeric(c.Name, vals)
}
