// Package align coerces scoring input to the feature schema a model was
// trained on, synthesizing any absent column from a fixed defaults table.
package align

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mchmarny/readmit/pkg/features"
	"github.com/mchmarny/readmit/pkg/table"
)

// MissingFlagDefault is used for absent *_was_missing indicator columns.
const MissingFlagDefault = 0

// ErrDuplicateFeature is returned when a feature list names a column twice.
var ErrDuplicateFeature = errors.New("duplicate feature name")

var (
	// CategoricalDefaults fill absent categorical features.
	CategoricalDefaults = map[string]string{
		"gender":         "Unknown",
		"ethnicity":      "Unknown",
		"insurance_type": "Unknown",
		"smoker":         "Unknown",
		"icd_code":       "Unknown",
	}

	// NumericDefaults fill absent numeric features.
	NumericDefaults = map[string]float64{
		"age":                       0,
		"bmi":                       0.0,
		"cost":                      0.0,
		features.EligibleColumn:     1,
		features.MissingLabelColumn: 0,
	}
)

// DefaultFor returns the value synthesized for an absent column: the
// missing-flag default for indicator columns, then the categorical and
// numeric tables, and 0 for anything else.
func DefaultFor(col string) any {
	if strings.HasSuffix(col, features.MissingSuffix) {
		return MissingFlagDefault
	}
	if v, ok := CategoricalDefaults[col]; ok {
		return v
	}
	if v, ok := NumericDefaults[col]; ok {
		return v
	}
	return 0
}

// Align returns a table with exactly the expected columns in order. Extra
// input columns are dropped and absent ones filled from DefaultFor. An
// empty feature list returns the input unchanged.
func Align(t *table.Table, expected []string) (*table.Table, error) {
	if len(expected) == 0 {
		return t, nil
	}
	out := table.Empty(t.Len())
	for _, name := range expected {
		if out.Has(name) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFeature, name)
		}
		c, ok := t.Column(name)
		if !ok {
			c = table.NewConstant(name, DefaultFor(name), t.Len())
		}
		if err := out.Set(c); err != nil {
			return nil, fmt.Errorf("align %s: %w", name, err)
		}
	}
	return out, nil
}
