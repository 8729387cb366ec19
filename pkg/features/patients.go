package features

import (
	"fmt"
	"math"
	"slices"

	"github.com/mchmarny/readmit/pkg/table"
)

// CleanPatients drops sparse columns, then adds a <col>_was_missing flag for
// every remaining non-key column and fills its gaps: "Unknown" for
// categorical columns, the column median for numeric ones. Flags follow the
// original columns, categorical flags first. Dropped names are returned.
func CleanPatients(p *table.Table, maxMissingPct float64) (*table.Table, []string, error) {
	keys := map[string]bool{}
	for _, k := range KeyCandidates {
		if p.Has(k) {
			keys[k] = true
		}
	}

	denom := float64(max(p.Len(), 1))
	var dropped []string
	for _, c := range p.Columns() {
		pct := 100 * float64(c.NullCount()) / denom
		if pct > maxMissingPct && !keys[c.Name] {
			dropped = append(dropped, c.Name)
		}
	}
	out := p.Drop(dropped...)

	var catFlags, numFlags []*table.Column
	for _, c := range out.Columns() {
		if keys[c.Name] {
			continue
		}
		flag := make([]float64, c.Len())
		for i := range flag {
			if c.IsNull(i) {
				flag[i] = 1
			}
		}
		flagCol := table.NewNumeric(c.Name+MissingSuffix, flag)

		if c.Kind == table.Categorical {
			catFlags = append(catFlags, flagCol)
			if err := out.Set(fillCategorical(c, UnknownCategory)); err != nil {
				return nil, nil, fmt.Errorf("fill %s: %w", c.Name, err)
			}
			continue
		}
		numFlags = append(numFlags, flagCol)
		if err := out.Set(fillNumeric(c, Median(c.Floats()))); err != nil {
			return nil, nil, fmt.Errorf("fill %s: %w", c.Name, err)
		}
	}
	for _, f := range append(catFlags, numFlags...) {
		if err := out.Set(f); err != nil {
			return nil, nil, fmt.Errorf("flag %s: %w", f.Name, err)
		}
	}
	return out, dropped, nil
}

func fillCategorical(c *table.Column, v string) *table.Column {
	vals := c.Strings()
	for i := range vals {
		if c.IsNull(i) {
			vals[i] = v
		}
	}
	return table.NewCategorical(c.Name, vals, nil)
}

func fillNumeric(c *table.Column, v float64) *table.Column {
	vals := c.Floats()
	for i := range vals {
		if c.IsNull(i) {
			vals[i] = v
		}
	}
	return table.NewNumeric(c.Name, vals)
}

// Median returns the median of the non-NaN values, averaging the two middle
// values for even counts. It is NaN when no value is present.
func Median(vals []float64) float64 {
	xs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return math.NaN()
	}
	slices.Sort(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return xs[mid]
	}
	return (xs[mid-1] + xs[mid]) / 2
}
