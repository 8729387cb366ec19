package model

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/scigo/preprocessing"
	"github.com/mchmarny/readmit/pkg/table"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultMinFrequency is the count below which a category is infrequent.
	DefaultMinFrequency = 10

	missingCategory = "nan"

	// infrequentToken stands in for collapsed categories inside the encoder.
	// The leading NUL keeps it apart from any category read from a file.
	infrequentToken = "\x00infrequent"
	infrequentName  = "infrequent"
)

// Preprocessor scales numeric columns by their standard deviation and
// one-hot encodes categorical columns, numeric block first. The column kind
// seen at fit time decides the transform, whatever kind the scoring input
// later has.
type Preprocessor struct {
	Inputs       []string
	Numeric      []string
	Categorical  []string
	Scalers      []*preprocessing.StandardScaler
	Encoder      *preprocessing.OneHotEncoder
	Infrequent   []map[string]bool
	MinFrequency int
}

// NewPreprocessor returns an unfitted preprocessor.
func NewPreprocessor(minFrequency int) *Preprocessor {
	return &Preprocessor{MinFrequency: minFrequency}
}

// Fitted reports whether Fit has run.
func (p *Preprocessor) Fitted() bool {
	return len(p.Inputs) > 0
}

// Fit learns scales and category vocabularies from t.
func (p *Preprocessor) Fit(t *table.Table) error {
	if t.Width() == 0 {
		return fmt.Errorf("preprocess: no input columns")
	}
	*p = Preprocessor{MinFrequency: p.MinFrequency}
	for _, c := range t.Columns() {
		p.Inputs = append(p.Inputs, c.Name)
		if c.Kind == table.Numeric {
			s, err := fitScaler(c.Floats())
			if err != nil {
				return fmt.Errorf("preprocess %s: %w", c.Name, err)
			}
			p.Numeric = append(p.Numeric, c.Name)
			p.Scalers = append(p.Scalers, s)
			continue
		}
		p.Categorical = append(p.Categorical, c.Name)
		p.Infrequent = append(p.Infrequent, rareCategories(c, p.MinFrequency))
	}

	if len(p.Categorical) == 0 {
		return nil
	}
	data, err := p.categoryRows(t)
	if err != nil {
		return err
	}
	p.Encoder = preprocessing.NewOneHotEncoder()
	if err := p.Encoder.Fit(data); err != nil {
		return fmt.Errorf("preprocess: fit encoder: %w", err)
	}
	return nil
}

// fitScaler fits a unit-variance scaler on the observed values. NaN values
// do not count toward the scale, and a column with none gets scale 1.
func fitScaler(vals []float64) (*preprocessing.StandardScaler, error) {
	xs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		xs = append(xs, 0)
	}
	s := preprocessing.NewStandardScaler(false, true)
	if err := s.Fit(mat.NewDense(len(xs), 1, xs)); err != nil {
		return nil, err
	}
	return s, nil
}

func categoryOf(c *table.Column, i int) string {
	if c.IsNull(i) {
		return missingCategory
	}
	return c.String(i)
}

func rareCategories(c *table.Column, minFrequency int) map[string]bool {
	counts := map[string]int{}
	for i := 0; i < c.Len(); i++ {
		counts[categoryOf(c, i)]++
	}
	rare := map[string]bool{}
	for k, n := range counts {
		if n < minFrequency {
			rare[k] = true
		}
	}
	return rare
}

// categoryRows lays the categorical columns of t out row by row, with
// known rare categories replaced by the infrequent token. Categories never
// seen at fit time pass through and encode as all zeros.
func (p *Preprocessor) categoryRows(t *table.Table) ([][]string, error) {
	cols := make([]*table.Column, len(p.Categorical))
	for j, name := range p.Categorical {
		c, err := t.MustColumn(name)
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
		cols[j] = c
	}
	rows := make([][]string, t.Len())
	for i := range rows {
		row := make([]string, len(cols))
		for j, c := range cols {
			v := categoryOf(c, i)
			if p.Infrequent[j][v] {
				v = infrequentToken
			}
			row[j] = v
		}
		rows[i] = row
	}
	return rows, nil
}

// OutputNames returns the names of the transformed columns.
func (p *Preprocessor) OutputNames() []string {
	out := append([]string(nil), p.Numeric...)
	if p.Encoder == nil {
		return out
	}
	for j, cats := range p.Encoder.Categories {
		for _, c := range cats {
			if c == infrequentToken {
				c = infrequentName
			}
			out = append(out, p.Categorical[j]+"_"+c)
		}
	}
	return out
}

func (p *Preprocessor) width() int {
	w := len(p.Numeric)
	if p.Encoder != nil {
		w += p.Encoder.NOutputs
	}
	return w
}

// Transform produces the model matrix for t. Every fitted column must be
// present.
func (p *Preprocessor) Transform(t *table.Table) (*mat.Dense, error) {
	width := p.width()
	if width == 0 || t.Len() == 0 {
		return nil, fmt.Errorf("preprocess: empty input (%d rows, %d outputs)", t.Len(), width)
	}
	n := t.Len()
	out := mat.NewDense(n, width, nil)

	for j, name := range p.Numeric {
		c, err := t.MustColumn(name)
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
		if err := scaleInto(out, j, c, p.Scalers[j]); err != nil {
			return nil, fmt.Errorf("preprocess %s: %w", name, err)
		}
	}

	if p.Encoder == nil {
		return out, nil
	}
	data, err := p.categoryRows(t)
	if err != nil {
		return nil, err
	}
	enc, err := p.Encoder.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("preprocess: encode: %w", err)
	}
	offset := len(p.Numeric)
	for i := 0; i < n; i++ {
		for k := 0; k < p.Encoder.NOutputs; k++ {
			out.Set(i, offset+k, enc.At(i, k))
		}
	}
	return out, nil
}

// scaleInto writes the scaled values of c into column j of out. Missing
// values stay NaN.
func scaleInto(out *mat.Dense, j int, c *table.Column, s *preprocessing.StandardScaler) error {
	n := c.Len()
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = c.Float(i)
	}
	observed := make([]float64, n)
	for i, v := range vals {
		if !math.IsNaN(v) {
			observed[i] = v
		}
	}
	scaled, err := s.Transform(mat.NewDense(n, 1, observed))
	if err != nil {
		return err
	}
	for i, v := range vals {
		if math.IsNaN(v) {
			out.Set(i, j, math.NaN())
			continue
		}
		out.Set(i, j, scaled.At(i, 0))
	}
	return nil
}
