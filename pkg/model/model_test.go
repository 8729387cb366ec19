package model

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/YuminosukeSato/scigo/metrics"
	"github.com/mchmarny/readmit/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestROCAUC(t *testing.T) {
	y := []float64{0, 0, 1, 1}
	s := []float64{0.1, 0.4, 0.35, 0.8}
	auc, err := ROCAUC(y, s)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, auc, 1e-12)

	auc, err = ROCAUC([]float64{0, 1}, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, auc, 1e-12)

	_, err = ROCAUC([]float64{1, 1}, []float64{0.2, 0.3})
	assert.ErrorIs(t, err, ErrUndefinedMetric)

	_, err = ROCAUC([]float64{1}, []float64{0.2, 0.3})
	assert.ErrorIs(t, err, ErrShape)
}

func TestAveragePrecision(t *testing.T) {
	y := []float64{0, 0, 1, 1}
	s := []float64{0.1, 0.4, 0.35, 0.8}
	ap, err := AveragePrecision(y, s)
	require.NoError(t, err)
	assert.InDelta(t, 0.8333333, ap, 1e-6)

	ap, err = AveragePrecision([]float64{1, 0, 1, 0}, []float64{0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ap, 1e-12)

	_, err = AveragePrecision([]float64{0, 0}, []float64{0.2, 0.3})
	assert.ErrorIs(t, err, ErrUndefinedMetric)
}

func TestAveragePrecision_DistinctScoresMatchScigo(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 5))
	y := make([]float64, 200)
	s := make([]float64, 200)
	for i := range y {
		s[i] = r.Float64()
		if r.Float64() < s[i] {
			y[i] = 1
		}
	}
	ours, err := AveragePrecision(y, s)
	require.NoError(t, err)
	want, err := metrics.AveragePrecision(mat.NewVecDense(len(y), y), mat.NewVecDense(len(s), s))
	require.NoError(t, err)
	assert.InDelta(t, want, ours, 1e-12)
}

func TestPreprocessor(t *testing.T) {
	n := 30
	age := make([]float64, n)
	gender := make([]string, n)
	for i := 0; i < n; i++ {
		age[i] = float64(i % 2 * 2)
		switch {
		case i < 12:
			gender[i] = "F"
		case i < 24:
			gender[i] = "M"
		default:
			gender[i] = "X"
		}
	}
	age[0] = math.NaN()
	tbl, err := table.New(table.NewNumeric("age", age), table.NewCategorical("gender", gender, nil))
	require.NoError(t, err)

	p := NewPreprocessor(DefaultMinFrequency)
	require.NoError(t, p.Fit(tbl))
	assert.Equal(t, []string{"age", "gender_infrequent", "gender_F", "gender_M"}, p.OutputNames())

	m, err := p.Transform(tbl)
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, n, r)
	assert.Equal(t, 4, c)
	assert.True(t, math.IsNaN(m.At(0, 0)))
	assert.InDelta(t, 2/p.Scalers[0].Scale[0], m.At(1, 0), 1e-12)
	assert.Equal(t, []float64{0, 1, 0}, mat.Row(nil, 0, m)[1:])
	assert.Equal(t, []float64{1, 0, 0}, mat.Row(nil, 25, m)[1:])

	// unknown category encodes as zeros, numeric text as NaN
	in, err := table.New(
		table.NewCategorical("age", []string{"Unknown"}, nil),
		table.NewCategorical("gender", []string{"Z"}, nil),
	)
	require.NoError(t, err)
	m, err = p.Transform(in)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.At(0, 0)))
	assert.Equal(t, []float64{0, 0, 0}, mat.Row(nil, 0, m)[1:])

	_, err = p.Transform(table.Empty(1))
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestPreprocessor_UnseenCategoryIsNotInfrequent(t *testing.T) {
	gender := make([]string, 41)
	for i := range gender {
		switch {
		case i < 20:
			gender[i] = "F"
		case i < 40:
			gender[i] = "M"
		default:
			gender[i] = "X"
		}
	}
	tbl, err := table.New(table.NewCategorical("gender", gender, nil))
	require.NoError(t, err)
	p := NewPreprocessor(DefaultMinFrequency)
	require.NoError(t, p.Fit(tbl))
	assert.Equal(t, []string{"gender_infrequent", "gender_F", "gender_M"}, p.OutputNames())

	in, err := table.New(table.NewCategorical("gender", []string{"never-seen", "X"}, nil))
	require.NoError(t, err)
	m, err := p.Transform(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, mat.Row(nil, 0, m))
	assert.Equal(t, []float64{1, 0, 0}, mat.Row(nil, 1, m))
}

func TestPreprocessor_JSONMatchesCSV(t *testing.T) {
	var b strings.Builder
	b.WriteString("icd_code\n")
	for i := 0; i < 20; i++ {
		b.WriteString("0389\nE11\n")
	}
	train, err := table.ReadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	p := NewPreprocessor(DefaultMinFrequency)
	require.NoError(t, p.Fit(train))
	assert.Equal(t, []string{"icd_code_0389", "icd_code_E11"}, p.OutputNames())

	fromCSV, err := table.ReadCSV(strings.NewReader("icd_code\n0389\n"))
	require.NoError(t, err)
	fromJSON, err := table.FromRecords([]map[string]any{{"icd_code": "0389"}})
	require.NoError(t, err)

	a, err := p.Transform(fromCSV)
	require.NoError(t, err)
	j, err := p.Transform(fromJSON)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, mat.Row(nil, 0, a))
	assert.Equal(t, mat.Row(nil, 0, a), mat.Row(nil, 0, j))
}

func TestPreprocessor_UnknownWithoutInfrequent(t *testing.T) {
	vals := make([]string, 20)
	for i := range vals {
		vals[i] = []string{"a", "b"}[i%2]
	}
	tbl, err := table.New(table.NewCategorical("c", vals, nil))
	require.NoError(t, err)
	p := NewPreprocessor(DefaultMinFrequency)
	require.NoError(t, p.Fit(tbl))
	assert.Equal(t, []string{"c_a", "c_b"}, p.OutputNames())

	in, err := table.New(table.NewCategorical("c", []string{"zzz"}, nil))
	require.NoError(t, err)
	m, err := p.Transform(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, mat.Row(nil, 0, m))
}

func TestPreprocessor_ConstantAndEmptyNumeric(t *testing.T) {
	tbl, err := table.New(
		table.NewNumeric("flat", []float64{5, 5, 5}),
		table.NewNumeric("gone", []float64{math.NaN(), math.NaN(), math.NaN()}),
		table.NewNumeric("wide", []float64{1, 5, math.NaN()}),
	)
	require.NoError(t, err)
	p := NewPreprocessor(DefaultMinFrequency)
	require.NoError(t, p.Fit(tbl))
	assert.InDelta(t, 1.0, p.Scalers[0].Scale[0], 1e-12)
	assert.InDelta(t, 1.0, p.Scalers[1].Scale[0], 1e-12)
	assert.InDelta(t, 2.0, p.Scalers[2].Scale[0], 1e-12)
}

func TestMissingFill(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		2, math.NaN(),
		-1, math.NaN(),
		math.NaN(), math.NaN(),
	})
	assert.Equal(t, []float64{-2, -1}, missingFill(X))
}

func separable(n int, seed uint64) (*mat.Dense, []float64) {
	r := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := r.Float64()
		X.Set(i, 0, x0)
		X.Set(i, 1, r.NormFloat64())
		if i%7 == 0 {
			X.Set(i, 2, math.NaN())
		} else {
			X.Set(i, 2, r.Float64())
		}
		if x0 > 0.5 {
			y[i] = 1
		}
		if r.Float64() < 0.05 {
			y[i] = 1 - y[i]
		}
	}
	return X, y
}

func testConfig() BoosterConfig {
	cfg := DefaultBoosterConfig()
	cfg.MaxIter = 20
	return cfg
}

func TestBooster_Fit(t *testing.T) {
	X, y := separable(1000, 1)
	b := NewBooster(testConfig())
	require.NoError(t, b.Fit(context.Background(), X, y))
	assert.Equal(t, 20, b.Iterations())
	assert.False(t, b.EarlyStopped)
	assert.Greater(t, b.Model.Trees[0].NumLeaves, 1)

	proba, err := b.PredictProba(X)
	require.NoError(t, err)
	for _, p := range proba {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	auc, err := ROCAUC(y, proba)
	require.NoError(t, err)
	assert.Greater(t, auc, 0.9)

	// the first split of the first tree uses the informative feature
	assert.Equal(t, 0, b.Model.Trees[0].Nodes[0].SplitFeature)
}

func TestBooster_Deterministic(t *testing.T) {
	X, y := separable(600, 2)
	a := NewBooster(testConfig())
	require.NoError(t, a.Fit(context.Background(), X, y))
	b := NewBooster(testConfig())
	require.NoError(t, b.Fit(context.Background(), X, y))

	pa, err := a.PredictProba(X)
	require.NoError(t, err)
	pb, err := b.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestBooster_Errors(t *testing.T) {
	b := NewBooster(testConfig())
	_, err := b.PredictProba(mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, ErrNotFitted)

	X, y := separable(100, 3)
	assert.ErrorIs(t, b.Fit(context.Background(), X, y[:10]), ErrShape)

	bad := append([]float64(nil), y...)
	bad[0] = 2
	assert.Error(t, b.Fit(context.Background(), X, bad))

	assert.ErrorIs(t, b.Fit(context.Background(), X, make([]float64, 100)), ErrUndefinedMetric)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Fit(ctx, X, y), context.Canceled)
}

func TestBooster_SmallDataIsConstant(t *testing.T) {
	X, y := separable(60, 4)
	b := NewBooster(testConfig())
	require.NoError(t, b.Fit(context.Background(), X, y))
	for _, tr := range b.Model.Trees {
		assert.Equal(t, 1, tr.NumLeaves)
	}
}

func TestBooster_EarlyStopping(t *testing.T) {
	// labels carry no signal, so the holdout loss stops improving early
	r := rand.New(rand.NewPCG(11, 11))
	n := 600
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, r.Float64())
		X.Set(i, 1, r.NormFloat64())
		if r.Float64() < 0.5 {
			y[i] = 1
		}
	}
	cfg := DefaultBoosterConfig()
	cfg.MinSamplesLeaf = 5
	cfg.EarlyStoppingMinRows = 100

	b := NewBooster(cfg)
	require.NoError(t, b.Fit(context.Background(), X, y))
	assert.True(t, b.EarlyStopped)
	assert.Less(t, b.Iterations(), cfg.MaxIter)
	assert.GreaterOrEqual(t, b.Iterations(), cfg.NIterNoChange)

	// at or below the row threshold every iteration runs
	cfg.EarlyStoppingMinRows = n
	b = NewBooster(cfg)
	require.NoError(t, b.Fit(context.Background(), X, y))
	assert.False(t, b.EarlyStopped)
	assert.Equal(t, cfg.MaxIter, b.Iterations())
}

func TestBooster_Holdout(t *testing.T) {
	y := make([]float64, 200)
	for i := 0; i < 40; i++ {
		y[i] = 1
	}
	cfg := DefaultBoosterConfig()
	cfg.EarlyStoppingMinRows = 100
	train, valid := NewBooster(cfg).holdout(y)
	assert.Len(t, train, 180)
	assert.Len(t, valid, 20)
	var pos int
	for _, i := range valid {
		pos += int(y[i])
	}
	assert.Equal(t, 4, pos)

	again, _ := NewBooster(cfg).holdout(y)
	assert.Equal(t, train, again)
}

func TestPipeline(t *testing.T) {
	n := 800
	r := rand.New(rand.NewPCG(9, 9))
	age := make([]float64, n)
	plan := make([]string, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		age[i] = 20 + 60*r.Float64()
		plan[i] = []string{"gold", "silver", "bronze"}[i%3]
		if age[i] > 60 || (plan[i] == "bronze" && r.Float64() < 0.5) {
			y[i] = 1
		}
	}
	tbl, err := table.New(table.NewNumeric("age", age), table.NewCategorical("plan", plan, nil))
	require.NoError(t, err)

	p := NewPipeline(testConfig())
	require.NoError(t, p.Fit(context.Background(), tbl, y))
	assert.Equal(t, []string{"age", "plan"}, p.InputNames())

	proba, err := p.PredictProba(tbl)
	require.NoError(t, err)
	require.Len(t, proba, n)
	auc, err := ROCAUC(y, proba)
	require.NoError(t, err)
	assert.Greater(t, auc, 0.85)

	_, err = NewPipeline(testConfig()).PredictProba(tbl)
	assert.ErrorIs(t, err, ErrNotFitted)
}
