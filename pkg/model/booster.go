package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/scigo/metrics"
	"github.com/YuminosukeSato/scigo/sklearn/lightgbm"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotFitted is returned when predicting with an untrained model.
	ErrNotFitted = errors.New("model is not fitted")

	// ErrShape is returned when inputs have inconsistent dimensions.
	ErrShape = errors.New("input shape mismatch")
)

const (
	objectiveBinary = "binary"
	stoppingMetric  = "binary_logloss"
)

// BoosterConfig holds the hyperparameters of the gradient boosted trees.
type BoosterConfig struct {
	LearningRate   float64
	MaxIter        int
	MaxLeafNodes   int
	MinSamplesLeaf int
	L2             float64
	MaxDepth       int // 0 means unbounded
	MaxBins        int
	MinGainToSplit float64
	Seed           uint64

	// Early stopping holds out ValidationFraction of the rows and stops after
	// NIterNoChange rounds without a lower validation loss. It is on only
	// when there are more than EarlyStoppingMinRows rows; 0 turns it off.
	EarlyStoppingMinRows int
	ValidationFraction   float64
	NIterNoChange        int
}

// DefaultBoosterConfig returns the settings used for readmission models.
func DefaultBoosterConfig() BoosterConfig {
	return BoosterConfig{
		LearningRate:         0.1,
		MaxIter:              100,
		MaxLeafNodes:         31,
		MinSamplesLeaf:       50,
		L2:                   0,
		MaxDepth:             0,
		MaxBins:              255,
		MinGainToSplit:       1e-7,
		Seed:                 42,
		EarlyStoppingMinRows: 10000,
		ValidationFraction:   0.1,
		NIterNoChange:        10,
	}
}

func (c BoosterConfig) params() lightgbm.TrainingParams {
	depth := c.MaxDepth
	if depth <= 0 {
		depth = -1
	}
	return lightgbm.TrainingParams{
		NumIterations:   c.MaxIter,
		LearningRate:    c.LearningRate,
		NumLeaves:       c.MaxLeafNodes,
		MaxDepth:        depth,
		MinDataInLeaf:   c.MinSamplesLeaf,
		Lambda:          c.L2,
		MinGainToSplit:  c.MinGainToSplit,
		BaggingFraction: 1,
		FeatureFraction: 1,
		MaxBin:          c.MaxBins,
		MinDataInBin:    3,
		Objective:       objectiveBinary,
		NumClass:        1,
		Seed:            int(c.Seed),
		Deterministic:   true,
		Verbosity:       -1,
		Metric:          stoppingMetric,
	}
}

// Booster is a binary gradient boosted tree classifier. Missing values are
// replaced with a per-feature fill below the smallest training value, so
// they share the lowest bin and follow its split direction.
type Booster struct {
	Config       BoosterConfig
	Model        *lightgbm.Model
	Fill         []float64
	NFeatures    int
	EarlyStopped bool
}

// NewBooster returns an unfitted booster.
func NewBooster(cfg BoosterConfig) *Booster {
	if cfg.MaxBins <= 1 || cfg.MaxBins > 255 {
		cfg.MaxBins = 255
	}
	if cfg.MaxLeafNodes < 2 {
		cfg.MaxLeafNodes = 2
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	return &Booster{Config: cfg}
}

// Iterations is the number of trees in the fitted ensemble.
func (b *Booster) Iterations() int {
	if b.Model == nil {
		return 0
	}
	return len(b.Model.Trees)
}

// Fit trains on X with binary labels y in {0, 1}.
func (b *Booster) Fit(ctx context.Context, X *mat.Dense, y []float64) error {
	n, p := X.Dims()
	if n != len(y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrShape, n, len(y))
	}
	var pos int
	for _, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("label %v is not 0 or 1", v)
		}
		pos += int(v)
	}
	if pos == 0 || pos == n {
		return fmt.Errorf("%w: training labels have a single class", ErrUndefinedMetric)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.Fill = missingFill(X)
	filled := b.fillMissing(X)

	trainIdx, validIdx := b.holdout(y)
	Xt, yt := subset(filled, y, trainIdx)

	trainer := lightgbm.NewTrainer(b.Config.params())
	cb := b.stopper(ctx, filled, y, validIdx)
	if err := trainer.FitWithCallbacks(Xt, yt, cb); err != nil {
		return fmt.Errorf("train: %w", err)
	}

	b.Model = trainer.GetModel()
	b.NFeatures = p
	b.EarlyStopped = len(validIdx) > 0 && len(b.Model.Trees) < b.Config.MaxIter

	slog.Debug("booster fitted",
		"rows", len(trainIdx),
		"holdout", len(validIdx),
		"features", p,
		"trees", len(b.Model.Trees),
		"early_stopped", b.EarlyStopped)
	return nil
}

// stopper returns the per-iteration callback. It aborts on context
// cancellation and, with a holdout, stops once the holdout log loss has not
// improved for NIterNoChange rounds.
func (b *Booster) stopper(ctx context.Context, X *mat.Dense, y []float64, validIdx []int) lightgbm.Callback {
	var (
		Xv   *mat.Dense
		yv   []float64
		stop *lightgbm.EarlyStopping
	)
	if len(validIdx) > 0 {
		Xv, yv = subsetRows(X, y, validIdx)
		stop = lightgbm.NewEarlyStopping(b.Config.NIterNoChange, stoppingMetric)
	}
	return func(env *lightgbm.CallbackEnv) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		// the callback also runs before each iteration, when the newest
		// tree is not built yet
		if stop == nil || env.Model == nil || len(env.Model.Trees) != env.Iteration+1 {
			return nil
		}
		loss, err := logLoss(env.Model, Xv, yv)
		if err != nil {
			return err
		}
		env.EvalResults["valid_"+stoppingMetric] = loss
		if stop.Update(env.Iteration, loss) {
			env.StopTraining = true
		}
		return nil
	}
}

// holdout splits row indices into training rows and a stratified
// validation holdout. The holdout is empty unless early stopping applies.
func (b *Booster) holdout(y []float64) (train, valid []int) {
	n := len(y)
	cfg := b.Config
	if cfg.EarlyStoppingMinRows <= 0 || n <= cfg.EarlyStoppingMinRows ||
		cfg.ValidationFraction <= 0 || cfg.NIterNoChange <= 0 {
		train = make([]int, n)
		for i := range train {
			train[i] = i
		}
		return train, nil
	}

	r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	var byClass [2][]int
	for i, v := range y {
		byClass[int(v)] = append(byClass[int(v)], i)
	}
	for _, idx := range byClass {
		r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		k := int(math.Ceil(cfg.ValidationFraction * float64(len(idx))))
		valid = append(valid, idx[:k]...)
		train = append(train, idx[k:]...)
	}
	return train, valid
}

// missingFill returns one value per column that sits below every observed
// value of that column.
func missingFill(X *mat.Dense) []float64 {
	n, p := X.Dims()
	fill := make([]float64, p)
	for j := 0; j < p; j++ {
		lo := math.Inf(1)
		for i := 0; i < n; i++ {
			if v := X.At(i, j); !math.IsNaN(v) && v < lo {
				lo = v
			}
		}
		if math.IsInf(lo, 1) {
			lo = 0
		}
		fill[j] = lo - 1
	}
	return fill
}

func (b *Booster) fillMissing(X *mat.Dense) *mat.Dense {
	n, p := X.Dims()
	out := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				v = b.Fill[j]
			}
			out.Set(i, j, v)
		}
	}
	return out
}

func subsetRows(X *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, p := X.Dims()
	out := mat.NewDense(len(idx), p, nil)
	ys := make([]float64, len(idx))
	for k, i := range idx {
		out.SetRow(k, X.RawRowView(i))
		ys[k] = y[i]
	}
	return out, ys
}

func subset(X *mat.Dense, y []float64, idx []int) (*mat.Dense, *mat.Dense) {
	Xs, ys := subsetRows(X, y, idx)
	return Xs, mat.NewDense(len(ys), 1, ys)
}

func positiveProba(m *lightgbm.Model, X *mat.Dense) ([]float64, error) {
	proba, err := lightgbm.NewPredictor(m).PredictProba(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 1, proba), nil
}

func logLoss(m *lightgbm.Model, X *mat.Dense, y []float64) (float64, error) {
	p, err := positiveProba(m, X)
	if err != nil {
		return 0, err
	}
	return metrics.BinaryLogLoss(mat.NewVecDense(len(y), y), mat.NewVecDense(len(p), p))
}

// PredictProba returns the probability of the positive class per row.
func (b *Booster) PredictProba(X *mat.Dense) ([]float64, error) {
	if b.Model == nil || b.NFeatures == 0 {
		return nil, ErrNotFitted
	}
	_, p := X.Dims()
	if p != b.NFeatures {
		return nil, fmt.Errorf("%w: %d features, model has %d", ErrShape, p, b.NFeatures)
	}
	return positiveProba(b.Model, b.fillMissing(X))
}
