// Package model holds the in-process learning layer. It adapts scigo's
// preprocessing, lightgbm trainer and metrics to readmit tables.
package model

import (
	"context"
	"fmt"

	"github.com/mchmarny/readmit/pkg/table"
)

// Pipeline chains the preprocessor and the classifier.
type Pipeline struct {
	Prep  *Preprocessor
	Model *Booster
}

// NewPipeline returns an unfitted pipeline with the given booster settings.
func NewPipeline(cfg BoosterConfig) *Pipeline {
	return &Pipeline{
		Prep:  NewPreprocessor(DefaultMinFrequency),
		Model: NewBooster(cfg),
	}
}

// Fit learns the preprocessing from X and trains the classifier on y.
func (p *Pipeline) Fit(ctx context.Context, X *table.Table, y []float64) error {
	if X.Len() != len(y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrShape, X.Len(), len(y))
	}
	if err := p.Prep.Fit(X); err != nil {
		return err
	}
	m, err := p.Prep.Transform(X)
	if err != nil {
		return err
	}
	if err := p.Model.Fit(ctx, m, y); err != nil {
		return fmt.Errorf("fit booster: %w", err)
	}
	return nil
}

// PredictProba returns the positive class probability for each row of X.
func (p *Pipeline) PredictProba(X *table.Table) ([]float64, error) {
	if p.Prep == nil || !p.Prep.Fitted() || p.Model == nil {
		return nil, ErrNotFitted
	}
	if X.Len() == 0 {
		return []float64{}, nil
	}
	m, err := p.Prep.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.Model.PredictProba(m)
}

// InputNames returns the columns the pipeline was fitted on, in order.
func (p *Pipeline) InputNames() []string {
	return append([]string(nil), p.Prep.Inputs...)
}
