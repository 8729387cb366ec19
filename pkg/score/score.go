package score

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/readmit/pkg/align"
	"github.com/mchmarny/readmit/pkg/bundle"
	"github.com/mchmarny/readmit/pkg/table"
)

// ProbaColumn is appended to batch scoring output.
const ProbaColumn = "readmitted_proba"

// ScoreTable aligns t to the bundle's features and returns the positive
// class probability per row.
func ScoreTable(b *bundle.Bundle, t *table.Table) ([]float64, error) {
	if b == nil || b.Pipeline == nil {
		return nil, ErrNotLoaded
	}
	x, err := align.Align(t, b.FeatureNames)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	probs, err := b.Pipeline.PredictProba(x)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return probs, nil
}

// ScoreRecords scores JSON style row objects.
func ScoreRecords(b *bundle.Bundle, rows []map[string]any) ([]float64, error) {
	t, err := table.FromRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return ScoreTable(b, t)
}

// CSVResult summarizes a batch scoring run.
type CSVResult struct {
	Rows      int
	MeanProba float64
}

// ScoreCSV scores every row of the input file and writes the input columns
// plus ProbaColumn to output.
func ScoreCSV(ctx context.Context, p *Provider, input, output string) (*CSVResult, error) {
	b, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}

	t, err := table.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", input, err)
	}

	probs, err := ScoreTable(b, t)
	if err != nil {
		return nil, err
	}

	if err := t.Set(table.NewNumeric(ProbaColumn, probs)); err != nil {
		return nil, err
	}
	if err := table.WriteCSVFile(output, t); err != nil {
		return nil, fmt.Errorf("write %s: %w", output, err)
	}

	res := &CSVResult{Rows: len(probs)}
	for _, v := range probs {
		res.MeanProba += v
	}
	if res.Rows > 0 {
		res.MeanProba /= float64(res.Rows)
	}
	slog.Info("wrote scores", "path", output, "rows", res.Rows)
	return res, nil
}
