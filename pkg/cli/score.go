package cli

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mchmarny/readmit/pkg/registry"
	"github.com/mchmarny/readmit/pkg/score"
	urfave "github.com/urfave/cli/v3"
)

const (
	inputFlag  = "input"
	outputFlag = "output"
	modelFlag  = "model"
)

func newModelFlag() urfave.Flag {
	return &urfave.StringFlag{
		Name:  modelFlag,
		Usage: "Model location, local path, gs://bucket/object or http(s) URL (default: MODEL_PATH or <artifacts>/model.gob)",
	}
}

func scoreCommand() *urfave.Command {
	return &urfave.Command{
		Name:            "score",
		Usage:           "Score a file of rows with the trained model",
		HideHelpCommand: true,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:     inputFlag,
				Usage:    "CSV or Parquet file with rows to score",
				Required: true,
			},
			&urfave.StringFlag{
				Name:     outputFlag,
				Usage:    "CSV file to write the input columns plus readmitted_proba to",
				Required: true,
			},
			newArtifactsFlag(),
			newModelFlag(),
		},
		Action: cmdScore,
	}
}

// ScoreSummary is printed after a batch scoring run.
type ScoreSummary struct {
	RunID     string  `json:"run_id" yaml:"run_id"`
	Model     string  `json:"model" yaml:"model"`
	Output    string  `json:"output" yaml:"output"`
	Rows      int     `json:"n_rows" yaml:"n_rows"`
	MeanProba float64 `json:"mean_proba" yaml:"mean_proba"`
}

func cmdScore(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)
	input := cmd.String(inputFlag)
	output := cmd.String(outputFlag)

	p, err := newProvider(ctx, cfg, modelSource(cmd, cfg))
	if err != nil {
		return err
	}

	res, err := score.ScoreCSV(ctx, p, input, output)
	if err != nil {
		return err
	}

	sum := &ScoreSummary{
		RunID:     uuid.NewString(),
		Model:     p.Source(),
		Output:    output,
		Rows:      res.Rows,
		MeanProba: res.MeanProba,
	}

	if store, err := cfg.registry(ctx); err != nil {
		slog.Warn("run registry unavailable, run will not be recorded", "error", err)
	} else if err := store.SaveScoringRun(ctx, &registry.ScoringRun{
		RunID:     sum.RunID,
		ModelPath: sum.Model,
		Input:     input,
		Output:    output,
		Rows:      sum.Rows,
		MeanProba: sum.MeanProba,
	}); err != nil {
		slog.Warn("failed to record scoring run", "run_id", sum.RunID, "error", err)
	}

	return encode(ctx, sum)
}
