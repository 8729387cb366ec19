package cli

import (
	"context"
	"log/slog"

	"github.com/mchmarny/readmit/pkg/trainer"
	urfave "github.com/urfave/cli/v3"
)

const (
	dataDirFlag      = "data"
	artifactsDirFlag = "artifacts"
	claimsFlag       = "claims"
	patientsFlag     = "patients"
	labelColFlag     = "label-col"
)

func newArtifactsFlag() urfave.Flag {
	return &urfave.StringFlag{
		Name:  artifactsDirFlag,
		Usage: "Artifacts directory (default: config artifacts_dir)",
	}
}

func trainCommand() *urfave.Command {
	return &urfave.Command{
		Name:            "train",
		Usage:           "Train the model and write the bundle, model card and validation predictions",
		HideHelpCommand: true,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  dataDirFlag,
				Usage: "Directory with claims and patients files (default: config data_dir)",
			},
			newArtifactsFlag(),
			&urfave.StringFlag{
				Name:  claimsFlag,
				Usage: "Claims CSV or Parquet file (default: <data>/claims.csv)",
			},
			&urfave.StringFlag{
				Name:  patientsFlag,
				Usage: "Patients CSV or Parquet file (default: <data>/patients.csv)",
			},
			&urfave.StringFlag{
				Name:  labelColFlag,
				Usage: "Label column name (default: LABEL_COL or auto-detected)",
			},
		},
		Action: cmdTrain,
	}
}

func cmdTrain(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	opts := trainer.DefaultOptions()
	opts.DataDir = stringOr(cmd.String(dataDirFlag), cfg.DataDir)
	opts.ArtifactsDir = stringOr(cmd.String(artifactsDirFlag), cfg.ArtifactsDir)
	opts.ClaimsPath = cmd.String(claimsFlag)
	opts.PatientsPath = cmd.String(patientsFlag)
	opts.LabelCol = stringOr(cmd.String(labelColFlag), cfg.LabelCol)

	if store, err := cfg.registry(ctx); err != nil {
		slog.Warn("run registry unavailable, run will not be recorded", "error", err)
	} else {
		opts.Recorder = store
	}

	res, err := trainer.Train(ctx, opts)
	if err != nil {
		return err
	}
	return encode(ctx, res.Card)
}

func stringOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
