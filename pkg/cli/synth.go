package cli

import (
	"context"

	"github.com/mchmarny/readmit/pkg/synth"
	urfave "github.com/urfave/cli/v3"
)

const (
	synthOutFlag      = "out"
	synthRowsFlag     = "rows"
	synthPatientsFlag = "patients"
	synthSeedFlag     = "seed"
)

func synthCommand() *urfave.Command {
	defaults := synth.DefaultOptions()
	return &urfave.Command{
		Name:            "synth",
		Usage:           "Write a synthetic claims and patients dataset",
		HideHelpCommand: true,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  synthOutFlag,
				Usage: "Directory to write claims.csv and patients.csv to (default: config data_dir)",
			},
			&urfave.IntFlag{
				Name:  synthRowsFlag,
				Usage: "Number of claims",
				Value: defaults.Rows,
			},
			&urfave.IntFlag{
				Name:  synthPatientsFlag,
				Usage: "Number of patients",
				Value: defaults.Patients,
			},
			&urfave.IntFlag{
				Name:  synthSeedFlag,
				Usage: "Random seed",
				Value: int(defaults.Seed),
			},
		},
		Action: cmdSynth,
	}
}

// SynthSummary is printed after a dataset is written.
type SynthSummary struct {
	Dir       string `json:"dir" yaml:"dir"`
	Claims    int    `json:"claims" yaml:"claims"`
	Patients  int    `json:"patients" yaml:"patients"`
	Trainable int    `json:"trainable" yaml:"trainable"`
}

func cmdSynth(ctx context.Context, cmd *urfave.Command) error {
	dir := stringOr(cmd.String(synthOutFlag), getConfig(ctx).DataDir)

	opts := synth.DefaultOptions()
	opts.Rows = int(cmd.Int(synthRowsFlag))
	opts.Patients = int(cmd.Int(synthPatientsFlag))
	opts.Seed = uint64(cmd.Int(synthSeedFlag))

	ds, err := synth.Generate(opts)
	if err != nil {
		return err
	}
	if err := synth.Write(dir, ds); err != nil {
		return err
	}
	return encode(ctx, &SynthSummary{
		Dir:       dir,
		Claims:    ds.Claims.Len(),
		Patients:  ds.Patients.Len(),
		Trainable: ds.Trainable,
	})
}
