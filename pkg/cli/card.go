package cli

import (
	"context"
	"path/filepath"

	"github.com/mchmarny/readmit/pkg/bundle"
	urfave "github.com/urfave/cli/v3"
)

func cardCommand() *urfave.Command {
	return &urfave.Command{
		Name:            "card",
		Usage:           "Print the model card of the trained model",
		HideHelpCommand: true,
		Flags:           []urfave.Flag{newArtifactsFlag()},
		Action:          cmdCard,
	}
}

func cmdCard(ctx context.Context, cmd *urfave.Command) error {
	dir := stringOr(cmd.String(artifactsDirFlag), getConfig(ctx).ArtifactsDir)
	c, err := bundle.LoadCard(filepath.Join(dir, bundle.CardFileName))
	if err != nil {
		return err
	}
	return encode(ctx, c)
}
