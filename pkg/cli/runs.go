package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/readmit/pkg/config"
	"github.com/mchmarny/readmit/pkg/registry"
	urfave "github.com/urfave/cli/v3"
)

const (
	runsLimitFlag = "limit"
	yesFlag       = "yes"
)

// stdin is read by confirmation prompts.
var stdin io.Reader = os.Stdin

func newLimitFlag() urfave.Flag {
	return &urfave.IntFlag{
		Name:  runsLimitFlag,
		Usage: "Limits number of runs returned",
		Value: registry.DefaultListLimit,
		Local: true,
	}
}

func runsCommand() *urfave.Command {
	return &urfave.Command{
		Name:            "runs",
		Usage:           "List recorded training runs",
		HideHelpCommand: true,
		Flags:           []urfave.Flag{newLimitFlag()},
		Action:          cmdListTrainingRuns,
		Commands: []*urfave.Command{
			{
				Name:   "scores",
				Usage:  "List recorded scoring runs",
				Flags:  []urfave.Flag{newLimitFlag()},
				Action: cmdListScoringRuns,
			},
			{
				Name:  "reset",
				Usage: "Delete the local sqlite registry and start fresh",
				Flags: []urfave.Flag{
					&urfave.BoolFlag{
						Name:  yesFlag,
						Usage: "Skip the confirmation prompt",
					},
				},
				Action: cmdResetRegistry,
			},
		},
	}
}

func cmdListTrainingRuns(ctx context.Context, cmd *urfave.Command) error {
	store, err := getConfig(ctx).registry(ctx)
	if err != nil {
		return err
	}
	list, err := store.ListTrainingRuns(ctx, int(cmd.Int(runsLimitFlag)))
	if err != nil {
		return err
	}
	return encode(ctx, list)
}

func cmdListScoringRuns(ctx context.Context, cmd *urfave.Command) error {
	store, err := getConfig(ctx).registry(ctx)
	if err != nil {
		return err
	}
	list, err := store.ListScoringRuns(ctx, int(cmd.Int(runsLimitFlag)))
	if err != nil {
		return err
	}
	return encode(ctx, list)
}

func cmdResetRegistry(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	path := strings.TrimPrefix(cfg.Registry, "sqlite://")
	if path == "" {
		home, _, err := config.GetOrCreateHomeDir(config.HomeDirName)
		if err != nil {
			return err
		}
		path = filepath.Join(home, config.RegistryFileName)
	}
	if strings.Contains(path, "://") {
		return errors.New("reset only supports the local sqlite registry")
	}

	if !cmd.Bool(yesFlag) {
		fmt.Fprintf(stdout, "This will permanently delete all runs in %s\n", path)
		fmt.Fprint(stdout, "Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	// close the registry before deleting the file
	cfg.close()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting registry: %w", err)
	}
	slog.Info("registry deleted", "path", path)

	cfg.Registry = path
	if _, err := cfg.registry(ctx); err != nil {
		return fmt.Errorf("re-initializing registry: %w", err)
	}
	slog.Info("registry re-initialized", "path", path)
	return nil
}
