package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mchmarny/readmit/pkg/config"
	urfave "github.com/urfave/cli/v3"
)

const (
	configPathFlag  = "path"
	configForceFlag = "force"
)

func configCommand() *urfave.Command {
	return &urfave.Command{
		Name:            "config",
		Usage:           "Inspect or write the YAML config file",
		HideHelpCommand: true,
		Commands: []*urfave.Command{
			{
				Name:  "init",
				Usage: "Write the current settings to a config file",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  configPathFlag,
						Usage: "Destination file (default: ~/.readmit/config.yaml)",
					},
					&urfave.BoolFlag{
						Name:  configForceFlag,
						Usage: "Overwrite an existing file",
					},
				},
				Action: cmdConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the resolved settings",
				Action: cmdConfigShow,
			},
		},
	}
}

// ConfigInitResult is printed by config init.
type ConfigInitResult struct {
	Path string `json:"path" yaml:"path"`
}

func cmdConfigInit(ctx context.Context, cmd *urfave.Command) error {
	path := cmd.String(configPathFlag)
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !cmd.Bool(configForceFlag) {
		return fmt.Errorf("%s already exists, use --%s to overwrite", path, configForceFlag)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := config.Save(path, getConfig(ctx).Config); err != nil {
		return err
	}
	return encode(ctx, &ConfigInitResult{Path: path})
}

func cmdConfigShow(ctx context.Context, _ *urfave.Command) error {
	return encode(ctx, getConfig(ctx).Config)
}
