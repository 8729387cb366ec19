package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/readmit/pkg/config"
	"github.com/mchmarny/readmit/pkg/logging"
	"github.com/mchmarny/readmit/pkg/registry"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "readmit"

	formatJSON = "json"
	formatYAML = "yaml"

	debugFlag     = "debug"
	logFormatFlag = "log-format"
	formatFlag    = "format"
	configFlag    = "config"
	registryFlag  = "registry"
)

type appConfigKey struct{}

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	// stdout receives command results; logs go to stderr.
	stdout io.Writer = os.Stdout
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	*config.Config
	Debug  bool
	Format string

	store *registry.Store
}

func getConfig(ctx context.Context) *appConfig {
	if cfg, ok := ctx.Value(appConfigKey{}).(*appConfig); ok {
		return cfg
	}
	return &appConfig{Config: config.Default(), Format: formatJSON}
}

// registry opens the run registry on first use.
func (c *appConfig) registry(ctx context.Context) (*registry.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	dsn := c.Registry
	if dsn == "" {
		home, _, err := config.GetOrCreateHomeDir(config.HomeDirName)
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(home, config.RegistryFileName)
	}
	s, err := registry.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	c.store = s
	return s, nil
}

func (c *appConfig) close() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			slog.Debug("error closing registry", "error", err)
		}
		c.store = nil
	}
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Train and serve a 30-day readmission risk model",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{
				Name:  debugFlag,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&urfave.StringFlag{
				Name:  logFormatFlag,
				Usage: "Log format [text, json]",
				Value: logging.FormatText,
			},
			&urfave.StringFlag{
				Name:  formatFlag,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
			&urfave.StringFlag{
				Name:  configFlag,
				Usage: "Path to YAML config file (default: ~/.readmit/config.yaml when present)",
			},
			&urfave.StringFlag{
				Name:  registryFlag,
				Usage: "Run registry DSN, sqlite file path or postgres:// URL (default: ~/.readmit/registry.db)",
			},
		},
		Commands: []*urfave.Command{
			trainCommand(),
			scoreCommand(),
			serveCommand(),
			cardCommand(),
			runsCommand(),
			synthCommand(),
			authCommand(),
			configCommand(),
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			c, err := config.Load(config.Resolve(cmd.String(configFlag)))
			if err != nil {
				return ctx, err
			}
			if v := cmd.String(registryFlag); v != "" {
				c.Registry = v
			}

			debug := cmd.Bool(debugFlag)
			level := c.LogLevel
			if debug {
				level = "debug"
			}
			slog.SetDefault(logging.New(cmd.String(logFormatFlag), level, os.Stderr))

			f := cmd.String(formatFlag)
			format := formatJSON
			if f == formatYAML || f == "yml" {
				format = formatYAML
			}

			return context.WithValue(ctx, appConfigKey{}, &appConfig{
				Config: c,
				Debug:  debug,
				Format: format,
			}), nil
		},
		After: func(ctx context.Context, _ *urfave.Command) error {
			getConfig(ctx).close()
			return nil
		},
	}
}

func encode(ctx context.Context, v any) error {
	if getConfig(ctx).Format == formatYAML {
		return yaml.NewEncoder(stdout).Encode(v)
	}
	e := json.NewEncoder(stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
