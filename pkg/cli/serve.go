package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mchmarny/readmit/pkg/auth"
	"github.com/mchmarny/readmit/pkg/bundle"
	"github.com/mchmarny/readmit/pkg/config"
	"github.com/mchmarny/readmit/pkg/net"
	"github.com/mchmarny/readmit/pkg/score"
	"github.com/mchmarny/readmit/pkg/server"
	urfave "github.com/urfave/cli/v3"
)

const addressFlag = "address"

func serveCommand() *urfave.Command {
	return &urfave.Command{
		Name:            "serve",
		Aliases:         []string{"server"},
		Usage:           "Start the scoring HTTP server",
		HideHelpCommand: true,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  addressFlag,
				Usage: "Address on which the server will listen (default: config address)",
			},
			newArtifactsFlag(),
			newModelFlag(),
		},
		Action: cmdServe,
	}
}

func cmdServe(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newProvider(ctx, cfg, modelSource(cmd, cfg))
	if err != nil {
		return err
	}

	// load before accepting traffic; on failure /readyz stays 503 and
	// requests retry the load
	if _, err := p.Load(ctx); err != nil {
		slog.Error("model not loaded at startup", "source", p.Source(), "error", err)
	}

	s := server.New(stringOr(cmd.String(addressFlag), cfg.Address), p)
	return s.Run(ctx)
}

func modelSource(cmd *urfave.Command, cfg *appConfig) string {
	if v := cmd.String(modelFlag); v != "" {
		return v
	}
	if v := cmd.String(artifactsDirFlag); v != "" {
		return filepath.Join(v, bundle.FileName)
	}
	return cfg.ModelSource()
}

// newProvider builds a provider for source, authenticating remote
// downloads with the stored artifact token when there is one.
func newProvider(ctx context.Context, cfg *appConfig, source string) (*score.Provider, error) {
	opts := []score.Option{
		score.WithCacheDir(cfg.CachePath()),
		score.WithRetries(cfg.FetchRetries),
	}

	s, err := bundle.ParseSource(source)
	if err != nil {
		return nil, err
	}
	if s.Remote() {
		token, err := artifactToken()
		if err != nil {
			return nil, err
		}
		client, err := net.GetOAuthClient(ctx, token)
		if err != nil {
			return nil, err
		}
		opts = append(opts, score.WithClient(client))
	}
	return score.NewProvider(source, opts...)
}

func artifactToken() (string, error) {
	home, _, err := config.GetOrCreateHomeDir(config.HomeDirName)
	if err != nil {
		return "", err
	}
	token, src, err := auth.NewStore(home).Get()
	if errors.Is(err, auth.ErrNoToken) {
		slog.Debug("no artifact token, downloading anonymously")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	slog.Debug("artifact token found", "source", src)
	return token, nil
}
