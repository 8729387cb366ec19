package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mchmarny/readmit/pkg/auth"
	"github.com/mchmarny/readmit/pkg/config"
	urfave "github.com/urfave/cli/v3"
)

func authCommand() *urfave.Command {
	return &urfave.Command{
		Name:            "auth",
		Usage:           "Manage the token used to download remote model artifacts",
		HideHelpCommand: true,
		Commands: []*urfave.Command{
			{
				Name:      "set",
				Usage:     "Store a bearer token in the OS keychain (reads stdin when no argument is given)",
				ArgsUsage: "[token]",
				Action:    cmdAuthSet,
			},
			{
				Name:   "clear",
				Usage:  "Remove the stored token",
				Action: cmdAuthClear,
			},
			{
				Name:   "status",
				Usage:  "Show where the token is read from",
				Action: cmdAuthStatus,
			},
		},
	}
}

// AuthStatus is printed by auth set and auth status.
type AuthStatus struct {
	Configured bool        `json:"configured" yaml:"configured"`
	Source     auth.Source `json:"source,omitempty" yaml:"source,omitempty"`
}

func tokenStore() (*auth.Store, error) {
	home, _, err := config.GetOrCreateHomeDir(config.HomeDirName)
	if err != nil {
		return nil, err
	}
	return auth.NewStore(home), nil
}

func cmdAuthSet(ctx context.Context, cmd *urfave.Command) error {
	token := cmd.Args().First()
	if token == "" {
		fmt.Fprint(stdout, "Token: ")
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if token == "" {
		return errors.New("token required")
	}

	s, err := tokenStore()
	if err != nil {
		return err
	}
	src, err := s.Save(token)
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return encode(ctx, &AuthStatus{Configured: true, Source: src})
}

func cmdAuthClear(ctx context.Context, _ *urfave.Command) error {
	s, err := tokenStore()
	if err != nil {
		return err
	}
	if err := s.Clear(); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return encode(ctx, &AuthStatus{})
}

func cmdAuthStatus(ctx context.Context, _ *urfave.Command) error {
	s, err := tokenStore()
	if err != nil {
		return err
	}
	_, src, err := s.Get()
	if errors.Is(err, auth.ErrNoToken) {
		return encode(ctx, &AuthStatus{})
	}
	if err != nil {
		return err
	}
	return encode(ctx, &AuthStatus{Configured: true, Source: src})
}
