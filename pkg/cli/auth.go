package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/mchmarny/dropscore/pkg/auth"
	"github.com/urfave/cli/v3"
)

var (
	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Manage the API key that protects the scoring service",
		Commands: []*cli.Command{
			{
				Name:   "key",
				Usage:  "Generate a new API key and store it in the OS keychain",
				Action: cmdGenerateKey,
			},
			{
				Name:   "show",
				Usage:  "Print the stored API key",
				Action: cmdShowKey,
			},
			{
				Name:   "clear",
				Usage:  "Remove the stored API key",
				Action: cmdClearKey,
			},
		},
	}
)

func cmdGenerateKey(_ context.Context, cmd *cli.Command) error {
	key, err := auth.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	if err := auth.NewStore(getConfig(cmd).Home).Save(key); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}
	return encode(cmd, map[string]string{"api_key": key})
}

func cmdShowKey(_ context.Context, cmd *cli.Command) error {
	key, err := auth.NewStore(getConfig(cmd).Home).Get()
	if err != nil {
		if errors.Is(err, auth.ErrNoKey) {
			return fmt.Errorf("%w, run: %s auth key", err, appName)
		}
		return err
	}
	return encode(cmd, map[string]string{"api_key": key})
}

func cmdClearKey(_ context.Context, cmd *cli.Command) error {
	if err := auth.NewStore(getConfig(cmd).Home).Clear(); err != nil {
		return err
	}
	return encode(cmd, map[string]bool{"cleared": true})
}
