// Package cli wires configuration into the serve, worker and export commands.
package cli

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/local/pdftools/internal/config"
	"github.com/local/pdftools/internal/logger"
)

// Version is set at build time.
var Version = "dev"

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	var (
		envFile  string
		logLevel string
		cfg      config.Config
	)

	app := &cli.Command{
		Name:    "pdftools",
		Usage:   "PDF conversion service and page image exporter",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "Load environment variables from this file",
				Value:       ".env",
				Destination: &envFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Override LOG_LEVEL",
				Sources:     cli.EnvVars("PDFTOOLS_LOG_LEVEL"),
				Destination: &logLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// only an explicitly passed file must exist
			if err := config.LoadDotEnv(envFile, c.IsSet("env-file")); err != nil {
				return ctx, err
			}
			cfg = config.FromEnv()
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if err := logger.Init(logger.OptionsFromConfig(cfg)); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		After: func(context.Context, *cli.Command) error {
			logger.Close()
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(&cfg),
			cmdWorker(&cfg),
			cmdExport(&cfg),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		log.Error().Err(err).Msg("CLI execution failed")
		return err
	}
	return nil
}
