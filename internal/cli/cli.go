// Package cli implements the incidentsync command line.
package cli

import (
	"context"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/config"
	"github.com/spec-kit/incident-sync/internal/observability"
)

type app struct {
	rt *runtime
}

// Run parses args and executes the selected command.
func Run(ctx context.Context, args []string, version string) error {
	var (
		a         app
		logLevel  string
		logFormat string
	)

	root := &cli.Command{
		Name:    "incidentsync",
		Usage:   "Realtime incident client for the campus reporting backend",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "info",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (json, console)",
				Sources:     cli.EnvVars("LOG_FORMAT"),
				Value:       "console",
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load()
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			cfg.Logger.Level = logLevel
			cfg.Logger.Format = logFormat
			if version != "" {
				cfg.App.Version = version
			}

			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return ctx, fmt.Errorf("init logger: %w", err)
			}
			rt, err := newRuntime(cfg, logger)
			if err != nil {
				return ctx, err
			}
			a.rt = rt
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if a.rt != nil {
				a.rt.close()
				_ = a.rt.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			a.cmdServe(),
			a.cmdLogin(),
			a.cmdRegister(),
			a.cmdLogout(),
			a.cmdWhoAmI(),
			a.cmdList(),
			a.cmdNotifications(),
			a.cmdJournal(),
			a.cmdPublish(),
			a.cmdEdit(),
			a.cmdChoose(),
			a.cmdAssign(),
			a.cmdComment(),
			a.cmdResolve(),
			a.cmdManage(),
		},
	}

	if err := root.Run(ctx, args); err != nil {
		if a.rt != nil {
			a.rt.logger.Error("command failed", zap.Error(err))
		}
		return err
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
