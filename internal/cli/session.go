package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/spec-kit/incident-sync/internal/backend"
)

func (a *app) cmdLogin() *cli.Command {
	var email, password string

	return &cli.Command{
		Name:  "login",
		Usage: "Authenticate and store the session token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "email",
				Usage:       "Account email",
				Required:    true,
				Sources:     cli.EnvVars("INCIDENTSYNC_EMAIL"),
				Destination: &email,
			},
			&cli.StringFlag{
				Name:        "password",
				Usage:       "Account password",
				Required:    true,
				Sources:     cli.EnvVars("INCIDENTSYNC_PASSWORD"),
				Destination: &password,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			profile, sess, err := a.rt.auth.Login(ctx, email, password)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, map[string]any{
				"profile":    profile,
				"expires_at": sess.ExpiresAt,
			})
		},
	}
}

func (a *app) cmdRegister() *cli.Command {
	var req backend.RegisterRequest

	return &cli.Command{
		Name:  "register",
		Usage: "Create a community account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true, Destination: &req.Name},
			&cli.StringFlag{Name: "email", Required: true, Destination: &req.Email},
			&cli.StringFlag{
				Name:        "password",
				Required:    true,
				Sources:     cli.EnvVars("INCIDENTSYNC_PASSWORD"),
				Destination: &req.Password,
			},
			&cli.StringFlag{Name: "code", Usage: "Campus code, when the backend asks for one", Destination: &req.Code},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := a.rt.auth.Register(ctx, req); err != nil {
				return err
			}
			_, err := fmt.Fprintln(c.Root().Writer, "account created; run `incidentsync login`")
			return err
		},
	}
}

func (a *app) cmdLogout() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored session, profile and notifications",
		Action: func(ctx context.Context, c *cli.Command) error {
			return a.rt.auth.Logout(ctx)
		},
	}
}

func (a *app) cmdWhoAmI() *cli.Command {
	var refresh bool

	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the current profile",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "refresh",
				Usage:       "Ask the backend instead of using the cached profile",
				Destination: &refresh,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			profile, err := a.rt.auth.Profile(ctx, refresh)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, profile)
		},
	}
}
