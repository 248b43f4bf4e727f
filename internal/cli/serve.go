package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	apihttp "github.com/spec-kit/incident-sync/internal/api/http"
	"github.com/spec-kit/incident-sync/internal/api/http/handlers"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/internal/service"
	"github.com/spec-kit/incident-sync/internal/worker"
)

const shutdownTimeout = 5 * time.Second

func (a *app) cmdServe() *cli.Command {
	var (
		addr string
		lf   listFlags
	)
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address of the local API (default APP_HOST:APP_PORT)",
			Sources:     cli.EnvVars("INCIDENTSYNC_ADDR"),
			Destination: &addr,
		},
	}, lf.flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Keep the realtime connection open and expose the live incident view locally",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			filter, err := lf.filter()
			if err != nil {
				return err
			}
			rt := a.rt
			logger := rt.logger
			if addr == "" {
				addr = rt.cfg.App.Addr()
			}

			ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			viewer, err := rt.viewer(ctx)
			if err != nil {
				return err
			}

			cache := incidents.NewCache(rt.backend, viewer, logger, rt.metrics)
			cache.Attach(rt.bus)
			defer cache.Detach()

			rt.notifications.SetViewer(&viewer)
			stopNotifications := worker.StartNotificationWorker(rt.notifications)
			defer stopNotifications()

			repo, err := rt.frames(ctx)
			if err != nil {
				return err
			}
			if repo != nil {
				worker.StartJournalWorker(ctx, service.NewJournalService(repo, rt.bus, logger, rt.metrics))
			}

			client, err := rt.connect(ctx)
			if err != nil {
				return err
			}

			incidentService := rt.incidentService(cache, client)
			if err := incidentService.Load(ctx, filter); err != nil {
				logger.Warn("initial incident load failed", zap.Error(err))
			}

			app := apihttp.NewApp(rt.cfg.App.Name, apihttp.RouteConfig{
				Health:        handlers.NewHealthHandler(rt.cfg.App.Name, rt.cfg.App.Version, client, rt.postgres, rt.redis),
				Metrics:       handlers.NewMetricsHandler(rt.metrics),
				Incidents:     handlers.NewIncidentsHandler(incidentService),
				Notifications: handlers.NewNotificationsHandler(rt.notifications),
				Actions:       handlers.NewActionsHandler(incidentService),
			}, apihttp.MiddlewareConfig{
				Logger:  logger,
				Metrics: rt.metrics,
				Timeout: rt.cfg.App.RequestTimeout(),
			})

			listenErr := make(chan error, 1)
			go func() {
				logger.Info("local API listening", zap.String("addr", addr))
				listenErr <- app.Listen(addr)
			}()

			select {
			case err := <-listenErr:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				logger.Info("shutting down", zap.Error(context.Cause(ctx)))
			}

			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("local API shutdown", zap.Error(err))
			}
			return nil
		},
	}
}
