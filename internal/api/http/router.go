package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-sync/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Metrics       *handlers.MetricsHandler
	Incidents     *handlers.IncidentsHandler
	Notifications *handlers.NotificationsHandler
	Actions       *handlers.ActionsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	incidents := app.Group("/incidents")
	incidents.Get("", cfg.Incidents.List)
	incidents.Post("/refresh", cfg.Incidents.Refresh)
	incidents.Get("/:uuid", cfg.Incidents.Get)

	notifications := app.Group("/notifications")
	notifications.Get("", cfg.Notifications.List)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	app.Post("/actions/:command", cfg.Actions.Execute)
}

// NewApp builds the fiber app with middlewares and routes.
func NewApp(name string, routes RouteConfig, mw MiddlewareConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, mw.Logger, mw.Metrics, mw.Timeout)
	RegisterRoutes(app, routes)
	return app
}
