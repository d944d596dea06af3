package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/api/http/handlers"
	"github.com/spec-kit/ticket-orchestrator/internal/auth"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
)

// AppDependencies bundles what NewApp needs beyond routes.
type AppDependencies struct {
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	RequestTimeout time.Duration
	Routes         RouteConfig
}

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
}

// NewApp builds the fiber application with middlewares and routes attached.
func NewApp(appName string, deps AppDependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, deps.Logger, deps.Metrics, deps.RequestTimeout)
	RegisterRoutes(app, deps.Routes)
	return app
}
