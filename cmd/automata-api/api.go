// Package main provides the automata API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/automata/pkg/eventbus"
	"github.com/dukex/automata/pkg/metrics"
	"github.com/dukex/automata/pkg/persistence"
	"github.com/dukex/automata/pkg/registry"
	"github.com/dukex/automata/pkg/schema"
	"github.com/dukex/automata/pkg/services"
	"github.com/dukex/automata/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	events      *schema.EventRegistry
	models      *schema.ModelRegistry
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	events *schema.EventRegistry,
	models *schema.ModelRegistry,
	metrics *metrics.Metrics,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		events:      events,
		models:      models,
		metrics:     metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		services.NewTrigger(a.persistence, a.registry, a.logger),
		services.NewHistory(a.persistence),
		schema.NewAnalyzer(a.events, a.models),
		a.events,
		a.validate,
		a.registry,
		a.eventBus,
		a.metrics,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Automata API")
	})

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	app.Get("/actions", handlers.GetActionTypes)

	e := app.Group("/events")
	e.Post("/:identifier", handlers.PublishEvent)
	e.Get("/:identifier/analysis", handlers.AnalyzeEvent)

	t := app.Group("/triggers")
	t.Get("/", handlers.GetTriggers)
	t.Post("/", handlers.CreateTrigger)
	t.Get("/:id", handlers.GetTrigger)
	t.Put("/:id", handlers.UpdateTrigger)
	t.Delete("/:id", handlers.DeleteTrigger)
	t.Get("/:id/analysis", handlers.AnalyzeTrigger)
	t.Get("/:id/executions", handlers.GetTriggerExecutions)
	t.Get("/:id/logs", handlers.GetTriggerLogs)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/credentials/:id/access-logs", handlers.GetCredentialAccessLogs)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
