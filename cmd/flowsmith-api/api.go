// Package main provides the flowsmith API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowsmith/flowsmith/pkg/agents"
	"github.com/flowsmith/flowsmith/pkg/approval"
	"github.com/flowsmith/flowsmith/pkg/costgov"
	"github.com/flowsmith/flowsmith/pkg/eventbus"
	"github.com/flowsmith/flowsmith/pkg/execution"
	"github.com/flowsmith/flowsmith/pkg/orchestrator"
	"github.com/flowsmith/flowsmith/pkg/persistence"
	"github.com/flowsmith/flowsmith/pkg/triggermap"
	"github.com/flowsmith/flowsmith/pkg/web"
	"github.com/flowsmith/flowsmith/pkg/webhook"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *agents.Registry
	eventBus    eventbus.EventBus
	approvals   approval.Store
	mapper      *triggermap.Mapper
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	registry *agents.Registry,
	eventBus eventbus.EventBus,
	approvals approval.Store,
	mapper *triggermap.Mapper,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		registry:    registry,
		eventBus:    eventBus,
		approvals:   approvals,
		mapper:      mapper,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	governor := costgov.NewGovernor(a.logger)
	orch := orchestrator.New(a.registry, governor, orchestrator.NewKeywordClassifier()).
		WithPublisher(a.eventBus)

	processor := webhook.NewProcessor(a.persistence, a.eventBus)
	executions := execution.NewManager(a.persistence, a.eventBus, execution.Config{})

	handlers := web.NewAPIHandlers(
		orch, a.registry, a.approvals, processor, executions, a.mapper, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowsmith API")
	})

	app.Post("/approvals", handlers.HandleApproval)
	app.Post("/diagnostics", handlers.HandleDiagnostic)
	app.All("/webhook/:triggerId", handlers.HandleWebhook)
	app.Post("/orchestrate", handlers.HandleOrchestrate)
	app.Post("/triggers/suggest", handlers.HandleSuggestTriggers)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/metrics", handlers.GetExecutionMetrics)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
