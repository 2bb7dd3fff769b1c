package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/flowsmith/flowsmith/pkg/approval"
	"github.com/flowsmith/flowsmith/pkg/cmd"
	"github.com/flowsmith/flowsmith/pkg/log"
	"github.com/flowsmith/flowsmith/pkg/triggermap"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "flowsmith-api",
		Usage:                 "Chat-driven workflow generation and orchestration API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the approval store; empty keeps approvals in memory",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "llm-api-key",
				Usage:    "API key for the language-model collaborator",
				Required: true,
				Sources:  cli.EnvVars("LLM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "llm-base-url",
				Usage:   "Base URL for the language-model collaborator",
				Value:   "https://api.flowsmith.dev/llm",
				Sources: cli.EnvVars("LLM_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowsmith API")

			p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := p.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowsmith-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			llmClient, err := cmd.NewLLMClient(command.String("llm-base-url"), command.String("llm-api-key"))
			if err != nil {
				return err
			}

			var approvals approval.Store
			if redisURL := command.String("redis-url"); redisURL != "" {
				approvals, err = approval.NewRedisStore(redisURL, approval.Config{})
				if err != nil {
					return err
				}
			} else {
				approvals = approval.NewMemoryStore(approval.Config{})
			}

			defer func() {
				if err := approvals.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close approval store", "error", err)
				}
			}()

			mapper := triggermap.NewDefault()
			registry := cmd.NewRegistry(logger, llmClient, mapper)

			api := NewAPI(logger, p, registry, eventBus, approvals, mapper)

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}
