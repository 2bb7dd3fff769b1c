// Package main provides the flowsmith executor: it consumes trigger events,
// drives execution state, and hosts the webhook listener and cron scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/flowsmith/flowsmith/pkg/cmd"
	"github.com/flowsmith/flowsmith/pkg/execution"
	"github.com/flowsmith/flowsmith/pkg/log"
	"github.com/flowsmith/flowsmith/pkg/triggermap/schedule"
	"github.com/flowsmith/flowsmith/pkg/webhook"
)

const defaultWebhookPort = 9092

func main() {
	logger := log.WithModule("executor")

	command := &cli.Command{
		Name:                  "flowsmith-executor",
		Usage:                 "Execute workflow triggers and track execution state",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
			&cli.IntFlag{
				Name:    "webhook-port",
				Usage:   "Port for the webhook listener",
				Value:   defaultWebhookPort,
				Sources: cli.EnvVars("WEBHOOK_PORT"),
			},
			&cli.StringFlag{
				Name:     "organization-id",
				Usage:    "Organization whose scheduled triggers this executor runs",
				Required: true,
				Sources:  cli.EnvVars("ORGANIZATION_ID"),
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

			logger.InfoContext(ctx, "Initializing Flowsmith executor")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := p.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowsmith-executor", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			manager := execution.NewManager(p, eventBus, execution.Config{})
			if err := manager.RegisterHandlers(eventBus); err != nil {
				return err
			}

			processor := webhook.NewProcessor(p, eventBus)

			server := webhook.NewServer(command.Int("webhook-port"), processor)
			if err := server.Start(ctx); err != nil {
				return err
			}

			scheduler := schedule.NewSource(p, eventBus, logger)
			if err := scheduler.Start(ctx, command.String("organization-id")); err != nil {
				return err
			}

			defer func() {
				if err := scheduler.Stop(context.Background()); err != nil {
					logger.Error("Failed to stop scheduler", "error", err)
				}
			}()

			if err := eventBus.Subscribe(ctx); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Executor running")

			<-ctx.Done()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}
