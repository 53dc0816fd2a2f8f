package main

import (
	"context"
	"os"

	"github.com/dukex/automata/pkg/channels/kafka"
	"github.com/dukex/automata/pkg/cmd"
	"github.com/dukex/automata/pkg/definitions"
	"github.com/dukex/automata/pkg/log"
	"github.com/dukex/automata/pkg/metrics"
	"github.com/dukex/automata/pkg/schema"
	"github.com/dukex/automata/pkg/services"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "automata-api",
		Usage:                 "Accept events and manage triggers",
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
				Usage:    "Database connection URL for persistence (file path or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "definitions-file",
				Usage:   "YAML file with events, models, triggers, credentials and schedules",
				Sources: cli.EnvVars("DEFINITIONS_FILE"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing action plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces and instrument the Kafka clients",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("automata-api")

			logger.InfoContext(ctx, "Initializing Automata API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			m := metrics.New()

			registry, err := cmd.NewRegistry(logger, command.String("plugins-path"), cmd.NewCredentialFactory(persistence, m, logger))
			if err != nil {
				return err
			}

			events := schema.NewEventRegistry()
			models := schema.NewModelRegistry()

			if path := command.String("definitions-file"); path != "" {
				defs, err := definitions.Load(path)
				if err != nil {
					return err
				}

				err = defs.Register(events, models)
				if err != nil {
					return err
				}

				err = defs.Seed(ctx, services.NewTrigger(persistence, registry, logger), persistence.CredentialRepository())
				if err != nil {
					return err
				}

				logger.InfoContext(ctx, "Loaded definitions", "path", path,
					"events", len(defs.Events), "models", len(defs.Models), "triggers", len(defs.Triggers))
			}

			eventBus, err := cmd.NewEventBus(
				command.String("event-bus"),
				kafka.ParseBrokers(command.String("kafka-brokers")),
				"automata-api",
				command.Bool("otel-enabled"),
				logger,
			)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, registry, eventBus, events, models, m)

			return api.Start(command.Int("port"))
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
