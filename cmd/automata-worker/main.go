package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/automata/pkg/channels/kafka"
	"github.com/dukex/automata/pkg/cmd"
	"github.com/dukex/automata/pkg/definitions"
	"github.com/dukex/automata/pkg/log"
	"github.com/dukex/automata/pkg/metrics"
	"github.com/dukex/automata/pkg/otelhelper"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/dukex/automata/pkg/schema"
	kafkasource "github.com/dukex/automata/pkg/sources/kafka"
	"github.com/dukex/automata/pkg/sources/schedule"
	"github.com/dukex/automata/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "automata-worker",
		EnableShellCompletion: true,
		Usage:                 "Run triggers for inbound events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
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
				Name:    "redis-url",
				Usage:   "Redis URL for the related entity cache (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "definitions-file",
				Usage:   "YAML file with events, models and schedules",
				Sources: cli.EnvVars("DEFINITIONS_FILE"),
			},
			&cli.StringFlag{
				Name:    "schedules",
				Usage:   "Extra cron schedules as identifier=cron pairs separated by ';'",
				Sources: cli.EnvVars("SCHEDULES"),
			},
			&cli.StringFlag{
				Name:    "kafka-sources",
				Usage:   "External Kafka topics to consume as topic=identifier pairs separated by ';'",
				Sources: cli.EnvVars("KAFKA_SOURCES"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Maximum triggers run in parallel for one event",
				Value:   workflow.DefaultConcurrency,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
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

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("automata-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Automata Worker")

			tracer, shutdown, err := otelhelper.Setup(ctx, "automata-worker", command.Bool("otel-enabled"))
			if err != nil {
				return err
			}

			defer func() {
				err := shutdown(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(context.Background())
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

			schedules, err := schedule.ParseSchedules(command.String("schedules"))
			if err != nil {
				return err
			}

			subscriptions, err := kafkasource.ParseSubscriptions(command.String("kafka-sources"))
			if err != nil {
				return err
			}

			if path := command.String("definitions-file"); path != "" {
				defs, err := definitions.Load(path)
				if err != nil {
					return err
				}

				err = defs.Register(events, models)
				if err != nil {
					return err
				}

				schedules = append(schedules, defs.Schedules...)
				subscriptions = append(subscriptions, defs.KafkaSources...)
			}

			resolver, closeResolver, err := cmd.NewEntityResolver(ctx, persistence, models, command.String("redis-url"), logger)
			if err != nil {
				return err
			}

			defer func() {
				err := closeResolver()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close entity cache", "error", err)
				}
			}()

			engine := cmd.NewEngine(cmd.EngineConfig{
				Persistence: persistence,
				Registry:    registry,
				Analyzer:    schema.NewAnalyzer(events, models),
				Resolver:    resolver,
				Metrics:     m,
				Tracer:      tracer,
				Concurrency: command.Int("concurrency"),
			}, logger)

			eventBus, err := cmd.NewEventBus(
				command.String("event-bus"),
				kafka.ParseBrokers(command.String("kafka-brokers")),
				"automata-worker",
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

			var sources []protocol.EventSource

			if len(schedules) > 0 {
				source, err := schedule.NewSource(schedules, logger)
				if err != nil {
					return err
				}

				sources = append(sources, source)
			}

			if len(subscriptions) > 0 {
				source, err := kafkasource.NewSource(
					kafka.ParseBrokers(command.String("kafka-brokers")),
					"cg-automata-sources",
					subscriptions,
					logger,
				)
				if err != nil {
					return err
				}

				sources = append(sources, source)
			}

			worker := NewWorker(workerID, engine, eventBus, logger, sources...)

			err = worker.Start(ctx)
			if err != nil {
				return err
			}

			<-ctx.Done()

			logger.Info("Shutting down worker")

			return worker.Stop(context.Background())
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
