package cmd

import (
	"log/slog"

	"github.com/dukex/automata/pkg/credentials"
	"github.com/dukex/automata/pkg/dispatch"
	"github.com/dukex/automata/pkg/filter"
	"github.com/dukex/automata/pkg/metrics"
	"github.com/dukex/automata/pkg/payload"
	"github.com/dukex/automata/pkg/persistence"
	"github.com/dukex/automata/pkg/registry"
	"github.com/dukex/automata/pkg/schema"
	"github.com/dukex/automata/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// EngineConfig collects what the workflow engine is assembled from.
type EngineConfig struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Analyzer    *schema.Analyzer
	Resolver    payload.EntityResolver
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	Concurrency int
}

func NewCredentialFactory(p persistence.Persistence, m *metrics.Metrics, logger *slog.Logger) *credentials.Factory {
	return credentials.NewFactory(
		p.CredentialRepository(),
		p.CredentialAccessLogRepository(),
		logger,
		credentials.WithObserver(m),
	)
}

func NewEngine(cfg EngineConfig, logger *slog.Logger) *workflow.Engine {
	dispatchOptions := []dispatch.Option{dispatch.WithRecorder(cfg.Metrics)}
	executorOptions := []workflow.Option{workflow.WithRecorder(cfg.Metrics)}

	if cfg.Tracer != nil {
		dispatchOptions = append(dispatchOptions, dispatch.WithTracer(cfg.Tracer))
		executorOptions = append(executorOptions, workflow.WithTracer(cfg.Tracer))
	}

	dispatcher := dispatch.NewDispatcher(cfg.Registry, cfg.Persistence.ActionLogRepository(), logger, dispatchOptions...)

	executor := workflow.NewExecutor(
		filter.NewEvaluator(logger),
		payload.NewConfigurator(cfg.Analyzer, cfg.Resolver, logger),
		dispatcher,
		cfg.Persistence.ExecutionRepository(),
		logger,
		executorOptions...,
	)

	return workflow.NewEngine(cfg.Persistence.TriggerRepository(), executor, logger, cfg.Concurrency)
}
