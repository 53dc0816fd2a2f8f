package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/automata/pkg/models"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

// TriggerSource lists the triggers bound to an event.
type TriggerSource interface {
	ListActiveByEvent(ctx context.Context, eventIdentifier string) ([]*models.Trigger, error)
}

// Engine fans one event out to every active trigger bound to it.
type Engine struct {
	triggers    TriggerSource
	executor    *Executor
	logger      *slog.Logger
	concurrency int
}

func NewEngine(triggers TriggerSource, executor *Executor, logger *slog.Logger, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Engine{
		triggers:    triggers,
		executor:    executor,
		logger:      logger.With("module", "workflow_engine"),
		concurrency: concurrency,
	}
}

// HandleEvent runs every matching trigger concurrently and returns the runs that were
// created, in trigger order. Runs are independent: a persistence failure in one run does
// not stop the others, and the first such failure is returned.
func (e *Engine) HandleEvent(ctx context.Context, event models.Event) ([]*models.Execution, error) {
	triggers, err := e.triggers.ListActiveByEvent(ctx, event.Identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to load triggers for %s: %w", event.Identifier, err)
	}

	e.logger.DebugContext(ctx, "Handling event", "event", event.Identifier, "triggers", len(triggers))

	results := make([]*models.Execution, len(triggers))

	var group errgroup.Group

	group.SetLimit(e.concurrency)

	for i, trigger := range triggers {
		group.Go(func() error {
			execution, err := e.executor.Run(ctx, trigger, event)
			results[i] = execution

			if err != nil {
				e.logger.ErrorContext(ctx, "Trigger run failed", "trigger_id", trigger.ID, "error", err)

				return fmt.Errorf("trigger %s: %w", trigger.ID, err)
			}

			return nil
		})
	}

	err = group.Wait()

	executions := make([]*models.Execution, 0, len(results))

	for _, execution := range results {
		if execution != nil {
			executions = append(executions, execution)
		}
	}

	return executions, err
}
