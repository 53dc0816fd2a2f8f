// Package workflow runs a trigger's ordered actions for a matching event.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/automata/pkg/dispatch"
	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Matcher decides whether an event payload satisfies a trigger's conditions.
type Matcher interface {
	Matches(payload map[string]any, conditions []models.Condition, combinator models.Combinator) bool
}

// Shaper builds the input of one action from the current payload.
type Shaper interface {
	Configure(ctx context.Context, eventIdentifier string, payload map[string]any, cfg *models.PayloadConfig) map[string]any
}

type Dispatcher interface {
	Dispatch(ctx context.Context, trigger *models.Trigger, action *models.Action, payload map[string]any, eventIdentifier string) (*dispatch.Outcome, error)
}

// ExecutionStore persists runs and their steps.
type ExecutionStore interface {
	Create(ctx context.Context, execution *models.Execution) error
	Update(ctx context.Context, execution *models.Execution) error
	SaveStep(ctx context.Context, step *models.ExecutionStep) error
}

type Recorder interface {
	RunFinished(status models.ExecutionStatus)
}

type Executor struct {
	matcher    Matcher
	shaper     Shaper
	dispatcher Dispatcher
	executions ExecutionStore
	logger     *slog.Logger
	tracer     trace.Tracer
	recorder   Recorder
	now        func() time.Time
}

type Option func(*Executor)

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

func WithRecorder(recorder Recorder) Option {
	return func(e *Executor) { e.recorder = recorder }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(matcher Matcher, shaper Shaper, dispatcher Dispatcher, executions ExecutionStore, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		matcher:    matcher,
		shaper:     shaper,
		dispatcher: dispatcher,
		executions: executions,
		logger:     logger.With("module", "workflow_executor"),
		tracer:     otelhelper.NoopTracer(),
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run executes trigger for event and returns the finished run.
//
// Inactive triggers and events that do not satisfy the conditions produce no run and a
// nil execution. Steps run in order and each step's output is the next step's payload.
// The first step error fails the step and the run and stops the remaining steps. A
// failed delivery reported by a handler completes its step. The returned error only
// reports persistence failures.
func (e *Executor) Run(ctx context.Context, trigger *models.Trigger, event models.Event) (*models.Execution, error) {
	if !trigger.IsActive() {
		return nil, nil
	}

	if !e.matcher.Matches(event.Payload, trigger.Conditions, trigger.CombinatorOrDefault()) {
		e.logger.DebugContext(ctx, "Event does not match trigger conditions",
			"trigger_id", trigger.ID, "event", event.Identifier)

		return nil, nil
	}

	execution := &models.Execution{
		ID:              uuid.NewString(),
		TriggerID:       trigger.ID,
		EventIdentifier: event.Identifier,
		Status:          models.ExecutionStatusRunning,
		Input:           maps.Clone(event.Payload),
		StartedAt:       e.now(),
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.TriggerNameKey, trigger.Name),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EventIdentifierKey, event.Identifier),
	)
	defer span.End()

	logger := e.logger.With("trigger_id", trigger.ID, "execution_id", execution.ID, "event", event.Identifier)

	err := e.executions.Create(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	logger.InfoContext(ctx, "Starting execution")

	current := event.Payload

	for index, action := range trigger.OrderedActions() {
		output, stepErr, err := e.step(ctx, logger, trigger, action, execution, index+1, current, event.Identifier)
		if err != nil {
			otelhelper.SetError(span, err)

			return execution, e.abort(ctx, execution, err)
		}

		if stepErr != nil {
			execution.Fail(e.now(), fmt.Sprintf("action %s (%s): %v", action.ID, action.Type, stepErr))
			otelhelper.SetError(span, stepErr)
			logger.WarnContext(ctx, "Execution failed", "action_id", action.ID, "error", stepErr)

			return execution, e.finish(ctx, execution)
		}

		if output != nil {
			current = output
		}
	}

	execution.Complete(e.now())
	otelhelper.SetOK(span)
	logger.InfoContext(ctx, "Execution completed")

	return execution, e.finish(ctx, execution)
}

// step runs one action. output is nil unless the handler declared one; the shaped input never
// reaches the next action. stepErr is the action's own failure, err a persistence failure.
func (e *Executor) step(
	ctx context.Context,
	logger *slog.Logger,
	trigger *models.Trigger,
	action *models.Action,
	execution *models.Execution,
	position int,
	payload map[string]any,
	eventIdentifier string,
) (output map[string]any, stepErr error, err error) {
	step := &models.ExecutionStep{
		ID:          uuid.NewString(),
		ExecutionID: execution.ID,
		ActionID:    action.ID,
		ActionType:  action.Type,
		Position:    position,
		Status:      models.ExecutionStatusRunning,
		StartedAt:   e.now(),
	}

	cfg, stepErr := models.ParsePayloadConfig(action.Config)
	if stepErr == nil {
		step.Input = e.shaper.Configure(ctx, eventIdentifier, payload, cfg)
	} else {
		step.Input = maps.Clone(payload)
	}

	err = e.executions.SaveStep(ctx, step)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save step %d: %w", position, err)
	}

	var outcome *dispatch.Outcome
	if stepErr == nil {
		outcome, stepErr = e.dispatcher.Dispatch(ctx, trigger, action, step.Input, eventIdentifier)
	}

	if stepErr != nil {
		step.Fail(e.now(), stepErr.Error())
	} else {
		if !outcome.Delivered {
			logger.WarnContext(ctx, "Action reported a failed delivery", "action_id", action.ID, "step", position)
		}

		step.Complete(e.now(), outcome.Output)
	}

	err = e.executions.SaveStep(ctx, step)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save step %d: %w", position, err)
	}

	if stepErr != nil {
		return nil, stepErr, nil
	}

	return outcome.Output, nil, nil
}

func (e *Executor) finish(ctx context.Context, execution *models.Execution) error {
	if e.recorder != nil {
		e.recorder.RunFinished(execution.Status)
	}

	err := e.executions.Update(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	return nil
}

// abort fails the run after a persistence error, keeping the original cause.
func (e *Executor) abort(ctx context.Context, execution *models.Execution, cause error) error {
	execution.Fail(e.now(), cause.Error())

	if e.recorder != nil {
		e.recorder.RunFinished(execution.Status)
	}

	err := e.executions.Update(ctx, execution)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to record aborted execution", "execution_id", execution.ID, "error", err)
	}

	return cause
}
