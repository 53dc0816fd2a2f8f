// Package dispatch invokes one configured action and records the attempt in the action log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/otelhelper"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrInvalidAction     = errors.New("invalid action configuration")
	ErrHandlerPanic      = errors.New("action handler panicked")
)

// Outcome labels used for metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
)

// ActionLogStore persists the audit trail of action invocations.
type ActionLogStore interface {
	Create(ctx context.Context, log *models.ActionLog) error
	Update(ctx context.Context, log *models.ActionLog) error
	Delete(ctx context.Context, id string) error
}

// Resolver finds the factory for an action type tag.
type Resolver interface {
	Action(actionType string) (protocol.ActionFactory, error)
}

type Recorder interface {
	ActionDispatched(actionType, outcome string, duration time.Duration)
}

// Outcome is what a dispatch produced.
type Outcome struct {
	// Log is the persisted row, or nil when a routine success was discarded.
	Log *models.ActionLog
	// Response is the handler's response descriptor.
	Response map[string]any
	// Delivered is false when the handler reported a failed delivery.
	Delivered bool
	// Output is the payload the handler declared for the next action, or nil when it
	// declared none.
	Output map[string]any
}

type Dispatcher struct {
	actions  Resolver
	logs     ActionLogStore
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder
	now      func() time.Time
}

type Option func(*Dispatcher)

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) { d.recorder = recorder }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(actions Resolver, logs ActionLogStore, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		actions: actions,
		logs:    logs,
		logger:  logger.With("module", "dispatcher"),
		tracer:  otelhelper.NoopTracer(),
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch runs action against payload.
//
// A pending log row is written first. Handler errors, unknown types and invalid
// configuration leave a failed row and are returned. A response with success=false
// leaves a failed row and is not an error. Successful rows are kept only for
// monitoring actions or when the action sets log_success.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	trigger *models.Trigger,
	action *models.Action,
	payload map[string]any,
	eventIdentifier string,
) (*Outcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch",
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, action.Type),
		attribute.String(otelhelper.EventIdentifierKey, eventIdentifier),
	)
	defer span.End()

	logger := d.logger.With("trigger_id", trigger.ID, "action_id", action.ID, "action_type", action.Type)
	start := time.Now()

	entry := &models.ActionLog{
		ID:              uuid.NewString(),
		TriggerID:       trigger.ID,
		ActionID:        action.ID,
		EventIdentifier: eventIdentifier,
		Status:          models.ActionLogStatusPending,
		Attempt:         1,
		Payload:         maps.Clone(payload),
		ExecutedAt:      d.now(),
	}

	err := d.logs.Create(ctx, entry)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create action log: %w", err)
	}

	factory, err := d.actions.Action(action.Type)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrUnknownActionType, action.Type)

		return nil, d.fail(ctx, span, logger, entry, action.Type, err, start)
	}

	handler, err := factory.Create(action.Config)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidAction, err)

		return nil, d.fail(ctx, span, logger, entry, action.Type, err, start)
	}

	response, err := invoke(ctx, handler, &protocol.Request{
		Trigger:         trigger,
		Action:          action,
		Payload:         payload,
		EventIdentifier: eventIdentifier,
		Log:             entry,
	})
	if err != nil {
		return nil, d.fail(ctx, span, logger, entry, action.Type, err, start)
	}

	entry.Response = response
	entry.Message = message(response)

	outcome := &Outcome{Log: entry, Response: response, Delivered: true}
	if output, ok := protocol.Output(response); ok {
		outcome.Output = output
	}

	if protocol.Failed(response) {
		entry.Status = models.ActionLogStatusFailed
		if entry.Message == "" {
			entry.Message = "delivery failed"
		}

		outcome.Delivered = false

		d.update(ctx, logger, entry)
		logger.WarnContext(ctx, "Action reported a failed delivery", "message", entry.Message)
		d.record(action.Type, OutcomeFailed, start)
		span.SetAttributes(attribute.Bool("automata.delivered", false))

		return outcome, nil
	}

	entry.Status = models.ActionLogStatusSuccess

	if protocol.IsMonitoring(factory) || action.ConfigBool("log_success") {
		d.update(ctx, logger, entry)
	} else {
		err = d.logs.Delete(ctx, entry.ID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to discard successful action log", "error", err)
		}

		outcome.Log = nil
	}

	logger.DebugContext(ctx, "Action dispatched")
	d.record(action.Type, OutcomeSuccess, start)
	otelhelper.SetOK(span)

	return outcome, nil
}

func (d *Dispatcher) fail(
	ctx context.Context,
	span trace.Span,
	logger *slog.Logger,
	entry *models.ActionLog,
	actionType string,
	cause error,
	start time.Time,
) error {
	entry.Status = models.ActionLogStatusFailed
	entry.Message = cause.Error()

	d.update(ctx, logger, entry)

	logger.ErrorContext(ctx, "Action dispatch failed", "error", cause)
	otelhelper.SetError(span, cause)
	d.record(actionType, OutcomeError, start)

	return cause
}

func (d *Dispatcher) update(ctx context.Context, logger *slog.Logger, entry *models.ActionLog) {
	err := d.logs.Update(ctx, entry)
	if err != nil {
		logger.ErrorContext(ctx, "failed to update action log", "status", entry.Status, "error", err)
	}
}

func (d *Dispatcher) record(actionType, outcome string, start time.Time) {
	if d.recorder != nil {
		d.recorder.ActionDispatched(actionType, outcome, time.Since(start))
	}
}

func invoke(ctx context.Context, handler protocol.ActionHandler, req *protocol.Request) (response map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	return handler.Handle(ctx, req)
}

func message(response map[string]any) string {
	msg, _ := response[protocol.ResponseMessage].(string)

	return msg
}
