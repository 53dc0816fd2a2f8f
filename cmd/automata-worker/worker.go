// Package main provides the automata worker: it runs triggers for the events on the bus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/automata/pkg/eventbus"
	"github.com/dukex/automata/pkg/events"
	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/google/uuid"
)

// EventHandler runs the triggers bound to one event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event models.Event) ([]*models.Execution, error)
}

type Worker struct {
	id       string
	engine   EventHandler
	eventBus eventbus.EventBus
	sources  []protocol.EventSource
	logger   *slog.Logger
}

func NewWorker(id string, engine EventHandler, eventBus eventbus.EventBus, logger *slog.Logger, sources ...protocol.EventSource) *Worker {
	return &Worker{
		id:       id,
		engine:   engine,
		eventBus: eventBus,
		sources:  sources,
		logger:   logger.With("module", "worker", "worker_id", id),
	}
}

// Start subscribes to inbound events and starts the local event sources.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker subscriptions")

	err := w.eventBus.Handle(events.EventReceivedEvent, w.handleEventReceived)
	if err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	for _, source := range w.sources {
		err = source.Start(ctx, w.emit)
		if err != nil {
			return fmt.Errorf("failed to start event source: %w", err)
		}
	}

	w.logger.InfoContext(ctx, "Worker started successfully", "sources", len(w.sources))

	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	for _, source := range w.sources {
		err := source.Stop(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

// handleEventReceived never asks for redelivery. Run failures are recorded on the execution.
func (w *Worker) handleEventReceived(ctx context.Context, event any) error {
	received, ok := event.(*events.EventReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for EventReceived", "type", fmt.Sprintf("%T", event))

		return nil
	}

	logger := w.logger.With("event_id", received.Event.ID, "event", received.Event.Identifier)
	logger.InfoContext(ctx, "Processing event")

	executions, err := w.engine.HandleEvent(ctx, received.Event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to handle event", "error", err)
	}

	for _, execution := range executions {
		finished := events.NewExecutionFinished(w.eventBus.GenerateID(), w.id, execution)

		err := w.eventBus.Publish(ctx, execution.TriggerID, finished)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to publish execution finished event",
				"execution_id", execution.ID, "error", err)
		}
	}

	logger.InfoContext(ctx, "Event processed", "executions", len(executions))

	return nil
}

// emit publishes an event produced by a local source so any worker can run it.
func (w *Worker) emit(ctx context.Context, identifier string, payload map[string]any) error {
	event := models.Event{
		ID:         uuid.NewString(),
		Identifier: identifier,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}

	return w.eventBus.Publish(ctx, identifier, events.EventReceived{
		BaseEvent: events.NewBaseEvent(event.ID, events.EventReceivedEvent),
		Event:     event,
	})
}
