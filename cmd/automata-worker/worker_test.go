package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/automata/pkg/channels/gochannel"
	"github.com/dukex/automata/pkg/eventbus"
	"github.com/dukex/automata/pkg/events"
	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (f *fakeEngine) HandleEvent(_ context.Context, event models.Event) ([]*models.Execution, error) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()

	started := time.Now().UTC()
	finished := started.Add(time.Second)

	execution := &models.Execution{
		ID:              "exec-" + event.ID,
		TriggerID:       "trigger-1",
		EventIdentifier: event.Identifier,
		Status:          models.ExecutionStatusCompleted,
		StartedAt:       started,
		FinishedAt:      &finished,
	}

	return []*models.Execution{execution}, f.err
}

type manualSource struct {
	callback protocol.EventCallback
	stopped  bool
}

func (s *manualSource) Start(_ context.Context, callback protocol.EventCallback) error {
	s.callback = callback

	return nil
}

func (s *manualSource) Stop(context.Context) error {
	s.stopped = true

	return nil
}

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func collectFinished(t *testing.T, bus eventbus.EventBus) <-chan *events.ExecutionFinished {
	t.Helper()

	finished := make(chan *events.ExecutionFinished, 4)

	require.NoError(t, bus.Handle(events.ExecutionFinishedEvent, func(_ context.Context, event any) error {
		finished <- event.(*events.ExecutionFinished)

		return nil
	}))

	return finished
}

func TestWorker_RunsEventsFromTheBus(t *testing.T) {
	bus := newBus(t)
	finished := collectFinished(t, bus)
	engine := &fakeEngine{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewWorker("worker-test", engine, bus, slog.New(slog.DiscardHandler))
	require.NoError(t, worker.Start(ctx))

	err := bus.Publish(ctx, "order.created", events.EventReceived{
		BaseEvent: events.NewBaseEvent("evt-1", events.EventReceivedEvent),
		Event: models.Event{
			ID:         "evt-1",
			Identifier: "order.created",
			Payload:    map[string]any{"amount": 10.0},
		},
	})
	require.NoError(t, err)

	select {
	case got := <-finished:
		assert.Equal(t, "exec-evt-1", got.ExecutionID)
		assert.Equal(t, "trigger-1", got.TriggerID)
		assert.Equal(t, "order.created", got.EventIdentifier)
		assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
		assert.Equal(t, "worker-test", got.WorkerID)
	case <-time.After(5 * time.Second):
		t.Fatal("execution finished event was not published")
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()

	require.Len(t, engine.events, 1)
	assert.Equal(t, 10.0, engine.events[0].Payload["amount"])
}

func TestWorker_PublishesExecutionsEvenWhenTheRunFails(t *testing.T) {
	bus := newBus(t)
	finished := collectFinished(t, bus)
	engine := &fakeEngine{err: errors.New("boom")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewWorker("worker-test", engine, bus, slog.New(slog.DiscardHandler))
	require.NoError(t, worker.Start(ctx))

	err := bus.Publish(ctx, "order.created", events.EventReceived{
		BaseEvent: events.NewBaseEvent("evt-2", events.EventReceivedEvent),
		Event:     models.Event{ID: "evt-2", Identifier: "order.created"},
	})
	require.NoError(t, err)

	select {
	case got := <-finished:
		assert.Equal(t, "exec-evt-2", got.ExecutionID)
	case <-time.After(5 * time.Second):
		t.Fatal("execution finished event was not published")
	}
}

func TestWorker_SourceEventsGoThroughTheBus(t *testing.T) {
	bus := newBus(t)
	finished := collectFinished(t, bus)
	engine := &fakeEngine{}
	source := &manualSource{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewWorker("worker-test", engine, bus, slog.New(slog.DiscardHandler), source)
	require.NoError(t, worker.Start(ctx))
	require.NotNil(t, source.callback)

	require.NoError(t, source.callback(ctx, "report.daily", map[string]any{"scheduled_at": "2026-01-01T00:00:00Z"}))

	select {
	case got := <-finished:
		assert.Equal(t, "report.daily", got.EventIdentifier)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled event was not processed")
	}

	engine.mu.Lock()
	require.Len(t, engine.events, 1)
	assert.NotEmpty(t, engine.events[0].ID)
	assert.Equal(t, "report.daily", engine.events[0].Identifier)
	engine.mu.Unlock()

	require.NoError(t, worker.Stop(context.Background()))
	assert.True(t, source.stopped)
}

func TestWorker_IgnoresUnexpectedEventValues(t *testing.T) {
	worker := NewWorker("worker-test", &fakeEngine{}, newBus(t), slog.New(slog.DiscardHandler))

	assert.NoError(t, worker.handleEventReceived(context.Background(), "not an event"))
}
