// Package events defines the messages exchanged between the api and the workers.
package events

import (
	"time"

	"github.com/dukex/automata/pkg/models"
)

type EventType string

const Topic = "automata.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	EventReceivedEvent     EventType = "event.received"
	ExecutionFinishedEvent EventType = "execution.finished"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(id string, eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EventReceived carries an inbound event accepted by the api.
type EventReceived struct {
	BaseEvent

	Event models.Event `json:"event"`
}

func (e EventReceived) GetType() EventType {
	return EventReceivedEvent
}

// ExecutionFinished is published once a run reaches a terminal status.
type ExecutionFinished struct {
	BaseEvent

	ExecutionID     string                 `json:"execution_id"`
	TriggerID       string                 `json:"trigger_id"`
	EventIdentifier string                 `json:"event_identifier"`
	Status          models.ExecutionStatus `json:"status"`
	Error           string                 `json:"error,omitempty"`
	Duration        time.Duration          `json:"duration"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

// NewExecutionFinished builds the notification for a terminal execution.
func NewExecutionFinished(id, workerID string, execution *models.Execution) ExecutionFinished {
	event := ExecutionFinished{
		BaseEvent:       NewBaseEvent(id, ExecutionFinishedEvent),
		ExecutionID:     execution.ID,
		TriggerID:       execution.TriggerID,
		EventIdentifier: execution.EventIdentifier,
		Status:          execution.Status,
		Error:           execution.Error,
	}
	event.WorkerID = workerID

	if execution.FinishedAt != nil {
		event.Duration = execution.FinishedAt.Sub(execution.StartedAt)
	}

	return event
}
