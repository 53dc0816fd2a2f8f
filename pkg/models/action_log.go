package models

import "time"

type ActionLogStatus string

const (
	ActionLogStatusPending ActionLogStatus = "pending"
	ActionLogStatusSuccess ActionLogStatus = "success"
	ActionLogStatusFailed  ActionLogStatus = "failed"
)

// ActionLog is the audit record of one action invocation attempt.
type ActionLog struct {
	ID              string          `json:"id"`
	TriggerID       string          `json:"trigger_id"`
	ActionID        string          `json:"action_id"`
	EventIdentifier string          `json:"event_identifier"`
	Status          ActionLogStatus `json:"status"`
	Attempt         int             `json:"attempt"`
	Payload         map[string]any  `json:"payload"`
	Response        map[string]any  `json:"response,omitempty"`
	Message         string          `json:"message,omitempty"`
	ExecutedAt      time.Time       `json:"executed_at"`
}
