package models

import "time"

// Event is an inbound occurrence: an opaque identifier plus an arbitrary payload.
type Event struct {
	ID         string         `json:"id"`
	Identifier string         `json:"identifier"  validate:"required"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}
