// Package models defines the core domain models for rule-based event automation.
package models

import (
	"sort"
	"time"
)

// TriggerStatus represents the lifecycle state of a trigger.
type TriggerStatus string

const (
	TriggerStatusDraft    TriggerStatus = "draft"    // Editable, never fires
	TriggerStatusActive   TriggerStatus = "active"   // Fires on matching events
	TriggerStatusDisabled TriggerStatus = "disabled" // Kept for history, never fires
)

// Combinator joins the results of a trigger's conditions.
type Combinator string

const (
	CombinatorAll Combinator = "all"
	CombinatorAny Combinator = "any"
)

// Trigger binds an event identifier to a set of conditions and an ordered list of actions.
type Trigger struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"             validate:"required,min=3"`
	EventIdentifier string        `json:"event_identifier" validate:"required"`
	Status          TriggerStatus `json:"status"           validate:"required,oneof=draft active disabled"`
	Combinator      Combinator    `json:"combinator"       validate:"omitempty,oneof=all any"`
	Conditions      []Condition   `json:"conditions"       validate:"dive"`
	Actions         []*Action     `json:"actions"          validate:"dive"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Condition is a single comparison test against a dot-addressed field of the payload.
type Condition struct {
	Type  string `json:"type"  validate:"required"`
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

func (t *Trigger) IsActive() bool {
	return t.Status == TriggerStatusActive
}

// CombinatorOrDefault returns the trigger combinator, falling back to all.
func (t *Trigger) CombinatorOrDefault() Combinator {
	if t.Combinator == "" {
		return CombinatorAll
	}

	return t.Combinator
}

// OrderedActions returns the active actions sorted by Order. Ties keep their insertion order.
func (t *Trigger) OrderedActions() []*Action {
	ordered := make([]*Action, 0, len(t.Actions))

	for _, action := range t.Actions {
		if action != nil && action.Active {
			ordered = append(ordered, action)
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	return ordered
}
