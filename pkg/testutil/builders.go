// Package testutil provides test data builders.
package testutil

import (
	"github.com/dukex/automata/pkg/models"
	"github.com/google/uuid"
)

// CreateTestTrigger creates an active trigger for eventIdentifier that can be overridden.
func CreateTestTrigger(eventIdentifier string, overrides ...func(*models.Trigger)) *models.Trigger {
	trigger := &models.Trigger{
		ID:              uuid.NewString(),
		Name:            "Test Trigger",
		EventIdentifier: eventIdentifier,
		Status:          models.TriggerStatusActive,
		Combinator:      models.CombinatorAll,
	}

	for _, override := range overrides {
		override(trigger)
	}

	for _, action := range trigger.Actions {
		action.TriggerID = trigger.ID
	}

	return trigger
}

// CreateTestAction creates an active action of actionType at the given order.
func CreateTestAction(actionType string, order int, config map[string]any) *models.Action {
	return &models.Action{
		ID:     uuid.NewString(),
		Type:   actionType,
		Name:   "Test " + actionType,
		Order:  order,
		Active: true,
		Config: config,
	}
}

func WithID(id string) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.ID = id
	}
}

func WithStatus(status models.TriggerStatus) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.Status = status
	}
}

func WithCombinator(combinator models.Combinator) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.Combinator = combinator
	}
}

// WithCondition appends a condition.
func WithCondition(conditionType, field string, value any) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.Conditions = append(t.Conditions, models.Condition{Type: conditionType, Field: field, Value: value})
	}
}

// WithActions appends actions.
func WithActions(actions ...*models.Action) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.Actions = append(t.Actions, actions...)
	}
}
