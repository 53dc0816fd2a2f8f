package web

import (
	"github.com/dukex/automata/pkg/models"
)

// PublishEventRequest is the body of POST /events/:identifier.
type PublishEventRequest struct {
	ID      string         `json:"id,omitempty"`
	Payload map[string]any `json:"payload"      validate:"required"`
}

// PublishEventResponse acknowledges an accepted event.
type PublishEventResponse struct {
	EventID    string `json:"event_id"`
	Identifier string `json:"identifier"`
}

// SaveTriggerRequest is the body of POST /triggers and PUT /triggers/:id.
type SaveTriggerRequest struct {
	Name            string             `json:"name"             validate:"required,min=3"`
	EventIdentifier string             `json:"event_identifier" validate:"required"`
	Status          string             `json:"status"           validate:"omitempty,oneof=draft active disabled"`
	Combinator      string             `json:"combinator"       validate:"omitempty,oneof=all any"`
	Conditions      []models.Condition `json:"conditions"       validate:"dive"`
	Actions         []ActionRequest    `json:"actions"          validate:"dive"`
}

// ActionRequest describes one action of a trigger. Active defaults to true.
type ActionRequest struct {
	ID     string         `json:"id,omitempty"`
	Type   string         `json:"type"             validate:"required"`
	Name   string         `json:"name"`
	Order  int            `json:"order"`
	Active *bool          `json:"active,omitempty"`
	Config map[string]any `json:"config"`
}

// Trigger converts the request into the domain model stored under id.
func (r SaveTriggerRequest) Trigger(id string) *models.Trigger {
	trigger := &models.Trigger{
		ID:              id,
		Name:            r.Name,
		EventIdentifier: r.EventIdentifier,
		Status:          models.TriggerStatus(r.Status),
		Combinator:      models.Combinator(r.Combinator),
		Conditions:      r.Conditions,
		Actions:         make([]*models.Action, 0, len(r.Actions)),
	}

	for _, action := range r.Actions {
		active := true
		if action.Active != nil {
			active = *action.Active
		}

		trigger.Actions = append(trigger.Actions, &models.Action{
			ID:     action.ID,
			Type:   action.Type,
			Name:   action.Name,
			Order:  action.Order,
			Active: active,
			Config: action.Config,
		})
	}

	return trigger
}

// ActionTypeResponse describes a registered action type.
type ActionTypeResponse struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
	Outbound    bool           `json:"outbound"`
	Monitoring  bool           `json:"monitoring"`
}
