// Package web provides HTTP handlers for publishing events and managing triggers.
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/automata/pkg/eventbus"
	"github.com/dukex/automata/pkg/events"
	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/dukex/automata/pkg/registry"
	"github.com/dukex/automata/pkg/schema"
	"github.com/dukex/automata/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

var ErrEventBusUnavailable = errors.New("event bus unavailable")

// EventCounter is notified of every accepted event.
type EventCounter interface {
	EventReceived(identifier string)
}

// EventValidator checks inbound payloads against the registered event schemas.
type EventValidator interface {
	Validate(identifier string, payload map[string]any) error
}

type APIHandlers struct {
	triggers  *services.Trigger
	history   *services.History
	analyzer  *schema.Analyzer
	events    EventValidator
	validator *validator.Validate
	registry  *registry.Registry
	publisher eventbus.EventPublisher
	counter   EventCounter
}

func NewAPIHandlers(
	triggers *services.Trigger,
	history *services.History,
	analyzer *schema.Analyzer,
	events EventValidator,
	validator *validator.Validate,
	registry *registry.Registry,
	publisher eventbus.EventPublisher,
	counter EventCounter,
) *APIHandlers {
	return &APIHandlers{
		triggers:  triggers,
		history:   history,
		analyzer:  analyzer,
		events:    events,
		validator: validator,
		registry:  registry,
		publisher: publisher,
		counter:   counter,
	}
}

// PublishEvent accepts an event for asynchronous processing by the workers.
func (h *APIHandlers) PublishEvent(c fiber.Ctx) error {
	identifier := c.Params("identifier")

	var req PublishEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.events.Validate(identifier, req.Payload); err != nil {
		return handleServiceError(c, err)
	}

	if h.publisher == nil {
		return internalError(c, ErrEventBusUnavailable)
	}

	event := models.Event{
		ID:         req.ID,
		Identifier: identifier,
		Payload:    req.Payload,
		OccurredAt: time.Now().UTC(),
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	message := events.EventReceived{
		BaseEvent: events.NewBaseEvent(event.ID, events.EventReceivedEvent),
		Event:     event,
	}

	if err := h.publisher.Publish(c.Context(), identifier, message); err != nil {
		return internalError(c, err)
	}

	if h.counter != nil {
		h.counter.EventReceived(identifier)
	}

	return c.Status(fiber.StatusAccepted).JSON(PublishEventResponse{
		EventID:    event.ID,
		Identifier: identifier,
	})
}

func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	triggers, err := h.triggers.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(triggers)
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	trigger, err := h.triggers.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	return h.saveTrigger(c, "", fiber.StatusCreated)
}

// UpdateTrigger replaces the trigger stored under :id, creating it when absent.
func (h *APIHandlers) UpdateTrigger(c fiber.Ctx) error {
	return h.saveTrigger(c, c.Params("id"), fiber.StatusOK)
}

func (h *APIHandlers) saveTrigger(c fiber.Ctx, id string, status int) error {
	var req SaveTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	saved, err := h.triggers.Save(c.Context(), req.Trigger(id))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(status).JSON(saved)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	if err := h.triggers.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// AnalyzeTrigger returns the field analysis of the trigger's event, used by editors to
// build payload configuration forms.
func (h *APIHandlers) AnalyzeTrigger(c fiber.Ctx) error {
	trigger, err := h.triggers.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	analysis, err := h.analyzer.Analyze(trigger.EventIdentifier)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(analysis)
}

func (h *APIHandlers) AnalyzeEvent(c fiber.Ctx) error {
	analysis, err := h.analyzer.Analyze(c.Params("identifier"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(analysis)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.history.Execution(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetTriggerExecutions(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	executions, err := h.history.Executions(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) GetTriggerLogs(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	logs, err := h.history.ActionLogs(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(logs)
}

func (h *APIHandlers) GetCredentialAccessLogs(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	logs, err := h.history.CredentialAccessLogs(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(logs)
}

func (h *APIHandlers) GetActionTypes(c fiber.Ctx) error {
	types := h.registry.Types()
	response := make([]ActionTypeResponse, 0, len(types))

	for _, actionType := range types {
		factory, err := h.registry.Action(actionType)
		if err != nil {
			continue
		}

		response = append(response, ActionTypeResponse{
			Type:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
			Outbound:    protocol.IsOutbound(factory),
			Monitoring:  protocol.IsMonitoring(factory),
		})
	}

	return c.JSON(response)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	repositoryCheck, repOk := h.triggers.HealthCheck(ctx)

	status := "unhealthy"
	message := "Automata API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Automata API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"actions":    len(h.registry.Types()),
		},
		"timestamp": time.Now().UTC(),
	})
}

func parseLimit(c fiber.Ctx) (int, error) {
	value := c.Query("limit")
	if value == "" {
		return 0, nil
	}

	return strconv.Atoi(value)
}
