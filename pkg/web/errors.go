package web

import (
	"errors"

	"github.com/dukex/automata/pkg/persistence"
	"github.com/dukex/automata/pkg/schema"
	"github.com/dukex/automata/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service, persistence and registry errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())
	case errors.Is(err, schema.ErrInvalidPayload):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("invalid_payload").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
	case persistence.IsTriggerNotFound(err):
		return notFound(c, "trigger_not_found", "trigger not found")
	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")
	case persistence.IsCredentialNotFound(err):
		return notFound(c, "credential_not_found", "credential not found")
	case errors.Is(err, schema.ErrEventNotRegistered):
		return notFound(c, "event_not_registered", err.Error())
	default:
		return internalError(c, err)
	}
}
