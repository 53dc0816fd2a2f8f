// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTriggerNotFound indicates a trigger was not found by the given identifier.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrActionLogNotFound indicates an action log row was not found.
	ErrActionLogNotFound = errors.New("action log not found")

	// ErrCredentialNotFound indicates a credential was not found by the given identifier.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrAccessLogNotFound indicates a credential access log row was not found.
	ErrAccessLogNotFound = errors.New("credential access log not found")

	// ErrInvalidID indicates an identifier that cannot be stored safely.
	ErrInvalidID = errors.New("invalid identifier")
)

// EntityError wraps repository errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	Entity string // Entity kind (e.g., "trigger", "execution")
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsTriggerNotFound checks if an error indicates a trigger was not found.
func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsCredentialNotFound checks if an error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsNotFound reports any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrActionLogNotFound) ||
		errors.Is(err, ErrCredentialNotFound) ||
		errors.Is(err, ErrAccessLogNotFound)
}
