// Package persistence provides the storage abstraction for triggers, runs and audit trails.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/automata/pkg/models"
)

const DefaultListLimit = 50

type Persistence interface {
	TriggerRepository() TriggerRepository
	ExecutionRepository() ExecutionRepository
	ActionLogRepository() ActionLogRepository
	CredentialRepository() CredentialRepository
	CredentialAccessLogRepository() CredentialAccessLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TriggerRepository stores triggers together with their actions.
type TriggerRepository interface {
	GetAll(ctx context.Context) ([]*models.Trigger, error)
	// GetByID returns ErrTriggerNotFound when no trigger has the id.
	GetByID(ctx context.Context, id string) (*models.Trigger, error)
	// ListActiveByEvent returns the active triggers bound to an event identifier.
	ListActiveByEvent(ctx context.Context, eventIdentifier string) ([]*models.Trigger, error)
	Save(ctx context.Context, trigger *models.Trigger) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores runs and their steps.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	Update(ctx context.Context, execution *models.Execution) error
	SaveStep(ctx context.Context, step *models.ExecutionStep) error
	// GetByID returns the execution with its steps ordered by position.
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.Execution, error)
}

// ActionLogRepository stores the action audit trail.
type ActionLogRepository interface {
	Create(ctx context.Context, log *models.ActionLog) error
	Update(ctx context.Context, log *models.ActionLog) error
	Delete(ctx context.Context, id string) error
	ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.ActionLog, error)
}

// CredentialRepository stores credentials. Implementations persist secret values through
// SecretData.Export only.
type CredentialRepository interface {
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	Save(ctx context.Context, credential *models.Credential) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	MarkError(ctx context.Context, id string, message string) error
}

// CredentialAccessLogRepository is the append-only credential audit trail.
type CredentialAccessLogRepository interface {
	Append(ctx context.Context, entry *models.CredentialAccessLog) error
	Update(ctx context.Context, entry *models.CredentialAccessLog) error
	ListByCredential(ctx context.Context, credentialID string, limit int) ([]*models.CredentialAccessLog, error)
}

// Limit normalizes a list limit.
func Limit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}

	return limit
}
