package services

import (
	"context"
	"fmt"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
)

// History reads runs and audit trails.
type History struct {
	persistence persistence.Persistence
}

func NewHistory(persistence persistence.Persistence) *History {
	return &History{persistence: persistence}
}

// Execution returns a run with its steps.
func (h *History) Execution(ctx context.Context, id string) (*models.Execution, error) {
	return h.persistence.ExecutionRepository().GetByID(ctx, id)
}

// Executions lists the latest runs of a trigger.
func (h *History) Executions(ctx context.Context, triggerID string, limit int) ([]*models.Execution, error) {
	err := h.ensureTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	return h.persistence.ExecutionRepository().ListByTrigger(ctx, triggerID, limit)
}

// ActionLogs lists the latest action log rows of a trigger.
func (h *History) ActionLogs(ctx context.Context, triggerID string, limit int) ([]*models.ActionLog, error) {
	err := h.ensureTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	return h.persistence.ActionLogRepository().ListByTrigger(ctx, triggerID, limit)
}

// CredentialAccessLogs lists the latest access attempts against a credential.
func (h *History) CredentialAccessLogs(ctx context.Context, credentialID string, limit int) ([]*models.CredentialAccessLog, error) {
	_, err := h.persistence.CredentialRepository().GetByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	return h.persistence.CredentialAccessLogRepository().ListByCredential(ctx, credentialID, limit)
}

func (h *History) ensureTrigger(ctx context.Context, triggerID string) error {
	_, err := h.persistence.TriggerRepository().GetByID(ctx, triggerID)
	if err != nil {
		return fmt.Errorf("failed to load trigger: %w", err)
	}

	return nil
}
