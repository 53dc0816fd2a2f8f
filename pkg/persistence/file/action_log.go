package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
)

type ActionLogRepository struct {
	store *store
}

func (ar *ActionLogRepository) Create(_ context.Context, log *models.ActionLog) error {
	ar.store.mu.Lock()
	defer ar.store.mu.Unlock()

	err := ar.store.write(actionLogsDir, log.ID, log)
	if err != nil {
		return persistence.NewEntityError("Create", "action log", log.ID, err)
	}

	return nil
}

func (ar *ActionLogRepository) Update(_ context.Context, log *models.ActionLog) error {
	ar.store.mu.Lock()
	defer ar.store.mu.Unlock()

	if validateID(log.ID) == nil && !ar.store.exists(actionLogsDir, log.ID) {
		return persistence.NewEntityError("Update", "action log", log.ID, persistence.ErrActionLogNotFound)
	}

	err := ar.store.write(actionLogsDir, log.ID, log)
	if err != nil {
		return persistence.NewEntityError("Update", "action log", log.ID, err)
	}

	return nil
}

func (ar *ActionLogRepository) Delete(_ context.Context, id string) error {
	ar.store.mu.Lock()
	defer ar.store.mu.Unlock()

	err := ar.store.remove(actionLogsDir, id)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistence.NewEntityError("Delete", "action log", id, err)
	}

	return nil
}

// ListByTrigger returns the most recent action logs of a trigger, newest first.
func (ar *ActionLogRepository) ListByTrigger(_ context.Context, triggerID string, limit int) ([]*models.ActionLog, error) {
	ar.store.mu.RLock()
	defer ar.store.mu.RUnlock()

	logs, err := list[models.ActionLog](ar.store, actionLogsDir)
	if err != nil {
		return nil, persistence.NewEntityError("ListByTrigger", "action log", "", err)
	}

	matched := make([]*models.ActionLog, 0, len(logs))

	for _, log := range logs {
		if log.TriggerID == triggerID {
			matched = append(matched, log)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ExecutedAt.After(matched[j].ExecutedAt)
	})

	return truncate(matched, persistence.Limit(limit)), nil
}
