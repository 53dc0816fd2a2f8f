package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
)

// TriggerRepository stores each trigger with its actions in one document.
type TriggerRepository struct {
	store *store
}

// GetAll returns every trigger ordered by creation time.
func (tr *TriggerRepository) GetAll(_ context.Context) ([]*models.Trigger, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	triggers, err := list[models.Trigger](tr.store, triggersDir)
	if err != nil {
		return nil, persistence.NewEntityError("GetAll", "trigger", "", err)
	}

	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].CreatedAt.Before(triggers[j].CreatedAt)
	})

	return triggers, nil
}

func (tr *TriggerRepository) GetByID(_ context.Context, id string) (*models.Trigger, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	var trigger models.Trigger

	err := tr.store.read(triggersDir, id, &trigger)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("GetByID", "trigger", id, persistence.ErrTriggerNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "trigger", id, err)
	}

	return &trigger, nil
}

func (tr *TriggerRepository) ListActiveByEvent(ctx context.Context, eventIdentifier string) ([]*models.Trigger, error) {
	triggers, err := tr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.Trigger, 0, len(triggers))

	for _, trigger := range triggers {
		if trigger.IsActive() && trigger.EventIdentifier == eventIdentifier {
			active = append(active, trigger)
		}
	}

	return active, nil
}

// Save writes the trigger, setting its timestamps and the trigger id of its actions.
func (tr *TriggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	for _, action := range trigger.Actions {
		action.TriggerID = trigger.ID
	}

	err := tr.store.write(triggersDir, trigger.ID, trigger)
	if err != nil {
		return persistence.NewEntityError("Save", "trigger", trigger.ID, err)
	}

	return nil
}

// Delete removes a trigger. Deleting a missing trigger is not an error.
func (tr *TriggerRepository) Delete(_ context.Context, id string) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	err := tr.store.remove(triggersDir, id)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistence.NewEntityError("Delete", "trigger", id, err)
	}

	return nil
}
