package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
)

// ExecutionRepository stores each run with its steps embedded.
type ExecutionRepository struct {
	store *store
}

func (er *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	err := er.store.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewEntityError("Create", "execution", execution.ID, err)
	}

	return nil
}

// Update replaces the run header and keeps the stored steps.
func (er *ExecutionRepository) Update(_ context.Context, execution *models.Execution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	stored, err := er.load("Update", execution.ID)
	if err != nil {
		return err
	}

	updated := *execution
	updated.Steps = stored.Steps

	err = er.store.write(executionsDir, execution.ID, &updated)
	if err != nil {
		return persistence.NewEntityError("Update", "execution", execution.ID, err)
	}

	return nil
}

// SaveStep inserts or replaces a step of a stored run.
func (er *ExecutionRepository) SaveStep(_ context.Context, step *models.ExecutionStep) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	execution, err := er.load("SaveStep", step.ExecutionID)
	if err != nil {
		return err
	}

	replaced := false

	for i, existing := range execution.Steps {
		if existing.ID == step.ID {
			execution.Steps[i] = step
			replaced = true

			break
		}
	}

	if !replaced {
		execution.Steps = append(execution.Steps, step)
	}

	sortSteps(execution.Steps)

	err = er.store.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewEntityError("SaveStep", "execution", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	return er.load("GetByID", id)
}

// ListByTrigger returns the most recent runs of a trigger, newest first.
func (er *ExecutionRepository) ListByTrigger(_ context.Context, triggerID string, limit int) ([]*models.Execution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	executions, err := list[models.Execution](er.store, executionsDir)
	if err != nil {
		return nil, persistence.NewEntityError("ListByTrigger", "execution", "", err)
	}

	matched := make([]*models.Execution, 0, len(executions))

	for _, execution := range executions {
		if execution.TriggerID == triggerID {
			matched = append(matched, execution)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	return truncate(matched, persistence.Limit(limit)), nil
}

func (er *ExecutionRepository) load(op, id string) (*models.Execution, error) {
	var execution models.Execution

	err := er.store.read(executionsDir, id, &execution)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError(op, "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError(op, "execution", id, err)
	}

	sortSteps(execution.Steps)

	return &execution, nil
}

func sortSteps(steps []*models.ExecutionStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Position < steps[j].Position
	})
}

func truncate[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}

	return items
}
