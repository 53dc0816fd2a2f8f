package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
	"github.com/lib/pq"
)

// ExecutionRepository handles run and step database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const selectExecutions = `
	SELECT
		id
	  , trigger_id
	  , event_identifier
	  , status
	  , input
	  , error
	  , started_at
	  , finished_at
	FROM executions
`

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	input, err := encodeJSON(execution.Input)
	if err != nil {
		return persistence.NewEntityError("Create", "execution", execution.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, trigger_id, event_identifier, status, input, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, execution.ID, execution.TriggerID, execution.EventIdentifier, execution.Status,
		input, execution.Error, execution.StartedAt, execution.FinishedAt)
	if err != nil {
		return persistence.NewEntityError("Create", "execution", execution.ID, err)
	}

	return nil
}

// Update writes the status fields of a run.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE executions SET status = $2, error = $3, finished_at = $4 WHERE id = $1
	`, execution.ID, execution.Status, execution.Error, execution.FinishedAt)
	if err != nil {
		return persistence.NewEntityError("Update", "execution", execution.ID, err)
	}

	return affected(result, "Update", "execution", execution.ID, persistence.ErrExecutionNotFound)
}

// SaveStep inserts or replaces a step of a stored run.
func (r *ExecutionRepository) SaveStep(ctx context.Context, step *models.ExecutionStep) error {
	input, err := encodeJSON(step.Input)
	if err != nil {
		return persistence.NewEntityError("SaveStep", "execution", step.ExecutionID, err)
	}

	output, err := encodeJSON(step.Output)
	if err != nil {
		return persistence.NewEntityError("SaveStep", "execution", step.ExecutionID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_steps
			(id, execution_id, action_id, action_type, position, status, input, output, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , input = EXCLUDED.input
		  , output = EXCLUDED.output
		  , error = EXCLUDED.error
		  , finished_at = EXCLUDED.finished_at
	`, step.ID, step.ExecutionID, step.ActionID, step.ActionType, step.Position, step.Status,
		input, output, nullString(step.Error), step.StartedAt, step.FinishedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return persistence.NewEntityError("SaveStep", "execution", step.ExecutionID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewEntityError("SaveStep", "execution", step.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := scanExecution(r.db.QueryRowContext(ctx, selectExecutions+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "execution", id, err)
	}

	execution.Steps, err = r.steps(ctx, id)
	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "execution", id, err)
	}

	return execution, nil
}

// ListByTrigger returns the most recent runs of a trigger without their steps, newest first.
func (r *ExecutionRepository) ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx,
		selectExecutions+" WHERE trigger_id = $1 ORDER BY started_at DESC LIMIT $2",
		triggerID, persistence.Limit(limit))
	if err != nil {
		return nil, persistence.NewEntityError("ListByTrigger", "execution", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewEntityError("ListByTrigger", "execution", "", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewEntityError("ListByTrigger", "execution", "", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) steps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, action_id, action_type, position, status, input, output, error, started_at, finished_at
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY position
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.ExecutionStep, 0)

	for rows.Next() {
		var (
			step          models.ExecutionStep
			input, output []byte
			stepError     sql.NullString
			finishedAt    sql.NullTime
		)

		err := rows.Scan(&step.ID, &step.ExecutionID, &step.ActionID, &step.ActionType, &step.Position,
			&step.Status, &input, &output, &stepError, &step.StartedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		err = decodeJSON(input, &step.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %s input: %w", step.ID, err)
		}

		err = decodeJSON(output, &step.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %s output: %w", step.ID, err)
		}

		step.Error = stringPointer(stepError)
		if finishedAt.Valid {
			step.FinishedAt = &finishedAt.Time
		}

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution  models.Execution
		input      []byte
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.TriggerID,
		&execution.EventIdentifier,
		&execution.Status,
		&input,
		&execution.Error,
		&execution.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	err = decodeJSON(input, &execution.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution input: %w", err)
	}

	if finishedAt.Valid {
		execution.FinishedAt = &finishedAt.Time
	}

	return &execution, nil
}

func affected(result sql.Result, op, entity, id string, notFound error) error {
	count, err := result.RowsAffected()
	if err != nil {
		return persistence.NewEntityError(op, entity, id, err)
	}

	if count == 0 {
		return persistence.NewEntityError(op, entity, id, notFound)
	}

	return nil
}
