package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
	"github.com/lib/pq"
)

// TriggerRepository handles trigger-related database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const selectTriggers = `
	SELECT
		id
	  , name
	  , event_identifier
	  , status
	  , combinator
	  , conditions
	  , created_at
	  , updated_at
	FROM triggers
`

// GetAll returns all triggers from the database.
func (r *TriggerRepository) GetAll(ctx context.Context) ([]*models.Trigger, error) {
	return r.query(ctx, "GetAll", selectTriggers+" ORDER BY created_at")
}

func (r *TriggerRepository) GetByID(ctx context.Context, id string) (*models.Trigger, error) {
	row := r.db.QueryRowContext(ctx, selectTriggers+" WHERE id = $1", id)

	trigger, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "trigger", id, persistence.ErrTriggerNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "trigger", id, err)
	}

	err = r.loadActions(ctx, []*models.Trigger{trigger})
	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "trigger", id, err)
	}

	return trigger, nil
}

func (r *TriggerRepository) ListActiveByEvent(ctx context.Context, eventIdentifier string) ([]*models.Trigger, error) {
	return r.query(ctx, "ListActiveByEvent",
		selectTriggers+" WHERE event_identifier = $1 AND status = $2 ORDER BY created_at",
		eventIdentifier, models.TriggerStatusActive)
}

// Save upserts the trigger and replaces its actions in one transaction.
func (r *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	conditions := trigger.Conditions
	if conditions == nil {
		conditions = []models.Condition{}
	}

	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return persistence.NewEntityError("Save", "trigger", trigger.ID, fmt.Errorf("failed to marshal conditions: %w", err))
	}

	// Start transaction
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO triggers (id, name, event_identifier, status, combinator, conditions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , event_identifier = EXCLUDED.event_identifier
		  , status = EXCLUDED.status
		  , combinator = EXCLUDED.combinator
		  , conditions = EXCLUDED.conditions
		  , updated_at = EXCLUDED.updated_at
	`, trigger.ID, trigger.Name, trigger.EventIdentifier, trigger.Status,
		trigger.CombinatorOrDefault(), conditionsJSON, trigger.CreatedAt, trigger.UpdatedAt)
	if err != nil {
		return persistence.NewEntityError("Save", "trigger", trigger.ID, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM actions WHERE trigger_id = $1", trigger.ID)
	if err != nil {
		return persistence.NewEntityError("Save", "trigger", trigger.ID, fmt.Errorf("failed to clear actions: %w", err))
	}

	for _, action := range trigger.Actions {
		action.TriggerID = trigger.ID

		config := action.Config
		if config == nil {
			config = map[string]any{}
		}

		configJSON, err := json.Marshal(config)
		if err != nil {
			return persistence.NewEntityError("Save", "trigger", trigger.ID, fmt.Errorf("failed to marshal action %s config: %w", action.ID, err))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO actions (trigger_id, id, action_type, name, position, active, config)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, trigger.ID, action.ID, action.Type, action.Name, action.Order, action.Active, configJSON)
		if err != nil {
			return persistence.NewEntityError("Save", "trigger", trigger.ID, fmt.Errorf("failed to insert action %s: %w", action.ID, err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewEntityError("Save", "trigger", trigger.ID, fmt.Errorf("failed to commit: %w", err))
	}

	return nil
}

// Delete removes a trigger and, by cascade, its actions.
func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = $1", id)
	if err != nil {
		return persistence.NewEntityError("Delete", "trigger", id, err)
	}

	return nil
}

func (r *TriggerRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.Trigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewEntityError(op, "trigger", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, persistence.NewEntityError(op, "trigger", "", fmt.Errorf("failed to scan trigger: %w", err))
		}

		triggers = append(triggers, trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewEntityError(op, "trigger", "", fmt.Errorf("error iterating triggers: %w", err))
	}

	err = r.loadActions(ctx, triggers)
	if err != nil {
		return nil, persistence.NewEntityError(op, "trigger", "", err)
	}

	return triggers, nil
}

// loadActions attaches the actions of every trigger with a single query.
func (r *TriggerRepository) loadActions(ctx context.Context, triggers []*models.Trigger) error {
	if len(triggers) == 0 {
		return nil
	}

	byID := make(map[string]*models.Trigger, len(triggers))
	ids := make([]string, 0, len(triggers))

	for _, trigger := range triggers {
		trigger.Actions = make([]*models.Action, 0)
		byID[trigger.ID] = trigger
		ids = append(ids, trigger.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT trigger_id, id, action_type, name, position, active, config
		FROM actions
		WHERE trigger_id = ANY($1)
		ORDER BY position, id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query actions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	for rows.Next() {
		var (
			action     models.Action
			configJSON []byte
		)

		err := rows.Scan(&action.TriggerID, &action.ID, &action.Type, &action.Name, &action.Order, &action.Active, &configJSON)
		if err != nil {
			return fmt.Errorf("failed to scan action: %w", err)
		}

		err = decodeJSON(configJSON, &action.Config)
		if err != nil {
			return fmt.Errorf("failed to unmarshal action %s config: %w", action.ID, err)
		}

		trigger := byID[action.TriggerID]
		trigger.Actions = append(trigger.Actions, &action)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating actions: %w", err)
	}

	return nil
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var (
		trigger        models.Trigger
		conditionsJSON []byte
	)

	err := row.Scan(
		&trigger.ID,
		&trigger.Name,
		&trigger.EventIdentifier,
		&trigger.Status,
		&trigger.Combinator,
		&conditionsJSON,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = decodeJSON(conditionsJSON, &trigger.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	return &trigger, nil
}
