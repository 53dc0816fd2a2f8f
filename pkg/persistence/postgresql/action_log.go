package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
)

type ActionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ActionLogRepository) Create(ctx context.Context, log *models.ActionLog) error {
	payload, response, err := encodeActionLog(log)
	if err != nil {
		return persistence.NewEntityError("Create", "action log", log.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO action_logs
			(id, trigger_id, action_id, event_identifier, status, attempt, payload, response, message, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, log.ID, log.TriggerID, log.ActionID, log.EventIdentifier, log.Status, log.Attempt,
		payload, response, log.Message, log.ExecutedAt)
	if err != nil {
		return persistence.NewEntityError("Create", "action log", log.ID, err)
	}

	return nil
}

func (r *ActionLogRepository) Update(ctx context.Context, log *models.ActionLog) error {
	payload, response, err := encodeActionLog(log)
	if err != nil {
		return persistence.NewEntityError("Update", "action log", log.ID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE action_logs SET status = $2, attempt = $3, payload = $4, response = $5, message = $6
		WHERE id = $1
	`, log.ID, log.Status, log.Attempt, payload, response, log.Message)
	if err != nil {
		return persistence.NewEntityError("Update", "action log", log.ID, err)
	}

	return affected(result, "Update", "action log", log.ID, persistence.ErrActionLogNotFound)
}

func (r *ActionLogRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM action_logs WHERE id = $1", id)
	if err != nil {
		return persistence.NewEntityError("Delete", "action log", id, err)
	}

	return nil
}

func (r *ActionLogRepository) ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.ActionLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trigger_id, action_id, event_identifier, status, attempt, payload, response, message, executed_at
		FROM action_logs
		WHERE trigger_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, triggerID, persistence.Limit(limit))
	if err != nil {
		return nil, persistence.NewEntityError("ListByTrigger", "action log", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	logs := make([]*models.ActionLog, 0)

	for rows.Next() {
		var (
			log               models.ActionLog
			payload, response []byte
		)

		err := rows.Scan(&log.ID, &log.TriggerID, &log.ActionID, &log.EventIdentifier, &log.Status,
			&log.Attempt, &payload, &response, &log.Message, &log.ExecutedAt)
		if err != nil {
			return nil, persistence.NewEntityError("ListByTrigger", "action log", "", fmt.Errorf("failed to scan action log: %w", err))
		}

		err = decodeJSON(payload, &log.Payload)
		if err == nil {
			err = decodeJSON(response, &log.Response)
		}

		if err != nil {
			return nil, persistence.NewEntityError("ListByTrigger", "action log", log.ID, err)
		}

		logs = append(logs, &log)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewEntityError("ListByTrigger", "action log", "", err)
	}

	return logs, nil
}

func encodeActionLog(log *models.ActionLog) ([]byte, []byte, error) {
	payload, err := encodeJSON(log.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	response, err := encodeJSON(log.Response)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return payload, response, nil
}
