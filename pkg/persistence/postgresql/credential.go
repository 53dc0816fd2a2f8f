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

// CredentialRepository stores credentials. Secret values are written from SecretData.Export.
type CredentialRepository struct {
	db *sql.DB
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	var (
		credential  models.Credential
		secretsJSON []byte
		scopes      pq.StringArray
		expiresAt   sql.NullTime
		lastUsedAt  sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, credential_type, status, secrets, scopes, expires_at, last_used_at, last_error, created_at, updated_at
		FROM credentials
		WHERE id = $1
	`, id).Scan(
		&credential.ID,
		&credential.Name,
		&credential.Type,
		&credential.Status,
		&secretsJSON,
		&scopes,
		&expiresAt,
		&lastUsedAt,
		&credential.LastError,
		&credential.CreatedAt,
		&credential.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "credential", id, persistence.ErrCredentialNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "credential", id, err)
	}

	secrets := map[string]string{}

	err = decodeJSON(secretsJSON, &secrets)
	if err != nil {
		return nil, persistence.NewEntityError("GetByID", "credential", id, errors.New("failed to decode secrets"))
	}

	credential.Data = models.NewSecretData(secrets)
	credential.Scopes = []string(scopes)

	if expiresAt.Valid {
		credential.ExpiresAt = &expiresAt.Time
	}

	if lastUsedAt.Valid {
		credential.LastUsedAt = &lastUsedAt.Time
	}

	return &credential, nil
}

func (r *CredentialRepository) Save(ctx context.Context, credential *models.Credential) error {
	now := time.Now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}

	credential.UpdatedAt = now

	secretsJSON, err := json.Marshal(credential.Data.Export())
	if err != nil {
		return persistence.NewEntityError("Save", "credential", credential.ID, fmt.Errorf("failed to encode secrets: %w", err))
	}

	scopes := credential.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO credentials
			(id, name, credential_type, status, secrets, scopes, expires_at, last_used_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , credential_type = EXCLUDED.credential_type
		  , status = EXCLUDED.status
		  , secrets = EXCLUDED.secrets
		  , scopes = EXCLUDED.scopes
		  , expires_at = EXCLUDED.expires_at
		  , last_error = EXCLUDED.last_error
		  , updated_at = EXCLUDED.updated_at
	`, credential.ID, credential.Name, credential.Type, credential.Status, secretsJSON, pq.Array(scopes),
		credential.ExpiresAt, credential.LastUsedAt, credential.LastError, credential.CreatedAt, credential.UpdatedAt)
	if err != nil {
		return persistence.NewEntityError("Save", "credential", credential.ID, err)
	}

	return nil
}

func (r *CredentialRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, "UPDATE credentials SET last_used_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return persistence.NewEntityError("TouchLastUsed", "credential", id, err)
	}

	return affected(result, "TouchLastUsed", "credential", id, persistence.ErrCredentialNotFound)
}

// MarkError records the failure message and moves the credential to the error status.
func (r *CredentialRepository) MarkError(ctx context.Context, id string, message string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE credentials
		SET last_error = $2,
			status = CASE WHEN status = 'revoked' THEN status ELSE $3 END,
			updated_at = $4
		WHERE id = $1
	`, id, message, models.CredentialStatusError, time.Now().UTC())
	if err != nil {
		return persistence.NewEntityError("MarkError", "credential", id, err)
	}

	return affected(result, "MarkError", "credential", id, persistence.ErrCredentialNotFound)
}

// CredentialAccessLogRepository is the append-only credential audit trail.
type CredentialAccessLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *CredentialAccessLogRepository) Append(ctx context.Context, entry *models.CredentialAccessLog) error {
	params, err := encodeJSON(entry.Params)
	if err != nil {
		return persistence.NewEntityError("Append", "credential access log", entry.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO credential_access_logs
			(id, credential_id, node_id, workflow_id, action, params, status, error_message,
			 ip_address, user_agent, is_suspicious, suspicious_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, entry.ID, entry.CredentialID, nullString(entry.NodeID), nullString(entry.WorkflowID), entry.Action,
		params, entry.Status, nullString(entry.ErrorMessage), nullString(entry.IPAddress),
		nullString(entry.UserAgent), entry.IsSuspicious, nullString(entry.SuspiciousReason), entry.CreatedAt)
	if err != nil {
		return persistence.NewEntityError("Append", "credential access log", entry.ID, err)
	}

	return nil
}

// Update writes the outcome fields of an existing entry.
func (r *CredentialAccessLogRepository) Update(ctx context.Context, entry *models.CredentialAccessLog) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE credential_access_logs
		SET status = $2, error_message = $3, is_suspicious = $4, suspicious_reason = $5
		WHERE id = $1
	`, entry.ID, entry.Status, nullString(entry.ErrorMessage), entry.IsSuspicious, nullString(entry.SuspiciousReason))
	if err != nil {
		return persistence.NewEntityError("Update", "credential access log", entry.ID, err)
	}

	return affected(result, "Update", "credential access log", entry.ID, persistence.ErrAccessLogNotFound)
}

func (r *CredentialAccessLogRepository) ListByCredential(ctx context.Context, credentialID string, limit int) ([]*models.CredentialAccessLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, credential_id, node_id, workflow_id, action, params, status, error_message,
		       ip_address, user_agent, is_suspicious, suspicious_reason, created_at
		FROM credential_access_logs
		WHERE credential_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, credentialID, persistence.Limit(limit))
	if err != nil {
		return nil, persistence.NewEntityError("ListByCredential", "credential access log", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.CredentialAccessLog, 0)

	for rows.Next() {
		var (
			entry                                  models.CredentialAccessLog
			params                                 []byte
			nodeID, workflowID, errorMessage       sql.NullString
			ipAddress, userAgent, suspiciousReason sql.NullString
		)

		err := rows.Scan(&entry.ID, &entry.CredentialID, &nodeID, &workflowID, &entry.Action, &params,
			&entry.Status, &errorMessage, &ipAddress, &userAgent, &entry.IsSuspicious, &suspiciousReason,
			&entry.CreatedAt)
		if err != nil {
			return nil, persistence.NewEntityError("ListByCredential", "credential access log", "", err)
		}

		err = decodeJSON(params, &entry.Params)
		if err != nil {
			return nil, persistence.NewEntityError("ListByCredential", "credential access log", entry.ID, err)
		}

		entry.NodeID = stringPointer(nodeID)
		entry.WorkflowID = stringPointer(workflowID)
		entry.ErrorMessage = stringPointer(errorMessage)
		entry.IPAddress = stringPointer(ipAddress)
		entry.UserAgent = stringPointer(userAgent)
		entry.SuspiciousReason = stringPointer(suspiciousReason)

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewEntityError("ListByCredential", "credential access log", "", err)
	}

	return entries, nil
}
