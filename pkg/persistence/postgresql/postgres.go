// Package postgresql provides PostgreSQL persistence for triggers, runs and audit trails.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/automata/pkg/persistence"
	"github.com/dukex/automata/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	triggerRepo             *TriggerRepository
	executionRepo           *ExecutionRepository
	actionLogRepo           *ActionLogRepository
	credentialRepo          *CredentialRepository
	credentialAccessLogRepo *CredentialAccessLogRepository
}

// NewPersistence opens the database, verifies the connection and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:                      database,
		logger:                  logger,
		triggerRepo:             &TriggerRepository{db: database, logger: logger},
		executionRepo:           &ExecutionRepository{db: database, logger: logger},
		actionLogRepo:           &ActionLogRepository{db: database, logger: logger},
		credentialRepo:          &CredentialRepository{db: database},
		credentialAccessLogRepo: &CredentialAccessLogRepository{db: database, logger: logger},
	}, nil
}

// DB exposes the connection pool for components sharing the database, such as the entity resolver.
func (p *Persistence) DB() *sql.DB {
	return p.db
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) ActionLogRepository() persistence.ActionLogRepository {
	return p.actionLogRepo
}

func (p *Persistence) CredentialRepository() persistence.CredentialRepository {
	return p.credentialRepo
}

func (p *Persistence) CredentialAccessLogRepository() persistence.CredentialAccessLogRepository {
	return p.credentialAccessLogRepo
}

const foreignKeyViolation = "23503"

type rowScanner interface {
	Scan(dest ...any) error
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// encodeJSON marshals a JSONB column value. Nil maps are stored as NULL.
func encodeJSON[T any](value map[string]T) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	return json.Marshal(value)
}

func decodeJSON(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, target)
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *value, Valid: true}
}

func stringPointer(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}

	return &value.String
}
