package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/automata/pkg/payload"
	"github.com/dukex/automata/pkg/schema"
	"github.com/lib/pq"
)

var ErrUnknownModel = errors.New("unknown model")

// EntityResolver loads related records from application tables described by the model registry.
// Rows are returned through row_to_json so every column keeps its JSON shape.
type EntityResolver struct {
	db     *sql.DB
	models *schema.ModelRegistry
	logger *slog.Logger
}

func NewEntityResolver(db *sql.DB, registry *schema.ModelRegistry, logger *slog.Logger) *EntityResolver {
	return &EntityResolver{db: db, models: registry, logger: logger}
}

func (r *EntityResolver) Find(ctx context.Context, model, id string) (map[string]any, error) {
	definition, table, err := r.table(model)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t WHERE %s::text = $1 LIMIT 1",
		table, pq.QuoteIdentifier(definition.KeyField()))

	var raw []byte

	err = r.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", payload.ErrEntityNotFound, model, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", model, id, err)
	}

	record := map[string]any{}

	err = json.Unmarshal(raw, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", model, id, err)
	}

	return record, nil
}

// FindRelated returns the rows of model whose foreignKey column equals id, ordered by key field.
func (r *EntityResolver) FindRelated(ctx context.Context, model, foreignKey, id string) ([]map[string]any, error) {
	definition, table, err := r.table(model)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t WHERE %s::text = $1 ORDER BY %s",
		table, pq.QuoteIdentifier(foreignKey), pq.QuoteIdentifier(definition.KeyField()))

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load related %s: %w", model, err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]map[string]any, 0)

	for rows.Next() {
		var raw []byte

		err := rows.Scan(&raw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan related %s: %w", model, err)
		}

		record := map[string]any{}

		err = json.Unmarshal(raw, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to decode related %s: %w", model, err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating related %s: %w", model, err)
	}

	return records, nil
}

// table returns the model definition and its quoted, optionally schema-qualified table name.
func (r *EntityResolver) table(model string) (schema.ModelDefinition, string, error) {
	definition, ok := r.models.Get(model)
	if !ok {
		return schema.ModelDefinition{}, "", fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	name := definition.Table
	if name == "" {
		name = definition.Identifier
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}

	return definition, strings.Join(parts, "."), nil
}
