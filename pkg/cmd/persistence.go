package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/automata/pkg/cache"
	"github.com/dukex/automata/pkg/payload"
	"github.com/dukex/automata/pkg/persistence"
	"github.com/dukex/automata/pkg/persistence/file"
	"github.com/dukex/automata/pkg/persistence/postgresql"
	"github.com/dukex/automata/pkg/schema"
)

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgres"
	default:
		return "file"
	}
}

// NewEntityResolver picks where relation expansion reads related records from. Without a
// SQL store the resolver is empty and expansions yield nulls. A non-empty redisURL puts a
// read-through cache in front.
func NewEntityResolver(
	ctx context.Context,
	store persistence.Persistence,
	registry *schema.ModelRegistry,
	redisURL string,
	logger *slog.Logger,
) (payload.EntityResolver, func() error, error) {
	var resolver payload.EntityResolver = payload.NewMemoryResolver()

	if pg, ok := store.(*postgresql.Persistence); ok {
		resolver = postgresql.NewEntityResolver(pg.DB(), registry, logger.With("module", "entity_resolver"))
	}

	if redisURL == "" {
		return resolver, func() error { return nil }, nil
	}

	client, err := cache.NewClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	return cache.NewRedisResolver(resolver, client, logger), client.Close, nil
}
