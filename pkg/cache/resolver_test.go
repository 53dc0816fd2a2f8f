package cache_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/automata/pkg/cache"
	"github.com/dukex/automata/pkg/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type countingResolver struct {
	mu      sync.Mutex
	next    *payload.MemoryResolver
	finds   int
	related int
}

func (c *countingResolver) Find(ctx context.Context, model, id string) (map[string]any, error) {
	c.mu.Lock()
	c.finds++
	c.mu.Unlock()

	return c.next.Find(ctx, model, id)
}

func (c *countingResolver) FindRelated(ctx context.Context, model, foreignKey, id string) ([]map[string]any, error) {
	c.mu.Lock()
	c.related++
	c.mu.Unlock()

	return c.next.FindRelated(ctx, model, foreignKey, id)
}

func setupRedis(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s/0", endpoint)
}

func TestRedisResolver(t *testing.T) {
	url := setupRedis(t)
	ctx := context.Background()

	client, err := cache.NewClient(ctx, url)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	memory := payload.NewMemoryResolver()
	memory.Add("customer", "c1", map[string]any{"id": "c1", "name": "Ada"})
	memory.Add("order", "o1", map[string]any{"id": "o1", "customer_id": "c1"})
	memory.Add("order", "o2", map[string]any{"id": "o2", "customer_id": "c1"})

	next := &countingResolver{next: memory}
	resolver := cache.NewRedisResolver(next, client, slog.New(slog.DiscardHandler), cache.WithPrefix("test"))

	t.Run("find is read through", func(t *testing.T) {
		first, err := resolver.Find(ctx, "customer", "c1")
		require.NoError(t, err)

		second, err := resolver.Find(ctx, "customer", "c1")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, "Ada", second["name"])
		assert.Equal(t, 1, next.finds)
	})

	t.Run("related lookups are cached", func(t *testing.T) {
		first, err := resolver.FindRelated(ctx, "order", "customer_id", "c1")
		require.NoError(t, err)
		require.Len(t, first, 2)

		second, err := resolver.FindRelated(ctx, "order", "customer_id", "c1")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, next.related)
	})

	t.Run("misses are not cached", func(t *testing.T) {
		_, err := resolver.Find(ctx, "customer", "missing")
		require.ErrorIs(t, err, payload.ErrEntityNotFound)

		memory.Add("customer", "missing", map[string]any{"id": "missing"})

		record, err := resolver.Find(ctx, "customer", "missing")
		require.NoError(t, err)
		assert.Equal(t, "missing", record["id"])
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		before := next.finds

		require.NoError(t, resolver.Invalidate(ctx, "customer", "c1"))

		_, err := resolver.Find(ctx, "customer", "c1")
		require.NoError(t, err)
		assert.Equal(t, before+1, next.finds)
	})
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := cache.NewClient(context.Background(), "not a url")
	require.Error(t, err)
}
