package payload_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/payload"
	"github.com/dukex/automata/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	configurator *payload.Configurator
	resolver     *payload.MemoryResolver
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	events := schema.NewEventRegistry()
	modelRegistry := schema.NewModelRegistry()

	require.NoError(t, modelRegistry.Register(schema.ModelDefinition{
		Identifier:      "customer",
		EssentialFields: []string{"name"},
		Relations: []schema.RelationDefinition{
			{Name: "company", IDField: "company_id", Model: "company", Expand: []string{"parent"}},
			{Name: "orders", Mode: models.RelationReverse, Model: "order", ForeignKey: "customer_id"},
		},
	}))
	require.NoError(t, modelRegistry.Register(schema.ModelDefinition{
		Identifier:      "company",
		EssentialFields: []string{"name"},
		Relations: []schema.RelationDefinition{
			{Name: "parent", IDField: "parent_id", Model: "company", Expand: []string{"parent"}},
		},
	}))
	require.NoError(t, modelRegistry.Register(schema.ModelDefinition{
		Identifier:      "line_item",
		EssentialFields: []string{"sku"},
	}))

	require.NoError(t, events.Register(schema.EventDefinition{
		Identifier: "order.paid",
		Model:      "order",
		Relations: []schema.RelationDefinition{
			{Name: "customer", IDField: "customer_id", Model: "customer", Expand: []string{"company"}},
			{Name: "line_items", Mode: models.RelationReverse, Model: "line_item", ForeignKey: "order_id"},
		},
	}))

	resolver := payload.NewMemoryResolver()
	resolver.Add("customer", "c1", map[string]any{
		"id": "c1", "name": "Ada", "email": "ada@example.com", "password_hash": "x", "company_id": "co1",
	})
	resolver.Add("company", "co1", map[string]any{"id": "co1", "name": "Engines", "vat": "123", "parent_id": "co1"})
	resolver.Add("line_item", "li1", map[string]any{"id": "li1", "order_id": "o1", "sku": "A", "cost": 3.0})
	resolver.Add("line_item", "li2", map[string]any{"id": "li2", "order_id": "o1", "sku": "B", "cost": 4.0})
	resolver.Add("line_item", "li3", map[string]any{"id": "li3", "order_id": "o2", "sku": "C", "cost": 5.0})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return fixture{
		configurator: payload.NewConfigurator(schema.NewAnalyzer(events, modelRegistry), resolver, logger),
		resolver:     resolver,
	}
}

func orderPayload() map[string]any {
	return map[string]any{
		"id":          "o1",
		"status":      "paid",
		"amount":      100.0,
		"customer_id": "c1",
		"meta":        map[string]any{"channel": "web"},
	}
}

func TestConfigure_EmptyConfigIsIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	input := orderPayload()

	assert.Equal(t, input, f.configurator.Configure(context.Background(), "order.paid", input, nil))
	assert.Equal(t, input, f.configurator.Configure(context.Background(), "order.paid", input, &models.PayloadConfig{IncludeFields: []string{}}))
}

func TestConfigure_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	input := orderPayload()
	snapshot := orderPayload()

	result := f.configurator.Configure(context.Background(), "order.paid", input, &models.PayloadConfig{
		IncludeFields:   []string{"status"},
		ExpandRelations: map[string]string{"customer_id": "customer"},
	})

	result["meta"] = "changed"
	assert.Equal(t, snapshot, input)

	identity := f.configurator.Configure(context.Background(), "order.paid", input, nil)
	identity["meta"].(map[string]any)["channel"] = "mutated"
	assert.Equal(t, "web", input["meta"].(map[string]any)["channel"])
}

func TestConfigure_ProjectionPreservesStructuralKeys(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.configurator.Configure(context.Background(), "order.paid", orderPayload(), &models.PayloadConfig{
		IncludeFields:   []string{"status"},
		ExpandRelations: map[string]string{"customer_id": "customer"},
	})

	assert.Equal(t, "paid", result["status"])
	assert.Equal(t, "o1", result["id"])
	assert.Equal(t, "c1", result["customer_id"])
	assert.NotContains(t, result, "amount")
	assert.NotContains(t, result, "meta")
}

func TestConfigure_DirectExpansionDefaultsToEssentialFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.configurator.Configure(context.Background(), "order.paid", orderPayload(), &models.PayloadConfig{
		ExpandRelations: map[string]string{"customer_id": "customer"},
	})

	assert.Equal(t, map[string]any{"id": "c1", "name": "Ada"}, result["customer"])
}

func TestConfigure_DirectExpansionWithRequestedFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.configurator.Configure(context.Background(), "order.paid", orderPayload(), &models.PayloadConfig{
		RelationFields:  map[string][]string{"customer_id": {"email"}},
		ExpandRelations: map[string]string{"customer_id": "customer"},
	})

	assert.Equal(t, map[string]any{"id": "c1", "email": "ada@example.com"}, result["customer"])
}

func TestConfigure_NestedExpansionFollowsExpandListOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	cfg, err := f.configurator.BuildConfig("order.paid", nil, map[string][]string{"customer_id": {}})
	require.NoError(t, err)

	result := f.configurator.Configure(context.Background(), "order.paid", orderPayload(), cfg)

	customer, ok := result["customer"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, customer, "orders")

	company, ok := customer["company"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Engines", company["name"])
	assert.NotContains(t, company, "vat")

	// The company points at itself; expansion stops at the depth ceiling.
	depth := 0
	for current := company; current != nil; depth++ {
		next, _ := current["parent"].(map[string]any)
		current = next
	}
	assert.LessOrEqual(t, depth, 4)
}

func TestConfigure_ReverseRelationsAreAlwaysProjected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	cfg, err := f.configurator.BuildConfig("order.paid", []string{"status"}, map[string][]string{"line_items": nil})
	require.NoError(t, err)
	require.Len(t, cfg.ReverseRelations, 1)

	result := f.configurator.Configure(context.Background(), "order.paid", orderPayload(), cfg)

	assert.Equal(t, []any{
		map[string]any{"id": "li1", "sku": "A"},
		map[string]any{"id": "li2", "sku": "B"},
	}, result["line_items"])

	cfg.ReverseRelations[0].Fields = []string{"cost"}
	result = f.configurator.Configure(context.Background(), "order.paid", orderPayload(), cfg)

	assert.Equal(t, []any{
		map[string]any{"cost": 3.0},
		map[string]any{"cost": 4.0},
	}, result["line_items"])
}

func TestConfigure_LegacyExpandList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.configurator.Configure(context.Background(), "order.paid", orderPayload(), &models.PayloadConfig{
		LegacyExpand: []string{"customer_id", "unknown_id"},
	})

	customer, ok := result["customer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", customer["name"])
	assert.Contains(t, customer, "company")
}

func TestConfigure_RelationFieldsOnlyDerivesExpansion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.configurator.Configure(context.Background(), "order.paid", orderPayload(), &models.PayloadConfig{
		RelationFields: map[string][]string{"customer_id": {"email"}, "not_a_relation": {"x"}},
	})

	customer, ok := result["customer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", customer["email"])
	assert.NotContains(t, result, "not_a_relation")
}

func TestConfigure_UnresolvableRelationIsOmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	input := orderPayload()
	input["customer_id"] = "ghost"

	result := f.configurator.Configure(context.Background(), "order.paid", input, &models.PayloadConfig{
		ExpandRelations: map[string]string{"customer_id": "customer", "coupon_id": "coupon"},
	})

	assert.NotContains(t, result, "customer")
	assert.NotContains(t, result, "coupon")
	assert.Equal(t, "paid", result["status"])
}

type failingResolver struct{}

func (failingResolver) Find(context.Context, string, string) (map[string]any, error) {
	return nil, errors.New("database down")
}

func (failingResolver) FindRelated(context.Context, string, string, string) ([]map[string]any, error) {
	return nil, errors.New("database down")
}

func TestConfigure_ResolverErrorsDegrade(t *testing.T) {
	t.Parallel()

	events := schema.NewEventRegistry()
	require.NoError(t, events.Register(schema.EventDefinition{Identifier: "order.paid"}))

	configurator := payload.NewConfigurator(
		schema.NewAnalyzer(events, schema.NewModelRegistry()),
		failingResolver{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	result := configurator.Configure(context.Background(), "order.paid", orderPayload(), &models.PayloadConfig{
		ExpandRelations: map[string]string{"customer_id": "customer"},
		ReverseRelations: []models.ReverseRelation{{
			Descriptor: models.RelationDescriptor{Name: "line_items", Mode: models.RelationReverse, Model: "line_item", ForeignKey: "order_id"},
		}},
	})

	assert.Equal(t, orderPayload(), result)
}

func TestBuildConfig_IgnoresUnknownKeys(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	cfg, err := f.configurator.BuildConfig("order.paid", []string{"status"}, map[string][]string{
		"customer_id": {"email"},
		"mystery":     {"a"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"customer_id": "customer"}, cfg.ExpandRelations)
	assert.Equal(t, map[string][]string{"customer_id": {"company"}}, cfg.ExpandNested)
	assert.Empty(t, cfg.ReverseRelations)
}

func TestBuildConfig_UnknownEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.configurator.BuildConfig("nope", nil, map[string][]string{"x": nil})
	assert.ErrorIs(t, err, schema.ErrEventNotRegistered)
}

func TestMemoryResolver(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	record, err := f.resolver.Find(context.Background(), "customer", "c1")
	require.NoError(t, err)

	record["name"] = "changed"

	again, err := f.resolver.Find(context.Background(), "customer", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again["name"])

	_, err = f.resolver.Find(context.Background(), "customer", "nope")
	assert.ErrorIs(t, err, payload.ErrEntityNotFound)

	related, err := f.resolver.FindRelated(context.Background(), "line_item", "order_id", "o2")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "C", related[0]["sku"])
}
