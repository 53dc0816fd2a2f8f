package schema_test

import (
	"testing"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderPaidRegistries(t *testing.T) (*schema.EventRegistry, *schema.ModelRegistry) {
	t.Helper()

	events := schema.NewEventRegistry()
	modelRegistry := schema.NewModelRegistry()

	require.NoError(t, modelRegistry.Register(schema.ModelDefinition{
		Identifier:      "customer",
		Table:           "customers",
		EssentialFields: []string{"name", "email"},
		Relations: []schema.RelationDefinition{
			{Name: "company", IDField: "company_id", Model: "company"},
		},
	}))
	require.NoError(t, modelRegistry.Register(schema.ModelDefinition{
		Identifier:      "company",
		EssentialFields: []string{"name"},
	}))
	require.NoError(t, modelRegistry.Register(schema.ModelDefinition{
		Identifier:      "line_item",
		EssentialFields: []string{"sku", "quantity"},
	}))

	require.NoError(t, events.Register(schema.EventDefinition{
		Identifier: "order.paid",
		Model:      "order",
		Schema: map[string]any{
			"type":     "object",
			"required": []any{"id", "status"},
			"properties": map[string]any{
				"id":                 map[string]any{"type": "string"},
				"status":             map[string]any{"type": "string", "title": "Status"},
				"amount":             map[string]any{"type": "number"},
				"customer_id":        map[string]any{"type": "string"},
				"billing.address id": map[string]any{"type": "string"},
			},
		},
		Relations: []schema.RelationDefinition{
			{Name: "customer", IDField: "customer_id", Model: "customer", Expand: []string{"company"}},
			{Name: "billing address", IDField: "billing.address id", Model: "address"},
			{Name: "line_items", Mode: models.RelationReverse, Model: "line_item", ForeignKey: "order_id"},
		},
	}))

	return events, modelRegistry
}

func TestAnalyzer_Analyze(t *testing.T) {
	t.Parallel()

	events, modelRegistry := orderPaidRegistries(t)
	analyzer := schema.NewAnalyzer(events, modelRegistry)

	analysis, err := analyzer.Analyze("order.paid")
	require.NoError(t, err)

	names := make([]string, 0, len(analysis.EssentialFields))
	for _, field := range analysis.EssentialFields {
		names = append(names, field.Name)
	}

	assert.Equal(t, []string{"amount", "billing.address id", "customer_id", "id", "status"}, names)
	assert.Equal(t, "Status", analysis.EssentialFields[4].Title)

	require.Len(t, analysis.Relations, 3)

	customer := analysis.Relations["customer_id"]
	assert.Equal(t, models.RelationDirect, customer.Mode)
	assert.Equal(t, "customer", customer.Model)
	assert.Equal(t, []string{"company"}, customer.Expand)
	assert.Equal(t, []string{"id", "name", "email"}, customer.Fields)

	billing, ok := analysis.Relations["billing_address_id"]
	require.True(t, ok)
	assert.Equal(t, "billing.address id", billing.IDField)
	assert.Equal(t, []string{"id"}, billing.Fields)

	lineItems := analysis.Relations["line_items"]
	assert.Equal(t, models.RelationReverse, lineItems.Mode)
	assert.Equal(t, "order_id", lineItems.ForeignKey)
	assert.Empty(t, lineItems.IDField)
}

func TestAnalyzer_StableAcrossCalls(t *testing.T) {
	t.Parallel()

	events, modelRegistry := orderPaidRegistries(t)
	analyzer := schema.NewAnalyzer(events, modelRegistry)

	first, err := analyzer.Analyze("order.paid")
	require.NoError(t, err)

	second, err := analyzer.Analyze("order.paid")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAnalyzer_UnknownEvent(t *testing.T) {
	t.Parallel()

	analyzer := schema.NewAnalyzer(schema.NewEventRegistry(), schema.NewModelRegistry())

	_, err := analyzer.Analyze("nope")
	assert.ErrorIs(t, err, schema.ErrEventNotRegistered)
}

func TestAnalyzer_ModelRelation(t *testing.T) {
	t.Parallel()

	events, modelRegistry := orderPaidRegistries(t)
	analyzer := schema.NewAnalyzer(events, modelRegistry)

	company, ok := analyzer.ModelRelation("customer", "company")
	require.True(t, ok)
	assert.Equal(t, "company_id", company.IDField)
	assert.Equal(t, []string{"id", "name"}, company.Fields)

	_, ok = analyzer.ModelRelation("customer", "invoices")
	assert.False(t, ok)

	_, ok = analyzer.ModelRelation("ghost", "company")
	assert.False(t, ok)
}

func TestEventRegistry_Validate(t *testing.T) {
	t.Parallel()

	events, _ := orderPaidRegistries(t)

	assert.NoError(t, events.Validate("order.paid", map[string]any{"id": "o1", "status": "paid", "amount": 10}))

	err := events.Validate("order.paid", map[string]any{"id": "o1"})
	assert.ErrorIs(t, err, schema.ErrInvalidPayload)

	err = events.Validate("order.paid", map[string]any{"id": "o1", "status": 3})
	assert.ErrorIs(t, err, schema.ErrInvalidPayload)

	err = events.Validate("order.refunded", map[string]any{})
	assert.ErrorIs(t, err, schema.ErrEventNotRegistered)
}

func TestEventRegistry_RegisterAndForget(t *testing.T) {
	t.Parallel()

	events := schema.NewEventRegistry()

	require.NoError(t, events.Register(schema.EventDefinition{Identifier: "user.created"}))
	assert.NoError(t, events.Validate("user.created", map[string]any{"anything": true}))
	assert.Equal(t, []string{"user.created"}, events.Identifiers())

	events.Forget("user.created")

	_, ok := events.Get("user.created")
	assert.False(t, ok)
}

func TestEventRegistry_RejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	events := schema.NewEventRegistry()

	assert.Error(t, events.Register(schema.EventDefinition{}))
	assert.Error(t, events.Register(schema.EventDefinition{
		Identifier: "bad.relation",
		Relations:  []schema.RelationDefinition{{Name: "customer", Model: "customer"}},
	}))
	assert.Error(t, events.Register(schema.EventDefinition{
		Identifier: "bad.reverse",
		Relations:  []schema.RelationDefinition{{Name: "items", Mode: models.RelationReverse, Model: "item"}},
	}))
	assert.Error(t, events.Register(schema.EventDefinition{
		Identifier: "bad.schema",
		Schema:     map[string]any{"type": 12},
	}))
}
