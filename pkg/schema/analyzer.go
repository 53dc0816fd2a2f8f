package schema

import (
	"fmt"
	"sort"

	"github.com/dukex/automata/pkg/models"
)

// Analyzer describes the selectable fields and relations of registered events.
type Analyzer struct {
	events *EventRegistry
	models *ModelRegistry
}

func NewAnalyzer(events *EventRegistry, models *ModelRegistry) *Analyzer {
	return &Analyzer{events: events, models: models}
}

// Analyze returns the essential fields and the relation descriptors of an event,
// keyed by form key.
func (a *Analyzer) Analyze(eventIdentifier string) (*models.FieldAnalysis, error) {
	event, ok := a.events.Get(eventIdentifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotRegistered, eventIdentifier)
	}

	analysis := &models.FieldAnalysis{
		EventIdentifier: eventIdentifier,
		EssentialFields: essentialFields(event.Schema),
		Relations:       make(map[string]models.RelationDescriptor, len(event.Relations)),
	}

	for _, relation := range event.Relations {
		descriptor := a.describe(relation)
		analysis.Relations[descriptor.FormKey] = descriptor
	}

	return analysis, nil
}

// ModelRelation returns the descriptor of a relation declared on a model.
func (a *Analyzer) ModelRelation(model, name string) (models.RelationDescriptor, bool) {
	definition, ok := a.models.Get(model)
	if !ok {
		return models.RelationDescriptor{}, false
	}

	for _, relation := range definition.Relations {
		if relation.Name == name || relation.IDField == name {
			return a.describe(relation), true
		}
	}

	return models.RelationDescriptor{}, false
}

// EssentialFields returns the minimal field set of a model. The id field is always included.
func (a *Analyzer) EssentialFields(model string) []string {
	definition, ok := a.models.Get(model)
	if !ok {
		return []string{"id"}
	}

	return withKeyField(definition.KeyField(), definition.EssentialFields)
}

// EventKeyField returns the identifying field of the event's primary model.
func (a *Analyzer) EventKeyField(eventIdentifier string) string {
	event, ok := a.events.Get(eventIdentifier)
	if !ok || event.Model == "" {
		return "id"
	}

	return a.KeyField(event.Model)
}

// KeyField returns the identifying field of a model, "id" when unknown.
func (a *Analyzer) KeyField(model string) string {
	definition, ok := a.models.Get(model)
	if !ok {
		return "id"
	}

	return definition.KeyField()
}

func (a *Analyzer) describe(relation RelationDefinition) models.RelationDescriptor {
	mode := relation.Mode
	if mode == "" {
		mode = models.RelationDirect
	}

	name := relation.Name
	if name == "" {
		name = relation.IDField
	}

	formKey := models.FormKey(relation.IDField)
	if mode == models.RelationReverse || relation.IDField == "" {
		formKey = models.FormKey(name)
	}

	return models.RelationDescriptor{
		Name:       name,
		FormKey:    formKey,
		Mode:       mode,
		IDField:    relation.IDField,
		Model:      relation.Model,
		ForeignKey: relation.ForeignKey,
		Alias:      relation.Alias,
		Expand:     append([]string(nil), relation.Expand...),
		Fields:     a.EssentialFields(relation.Model),
	}
}

func essentialFields(jsonSchema map[string]any) []models.FieldDescriptor {
	properties, _ := jsonSchema["properties"].(map[string]any)

	fields := make([]models.FieldDescriptor, 0, len(properties))

	for name, raw := range properties {
		field := models.FieldDescriptor{Name: name}

		if property, ok := raw.(map[string]any); ok {
			field.Type, _ = property["type"].(string)
			field.Title, _ = property["title"].(string)
		}

		fields = append(fields, field)
	}

	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	return fields
}

func withKeyField(keyField string, fields []string) []string {
	result := make([]string, 0, len(fields)+1)
	result = append(result, keyField)

	for _, field := range fields {
		if field != keyField {
			result = append(result, field)
		}
	}

	return result
}
