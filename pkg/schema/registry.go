// Package schema holds the event and model registries and the field analyzer built on them.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/automata/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrEventNotRegistered = errors.New("event not registered")
	ErrModelNotRegistered = errors.New("model not registered")
	ErrInvalidPayload     = errors.New("payload does not match event schema")
)

// RelationDefinition declares a relation reachable from an event or a model.
type RelationDefinition struct {
	Name       string              `json:"name"                  yaml:"name"`
	Mode       models.RelationMode `json:"mode"                  yaml:"mode"`
	IDField    string              `json:"id_field,omitempty"    yaml:"id_field,omitempty"`
	Model      string              `json:"model"                 yaml:"model"`
	ForeignKey string              `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
	Alias      string              `json:"alias,omitempty"       yaml:"alias,omitempty"`
	Expand     []string            `json:"expand,omitempty"      yaml:"expand,omitempty"`
}

func (r RelationDefinition) validate() error {
	if r.Model == "" {
		return fmt.Errorf("relation %q: model is required", r.Name)
	}

	switch r.Mode {
	case models.RelationDirect, "":
		if r.IDField == "" {
			return fmt.Errorf("relation %q: id_field is required for direct relations", r.Name)
		}
	case models.RelationReverse:
		if r.Name == "" || r.ForeignKey == "" {
			return fmt.Errorf("relation %q: name and foreign_key are required for reverse relations", r.Name)
		}
	default:
		return fmt.Errorf("relation %q: unknown mode %q", r.Name, r.Mode)
	}

	return nil
}

// EventDefinition declares an event, its JSON Schema and its relations.
type EventDefinition struct {
	Identifier string               `json:"identifier"          yaml:"identifier"`
	Model      string               `json:"model,omitempty"     yaml:"model,omitempty"`
	Schema     map[string]any       `json:"schema"              yaml:"schema"`
	Relations  []RelationDefinition `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// ModelDefinition declares a model that relations resolve to.
type ModelDefinition struct {
	Identifier      string               `json:"identifier"          yaml:"identifier"`
	Table           string               `json:"table,omitempty"     yaml:"table,omitempty"`
	IDField         string               `json:"id_field,omitempty"  yaml:"id_field,omitempty"`
	EssentialFields []string             `json:"essential_fields"    yaml:"essential_fields"`
	Relations       []RelationDefinition `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// KeyField returns the identifying field of the model.
func (m ModelDefinition) KeyField() string {
	if m.IDField == "" {
		return "id"
	}

	return m.IDField
}

type registeredEvent struct {
	definition EventDefinition
	compiled   *gojsonschema.Schema
}

// EventRegistry maps event identifiers to their definitions.
type EventRegistry struct {
	mu     sync.RWMutex
	events map[string]registeredEvent
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{events: make(map[string]registeredEvent)}
}

// Register adds or replaces an event definition. The schema is compiled eagerly.
func (r *EventRegistry) Register(definition EventDefinition) error {
	if definition.Identifier == "" {
		return errors.New("event identifier is required")
	}

	for _, relation := range definition.Relations {
		err := relation.validate()
		if err != nil {
			return fmt.Errorf("event %s: %w", definition.Identifier, err)
		}
	}

	var compiled *gojsonschema.Schema

	if len(definition.Schema) > 0 {
		var err error

		compiled, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(definition.Schema))
		if err != nil {
			return fmt.Errorf("event %s: invalid schema: %w", definition.Identifier, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[definition.Identifier] = registeredEvent{definition: definition, compiled: compiled}

	return nil
}

func (r *EventRegistry) Forget(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.events, identifier)
}

func (r *EventRegistry) Get(identifier string) (EventDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[identifier]

	return event.definition, ok
}

func (r *EventRegistry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identifiers := make([]string, 0, len(r.events))
	for identifier := range r.events {
		identifiers = append(identifiers, identifier)
	}

	sort.Strings(identifiers)

	return identifiers
}

// Validate checks payload against the event's JSON Schema. Events without a schema accept anything.
func (r *EventRegistry) Validate(identifier string, payload map[string]any) error {
	r.mu.RLock()
	event, ok := r.events[identifier]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotRegistered, identifier)
	}

	if event.compiled == nil {
		return nil
	}

	if payload == nil {
		payload = map[string]any{}
	}

	result, err := event.compiled.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("failed to validate payload: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(details, "; "))
	}

	return nil
}

// ModelRegistry maps model identifiers to their definitions.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]ModelDefinition
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[string]ModelDefinition)}
}

func (r *ModelRegistry) Register(definition ModelDefinition) error {
	if definition.Identifier == "" {
		return errors.New("model identifier is required")
	}

	for _, relation := range definition.Relations {
		err := relation.validate()
		if err != nil {
			return fmt.Errorf("model %s: %w", definition.Identifier, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[definition.Identifier] = definition

	return nil
}

func (r *ModelRegistry) Forget(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.models, identifier)
}

func (r *ModelRegistry) Get(identifier string) (ModelDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.models[identifier]

	return model, ok
}

func (r *ModelRegistry) All() []ModelDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]ModelDefinition, 0, len(r.models))
	for _, model := range r.models {
		all = append(all, model)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Identifier < all[j].Identifier })

	return all
}
