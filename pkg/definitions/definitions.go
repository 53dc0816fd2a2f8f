// Package definitions loads declarative events, models, triggers, credentials and event sources from YAML.
package definitions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/schema"
	"github.com/dukex/automata/pkg/sources/kafka"
	"github.com/dukex/automata/pkg/sources/schedule"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/dukex/automata/definitions"))

// Credential is the file form of a stored credential. Secret values may reference
// environment variables as ${NAME}.
type Credential struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	Scopes    []string          `yaml:"scopes,omitempty"`
	Secrets   map[string]string `yaml:"secrets"`
	ExpiresAt *time.Time        `yaml:"expires_at,omitempty"`
}

type Definitions struct {
	Events       []schema.EventDefinition `yaml:"events"`
	Models       []schema.ModelDefinition `yaml:"models"`
	Triggers     []map[string]any         `yaml:"triggers"`
	Credentials  []Credential             `yaml:"credentials"`
	Schedules    []schedule.Schedule      `yaml:"schedules"`
	KafkaSources []kafka.Subscription     `yaml:"kafka_sources"`
}

type TriggerSaver interface {
	Save(ctx context.Context, trigger *models.Trigger) (*models.Trigger, error)
}

type CredentialSaver interface {
	Save(ctx context.Context, credential *models.Credential) error
}

func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}

	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return defs, nil
}

// Parse decodes a definitions document. Unknown top-level keys are rejected.
func Parse(data []byte) (*Definitions, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var defs Definitions

	err := decoder.Decode(&defs)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	for _, s := range defs.Schedules {
		err = s.Validate()
		if err != nil {
			return nil, err
		}
	}

	for _, s := range defs.KafkaSources {
		err = s.Validate()
		if err != nil {
			return nil, err
		}
	}

	return &defs, nil
}

// Register adds every model and event to the registries. Models go first so events can
// reference them.
func (d *Definitions) Register(events *schema.EventRegistry, registry *schema.ModelRegistry) error {
	for _, model := range d.Models {
		err := registry.Register(model)
		if err != nil {
			return fmt.Errorf("model %s: %w", model.Identifier, err)
		}
	}

	for _, event := range d.Events {
		err := events.Register(event)
		if err != nil {
			return fmt.Errorf("event %s: %w", event.Identifier, err)
		}
	}

	return nil
}

// TriggerModels converts the trigger documents using the same field names as the HTTP API.
// Triggers and actions without an id get one derived from the trigger name and the action
// position, so loading the same file twice updates rather than duplicates.
func (d *Definitions) TriggerModels() ([]*models.Trigger, error) {
	triggers := make([]*models.Trigger, 0, len(d.Triggers))

	for i, document := range d.Triggers {
		data, err := json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", i, err)
		}

		var trigger models.Trigger

		err = json.Unmarshal(data, &trigger)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", i, err)
		}

		if trigger.ID == "" {
			trigger.ID = uuid.NewSHA1(idNamespace, []byte("trigger:"+trigger.Name)).String()
		}

		for position, action := range trigger.Actions {
			if action != nil && action.ID == "" {
				action.ID = uuid.NewSHA1(idNamespace, fmt.Appendf(nil, "action:%s:%d", trigger.ID, position)).String()
			}
		}

		triggers = append(triggers, &trigger)
	}

	return triggers, nil
}

func (d *Definitions) CredentialModels(now time.Time) []*models.Credential {
	credentials := make([]*models.Credential, 0, len(d.Credentials))

	for _, c := range d.Credentials {
		secrets := make(map[string]string, len(c.Secrets))
		for key, value := range c.Secrets {
			secrets[key] = os.ExpandEnv(value)
		}

		credentials = append(credentials, &models.Credential{
			ID:        c.ID,
			Name:      c.Name,
			Type:      models.CredentialType(c.Type),
			Status:    models.CredentialStatusActive,
			Data:      models.NewSecretData(secrets),
			Scopes:    c.Scopes,
			ExpiresAt: c.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return credentials
}

// Seed stores the declared credentials and triggers. Triggers go through the saver so they
// get the same validation and secret generation as API writes.
func (d *Definitions) Seed(ctx context.Context, triggers TriggerSaver, credentials CredentialSaver) error {
	for _, credential := range d.CredentialModels(time.Now().UTC()) {
		err := credentials.Save(ctx, credential)
		if err != nil {
			return fmt.Errorf("credential %s: %w", credential.ID, err)
		}
	}

	documents, err := d.TriggerModels()
	if err != nil {
		return err
	}

	for _, trigger := range documents {
		_, err = triggers.Save(ctx, trigger)
		if err != nil {
			return fmt.Errorf("trigger %s: %w", trigger.Name, err)
		}
	}

	return nil
}
