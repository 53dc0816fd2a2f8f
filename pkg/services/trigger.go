package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// SecretKey is the action configuration key holding the generated signing secret.
	SecretKey = "secret"

	secretBytes = 32
)

// ActionCatalog resolves action factories by type.
type ActionCatalog interface {
	Action(actionType string) (protocol.ActionFactory, error)
}

type Trigger struct {
	persistence persistence.Persistence
	actions     ActionCatalog
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewTrigger creates a new trigger service.
func NewTrigger(persistence persistence.Persistence, actions ActionCatalog, logger *slog.Logger) *Trigger {
	return &Trigger{
		persistence: persistence,
		actions:     actions,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "trigger_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Trigger) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (s *Trigger) List(ctx context.Context) ([]*models.Trigger, error) {
	triggers, err := s.persistence.TriggerRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	return triggers, nil
}

func (s *Trigger) Get(ctx context.Context, id string) (*models.Trigger, error) {
	return s.persistence.TriggerRepository().GetByID(ctx, id)
}

func (s *Trigger) Delete(ctx context.Context, id string) error {
	_, err := s.persistence.TriggerRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	return s.persistence.TriggerRepository().Delete(ctx, id)
}

// Save validates and stores a trigger.
//
// Missing trigger and action IDs are generated. Every action type must be registered and
// its configuration must pass the handler's validation. Outbound actions receive a random
// signing secret when their configuration has none; a secret already stored for the same
// action is carried over and never regenerated.
func (s *Trigger) Save(ctx context.Context, trigger *models.Trigger) (*models.Trigger, error) {
	if trigger == nil {
		return nil, NewValidationError("Save", "TRIGGER_NIL", "", ErrTriggerNil)
	}

	if trigger.Status == "" {
		trigger.Status = models.TriggerStatusDraft
	}

	if trigger.Combinator == "" {
		trigger.Combinator = models.CombinatorAll
	}

	err := s.validate.Struct(trigger)
	if err != nil {
		return nil, NewValidationError("Save", "INVALID_TRIGGER", err.Error(), ErrInvalidRequest)
	}

	if trigger.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate trigger ID: %w", err)
		}

		trigger.ID = id.String()
	}

	stored, err := s.storedSecrets(ctx, trigger.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(trigger.Actions))

	for _, action := range trigger.Actions {
		err := s.prepareAction(action, stored, seen)
		if err != nil {
			return nil, err
		}
	}

	err = s.persistence.TriggerRepository().Save(ctx, trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	s.logger.InfoContext(ctx, "Trigger saved", "trigger_id", trigger.ID, "actions", len(trigger.Actions))

	return trigger, nil
}

func (s *Trigger) prepareAction(action *models.Action, stored map[string]string, seen map[string]bool) error {
	if action == nil {
		return NewValidationError("Save", "INVALID_TRIGGER", "action cannot be nil", ErrInvalidRequest)
	}

	if action.ID == "" {
		action.ID = uuid.NewString()
	}

	if seen[action.ID] {
		return NewValidationError("Save", "DUPLICATE_ACTION", "action id "+action.ID+" is used twice", ErrDuplicateActionID)
	}

	seen[action.ID] = true

	factory, err := s.actions.Action(action.Type)
	if err != nil {
		return NewValidationError("Save", "UNKNOWN_ACTION_TYPE", err.Error(), ErrUnknownActionType)
	}

	if action.Config == nil {
		action.Config = make(map[string]any)
	} else {
		action.Config = maps.Clone(action.Config)
	}

	if protocol.IsOutbound(factory) && action.ConfigString(SecretKey) == "" {
		secret, ok := stored[action.ID]
		if !ok {
			secret, err = GenerateSecret()
			if err != nil {
				return err
			}
		}

		action.Config[SecretKey] = secret
	}

	err = factory.Validate(action.Config)
	if err != nil {
		return NewValidationError("Save", "INVALID_ACTION_CONFIG",
			fmt.Sprintf("action %s: %v", action.ID, err), ErrInvalidActionConfig)
	}

	return nil
}

// storedSecrets returns the secrets already persisted for the trigger's actions.
func (s *Trigger) storedSecrets(ctx context.Context, triggerID string) (map[string]string, error) {
	existing, err := s.persistence.TriggerRepository().GetByID(ctx, triggerID)
	if errors.Is(err, persistence.ErrTriggerNotFound) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load trigger: %w", err)
	}

	secrets := make(map[string]string, len(existing.Actions))

	for _, action := range existing.Actions {
		if secret := action.ConfigString(SecretKey); secret != "" {
			secrets[action.ID] = secret
		}
	}

	return secrets, nil
}

// GenerateSecret returns 32 random bytes, hex encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)

	_, err := rand.Read(buf)
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
