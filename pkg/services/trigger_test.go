package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	logaction "github.com/dukex/automata/pkg/actions/log"
	"github.com/dukex/automata/pkg/actions/webhook"
	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
	"github.com/dukex/automata/pkg/persistence/file"
	"github.com/dukex/automata/pkg/registry"
	"github.com/dukex/automata/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTriggerService(t *testing.T) (*services.Trigger, *file.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	actions := registry.NewRegistry(logger)
	actions.RegisterAction(webhook.NewActionFactory(logger))
	actions.RegisterAction(logaction.NewActionFactory(logger))

	return services.NewTrigger(store, actions, logger), store
}

func webhookTrigger() *models.Trigger {
	return &models.Trigger{
		Name:            "paid orders",
		EventIdentifier: "order.paid",
		Status:          models.TriggerStatusActive,
		Conditions:      []models.Condition{{Type: "equals", Field: "status", Value: "paid"}},
		Actions: []*models.Action{
			{Type: "webhook", Order: 1, Active: true, Config: map[string]any{"url": "https://example.com/hook"}},
			{Type: "log", Order: 2, Active: true},
		},
	}
}

func TestTrigger_SaveGeneratesSecretForOutboundActions(t *testing.T) {
	service, _ := newTriggerService(t)
	ctx := context.Background()

	saved, err := service.Save(ctx, webhookTrigger())
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, models.CombinatorAll, saved.Combinator)

	secret := saved.Actions[0].ConfigString(services.SecretKey)
	assert.Len(t, secret, 64)
	assert.Empty(t, saved.Actions[1].ConfigString(services.SecretKey))

	stored, err := service.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, secret, stored.Actions[0].ConfigString(services.SecretKey))

	resaved, err := service.Save(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, secret, resaved.Actions[0].ConfigString(services.SecretKey))
}

func TestTrigger_SaveKeepsStoredSecretWhenClientOmitsIt(t *testing.T) {
	service, _ := newTriggerService(t)
	ctx := context.Background()

	saved, err := service.Save(ctx, webhookTrigger())
	require.NoError(t, err)

	secret := saved.Actions[0].ConfigString(services.SecretKey)

	edited := webhookTrigger()
	edited.ID = saved.ID
	edited.Actions[0].ID = saved.Actions[0].ID
	edited.Actions[0].Config = map[string]any{"url": "https://example.com/v2"}

	resaved, err := service.Save(ctx, edited)
	require.NoError(t, err)
	assert.Equal(t, secret, resaved.Actions[0].ConfigString(services.SecretKey))
	assert.Equal(t, "https://example.com/v2", resaved.Actions[0].ConfigString("url"))
}

func TestTrigger_SaveKeepsProvidedSecret(t *testing.T) {
	service, _ := newTriggerService(t)

	trigger := webhookTrigger()
	trigger.Actions[0].Config[services.SecretKey] = "my-secret"

	saved, err := service.Save(context.Background(), trigger)
	require.NoError(t, err)
	assert.Equal(t, "my-secret", saved.Actions[0].ConfigString(services.SecretKey))
}

func TestTrigger_SaveValidation(t *testing.T) {
	service, _ := newTriggerService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*models.Trigger)
		wantErr error
	}{
		{
			name:    "missing name",
			mutate:  func(tr *models.Trigger) { tr.Name = "" },
			wantErr: services.ErrInvalidRequest,
		},
		{
			name:    "bad status",
			mutate:  func(tr *models.Trigger) { tr.Status = "paused" },
			wantErr: services.ErrInvalidRequest,
		},
		{
			name:    "unregistered action type",
			mutate:  func(tr *models.Trigger) { tr.Actions[1].Type = "fax" },
			wantErr: services.ErrUnknownActionType,
		},
		{
			name:    "invalid webhook url",
			mutate:  func(tr *models.Trigger) { tr.Actions[0].Config["url"] = "not a url" },
			wantErr: services.ErrInvalidActionConfig,
		},
		{
			name: "duplicate action ids",
			mutate: func(tr *models.Trigger) {
				tr.Actions[0].ID = "same"
				tr.Actions[1].ID = "same"
			},
			wantErr: services.ErrDuplicateActionID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := webhookTrigger()
			tt.mutate(trigger)

			_, err := service.Save(ctx, trigger)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, services.IsValidationError(err))
		})
	}

	_, err := service.Save(ctx, nil)
	assert.ErrorIs(t, err, services.ErrTriggerNil)
}

func TestTrigger_DefaultsToDraft(t *testing.T) {
	service, _ := newTriggerService(t)

	trigger := webhookTrigger()
	trigger.Status = ""

	saved, err := service.Save(context.Background(), trigger)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusDraft, saved.Status)
}

func TestTrigger_DeleteAndList(t *testing.T) {
	service, _ := newTriggerService(t)
	ctx := context.Background()

	saved, err := service.Save(ctx, webhookTrigger())
	require.NoError(t, err)

	triggers, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, triggers, 1)

	require.NoError(t, service.Delete(ctx, saved.ID))

	err = service.Delete(ctx, saved.ID)
	assert.True(t, persistence.IsTriggerNotFound(err))
}

func TestTrigger_HealthCheck(t *testing.T) {
	service, _ := newTriggerService(t)

	message, ok := service.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func TestGenerateSecret(t *testing.T) {
	first, err := services.GenerateSecret()
	require.NoError(t, err)

	second, err := services.GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}
