package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/automata/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFactory struct {
	id       string
	validate error
}

func (m *mockFactory) ID() string             { return m.id }
func (m *mockFactory) Name() string           { return "Mock" }
func (m *mockFactory) Description() string    { return "mock action" }
func (m *mockFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func (m *mockFactory) Validate(map[string]any) error {
	return m.validate
}

func (m *mockFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	if err := m.Validate(config); err != nil {
		return nil, err
	}

	return &mockHandler{}, nil
}

type mockHandler struct{}

func (*mockHandler) Handle(context.Context, *protocol.Request) (map[string]any, error) {
	return map[string]any{"success": true}, nil
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_RegisterAndCreateAction(t *testing.T) {
	registry := newTestRegistry()
	registry.RegisterAction(&mockFactory{id: "mock"})

	handler, err := registry.CreateAction("mock", map[string]any{})
	require.NoError(t, err)
	assert.IsType(t, &mockHandler{}, handler)

	factory, err := registry.Action("mock")
	require.NoError(t, err)
	assert.Equal(t, "Mock", factory.Name())
}

func TestRegistry_UnknownAction(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.CreateAction("missing", nil)
	require.ErrorIs(t, err, ErrActionNotRegistered)
	assert.Contains(t, err.Error(), "action type 'missing' not registered")

	assert.ErrorIs(t, registry.ValidateAction("missing", nil), ErrActionNotRegistered)
}

func TestRegistry_ValidateAction(t *testing.T) {
	registry := newTestRegistry()
	invalid := errors.New("url is required")
	registry.RegisterAction(&mockFactory{id: "strict", validate: invalid})

	assert.ErrorIs(t, registry.ValidateAction("strict", map[string]any{}), invalid)

	_, err := registry.CreateAction("strict", map[string]any{})
	assert.ErrorIs(t, err, invalid)
}

func TestRegistry_ForgetAndTypes(t *testing.T) {
	registry := newTestRegistry()
	registry.RegisterAction(&mockFactory{id: "webhook"})
	registry.RegisterAction(&mockFactory{id: "email"})
	registry.RegisterAction(&mockFactory{id: "log"})

	assert.Equal(t, []string{"email", "log", "webhook"}, registry.Types())

	registry.Forget("email")
	assert.Equal(t, []string{"log", "webhook"}, registry.Types())

	_, err := registry.Action("email")
	assert.Error(t, err)
}

func TestRegistry_LoadActionPluginsMissingDir(t *testing.T) {
	registry := newTestRegistry()

	plugins, err := registry.LoadActionPlugins(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, plugins)
}
