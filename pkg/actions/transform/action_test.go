package transform

import (
	"context"
	"testing"

	"github.com/dukex/automata/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActionFactory(t *testing.T) {
	factory := NewActionFactory()
	assert.NotNil(t, factory)
	assert.Equal(t, "transform", factory.ID())
	assert.False(t, protocol.IsOutbound(factory))
}

func TestActionFactory_Create(t *testing.T) {
	factory := NewActionFactory()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr error
	}{
		{name: "nil config", config: nil, wantErr: ErrExpressionRequired},
		{name: "empty config", config: map[string]any{}, wantErr: ErrExpressionRequired},
		{name: "config with expression", config: map[string]any{"expression": "{{ .name }}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := factory.Create(tt.config)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.IsType(t, &Action{}, action)
		})
	}

	assert.Error(t, factory.Validate(map[string]any{"expression": "{{ .name "}))
}

func TestAction_Handle(t *testing.T) {
	tests := []struct {
		name     string
		config   map[string]any
		payload  map[string]any
		expected map[string]any
	}{
		{
			name:     "object result replaces payload",
			config:   map[string]any{"expression": `{"fullName": "{{ .first }} {{ .last }}", "event": "{{ .event }}"}`},
			payload:  map[string]any{"first": "Ada", "last": "Lovelace"},
			expected: map[string]any{"fullName": "Ada Lovelace", "event": "user.created"},
		},
		{
			name:     "scalar result is wrapped",
			config:   map[string]any{"expression": "{{ len .items }}", "field": "count"},
			payload:  map[string]any{"items": []any{1, 2, 3}},
			expected: map[string]any{"count": 3.0},
		},
		{
			name:     "string result uses default field",
			config:   map[string]any{"expression": "{{ .data.first }}"},
			payload:  map[string]any{"first": "Ada"},
			expected: map[string]any{"result": "Ada"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := NewAction(tt.config)
			require.NoError(t, err)

			response, err := action.Handle(context.Background(), &protocol.Request{
				Payload:         tt.payload,
				EventIdentifier: "user.created",
			})
			require.NoError(t, err)

			output, ok := protocol.Output(response)
			require.True(t, ok)
			assert.Equal(t, tt.expected, output)
		})
	}
}

func TestAction_HandleError(t *testing.T) {
	action, err := NewAction(map[string]any{"expression": "{{ len .missing.deep }}"})
	require.NoError(t, err)

	_, err = action.Handle(context.Background(), &protocol.Request{Payload: map[string]any{}})
	assert.Error(t, err)
}
