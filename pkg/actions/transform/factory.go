package transform

import (
	"errors"
	"fmt"

	"github.com/dukex/automata/pkg/protocol"
	"github.com/dukex/automata/pkg/template"
)

var ErrExpressionRequired = errors.New("transform expression is required")

// ActionFactory is the factory for creating Transform actions.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory for the Transform action.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the Transform action factory.
func (*ActionFactory) ID() string {
	return "transform"
}

// Name returns the name of the Transform action factory.
func (*ActionFactory) Name() string {
	return "Transform"
}

// Description returns a brief description of the Transform action.
func (*ActionFactory) Description() string {
	return "Reshapes the payload passed to the next action with a Go template expression."
}

// Schema returns the JSON schema for the Transform action configuration.
func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"format":      "template",
				"description": "Go template expression rendered against the event. A JSON object result replaces the payload.",
				"examples": []string{
					"{\"fullName\": \"{{.firstName}} {{.lastName}}\", \"isActive\": {{eq .status \"active\"}}}",
					"{\"event\": \"{{.event}}\", \"items\": {{len .items}}}",
				},
			},
			"field": map[string]any{
				"type":        "string",
				"description": "Wraps a non-object result under this key. Defaults to \"result\".",
			},
		},
		"required": []string{"expression"},
	}
}

func (*ActionFactory) Validate(config map[string]any) error {
	_, err := NewAction(config)

	return err
}

// Create creates a new Action instance based on the provided configuration.
func (*ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config)
}

func NewAction(config map[string]any) (*Action, error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, ErrExpressionRequired
	}

	err := template.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}

	field, _ := config["field"].(string)
	if field == "" {
		field = "result"
	}

	return &Action{Expression: expression, Field: field}, nil
}
