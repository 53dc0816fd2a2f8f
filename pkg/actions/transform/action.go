// Package transform reshapes the payload threaded between a trigger's actions.
package transform

import (
	"context"
	"fmt"

	"github.com/dukex/automata/pkg/protocol"
	"github.com/dukex/automata/pkg/template"
)

type Action struct {
	Expression string
	Field      string
}

// Handle renders the expression and returns the result as the next action's payload.
func (a *Action) Handle(_ context.Context, req *protocol.Request) (map[string]any, error) {
	result, err := template.Render(a.Expression, template.EventData(req.EventIdentifier, req.Payload))
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	output, ok := result.(map[string]any)
	if !ok {
		output = map[string]any{a.Field: result}
	}

	return map[string]any{
		protocol.ResponseSuccess: true,
		protocol.ResponseOutput:  output,
	}, nil
}
