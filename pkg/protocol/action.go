// Package protocol defines the contracts between the dispatcher and pluggable actions.
package protocol

import (
	"context"

	"github.com/dukex/automata/pkg/models"
)

// Response keys understood by the dispatcher.
const (
	ResponseSuccess = "success"
	ResponseOutput  = "output"
	ResponseMessage = "message"
)

// Request carries everything a handler needs for one invocation.
// Log is the pending audit row; handlers may rewrite its Payload to the exact outbound body.
type Request struct {
	Trigger         *models.Trigger
	Action          *models.Action
	Payload         map[string]any
	EventIdentifier string
	Log             *models.ActionLog
}

// ActionHandler executes one configured action.
// Expected delivery failures are reported in the response with success=false;
// a returned error means a configuration or programming mistake.
type ActionHandler interface {
	Handle(ctx context.Context, req *Request) (map[string]any, error)
}

// ActionFactory creates handlers for one action type and describes its configuration.
type ActionFactory interface {
	// ID returns the type tag stored in models.Action.Type
	ID() string

	Name() string

	Description() string

	// Schema returns the JSON schema for the action configuration
	Schema() map[string]any

	// Validate checks a configuration without building a handler
	Validate(config map[string]any) error

	Create(config map[string]any) (ActionHandler, error)
}

// MonitoringAction is implemented by factories whose successful invocations are always audited.
type MonitoringAction interface {
	AlwaysLogSuccess() bool
}

// OutboundAction is implemented by factories that deliver to external endpoints and need a signing secret.
type OutboundAction interface {
	Outbound() bool
}

// IsMonitoring reports whether the factory asked for every success to be kept.
func IsMonitoring(factory ActionFactory) bool {
	m, ok := factory.(MonitoringAction)

	return ok && m.AlwaysLogSuccess()
}

// IsOutbound reports whether the factory delivers outside the process.
func IsOutbound(factory ActionFactory) bool {
	o, ok := factory.(OutboundAction)

	return ok && o.Outbound()
}

// Failed reports whether a response marks a delivery failure.
func Failed(response map[string]any) bool {
	success, ok := response[ResponseSuccess].(bool)

	return ok && !success
}

// Output returns the payload a handler produced for the next action, if any.
func Output(response map[string]any) (map[string]any, bool) {
	output, ok := response[ResponseOutput].(map[string]any)

	return output, ok
}
