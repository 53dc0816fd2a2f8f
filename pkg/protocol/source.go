package protocol

import "context"

// EventCallback is called when a source emits an event.
type EventCallback func(ctx context.Context, identifier string, payload map[string]any) error

// EventSource is a long-running producer of inbound events.
type EventSource interface {
	// Start begins emitting events through callback until ctx is done or Stop is called.
	Start(ctx context.Context, callback EventCallback) error

	Stop(ctx context.Context) error
}
