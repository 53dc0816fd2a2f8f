// Package logaction records what an equivalent webhook would send, without sending it.
package logaction

import (
	"log/slog"
	"time"

	"github.com/dukex/automata/pkg/protocol"
)

type ActionFactory struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewActionFactory(logger *slog.Logger) *ActionFactory {
	return &ActionFactory{
		logger: logger.With("module", "log_action"),
		now:    time.Now,
	}
}

// WithClock replaces the clock used for envelope timestamps.
func (f *ActionFactory) WithClock(now func() time.Time) *ActionFactory {
	f.now = now

	return f
}

func (*ActionFactory) ID() string {
	return "log"
}

func (*ActionFactory) Name() string {
	return "Log"
}

func (*ActionFactory) Description() string {
	return "Logs the body a webhook with the same configuration would send. Every run is kept in the action log."
}

// AlwaysLogSuccess keeps every successful invocation in the action log.
func (*ActionFactory) AlwaysLogSuccess() bool {
	return true
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":    "string",
				"default": "Action log",
			},
			"level": map[string]any{
				"type":    "string",
				"enum":    []string{"debug", "info", "warn", "error"},
				"default": "info",
			},
			"payload_mode": map[string]any{
				"type":    "string",
				"enum":    []string{"payload", "envelope"},
				"default": "payload",
			},
			"signing_secret": map[string]any{
				"type": "string",
			},
		},
	}
}

func (*ActionFactory) Validate(config map[string]any) error {
	_, err := parseConfig(config)

	return err
}

func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	if config == nil {
		config = map[string]any{}
	}

	cfg, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	return &Action{config: cfg, factory: f}, nil
}
