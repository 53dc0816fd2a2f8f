package logaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/automata/pkg/actions/webhook"
	"github.com/dukex/automata/pkg/protocol"
)

var ErrInvalidLevel = errors.New("invalid log level")

type config struct {
	Message     string
	Level       slog.Level
	PayloadMode string
	Secret      string
}

func parseConfig(raw map[string]any) (*config, error) {
	body := webhook.ParseBodyConfig(raw)

	if body.PayloadMode != webhook.PayloadModeRaw && body.PayloadMode != webhook.PayloadModeEnvelope {
		return nil, fmt.Errorf("invalid payload_mode %q", body.PayloadMode)
	}

	cfg := &config{
		Message:     "Action log",
		PayloadMode: body.PayloadMode,
		Secret:      body.Secret,
	}

	if message, ok := raw["message"].(string); ok && message != "" {
		cfg.Message = message
	}

	level, _ := raw["level"].(string)

	switch strings.ToLower(level) {
	case "", "info":
		cfg.Level = slog.LevelInfo
	case "debug":
		cfg.Level = slog.LevelDebug
	case "warn", "warning":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidLevel, level)
	}

	return cfg, nil
}

type Action struct {
	config  *config
	factory *ActionFactory
}

// Handle builds the webhook body, stores it on the log and writes it to the logger.
func (a *Action) Handle(ctx context.Context, req *protocol.Request) (map[string]any, error) {
	body := webhook.Body(a.config.PayloadMode, req.EventIdentifier, req.Payload, a.factory.now())

	encoded, err := webhook.Encode(body)
	if err != nil {
		return nil, err
	}

	if req.Log != nil {
		req.Log.Payload = body
	}

	attrs := []any{"event", req.EventIdentifier, "body", string(encoded)}
	if req.Action != nil {
		attrs = append(attrs, "action_id", req.Action.ID)
	}

	response := map[string]any{
		protocol.ResponseSuccess: true,
		protocol.ResponseMessage: a.config.Message,
		"body_size":              len(encoded),
	}

	if a.config.Secret != "" {
		signature := webhook.Sign(a.config.Secret, encoded)
		response["signature"] = signature
		attrs = append(attrs, "signature", signature)
	}

	a.factory.logger.Log(ctx, a.config.Level, a.config.Message, attrs...)

	return response, nil
}
