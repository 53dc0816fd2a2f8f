// Package email sends templated mail through an SMTP credential.
package email

import (
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/dukex/automata/pkg/credentials"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/dukex/automata/pkg/template"
)

var ErrInvalidConfig = errors.New("invalid email configuration")

type config struct {
	CredentialID string
	To           []string
	From         string
	Subject      string
	Body         string
	Scopes       []string
}

type ActionFactory struct {
	logger      *slog.Logger
	credentials *credentials.Factory
}

func NewActionFactory(logger *slog.Logger, credentialFactory *credentials.Factory) *ActionFactory {
	return &ActionFactory{
		logger:      logger.With("module", "email_action"),
		credentials: credentialFactory,
	}
}

func (*ActionFactory) ID() string {
	return "email"
}

func (*ActionFactory) Name() string {
	return "Email"
}

func (*ActionFactory) Description() string {
	return "Renders a subject and body from the event and mails them using an SMTP credential."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"credential_id": map[string]any{
				"type":        "string",
				"description": "basic_auth credential holding host, port, username, password and from",
			},
			"to": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "format": "email"},
			},
			"from": map[string]any{
				"type":   "string",
				"format": "email",
			},
			"subject": map[string]any{
				"type":     "string",
				"format":   "template",
				"examples": []string{"Order {{ .id }} is {{ .status }}"},
			},
			"body": map[string]any{
				"type":     "string",
				"format":   "template",
				"examples": []string{"{{ json .data }}"},
			},
			"scopes": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"credential_id", "to", "subject"},
	}
}

func (*ActionFactory) Validate(config map[string]any) error {
	_, err := parseConfig(config)

	return err
}

func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	cfg, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	if f.credentials == nil {
		return nil, fmt.Errorf("%w: no credential store is configured", ErrInvalidConfig)
	}

	return &Action{config: cfg, factory: f}, nil
}

func parseConfig(raw map[string]any) (*config, error) {
	cfg := &config{}

	cfg.CredentialID, _ = raw["credential_id"].(string)
	if cfg.CredentialID == "" {
		return nil, fmt.Errorf("%w: credential_id is required", ErrInvalidConfig)
	}

	cfg.To = list(raw["to"])
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrInvalidConfig)
	}

	for _, recipient := range cfg.To {
		_, err := mail.ParseAddress(recipient)
		if err != nil {
			return nil, fmt.Errorf("%w: recipient %q: %w", ErrInvalidConfig, recipient, err)
		}
	}

	cfg.From, _ = raw["from"].(string)
	if cfg.From != "" {
		_, err := mail.ParseAddress(cfg.From)
		if err != nil {
			return nil, fmt.Errorf("%w: from: %w", ErrInvalidConfig, err)
		}
	}

	cfg.Subject, _ = raw["subject"].(string)
	if cfg.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidConfig)
	}

	cfg.Body, _ = raw["body"].(string)
	if cfg.Body == "" {
		cfg.Body = "{{ json .data }}"
	}

	cfg.Scopes = list(raw["scopes"])

	for _, tmpl := range []string{cfg.Subject, cfg.Body} {
		err := template.Parse(tmpl)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	return cfg, nil
}

func list(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				items = append(items, s)
			}
		}

		return items
	case string:
		if v == "" {
			return nil
		}

		items := strings.Split(v, ",")
		for i := range items {
			items[i] = strings.TrimSpace(items[i])
		}

		return items
	default:
		return nil
	}
}
