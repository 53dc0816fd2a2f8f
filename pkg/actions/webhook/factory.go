// Package webhook delivers event payloads to external HTTP endpoints.
package webhook

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/automata/pkg/credentials"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/sony/gobreaker"
)

type ActionFactory struct {
	logger      *slog.Logger
	client      *http.Client
	credentials *credentials.Factory
	now         func() time.Time
	breakers    sync.Map // action key -> *gobreaker.CircuitBreaker
}

type Option func(*ActionFactory)

// WithCredentials lets actions authenticate through a stored credential.
func WithCredentials(factory *credentials.Factory) Option {
	return func(f *ActionFactory) { f.credentials = factory }
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *ActionFactory) { f.client = client }
}

func WithClock(now func() time.Time) Option {
	return func(f *ActionFactory) { f.now = now }
}

func NewActionFactory(logger *slog.Logger, opts ...Option) *ActionFactory {
	f := &ActionFactory{
		logger: logger.With("module", "webhook_action"),
		client: &http.Client{},
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (*ActionFactory) ID() string {
	return "webhook"
}

func (*ActionFactory) Name() string {
	return "Webhook"
}

func (*ActionFactory) Description() string {
	return "Sends the event payload to an HTTP endpoint, optionally enveloped and signed."
}

// Outbound marks webhooks as needing a signing secret.
func (*ActionFactory) Outbound() bool {
	return true
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":   "string",
				"format": "uri",
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
				"default": "POST",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"payload_mode": map[string]any{
				"type":    "string",
				"enum":    []string{PayloadModeRaw, PayloadModeEnvelope},
				"default": PayloadModeRaw,
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
				"maximum":     maxTimeoutSeconds,
			},
			"signing_secret": map[string]any{
				"type":        "string",
				"description": "Overrides the generated secret used for the " + SignatureHeader + " header",
			},
			"credential_id": map[string]any{
				"type":        "string",
				"description": "API token credential used to authenticate the request",
			},
			"scopes": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"log_success": map[string]any{
				"type":    "boolean",
				"default": false,
			},
		},
		"required": []string{"url"},
	}
}

func (*ActionFactory) Validate(config map[string]any) error {
	_, err := ParseConfig(config)

	return err
}

func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}

	if cfg.CredentialID != "" && f.credentials == nil {
		return nil, fmt.Errorf("%w: credential_id set but no credential store is configured", ErrInvalidConfig)
	}

	return &Action{config: cfg, factory: f}, nil
}

func (f *ActionFactory) breaker(key string) *gobreaker.CircuitBreaker {
	if cb, ok := f.breakers.Load(key); ok {
		return cb.(*gobreaker.CircuitBreaker)
	}

	settings := gobreaker.Settings{
		Name:        "webhook-" + key,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			f.logger.Info("Circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	cb, _ := f.breakers.LoadOrStore(key, gobreaker.NewCircuitBreaker(settings))

	return cb.(*gobreaker.CircuitBreaker)
}
