package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"time"

	"github.com/dukex/automata/pkg/models"
)

const defaultClientTimeout = 30 * time.Second

// Factory builds proxies that share stores and transport settings.
type Factory struct {
	credentials CredentialStore
	accessLogs  AccessLogStore
	logger      *slog.Logger
	observer    Observer
	httpClient  *http.Client
	smtpSend    SendFunc
	now         func() time.Time
}

type Option func(*Factory)

func WithObserver(observer Observer) Option {
	return func(f *Factory) { f.observer = observer }
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *Factory) { f.httpClient = client }
}

func WithSMTPSender(send SendFunc) Option {
	return func(f *Factory) { f.smtpSend = send }
}

func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

func NewFactory(credentials CredentialStore, accessLogs AccessLogStore, logger *slog.Logger, opts ...Option) *Factory {
	f := &Factory{
		credentials: credentials,
		accessLogs:  accessLogs,
		logger:      logger.With("module", "credentials"),
		httpClient:  &http.Client{Timeout: defaultClientTimeout},
		smtpSend:    smtp.SendMail,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// For loads the credential and wraps it for the given caller.
func (f *Factory) For(ctx context.Context, credentialID string, access AccessContext) (*Proxy, error) {
	if credentialID == "" {
		return nil, errors.New("credential id is required")
	}

	credential, err := f.credentials.GetByID(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential %s: %w", credentialID, err)
	}

	return f.Wrap(credential, access), nil
}

// Wrap builds a proxy around an already loaded credential.
func (f *Factory) Wrap(credential *models.Credential, access AccessContext) *Proxy {
	return &Proxy{
		credential:  credential,
		access:      access,
		credentials: f.credentials,
		accessLogs:  f.accessLogs,
		observer:    f.observer,
		logger:      f.logger,
		httpClient:  f.httpClient,
		smtpSend:    f.smtpSend,
		now:         f.now,
	}
}
