// Package credentials mediates every use of stored secrets by action handlers.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/automata/pkg/models"
	"github.com/google/uuid"
)

const (
	ActionGetAPIClient   = "get_api_client"
	ActionGetSMTPClient  = "get_smtp_client"
	ActionGetHTTPClient  = "get_http_client"
	ActionGetOAuthClient = "get_oauth_client"
)

var actionScopes = map[string]string{
	ActionGetAPIClient:   "api.request",
	ActionGetSMTPClient:  "smtp.send",
	ActionGetHTTPClient:  "http.request",
	ActionGetOAuthClient: "oauth.request",
}

var actionTypes = map[string]models.CredentialType{
	ActionGetAPIClient:   models.CredentialTypeAPIToken,
	ActionGetSMTPClient:  models.CredentialTypeBasicAuth,
	ActionGetHTTPClient:  models.CredentialTypeBasicAuth,
	ActionGetOAuthClient: models.CredentialTypeOAuth2,
}

// RequiredScope returns the scope an action needs.
func RequiredScope(action string) (string, bool) {
	scope, ok := actionScopes[action]

	return scope, ok
}

// CredentialStore loads credentials and records their advisory state.
// MarkError records the last error and moves the credential to the error status, except
// that a revoked credential stays revoked.
type CredentialStore interface {
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	MarkError(ctx context.Context, id string, message string) error
}

// AccessLogStore is the append-only access audit trail.
type AccessLogStore interface {
	Append(ctx context.Context, entry *models.CredentialAccessLog) error
	Update(ctx context.Context, entry *models.CredentialAccessLog) error
}

// Observer is notified of every finished access attempt.
type Observer interface {
	CredentialAccess(action string, status models.CredentialAccessStatus)
}

// AccessContext identifies who is asking for a credential and what they may do with it.
// An empty AllowedScopes permits every action.
type AccessContext struct {
	Caller        string
	NodeID        string
	WorkflowID    string
	IPAddress     string
	UserAgent     string
	AllowedScopes []string
}

func (a AccessContext) allows(scope string) bool {
	if len(a.AllowedScopes) == 0 {
		return true
	}

	for _, allowed := range a.AllowedScopes {
		if allowed == scope {
			return true
		}
	}

	return false
}

// Proxy gives controlled, audited use of one credential to one caller.
type Proxy struct {
	credential  *models.Credential
	access      AccessContext
	credentials CredentialStore
	accessLogs  AccessLogStore
	observer    Observer
	logger      *slog.Logger
	httpClient  *http.Client
	smtpSend    SendFunc
	now         func() time.Time
}

// Execute runs action against the credential. The attempt is written to the access log
// before anything else happens.
func (p *Proxy) Execute(ctx context.Context, action string, params map[string]any) (any, error) {
	entry := p.newEntry(action, params)

	err := p.authorize(action)
	if err != nil {
		message := err.Error()
		entry.ErrorMessage = &message

		if IsUnsupportedAction(err) {
			entry.Status = models.CredentialAccessFailed
		} else {
			entry.Status = models.CredentialAccessDenied
			p.flag(entry, message)
		}

		appendErr := p.accessLogs.Append(ctx, entry)
		if appendErr != nil {
			p.logger.ErrorContext(ctx, "failed to record denied credential access", "error", appendErr)
		}

		p.observe(action, entry.Status)

		return nil, err
	}

	err = p.accessLogs.Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to record credential access: %w", err)
	}

	client, err := p.invoke(action, params)
	if err != nil {
		p.fail(ctx, entry, err)

		return nil, err
	}

	now := p.now()

	err = p.credentials.TouchLastUsed(ctx, p.credential.ID, now)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to update credential last use", "credential", p.credential.ID, "error", err)
	}

	entry.Status = models.CredentialAccessSuccess

	err = p.accessLogs.Update(ctx, entry)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to update credential access log", "error", err)
	}

	p.observe(action, entry.Status)

	return client, nil
}

func (p *Proxy) authorize(action string) error {
	scope, ok := actionScopes[action]
	if !ok {
		return &UnsupportedActionError{Action: action}
	}

	if !p.access.allows(scope) {
		return &UnauthorizedAccessError{
			Credential: p.credential.Name,
			Caller:     p.access.Caller,
			Reason:     fmt.Sprintf("scope %q is not granted", scope),
		}
	}

	return nil
}

func (p *Proxy) invoke(action string, params map[string]any) (any, error) {
	required := actionTypes[action]
	if p.credential.Type != required {
		return nil, &UnsupportedActionError{Action: action, CredentialType: p.credential.Type}
	}

	switch {
	case p.credential.Status == models.CredentialStatusRevoked:
		return nil, fmt.Errorf("%w: %s", ErrCredentialRevoked, p.credential.Name)
	case p.credential.IsExpired(p.now()):
		return nil, fmt.Errorf("%w: %s", ErrCredentialExpired, p.credential.Name)
	}

	data := p.credential.Data

	switch action {
	case ActionGetAPIClient:
		if !data.Has("token") {
			return nil, fmt.Errorf("%w: token", ErrMissingSecret)
		}

		header := stringParam(params, "header", data.Value("header"))
		scheme := "Bearer"

		if header == "" {
			header = "Authorization"
		} else if header != "Authorization" {
			scheme = ""
		}

		return &APIClient{
			credentialID: p.credential.ID,
			baseURL:      stringParam(params, "base_url", data.Value("base_url")),
			header:       header,
			scheme:       scheme,
			token:        data.Value("token"),
			http:         p.httpClient,
		}, nil
	case ActionGetSMTPClient:
		if !data.Has("host") || !data.Has("username") || !data.Has("password") {
			return nil, fmt.Errorf("%w: host, username and password", ErrMissingSecret)
		}

		port := data.Value("port")
		if port == "" {
			port = "587"
		}

		return &SMTPClient{
			credentialID: p.credential.ID,
			host:         data.Value("host"),
			port:         port,
			from:         stringParam(params, "from", data.Value("from")),
			username:     data.Value("username"),
			password:     data.Value("password"),
			send:         p.smtpSend,
		}, nil
	case ActionGetHTTPClient:
		if !data.Has("username") {
			return nil, fmt.Errorf("%w: username", ErrMissingSecret)
		}

		return &HTTPClient{
			credentialID: p.credential.ID,
			username:     data.Value("username"),
			password:     data.Value("password"),
			http:         p.httpClient,
		}, nil
	default:
		if !data.Has("access_token") {
			return nil, fmt.Errorf("%w: access_token", ErrMissingSecret)
		}

		tokenType := data.Value("token_type")
		if tokenType == "" {
			tokenType = "Bearer"
		}

		return &OAuthClient{
			credentialID: p.credential.ID,
			clientID:     data.Value("client_id"),
			tokenType:    tokenType,
			accessToken:  data.Value("access_token"),
			http:         p.httpClient,
		}, nil
	}
}

func (p *Proxy) fail(ctx context.Context, entry *models.CredentialAccessLog, cause error) {
	message := cause.Error()

	if isStateError(cause) {
		p.flag(entry, message)
	}

	err := p.credentials.MarkError(ctx, p.credential.ID, message)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to record credential error", "credential", p.credential.ID, "error", err)
	}

	entry.Status = models.CredentialAccessFailed
	entry.ErrorMessage = &message

	err = p.accessLogs.Update(ctx, entry)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to update credential access log", "error", err)
	}

	p.observe(entry.Action, entry.Status)
}

func (p *Proxy) newEntry(action string, params map[string]any) *models.CredentialAccessLog {
	return &models.CredentialAccessLog{
		ID:           uuid.NewString(),
		CredentialID: p.credential.ID,
		NodeID:       optional(p.access.NodeID),
		WorkflowID:   optional(p.access.WorkflowID),
		Action:       action,
		Params:       Redact(params),
		Status:       models.CredentialAccessPending,
		IPAddress:    optional(p.access.IPAddress),
		UserAgent:    optional(p.access.UserAgent),
		CreatedAt:    p.now(),
	}
}

func (p *Proxy) flag(entry *models.CredentialAccessLog, reason string) {
	entry.IsSuspicious = true
	entry.SuspiciousReason = &reason
}

func (p *Proxy) observe(action string, status models.CredentialAccessStatus) {
	if p.observer != nil {
		p.observer.CredentialAccess(action, status)
	}
}

func (p *Proxy) MarshalJSON() ([]byte, error) { return nil, ErrSerializationRefused }
func (p *Proxy) MarshalText() ([]byte, error) { return nil, ErrSerializationRefused }
func (p *Proxy) GobEncode() ([]byte, error)   { return nil, ErrSerializationRefused }

func (p *Proxy) String() string {
	return fmt.Sprintf("CredentialProxy(credential=%s name=%s caller=%s)", p.credential.ID, p.credential.Name, p.access.Caller)
}

func (p *Proxy) GoString() string { return p.String() }

// Format renders every verb as String so %+v and %#v cannot walk into the credential.
func (p *Proxy) Format(state fmt.State, _ rune) {
	_, _ = io.WriteString(state, p.String())
}

func (p *Proxy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("credential_id", p.credential.ID),
		slog.String("credential_name", p.credential.Name),
		slog.String("caller", p.access.Caller),
	)
}

func isStateError(err error) bool {
	return errors.Is(err, ErrCredentialRevoked) || errors.Is(err, ErrCredentialExpired)
}

func stringParam(params map[string]any, key, fallback string) string {
	if value, ok := params[key].(string); ok && value != "" {
		return value
	}

	return fallback
}

func optional(value string) *string {
	if value == "" {
		return nil
	}

	return &value
}
