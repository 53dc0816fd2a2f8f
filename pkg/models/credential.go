package models

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrSerializationRefused is returned by every serialization hook of credential-bearing values.
var ErrSerializationRefused = errors.New("cannot serialize credential-bearing object")

type CredentialType string

const (
	CredentialTypeAPIToken    CredentialType = "api_token"
	CredentialTypeBasicAuth   CredentialType = "basic_auth"
	CredentialTypeOAuth2      CredentialType = "oauth2"
	CredentialTypeBearerToken CredentialType = "bearer_token"
)

type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusRevoked CredentialStatus = "revoked"
	CredentialStatusError   CredentialStatus = "error"
)

// SecretData holds raw secret material. Its values never leave the process through
// encoding/json, encoding/gob, encoding.TextMarshaler, fmt or slog.
type SecretData struct {
	values map[string]string
}

func NewSecretData(values map[string]string) SecretData {
	copied := make(map[string]string, len(values))
	for key, value := range values {
		copied[key] = value
	}

	return SecretData{values: copied}
}

// Value returns the secret stored under key.
func (s SecretData) Value(key string) string {
	return s.values[key]
}

func (s SecretData) Has(key string) bool {
	value, ok := s.values[key]

	return ok && value != ""
}

// Keys returns the sorted names of the stored secrets.
func (s SecretData) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Export returns a copy of the raw values. Only storage backends call it.
func (s SecretData) Export() map[string]string {
	copied := make(map[string]string, len(s.values))
	for key, value := range s.values {
		copied[key] = value
	}

	return copied
}

func (s SecretData) MarshalJSON() ([]byte, error) { return nil, ErrSerializationRefused }
func (s SecretData) MarshalText() ([]byte, error) { return nil, ErrSerializationRefused }
func (s SecretData) GobEncode() ([]byte, error)   { return nil, ErrSerializationRefused }

func (s SecretData) String() string {
	return fmt.Sprintf("SecretData(%d keys)", len(s.values))
}

func (s SecretData) GoString() string { return s.String() }

func (s SecretData) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Credential holds secret material plus its access metadata.
type Credential struct {
	ID         string           `validate:"required"`
	Name       string           `validate:"required"`
	Type       CredentialType   `validate:"required,oneof=api_token basic_auth oauth2 bearer_token"`
	Status     CredentialStatus `validate:"required,oneof=active revoked error"`
	Data       SecretData
	Scopes     []string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

func (c Credential) HasScope(scope string) bool {
	for _, granted := range c.Scopes {
		if granted == scope {
			return true
		}
	}

	return false
}

func (c Credential) MarshalJSON() ([]byte, error) { return nil, ErrSerializationRefused }
func (c Credential) MarshalText() ([]byte, error) { return nil, ErrSerializationRefused }
func (c Credential) GobEncode() ([]byte, error)   { return nil, ErrSerializationRefused }

func (c Credential) String() string {
	return fmt.Sprintf("Credential(id=%s name=%s type=%s status=%s)", c.ID, c.Name, c.Type, c.Status)
}

func (c Credential) GoString() string { return c.String() }

func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.String("name", c.Name),
		slog.String("type", string(c.Type)),
		slog.String("status", string(c.Status)),
	)
}

// View returns the serializable, secret-free representation of the credential.
func (c Credential) View() CredentialView {
	return CredentialView{
		ID:         c.ID,
		Name:       c.Name,
		Type:       c.Type,
		Status:     c.Status,
		Scopes:     c.Scopes,
		SecretKeys: c.Data.Keys(),
		ExpiresAt:  c.ExpiresAt,
		LastUsedAt: c.LastUsedAt,
		LastError:  c.LastError,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

type CredentialView struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Type       CredentialType   `json:"type"`
	Status     CredentialStatus `json:"status"`
	Scopes     []string         `json:"scopes"`
	SecretKeys []string         `json:"secret_keys"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	LastUsedAt *time.Time       `json:"last_used_at,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type CredentialAccessStatus string

const (
	CredentialAccessPending CredentialAccessStatus = "pending"
	CredentialAccessSuccess CredentialAccessStatus = "success"
	CredentialAccessFailed  CredentialAccessStatus = "failed"
	CredentialAccessDenied  CredentialAccessStatus = "denied"
)

// CredentialAccessLog is an append-only record of one credential access attempt.
type CredentialAccessLog struct {
	ID               string                 `json:"id"`
	CredentialID     string                 `json:"credential_id"`
	NodeID           *string                `json:"node_id,omitempty"`
	WorkflowID       *string                `json:"workflow_id,omitempty"`
	Action           string                 `json:"action"`
	Params           map[string]any         `json:"params"`
	Status           CredentialAccessStatus `json:"status"`
	ErrorMessage     *string                `json:"error_message,omitempty"`
	IPAddress        *string                `json:"ip_address,omitempty"`
	UserAgent        *string                `json:"user_agent,omitempty"`
	IsSuspicious     bool                   `json:"is_suspicious"`
	SuspiciousReason *string                `json:"suspicious_reason,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}
