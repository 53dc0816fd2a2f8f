package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/persistence"
)

// credentialDocument is the on-disk form of a credential. Credential itself refuses to marshal.
type credentialDocument struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Type       models.CredentialType   `json:"type"`
	Status     models.CredentialStatus `json:"status"`
	Secrets    map[string]string       `json:"secrets"`
	Scopes     []string                `json:"scopes"`
	ExpiresAt  *time.Time              `json:"expires_at,omitempty"`
	LastUsedAt *time.Time              `json:"last_used_at,omitempty"`
	LastError  string                  `json:"last_error,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

func newCredentialDocument(c *models.Credential) *credentialDocument {
	return &credentialDocument{
		ID:         c.ID,
		Name:       c.Name,
		Type:       c.Type,
		Status:     c.Status,
		Secrets:    c.Data.Export(),
		Scopes:     c.Scopes,
		ExpiresAt:  c.ExpiresAt,
		LastUsedAt: c.LastUsedAt,
		LastError:  c.LastError,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (d *credentialDocument) credential() *models.Credential {
	return &models.Credential{
		ID:         d.ID,
		Name:       d.Name,
		Type:       d.Type,
		Status:     d.Status,
		Data:       models.NewSecretData(d.Secrets),
		Scopes:     d.Scopes,
		ExpiresAt:  d.ExpiresAt,
		LastUsedAt: d.LastUsedAt,
		LastError:  d.LastError,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type CredentialRepository struct {
	store *store
}

func (cr *CredentialRepository) GetByID(_ context.Context, id string) (*models.Credential, error) {
	cr.store.mu.RLock()
	defer cr.store.mu.RUnlock()

	document, err := cr.load("GetByID", id)
	if err != nil {
		return nil, err
	}

	return document.credential(), nil
}

func (cr *CredentialRepository) Save(_ context.Context, credential *models.Credential) error {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	now := time.Now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}

	credential.UpdatedAt = now

	err := cr.store.write(credentialsDir, credential.ID, newCredentialDocument(credential))
	if err != nil {
		return persistence.NewEntityError("Save", "credential", credential.ID, err)
	}

	return nil
}

func (cr *CredentialRepository) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	return cr.modify("TouchLastUsed", id, func(document *credentialDocument) {
		document.LastUsedAt = &at
	})
}

// MarkError records the failure message and moves the credential to the error status.
func (cr *CredentialRepository) MarkError(_ context.Context, id string, message string) error {
	return cr.modify("MarkError", id, func(document *credentialDocument) {
		document.LastError = message
		if document.Status != models.CredentialStatusRevoked {
			document.Status = models.CredentialStatusError
		}
		document.UpdatedAt = time.Now().UTC()
	})
}

func (cr *CredentialRepository) modify(op, id string, change func(*credentialDocument)) error {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	document, err := cr.load(op, id)
	if err != nil {
		return err
	}

	change(document)

	err = cr.store.write(credentialsDir, id, document)
	if err != nil {
		return persistence.NewEntityError(op, "credential", id, err)
	}

	return nil
}

func (cr *CredentialRepository) load(op, id string) (*credentialDocument, error) {
	var document credentialDocument

	err := cr.store.read(credentialsDir, id, &document)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError(op, "credential", id, persistence.ErrCredentialNotFound)
	}

	if err != nil {
		return nil, persistence.NewEntityError(op, "credential", id, err)
	}

	return &document, nil
}

type CredentialAccessLogRepository struct {
	store *store
}

func (lr *CredentialAccessLogRepository) Append(_ context.Context, entry *models.CredentialAccessLog) error {
	lr.store.mu.Lock()
	defer lr.store.mu.Unlock()

	err := lr.store.write(credentialAccessLogsDir, entry.ID, entry)
	if err != nil {
		return persistence.NewEntityError("Append", "credential access log", entry.ID, err)
	}

	return nil
}

// Update rewrites the outcome fields of an existing entry.
func (lr *CredentialAccessLogRepository) Update(_ context.Context, entry *models.CredentialAccessLog) error {
	lr.store.mu.Lock()
	defer lr.store.mu.Unlock()

	if validateID(entry.ID) == nil && !lr.store.exists(credentialAccessLogsDir, entry.ID) {
		return persistence.NewEntityError("Update", "credential access log", entry.ID, persistence.ErrAccessLogNotFound)
	}

	err := lr.store.write(credentialAccessLogsDir, entry.ID, entry)
	if err != nil {
		return persistence.NewEntityError("Update", "credential access log", entry.ID, err)
	}

	return nil
}

func (lr *CredentialAccessLogRepository) ListByCredential(_ context.Context, credentialID string, limit int) ([]*models.CredentialAccessLog, error) {
	lr.store.mu.RLock()
	defer lr.store.mu.RUnlock()

	entries, err := list[models.CredentialAccessLog](lr.store, credentialAccessLogsDir)
	if err != nil {
		return nil, persistence.NewEntityError("ListByCredential", "credential access log", "", err)
	}

	matched := make([]*models.CredentialAccessLog, 0, len(entries))

	for _, entry := range entries {
		if entry.CredentialID == credentialID {
			matched = append(matched, entry)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return truncate(matched, persistence.Limit(limit)), nil
}
