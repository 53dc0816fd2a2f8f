// Package file provides file-based persistence for triggers, runs and audit trails.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/automata/pkg/persistence"
)

const (
	triggersDir             = "triggers"
	executionsDir           = "executions"
	actionLogsDir           = "action_logs"
	credentialsDir          = "credentials"
	credentialAccessLogsDir = "credential_access_logs"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Every entity is one JSON document under <root>/<kind>/<id>.json.
type Persistence struct {
	store *store

	triggerRepo             *TriggerRepository
	executionRepo           *ExecutionRepository
	actionLogRepo           *ActionLogRepository
	credentialRepo          *CredentialRepository
	credentialAccessLogRepo *CredentialAccessLogRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:                   s,
		triggerRepo:             &TriggerRepository{store: s},
		executionRepo:           &ExecutionRepository{store: s},
		actionLogRepo:           &ActionLogRepository{store: s},
		credentialRepo:          &CredentialRepository{store: s},
		credentialAccessLogRepo: &CredentialAccessLogRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	info, err := os.Stat(fp.store.root)
	if err != nil {
		return fmt.Errorf("file persistence root unavailable: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("file persistence root %s is not a directory", fp.store.root)
	}

	return nil
}

func (fp *Persistence) TriggerRepository() persistence.TriggerRepository {
	return fp.triggerRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) ActionLogRepository() persistence.ActionLogRepository {
	return fp.actionLogRepo
}

func (fp *Persistence) CredentialRepository() persistence.CredentialRepository {
	return fp.credentialRepo
}

func (fp *Persistence) CredentialAccessLogRepository() persistence.CredentialAccessLogRepository {
	return fp.credentialAccessLogRepo
}

// store serializes document access. Read-modify-write sequences hold the lock for their whole span.
type store struct {
	root string
	mu   sync.RWMutex
}

// validateID validates that an identifier is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains path characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func (s *store) path(kind, id string) string {
	return filepath.Join(s.root, kind, id+".json")
}

// read decodes the document into target. It returns fs.ErrNotExist when the document is missing.
func (s *store) read(kind, id string, target any) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	body, err := os.ReadFile(s.path(kind, id)) // #nosec G304 -- id is validated
	if err != nil {
		return err
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return nil
}

func (s *store) write(kind, id string, document any) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Join(s.root, kind), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	return os.WriteFile(s.path(kind, id), data, 0600)
}

func (s *store) remove(kind, id string) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	return os.Remove(s.path(kind, id))
}

func (s *store) exists(kind, id string) bool {
	_, err := os.Stat(s.path(kind, id))

	return err == nil
}

// list decodes every document of a kind. A missing directory yields an empty list.
func list[T any](s *store, kind string) ([]*T, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(s.root, kind)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	documents := make([]*T, 0, len(files))

	for _, file := range files {
		var document T

		err := s.read(kind, strings.TrimSuffix(file, ".json"), &document)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		documents = append(documents, &document)
	}

	return documents, nil
}
