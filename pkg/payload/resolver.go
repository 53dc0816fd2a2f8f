package payload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrEntityNotFound = errors.New("entity not found")

// EntityResolver loads related records for relation expansion.
type EntityResolver interface {
	Find(ctx context.Context, model, id string) (map[string]any, error)
	FindRelated(ctx context.Context, model, foreignKey, id string) ([]map[string]any, error)
}

// MemoryResolver is an in-process EntityResolver backed by maps.
type MemoryResolver struct {
	mu      sync.RWMutex
	records map[string]map[string]map[string]any
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{records: make(map[string]map[string]map[string]any)}
}

// Add stores record for model under id, replacing any previous record.
func (r *MemoryResolver) Add(model, id string, record map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.records[model] == nil {
		r.records[model] = make(map[string]map[string]any)
	}

	r.records[model][id] = cloneMap(record)
}

func (r *MemoryResolver) Find(_ context.Context, model, id string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[model][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrEntityNotFound, model, id)
	}

	return cloneMap(record), nil
}

func (r *MemoryResolver) FindRelated(_ context.Context, model, foreignKey, id string) ([]map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.records[model]))
	for recordID, record := range r.records[model] {
		if stringify(record[foreignKey]) == id {
			ids = append(ids, recordID)
		}
	}

	sort.Strings(ids)

	related := make([]map[string]any, 0, len(ids))
	for _, recordID := range ids {
		related = append(related, cloneMap(r.records[model][recordID]))
	}

	return related, nil
}
