package memory

import (
	"context"
	"sync"

	"github.com/artpar/apicore/domain/field"
	"github.com/artpar/apicore/ports"
)

// FieldStore is an in-memory implementation of ports.FieldStore.
type FieldStore struct {
	mu        sync.RWMutex
	sets      map[string]field.Set
	deleteErr error
}

// NewFieldStore creates a new in-memory field store.
func NewFieldStore() *FieldStore {
	return &FieldStore{
		sets: make(map[string]field.Set),
	}
}

// LoadAll returns every endpoint's field set.
func (s *FieldStore) LoadAll(ctx context.Context) (map[string]field.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]field.Set, len(s.sets))
	for k, set := range s.sets {
		out[k] = set.Clone()
	}
	return out, nil
}

// Save replaces the field set of an endpoint.
func (s *FieldStore) Save(ctx context.Context, endpointKey string, set field.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[endpointKey] = set.Clone()
	return nil
}

// Delete removes the field set of an endpoint.
func (s *FieldStore) Delete(ctx context.Context, endpointKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.sets, endpointKey)
	return nil
}

// FailDeletes makes subsequent deletes return err (nil restores normal behavior).
func (s *FieldStore) FailDeletes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr = err
}

// Ensure interface compliance.
var _ ports.FieldStore = (*FieldStore)(nil)
