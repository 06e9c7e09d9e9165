package memory

import (
	"context"
	"sync"

	"github.com/artpar/apicore/domain/variable"
	"github.com/artpar/apicore/ports"
)

// VariableStore is an in-memory implementation of ports.VariableStore.
type VariableStore struct {
	mu     sync.RWMutex
	scopes map[variable.Scope]map[string]any
}

// NewVariableStore creates a new in-memory variable store.
func NewVariableStore() *VariableStore {
	return &VariableStore{
		scopes: make(map[variable.Scope]map[string]any),
	}
}

// Load returns every variable of a scope.
func (s *VariableStore) Load(ctx context.Context, scope variable.Scope) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.scopes[scope]))
	for k, v := range s.scopes[scope] {
		out[k] = v
	}
	return out, nil
}

// Set stores or replaces one variable.
func (s *VariableStore) Set(ctx context.Context, scope variable.Scope, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scopes[scope] == nil {
		s.scopes[scope] = make(map[string]any)
	}
	s.scopes[scope][name] = value
	return nil
}

// Delete removes one variable.
func (s *VariableStore) Delete(ctx context.Context, scope variable.Scope, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes[scope], name)
	return nil
}

// Clear removes every variable of a scope.
func (s *VariableStore) Clear(ctx context.Context, scope variable.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes, scope)
	return nil
}

// Ensure interface compliance.
var _ ports.VariableStore = (*VariableStore)(nil)
