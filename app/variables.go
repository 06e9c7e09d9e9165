package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/artpar/apicore/domain/variable"
	"github.com/artpar/apicore/ports"
	"github.com/rs/zerolog"
)

// ErrImmutableScope is returned when a mutation targets the env scope.
var ErrImmutableScope = errors.New("env variables are read-only")

// VariableService stores scoped variables and resolves ${name} templates.
type VariableService struct {
	store  ports.VariableStore
	logger zerolog.Logger

	mu     sync.RWMutex
	scopes map[variable.Scope]map[string]any
}

// NewVariableService creates a variable service. The env scope is computed
// from host once and never changes afterwards. store may be nil, in which
// case global and user variables live in memory only.
func NewVariableService(store ports.VariableStore, host variable.HostInfo, logger zerolog.Logger) *VariableService {
	return &VariableService{
		store:  store,
		logger: logger.With().Str("service", "variables").Logger(),
		scopes: map[variable.Scope]map[string]any{
			variable.ScopeEnv:     host.Env(),
			variable.ScopeGlobal:  {},
			variable.ScopeUser:    {},
			variable.ScopeSession: {},
		},
	}
}

// Load reads the durable scopes from the store.
func (s *VariableService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	for _, scope := range []variable.Scope{variable.ScopeGlobal, variable.ScopeUser} {
		vars, err := s.store.Load(ctx, scope)
		if err != nil {
			return fmt.Errorf("load %s variables: %w", scope, err)
		}
		s.mu.Lock()
		for name, v := range vars {
			s.scopes[scope][name] = v
		}
		s.mu.Unlock()
	}
	return nil
}

// Get resolves name in precedence order. The first scope that defines the
// name wins, whatever its value.
func (s *VariableService) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, scope := range variable.Precedence() {
		if v, ok := s.scopes[scope][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// GetIn looks name up in one scope only.
func (s *VariableService) GetIn(scope variable.Scope, name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.scopes[scope][name]
	return v, ok
}

// Set stores a variable. Durable scopes are written through to the store.
func (s *VariableService) Set(ctx context.Context, scope variable.Scope, name string, value any) error {
	if err := s.checkMutable(scope); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("variable name is required")
	}

	s.mu.Lock()
	s.scopes[scope][name] = value
	s.mu.Unlock()

	if scope.Durable() && s.store != nil {
		if err := s.store.Set(ctx, scope, name, value); err != nil {
			return fmt.Errorf("save variable %s: %w", name, err)
		}
	}
	return nil
}

// Remove deletes a variable from a scope.
func (s *VariableService) Remove(ctx context.Context, scope variable.Scope, name string) error {
	if err := s.checkMutable(scope); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.scopes[scope], name)
	s.mu.Unlock()

	if scope.Durable() && s.store != nil {
		if err := s.store.Delete(ctx, scope, name); err != nil {
			return fmt.Errorf("delete variable %s: %w", name, err)
		}
	}
	return nil
}

// Clear deletes every variable of a scope.
func (s *VariableService) Clear(ctx context.Context, scope variable.Scope) error {
	if err := s.checkMutable(scope); err != nil {
		return err
	}

	s.mu.Lock()
	s.scopes[scope] = map[string]any{}
	s.mu.Unlock()

	if scope.Durable() && s.store != nil {
		if err := s.store.Clear(ctx, scope); err != nil {
			return fmt.Errorf("clear %s variables: %w", scope, err)
		}
	}
	return nil
}

// EndSession drops the session scope.
func (s *VariableService) EndSession() {
	s.mu.Lock()
	n := len(s.scopes[variable.ScopeSession])
	s.scopes[variable.ScopeSession] = map[string]any{}
	s.mu.Unlock()

	s.logger.Debug().Int("variables", n).Msg("session ended")
}

// All returns a copy of one scope.
func (s *VariableService) All(scope variable.Scope) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.scopes[scope]))
	for k, v := range s.scopes[scope] {
		out[k] = v
	}
	return out
}

// ReplaceVariables substitutes ${name} tokens in str. Unresolved tokens stay.
func (s *VariableService) ReplaceVariables(str string) string {
	return variable.Replace(str, s.Get)
}

// ReplaceObjectVariables substitutes tokens in every string leaf of v.
func (s *VariableService) ReplaceObjectVariables(v any) any {
	return variable.ReplaceObject(v, s.Get)
}

func (s *VariableService) checkMutable(scope variable.Scope) error {
	if !scope.Mutable() {
		return ErrImmutableScope
	}
	s.mu.RLock()
	_, ok := s.scopes[scope]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown variable scope %q", scope)
	}
	return nil
}
