package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/domain/field"
	"github.com/artpar/apicore/ports"
	"github.com/rs/zerolog"
)

// FieldService manages per-endpoint field definitions.
type FieldService struct {
	store  ports.FieldStore
	hooks  *HookService
	clock  ports.Clock
	logger zerolog.Logger

	mu   sync.RWMutex
	sets map[string]field.Set
}

// DetectOptions control DetectFields.
type DetectOptions struct {
	// Persist saves the merged set.
	Persist bool
}

// NewFieldService creates a field service backed by store.
func NewFieldService(store ports.FieldStore, hooks *HookService, clock ports.Clock, logger zerolog.Logger) *FieldService {
	if hooks == nil {
		hooks = NewHookService()
	}
	return &FieldService{
		store:  store,
		hooks:  hooks,
		clock:  clock,
		logger: logger.With().Str("service", "fields").Logger(),
		sets:   make(map[string]field.Set),
	}
}

// Load reads every stored field set into memory.
func (s *FieldService) Load(ctx context.Context) error {
	sets, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load field definitions: %w", err)
	}

	s.mu.Lock()
	for k, set := range sets {
		s.sets[k] = set
	}
	s.mu.Unlock()

	s.logger.Debug().Int("endpoints", len(sets)).Msg("field definitions loaded")
	return nil
}

// GetFields returns the field set of an endpoint (empty if none).
func (s *FieldService) GetFields(key string) field.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets[key].Clone()
}

// HasFields reports whether an endpoint has any field definitions.
func (s *FieldService) HasFields(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets[key]) > 0
}

// SetFields replaces the field set of an endpoint.
func (s *FieldService) SetFields(ctx context.Context, key string, set field.Set) error {
	for k, def := range set {
		if err := checkDefinition(k, def); err != nil {
			return err
		}
	}
	normalized := make(field.Set, len(set))
	for k, def := range set {
		def.Key = k
		if def.Label == "" {
			def.Label = k
		}
		normalized[k] = def
	}
	return s.mutate(ctx, key, func(field.Set) field.Set { return normalized })
}

// AddField adds or replaces one field definition.
func (s *FieldService) AddField(ctx context.Context, key string, def field.Definition) error {
	if err := checkDefinition(def.Key, def); err != nil {
		return err
	}
	if def.Label == "" {
		def.Label = def.Key
	}
	return s.mutate(ctx, key, func(set field.Set) field.Set {
		set[def.Key] = def
		return set
	})
}

// RemoveField removes one field definition.
func (s *FieldService) RemoveField(ctx context.Context, key, fieldKey string) error {
	return s.mutate(ctx, key, func(set field.Set) field.Set {
		delete(set, fieldKey)
		return set
	})
}

// ClearFields removes every field definition of an endpoint.
func (s *FieldService) ClearFields(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.sets, key)
	s.mu.Unlock()

	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete field definitions: %w", err)
	}
	return nil
}

// DetectFields infers definitions for the properties of sample that are not
// defined yet. Existing definitions are kept as they are. It returns the
// merged set.
func (s *FieldService) DetectFields(ctx context.Context, key string, sample any, opts DetectOptions) (field.Set, error) {
	s.mu.Lock()
	merged, added := field.Detect(s.sets[key], sample)
	if len(added) > 0 {
		s.sets[key] = merged
	}
	s.mu.Unlock()

	if len(added) > 0 {
		sort.Strings(added)
		s.logger.Debug().
			Str("endpoint", key).
			Strs("fields", added).
			Msg("fields detected")
	}

	if opts.Persist && len(added) > 0 {
		if err := s.store.Save(ctx, key, merged); err != nil {
			return merged, fmt.Errorf("save field definitions: %w", err)
		}
	}
	return merged.Clone(), nil
}

// TransformData shapes data with the endpoint's field definitions. Without
// definitions the data is returned unchanged.
func (s *FieldService) TransformData(key string, data any, opts field.TransformOptions) any {
	set := s.GetFields(key)
	if len(set) == 0 {
		return data
	}
	if opts.Now == nil && s.clock != nil {
		opts.Now = s.clock.Now
	}
	return field.Transform(set, data, opts)
}

// ValidateRecord evaluates each field validator against the record's value.
func (s *FieldService) ValidateRecord(key string, record map[string]any) error {
	set := s.GetFields(key)

	var failed []string
	for _, k := range set.Keys() {
		def := set[k]
		if def.Validator == "" {
			continue
		}
		ok, err := s.hooks.EvalBool(def.Validator, map[string]any{
			"value":  record[k],
			"record": record,
		})
		if err != nil || !ok {
			failed = append(failed, k)
		}
	}

	if len(failed) > 0 {
		return call.Validation(key, "invalid fields: "+strings.Join(failed, ", "))
	}
	return nil
}

func (s *FieldService) mutate(ctx context.Context, key string, fn func(field.Set) field.Set) error {
	s.mu.Lock()
	next := fn(s.sets[key].Clone())
	s.sets[key] = next
	s.mu.Unlock()

	if err := s.store.Save(ctx, key, next); err != nil {
		return fmt.Errorf("save field definitions: %w", err)
	}
	return nil
}

func checkDefinition(key string, def field.Definition) error {
	if key == "" {
		return fmt.Errorf("field key is required")
	}
	if def.Type != "" && !def.Type.Valid() {
		return fmt.Errorf("field %s: unknown type %q", key, def.Type)
	}
	return nil
}
