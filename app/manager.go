package app

import (
	"context"
	"errors"

	"github.com/artpar/apicore/core/events"
	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/domain/field"
	"github.com/artpar/apicore/domain/variable"
	"github.com/rs/zerolog"
)

// Manager is the single entry point consumers call through. It composes the
// registry, proxy, field and variable services.
type Manager struct {
	Registry  *RegistryService
	Proxy     *ProxyService
	Fields    *FieldService
	Variables *VariableService

	logger zerolog.Logger
}

// ManagerDeps contains the services a Manager composes.
type ManagerDeps struct {
	Registry  *RegistryService
	Proxy     *ProxyService
	Fields    *FieldService
	Variables *VariableService
	Bus       *events.Bus
}

// NewManager creates a manager and wires the removal cascade on bus.
func NewManager(deps ManagerDeps, logger zerolog.Logger) *Manager {
	m := &Manager{
		Registry:  deps.Registry,
		Proxy:     deps.Proxy,
		Fields:    deps.Fields,
		Variables: deps.Variables,
		logger:    logger.With().Str("service", "manager").Logger(),
	}
	if deps.Bus != nil {
		deps.Bus.Subscribe(events.EndpointRemoved, m.onRemoved)
	}
	return m
}

// onRemoved drops everything derived from a removed endpoint. Both
// cleanups run even when one of them fails.
func (m *Manager) onRemoved(ctx context.Context, ev events.Event) error {
	fieldErr := m.Fields.ClearFields(ctx, ev.Key)
	n, cacheErr := m.Proxy.ClearCache(ctx, ev.Key)
	if err := errors.Join(fieldErr, cacheErr); err != nil {
		return err
	}
	m.logger.Debug().
		Str("endpoint", ev.Key).
		Int("cache_entries", n).
		Msg("removed endpoint state cleared")
	return nil
}

// Call substitutes variables into params, executes the call and shapes the
// returned data with the endpoint's field definitions.
func (m *Manager) Call(ctx context.Context, key string, params map[string]any, opts call.Options) (call.Envelope, error) {
	params = m.substitute(params)

	env, err := m.Proxy.Call(ctx, key, params, opts)
	if err != nil {
		return env, err
	}

	if opts.DetectFields && env.Success && !m.Fields.HasFields(key) {
		if _, err := m.Fields.DetectFields(ctx, key, env.Data, DetectOptions{Persist: true}); err != nil {
			m.logger.Warn().Err(err).Str("endpoint", key).Msg("field detection failed")
		}
	}

	env.Data = m.Fields.TransformData(key, env.Data, field.TransformOptions{VisibleOnly: opts.VisibleOnly})
	return env, nil
}

// BatchCall runs Call for every item. Failures are captured per item.
func (m *Manager) BatchCall(ctx context.Context, items []call.BatchItem, opts call.BatchOptions) []call.BatchResult {
	return RunBatch(ctx, items, opts, m.Call)
}

// Test substitutes variables and dispatches a diagnostic call. Data is
// returned in its raw shape.
func (m *Manager) Test(ctx context.Context, key string, params map[string]any) call.Diagnostic {
	return m.Proxy.Test(ctx, key, m.substitute(params))
}

// GetFields returns the field definitions of an endpoint.
func (m *Manager) GetFields(key string) field.Set {
	return m.Fields.GetFields(key)
}

// DetectFields infers and persists field definitions from sample.
func (m *Manager) DetectFields(ctx context.Context, key string, sample any) (field.Set, error) {
	return m.Fields.DetectFields(ctx, key, sample, DetectOptions{Persist: true})
}

func (m *Manager) substitute(params map[string]any) map[string]any {
	if m.Variables == nil {
		return params
	}
	return variable.ReplaceParams(params, m.Variables.Get)
}
