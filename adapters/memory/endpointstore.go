// Package memory provides in-memory implementations for testing and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/artpar/apicore/domain/endpoint"
	"github.com/artpar/apicore/ports"
)

// EndpointStore is an in-memory implementation of ports.RemoteEndpointStore
// and ports.LocalEndpointCache. Errors can be injected to exercise fallback paths.
type EndpointStore struct {
	mu      sync.RWMutex
	data    endpoint.Collection
	loadErr error
	saveErr error
	saves   int
}

// NewEndpointStore creates a store seeded with the given endpoints.
func NewEndpointStore(seed ...endpoint.Endpoint) *EndpointStore {
	s := &EndpointStore{data: make(endpoint.Collection)}
	for _, e := range seed {
		s.data[e.Key] = e
	}
	return s
}

// GetAll returns the stored collection.
func (s *EndpointStore) GetAll(ctx context.Context) (endpoint.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.data.Clone(), nil
}

// Save replaces the stored collection.
func (s *EndpointStore) Save(ctx context.Context, c endpoint.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data = c.Clone()
	return nil
}

// Load is GetAll under the LocalEndpointCache name.
func (s *EndpointStore) Load(ctx context.Context) (endpoint.Collection, error) {
	return s.GetAll(ctx)
}

// Store is Save under the LocalEndpointCache name.
func (s *EndpointStore) Store(ctx context.Context, c endpoint.Collection) error {
	return s.Save(ctx, c)
}

// FailLoads makes subsequent loads return err (nil restores normal behavior).
func (s *EndpointStore) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// FailSaves makes subsequent saves return err (nil restores normal behavior).
func (s *EndpointStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns how many saves were attempted.
func (s *EndpointStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Snapshot returns the stored collection regardless of injected errors.
func (s *EndpointStore) Snapshot() endpoint.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Ensure interface compliance.
var (
	_ ports.RemoteEndpointStore = (*EndpointStore)(nil)
	_ ports.LocalEndpointCache  = (*EndpointStore)(nil)
)
