// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/apicore/core/events"
	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/domain/endpoint"
	"github.com/artpar/apicore/ports"
	"github.com/rs/zerolog"
)

// ErrNotReady is returned by WaitForReady when hydration does not finish in time.
var ErrNotReady = errors.New("endpoint registry not ready")

// RegistryService manages endpoint definitions: in-memory CRUD, hydration
// from the remote store, and apply-then-persist durability.
type RegistryService struct {
	remote   ports.RemoteEndpointStore // optional; nil = local-only
	local    ports.LocalEndpointCache
	bus      *events.Bus
	clock    ports.Clock
	observer ports.CallObserver
	logger   zerolog.Logger

	mu        sync.RWMutex
	endpoints endpoint.Collection

	// Until hydration completes, writes are held back so a partial snapshot
	// never replaces the stored collection.
	ready    atomic.Bool
	deferred []*Persistence
	hydrated chan struct{}

	// Persistence writes are serialized; each writes the latest snapshot.
	persistMu      sync.Mutex
	persistTimeout time.Duration
	pending        sync.WaitGroup

	pollInterval time.Duration
}

// RegistryDeps contains dependencies for RegistryService.
type RegistryDeps struct {
	Remote   ports.RemoteEndpointStore
	Local    ports.LocalEndpointCache
	Bus      *events.Bus
	Clock    ports.Clock
	Observer ports.CallObserver
}

// RegistryConfig contains configuration for RegistryService.
type RegistryConfig struct {
	PollInterval   time.Duration // WaitForReady poll tick
	PersistTimeout time.Duration // bound on one background write
}

// NewRegistryService creates a registry in the loading state.
func NewRegistryService(deps RegistryDeps, logger zerolog.Logger, cfg RegistryConfig) *RegistryService {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.PersistTimeout == 0 {
		cfg.PersistTimeout = 30 * time.Second
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	return &RegistryService{
		remote:         deps.Remote,
		local:          deps.Local,
		bus:            deps.Bus,
		clock:          deps.Clock,
		observer:       deps.Observer,
		logger:         logger.With().Str("service", "registry").Logger(),
		endpoints:      make(endpoint.Collection),
		hydrated:       make(chan struct{}),
		persistTimeout: cfg.PersistTimeout,
		pollInterval:   cfg.PollInterval,
	}
}

// Start hydrates the registry in the background.
func (s *RegistryService) Start(ctx context.Context) {
	go func() {
		if err := s.Hydrate(ctx); err != nil {
			s.logger.Error().Err(err).Msg("hydration failed")
		}
	}()
}

// Hydrate loads definitions from the remote store, falling back to the local
// cache, and persists an empty collection when both are empty. Keys
// registered before hydration completes are kept over hydrated ones, and
// their writes are made here as one merged snapshot.
// The registry is ready afterwards even if loading failed.
func (s *RegistryService) Hydrate(ctx context.Context) error {
	loaded, source, err := s.load(ctx)
	if err != nil {
		s.finishHydration(ctx, false)
		return err
	}

	s.mu.Lock()
	skipped := 0
	for key, e := range loaded {
		if _, exists := s.endpoints[key]; exists {
			skipped++
			continue
		}
		e.Key = key
		s.endpoints[key] = e.WithDefaults()
	}
	s.mu.Unlock()

	if len(loaded) == 0 {
		s.logger.Info().Msg("no stored endpoints, persisting collection")
		s.finishHydration(ctx, true)
		return nil
	}

	s.logger.Info().
		Str("source", source).
		Int("endpoints", len(loaded)).
		Int("skipped", skipped).
		Msg("registry hydrated")

	if !s.finishHydration(ctx, false) && source == "remote" {
		s.storeLocal(ctx)
	}
	return nil
}

// finishHydration marks the registry ready and writes the merged snapshot
// when forced or when mutations were held back while loading. It reports
// whether a write happened.
func (s *RegistryService) finishHydration(ctx context.Context, force bool) bool {
	s.mu.Lock()
	waiting := s.deferred
	s.deferred = nil
	first := !s.ready.Load()
	s.ready.Store(true)
	s.mu.Unlock()
	if first {
		close(s.hydrated)
	}

	if !force && len(waiting) == 0 {
		return false
	}

	s.pending.Add(1)
	ok := s.persist(ctx)
	s.pending.Done()
	for _, p := range waiting {
		p.resolve(ok)
	}
	return true
}

func (s *RegistryService) load(ctx context.Context) (endpoint.Collection, string, error) {
	if s.remote != nil {
		c, err := s.remote.GetAll(ctx)
		if err == nil && len(c) > 0 {
			return c, "remote", nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("remote endpoint store unavailable, using local cache")
		}
	}
	if s.local == nil {
		return nil, "none", nil
	}
	c, err := s.local.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("local endpoint cache unavailable")
		return nil, "local", nil
	}
	return c, "local", nil
}

// IsReady reports whether hydration has completed.
func (s *RegistryService) IsReady() bool {
	return s.ready.Load()
}

// WaitForReady polls until hydration completes, timeout elapses, or ctx ends.
func (s *RegistryService) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if s.IsReady() {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if s.IsReady() {
				return nil
			}
			return ErrNotReady
		case <-ticker.C:
			if s.IsReady() {
				return nil
			}
		}
	}
}

// Register stores a definition under key, replacing any previous one.
// The in-memory change is immediate; the returned Persistence resolves when
// the write has been attempted.
func (s *RegistryService) Register(ctx context.Context, key string, e endpoint.Endpoint) (*Persistence, error) {
	e.Key = key
	if err := e.Validate(); err != nil {
		return nil, err
	}
	e = e.WithDefaults().Clone()

	now := s.clock.Now()
	s.mu.Lock()
	if prev, ok := s.endpoints[key]; ok && !prev.CreatedAt.IsZero() {
		e.CreatedAt = prev.CreatedAt
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.endpoints[key] = e
	held := s.holdLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("endpoint", key).Msg("endpoint registered")
	s.publish(ctx, events.EndpointRegistered, e)

	if held != nil {
		return held, nil
	}
	return s.persistAsync(), nil
}

// Update shallow-merges patch into the definition stored under key.
func (s *RegistryService) Update(ctx context.Context, key string, patch endpoint.Patch) (*Persistence, error) {
	s.mu.Lock()
	current, ok := s.endpoints[key]
	if !ok {
		s.mu.Unlock()
		return nil, call.NotFound(key)
	}
	next := current.Apply(patch)
	next.Key = key
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next = next.WithDefaults().Clone()
	next.UpdatedAt = s.clock.Now()
	s.endpoints[key] = next
	held := s.holdLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("endpoint", key).Msg("endpoint updated")
	s.publish(ctx, events.EndpointUpdated, next)

	if held != nil {
		return held, nil
	}
	return s.persistAsync(), nil
}

// Remove deletes the definition stored under key and persists the removal.
// If the write does not reach the remote store the definition is restored
// and false is returned. Dependents are notified only on success.
// While the registry is loading, Remove waits for hydration or ctx.
func (s *RegistryService) Remove(ctx context.Context, key string) (bool, error) {
	if !s.IsReady() {
		select {
		case <-s.hydrated:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	s.mu.Lock()
	removed, ok := s.endpoints[key]
	if !ok {
		s.mu.Unlock()
		return false, call.NotFound(key)
	}
	delete(s.endpoints, key)
	s.mu.Unlock()

	s.pending.Add(1)
	persisted := s.persist(ctx)
	s.pending.Done()

	if !persisted {
		s.mu.Lock()
		if _, exists := s.endpoints[key]; !exists {
			s.endpoints[key] = removed
		}
		s.mu.Unlock()
		s.storeLocal(ctx)

		s.logger.Warn().Str("endpoint", key).Msg("removal not persisted, endpoint restored")
		return false, nil
	}

	s.logger.Debug().Str("endpoint", key).Msg("endpoint removed")
	s.publish(ctx, events.EndpointRemoved, removed)
	return true, nil
}

// Get returns the definition stored under key.
func (s *RegistryService) Get(key string) (endpoint.Endpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.endpoints[key]
	if !ok {
		return endpoint.Endpoint{}, false
	}
	return e.Clone(), true
}

// GetAll returns every definition ordered by key.
func (s *RegistryService) GetAll() []endpoint.Endpoint {
	return s.filter(func(endpoint.Endpoint) bool { return true })
}

// GetByCategory returns the definitions in a category ordered by key.
func (s *RegistryService) GetByCategory(category string) []endpoint.Endpoint {
	return s.filter(func(e endpoint.Endpoint) bool { return e.Category == category })
}

func (s *RegistryService) filter(keep func(endpoint.Endpoint) bool) []endpoint.Endpoint {
	s.mu.RLock()
	out := make([]endpoint.Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close waits for outstanding background writes.
func (s *RegistryService) Close() {
	s.pending.Wait()
}

func (s *RegistryService) publish(ctx context.Context, t events.Type, e endpoint.Endpoint) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.Event{Type: t, Key: e.Key, Endpoint: e})
}

func (s *RegistryService) snapshot() endpoint.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoints.Clone()
}

// holdLocked queues a Persistence to be resolved by hydration. It returns
// nil once the registry is ready. s.mu must be held.
func (s *RegistryService) holdLocked() *Persistence {
	if s.ready.Load() {
		return nil
	}
	p := newPersistence()
	s.deferred = append(s.deferred, p)
	return p
}

func (s *RegistryService) persistAsync() *Persistence {
	p := newPersistence()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()
		p.resolve(s.persist(ctx))
	}()
	return p
}

// persist writes the current snapshot to the remote store. When the remote
// write fails the snapshot goes to the local cache and false is returned.
func (s *RegistryService) persist(ctx context.Context) bool {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snap := s.snapshot()

	if s.remote == nil {
		if s.local == nil {
			return true
		}
		err := s.local.Store(ctx, snap)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to persist endpoints locally")
		}
		s.observer.ObservePersistence(err == nil)
		return err == nil
	}

	if err := s.remote.Save(ctx, snap); err != nil {
		s.logger.Warn().
			Err(call.Persistence(err)).
			Int("endpoints", len(snap)).
			Msg("remote persistence failed, falling back to local cache")
		if s.local != nil {
			if lerr := s.local.Store(ctx, snap); lerr != nil {
				s.logger.Error().Err(lerr).Msg("failed to persist endpoints locally")
			}
		}
		s.observer.ObservePersistence(false)
		return false
	}

	if s.local != nil {
		if err := s.local.Store(ctx, snap); err != nil {
			s.logger.Warn().Err(err).Msg("failed to refresh local endpoint cache")
		}
	}
	s.observer.ObservePersistence(true)
	return true
}

func (s *RegistryService) storeLocal(ctx context.Context) {
	if s.local == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.local.Store(ctx, s.snapshot()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to refresh local endpoint cache")
	}
}

// Persistence is the pending result of a background registry write.
type Persistence struct {
	done chan struct{}
	ok   bool
}

func newPersistence() *Persistence {
	return &Persistence{done: make(chan struct{})}
}

func (p *Persistence) resolve(ok bool) {
	p.ok = ok
	close(p.done)
}

// Done is closed once the write has been attempted.
func (p *Persistence) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write has been attempted and reports whether it
// reached the remote store. It returns false if ctx ends first.
func (p *Persistence) Wait(ctx context.Context) bool {
	select {
	case <-p.done:
		return p.ok
	case <-ctx.Done():
		return false
	}
}
