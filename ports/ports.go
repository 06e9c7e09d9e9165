// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/domain/endpoint"
	"github.com/artpar/apicore/domain/field"
	"github.com/artpar/apicore/domain/variable"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// RemoteEndpointStore is the authoritative store of endpoint definitions.
type RemoteEndpointStore interface {
	// GetAll returns every stored definition.
	GetAll(ctx context.Context) (endpoint.Collection, error)

	// Save replaces the stored collection.
	Save(ctx context.Context, c endpoint.Collection) error
}

// LocalEndpointCache is the durable local fallback for endpoint definitions.
// It has the same shape as the remote store.
type LocalEndpointCache interface {
	// Load returns the cached collection. A missing cache is an empty collection.
	Load(ctx context.Context) (endpoint.Collection, error)

	// Store replaces the cached collection.
	Store(ctx context.Context, c endpoint.Collection) error
}

// FieldStore persists per-endpoint field definitions.
type FieldStore interface {
	// LoadAll returns every endpoint's field set.
	LoadAll(ctx context.Context) (map[string]field.Set, error)

	// Save replaces the field set of an endpoint.
	Save(ctx context.Context, endpointKey string, s field.Set) error

	// Delete removes the field set of an endpoint.
	Delete(ctx context.Context, endpointKey string) error
}

// VariableStore persists durable variable scopes (global and user).
type VariableStore interface {
	// Load returns every variable of a scope.
	Load(ctx context.Context, scope variable.Scope) (map[string]any, error)

	// Set stores or replaces one variable.
	Set(ctx context.Context, scope variable.Scope, name string, value any) error

	// Delete removes one variable.
	Delete(ctx context.Context, scope variable.Scope, name string) error

	// Clear removes every variable of a scope.
	Clear(ctx context.Context, scope variable.Scope) error
}

// ResponseCache memoizes successful call envelopes.
type ResponseCache interface {
	// Get returns the unexpired envelope stored under key.
	Get(ctx context.Context, key string) (call.Envelope, bool, error)

	// Set stores an envelope for ttl.
	Set(ctx context.Context, key string, env call.Envelope, ttl time.Duration) error

	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// Transport dispatches a request to a remote endpoint.
type Transport interface {
	// Do sends the request and returns the raw response. Responses with a
	// status >= 400 are returned together with a *call.Error.
	Do(ctx context.Context, req call.Request) (call.Response, error)
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// Notification is a transient user-visible message.
type Notification struct {
	Level       string // "error", "warning", "info"
	EndpointKey string
	Title       string
	Message     string
	Code        call.Code
}

// Notifier surfaces terminal call failures to the user.
// Notify must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// CallObserver receives call telemetry.
type CallObserver interface {
	ObserveCall(endpointKey, outcome string, d time.Duration)
	ObserveCache(endpointKey string, hit bool)
	ObserveRetry(endpointKey string)
	ObservePersistence(ok bool)
}
