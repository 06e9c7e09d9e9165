// Package events provides a typed publish/subscribe bus for registry
// change events.
package events

import (
	"context"
	"sync"

	"github.com/artpar/apicore/domain/endpoint"
	"github.com/rs/zerolog"
)

// Type names a registry event.
type Type string

const (
	EndpointRegistered Type = "endpoint.registered"
	EndpointUpdated    Type = "endpoint.updated"
	EndpointRemoved    Type = "endpoint.removed"

	// All subscribes to every event type.
	All Type = "*"
)

// Event is a registry change.
type Event struct {
	Type Type

	// Key is the endpoint key the event is about.
	Key string

	// Endpoint is the definition after the change; for removals, the
	// definition that was removed.
	Endpoint endpoint.Endpoint
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type, or All.
func (b *Bus) Subscribe(t Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], handler)
}

// Publish delivers an event to all matching handlers.
// Handlers are called synchronously in registration order.
// If any handler returns an error, publishing continues but errors are logged.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.handlers[event.Type])+len(b.handlers[All]))
	matched = append(matched, b.handlers[event.Type]...)
	matched = append(matched, b.handlers[All]...)
	b.mu.RUnlock()

	b.logger.Debug().
		Str("event", string(event.Type)).
		Str("endpoint", event.Key).
		Msg("event emitted")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", string(event.Type)).
				Str("endpoint", event.Key).
				Msg("event handler error")
		}
	}
}

// HasSubscribers checks if any handlers are registered for an event type.
func (b *Bus) HasSubscribers(t Type) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t]) > 0 || len(b.handlers[All]) > 0
}
