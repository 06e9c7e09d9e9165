package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/artpar/apicore/domain/endpoint"
	"github.com/rs/zerolog"
)

// testLogger returns a disabled logger for tests
func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// TestNewBus verifies that NewBus creates a properly initialized Bus
func TestNewBus(t *testing.T) {
	bus := NewBus(testLogger())

	if bus == nil {
		t.Fatal("NewBus returned nil")
	}
	if bus.handlers == nil {
		t.Error("handlers map not initialized")
	}
	if len(bus.handlers) != 0 {
		t.Error("handlers map should be empty on creation")
	}
}

// TestSubscribe verifies that Subscribe correctly registers handlers
func TestSubscribe(t *testing.T) {
	bus := NewBus(testLogger())

	bus.Subscribe(EndpointRemoved, func(ctx context.Context, event Event) error {
		return nil
	})
	bus.Subscribe(EndpointRemoved, func(ctx context.Context, event Event) error {
		return nil
	})

	if len(bus.handlers[EndpointRemoved]) != 2 {
		t.Errorf("expected 2 handlers, got %d", len(bus.handlers[EndpointRemoved]))
	}
}

// TestPublishExactMatch verifies delivery to handlers of the published type only
func TestPublishExactMatch(t *testing.T) {
	bus := NewBus(testLogger())

	var removed, registered int
	bus.Subscribe(EndpointRemoved, func(ctx context.Context, event Event) error {
		removed++
		if event.Key != "users" || event.Endpoint.URL != "https://x" {
			t.Errorf("event = %+v", event)
		}
		return nil
	})
	bus.Subscribe(EndpointRegistered, func(ctx context.Context, event Event) error {
		registered++
		return nil
	})

	bus.Publish(context.Background(), Event{
		Type:     EndpointRemoved,
		Key:      "users",
		Endpoint: endpoint.Endpoint{Key: "users", URL: "https://x"},
	})

	if removed != 1 {
		t.Errorf("removed handler calls = %d, want 1", removed)
	}
	if registered != 0 {
		t.Errorf("registered handler calls = %d, want 0", registered)
	}
}

// TestPublishAll verifies that All subscribers see every event type
func TestPublishAll(t *testing.T) {
	bus := NewBus(testLogger())

	var seen []Type
	bus.Subscribe(All, func(ctx context.Context, event Event) error {
		seen = append(seen, event.Type)
		return nil
	})

	for _, typ := range []Type{EndpointRegistered, EndpointUpdated, EndpointRemoved} {
		bus.Publish(context.Background(), Event{Type: typ, Key: "a"})
	}

	if len(seen) != 3 || seen[0] != EndpointRegistered || seen[2] != EndpointRemoved {
		t.Errorf("seen = %v", seen)
	}
}

// TestPublishOrder verifies handlers run in registration order, typed first
func TestPublishOrder(t *testing.T) {
	bus := NewBus(testLogger())

	var order []string
	bus.Subscribe(All, func(ctx context.Context, event Event) error {
		order = append(order, "all")
		return nil
	})
	bus.Subscribe(EndpointUpdated, func(ctx context.Context, event Event) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe(EndpointUpdated, func(ctx context.Context, event Event) error {
		order = append(order, "second")
		return nil
	})

	bus.Publish(context.Background(), Event{Type: EndpointUpdated})

	want := []string{"first", "second", "all"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

// TestPublishIsSynchronous verifies handlers have finished when Publish returns
func TestPublishIsSynchronous(t *testing.T) {
	bus := NewBus(testLogger())

	var done atomic.Bool
	bus.Subscribe(EndpointRemoved, func(ctx context.Context, event Event) error {
		done.Store(true)
		return nil
	})

	bus.Publish(context.Background(), Event{Type: EndpointRemoved})
	if !done.Load() {
		t.Error("handler had not run when Publish returned")
	}
}

// TestPublishHandlerError verifies errors are logged but publishing continues
func TestPublishHandlerError(t *testing.T) {
	bus := NewBus(testLogger())

	calls := []int{}
	for i := 1; i <= 3; i++ {
		bus.Subscribe(EndpointRemoved, func(ctx context.Context, event Event) error {
			calls = append(calls, i)
			if i == 2 {
				return errors.New("handler error")
			}
			return nil
		})
	}

	bus.Publish(context.Background(), Event{Type: EndpointRemoved})

	if len(calls) != 3 {
		t.Errorf("expected 3 calls, got %d", len(calls))
	}
}

// TestPublishNoSubscribers verifies publishing without handlers is a no-op
func TestPublishNoSubscribers(t *testing.T) {
	bus := NewBus(testLogger())
	bus.Publish(context.Background(), Event{Type: EndpointRegistered, Key: "a"})
}

// TestPublishWithContext verifies the context reaches handlers
func TestPublishWithContext(t *testing.T) {
	bus := NewBus(testLogger())

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")

	var got any
	bus.Subscribe(EndpointRegistered, func(ctx context.Context, event Event) error {
		got = ctx.Value(ctxKey{})
		return nil
	})
	bus.Publish(ctx, Event{Type: EndpointRegistered})

	if got != "v" {
		t.Errorf("context value = %v, want v", got)
	}
}

// TestHasSubscribers verifies typed and All subscriptions are reported
func TestHasSubscribers(t *testing.T) {
	bus := NewBus(testLogger())

	if bus.HasSubscribers(EndpointRemoved) {
		t.Error("expected no subscribers")
	}

	bus.Subscribe(EndpointRemoved, func(ctx context.Context, event Event) error { return nil })
	if !bus.HasSubscribers(EndpointRemoved) {
		t.Error("expected subscribers for removed")
	}
	if bus.HasSubscribers(EndpointUpdated) {
		t.Error("expected no subscribers for updated")
	}

	bus.Subscribe(All, func(ctx context.Context, event Event) error { return nil })
	if !bus.HasSubscribers(EndpointUpdated) {
		t.Error("All subscriber should count for every type")
	}
}

// TestConcurrentSubscribeAndPublish exercises the bus under the race detector
func TestConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewBus(testLogger())

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(EndpointUpdated, func(ctx context.Context, event Event) error {
				count.Add(1)
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), Event{Type: EndpointUpdated})
		}()
	}
	wg.Wait()

	count.Store(0)
	bus.Publish(context.Background(), Event{Type: EndpointUpdated})
	if count.Load() != 10 {
		t.Errorf("handler calls = %d, want 10", count.Load())
	}
}
