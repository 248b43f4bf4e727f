package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/observability"
)

// Handler handles a published event. Handlers are compared by identity, so
// implementations should be pointer types.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type handlerFunc struct {
	fn func(context.Context, Event) error
}

func (h *handlerFunc) Handle(ctx context.Context, event Event) error {
	return h.fn(ctx, event)
}

// NewHandler wraps fn. Keep the returned value to unsubscribe later.
func NewHandler(fn func(context.Context, Event) error) Handler {
	return &handlerFunc{fn: fn}
}

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler Handler)
	Unsubscribe(eventType EventType, handler Handler)
	Clear()
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]Handler
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher(logger *zap.Logger, metrics *observability.Metrics) Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]Handler),
		logger:    observability.OrNop(logger),
		metrics:   metrics,
	}
}

// Publish synchronously invokes handlers in registration order. A failing or
// panicking handler does not stop delivery to the rest; their errors are joined.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]Handler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := d.invoke(ctx, handler, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(handlers) > 0 {
		d.metrics.Inc(observability.EventsDispatched)
	}
	return errors.Join(errs...)
}

func (d *inMemoryDispatcher) invoke(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Inc(observability.HandlerPanics)
			d.logger.Error("event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r))
			err = fmt.Errorf("handler for %s panicked: %v", event.Type, r)
		}
	}()
	return handler.Handle(ctx, event)
}

// Subscribe registers a handler for the given event type. Registering the same
// handler twice keeps a single registration.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.listeners[eventType] {
		if sameHandler(existing, handler) {
			return
		}
	}
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Unsubscribe removes handler from eventType; unknown handlers are ignored.
func (d *inMemoryDispatcher) Unsubscribe(eventType EventType, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	current := d.listeners[eventType]
	for i, existing := range current {
		if sameHandler(existing, handler) {
			next := make([]Handler, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			if len(next) == 0 {
				delete(d.listeners, eventType)
			} else {
				d.listeners[eventType] = next
			}
			return
		}
	}
}

// Clear drops every subscription.
func (d *inMemoryDispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = make(map[EventType][]Handler)
}

func sameHandler(a, b Handler) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
