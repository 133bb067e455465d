// Package eventbus provides an in-process publish/subscribe bus for payment
// lifecycle events. The booking layer subscribes to finalize or release
// bookings when a payment reaches a terminal state.
package eventbus

import (
	"sync"

	"github.com/Brymax254/safari-payments/internal/domain"
)

// HandlerFunc processes one event.
type HandlerFunc func(domain.Event) error

// InMemoryBus dispatches events synchronously to subscribed handlers.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]HandlerFunc
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[domain.EventType][]HandlerFunc),
	}
}

// Subscribe registers a handler for an event type.
func (b *InMemoryBus) Subscribe(eventType domain.EventType, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to every handler subscribed to its type.
func (b *InMemoryBus) Publish(evt domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.handlers[evt.Type] {
		if err := handler(evt); err != nil {
			return err
		}
	}
	return nil
}
