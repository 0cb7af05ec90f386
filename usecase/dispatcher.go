package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/fastygo/tasktracker/domain"
)

// EventHandler reacts to one decoded task event.
type EventHandler func(ctx context.Context, event domain.Event) error

// Dispatcher routes decoded events to the handler registered for their kind.
type Dispatcher struct {
	handlers map[domain.EventKind][]EventHandler
	mu       sync.RWMutex
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[domain.EventKind][]EventHandler),
	}
}

// Register appends handler to the chain for kind. Handlers run in registration order.
func (d *Dispatcher) Register(kind domain.EventKind, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], handler)
}

// Handles reports whether any handler is registered for kind.
func (d *Dispatcher) Handles(kind domain.EventKind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind]) > 0
}

// Dispatch runs the chain for the event's kind and stops at the first error.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event) error {
	if event == nil {
		return domain.ErrInvalidPayload
	}
	kind := event.Header().Kind

	d.mu.RLock()
	chain := d.handlers[kind]
	d.mu.RUnlock()
	if len(chain) == 0 {
		return domain.WrapError(domain.ErrCodeInvalid, domain.ErrUnknownEvent.Message, fmt.Errorf("no handler for %q", kind))
	}

	for _, handler := range chain {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
