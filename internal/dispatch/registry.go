package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"shipflow/internal/lifecycle"
)

// Task is one leased queue entry handed to a Handler.
type Task struct {
	EntryID    int64
	Queue      string
	ShipmentID string
	Reason     lifecycle.Reason
	Payload    json.RawMessage
	Attempt    int
}

// Handler performs the side effect for one reason. Handlers must be
// idempotent: an entry may be delivered more than once.
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task Task) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, task Task) error { return f(ctx, task) }

// Registry maps reasons to handlers for one dispatcher.
type Registry struct {
	mu       sync.RWMutex
	handlers map[lifecycle.Reason]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[lifecycle.Reason]Handler)}
}

// Register binds handler to reason. Registering the same reason twice is an error.
func (r *Registry) Register(reason lifecycle.Reason, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("register %q: nil handler", reason)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[reason]; exists {
		return fmt.Errorf("register %q: handler already registered", reason)
	}
	r.handlers[reason] = handler
	return nil
}

// Lookup returns the handler for reason.
func (r *Registry) Lookup(reason lifecycle.Reason) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[reason]
	return h, ok
}

// Reasons lists registered reasons in a stable order.
func (r *Registry) Reasons() []lifecycle.Reason {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]lifecycle.Reason, 0, len(r.handlers))
	for reason := range r.handlers {
		out = append(out, reason)
	}
	slices.Sort(out)
	return out
}

// Validate reports the first of reasons without a handler.
func (r *Registry) Validate(reasons []lifecycle.Reason) error {
	for _, reason := range reasons {
		if _, ok := r.Lookup(reason); !ok {
			return fmt.Errorf("no handler registered for reason %q", reason)
		}
	}
	return nil
}
