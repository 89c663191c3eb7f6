package tools

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyName is returned when registering a handler without a tool name.
var ErrEmptyName = errors.New("tool name is empty")

// Handler performs a dispatched tool call.
type Handler func(ctx context.Context, name string, args map[string]any) error

// Dispatcher routes tool calls to handlers keyed by tool name. Names without
// a handler go to the fallback, if one is set.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
	}
}

// Register sets the handler for name, replacing any earlier one.
func (d *Dispatcher) Register(name string, h Handler) error {
	if name == "" {
		return ErrEmptyName
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, name)
		return nil
	}
	d.handlers[name] = h
	return nil
}

// RegisterFallback sets the handler for names without their own handler.
// Only one fallback is kept: a later call replaces the earlier.
func (d *Dispatcher) RegisterFallback(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = h
}

// Dispatch invokes the handler for name. With no handler it does nothing.
// Handler errors are returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) error {
	d.mu.RLock()
	h, ok := d.handlers[name]
	if !ok {
		h = d.fallback
	}
	d.mu.RUnlock()

	if h == nil {
		return nil
	}
	return h(ctx, name, args)
}
