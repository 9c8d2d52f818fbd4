// Package commands binds the editor command identifiers to the handlers
// that drive the way bridge, the state store and the panel.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Command identifiers.
const (
	AddMarkAtCursor       = "wayside.addMarkAtCursor"
	ShowCurrentWaystation = "wayside.showCurrentWaystation"
	OpenWaystation        = "wayside.openWaystation"
	NewWaystation         = "wayside.newWaystation"
)

var (
	ErrUnknownCommand = errors.New("commands: unknown command")
	ErrDuplicate      = errors.New("commands: command already registered")
	ErrDisposed       = errors.New("commands: registry disposed")
)

// HandlerFunc runs one command.
type HandlerFunc func(ctx context.Context) error

// Registry maps command identifiers to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	disposed bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds id to fn. The returned func removes the binding.
func (r *Registry) Register(id string, fn HandlerFunc) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, ErrDisposed
	}
	if _, ok := r.handlers[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	r.handlers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.handlers, id)
		})
	}, nil
}

// Execute runs the handler bound to id.
func (r *Registry) Execute(ctx context.Context, id string) error {
	r.mu.RLock()
	fn, ok := r.handlers[id]
	disposed := r.disposed
	r.mu.RUnlock()
	if disposed {
		return ErrDisposed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	return fn(ctx)
}

// Commands lists the registered identifiers in sorted order.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispose removes every binding and rejects further use.
func (r *Registry) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
	clear(r.handlers)
}
