// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/waystation/wayside/internal/eventbus"
)

// Bus is an in-process event bus.
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]chan<- any
}

var _ eventbus.Bus = (*Bus)(nil)

// New creates a new Bus instance.
func New() *Bus {
	return &Bus{topics: make(map[string][]chan<- any)}
}

// Publish fans payload out without blocking on full subscriber channels.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, ch := range b.topics[topic] {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case ch <- payload:
			delivered++
		default:
		}
	}
	return delivered, nil
}

// Subscribe registers a channel for a topic. The returned func is idempotent.
func (b *Bus) Subscribe(topic string, ch chan<- any) (func(), error) {
	if ch == nil {
		return nil, errors.New("eventbus: channel must not be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], ch)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.topics[topic]
			if i := slices.Index(subs, ch); i >= 0 {
				b.topics[topic] = slices.Delete(subs, i, i+1)
			}
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
		})
	}, nil
}

// Subscribers returns the number of channels registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
