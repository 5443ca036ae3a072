// Package notify carries change signals between board instances that share
// one store. A signal only says that a record moved; receivers re-read the
// store to learn the new value.
package notify

import (
	"context"
	"sync"
)

// Change announces a successful write
type Change struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Revision   int64  `json:"revision"`
	Origin     string `json:"origin"` // instance that wrote it
}

// Bus fans change signals out to subscribers
type Bus interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(handler func(Change)) (cancel func())
	Close() error
}

// LocalBus delivers changes to subscribers in the same process
type LocalBus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(Change)
}

// NewLocalBus creates an in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]func(Change))}
}

// Publish calls every subscriber synchronously
func (b *LocalBus) Publish(_ context.Context, c Change) error {
	b.mu.RLock()
	handlers := make([]func(Change), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(c)
	}
	return nil
}

// Subscribe registers handler until cancel is called
func (b *LocalBus) Subscribe(handler func(Change)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Close drops all subscribers
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]func(Change))
	b.mu.Unlock()
	return nil
}
