// Package memory provides an in-process events.Bus backed by a fan-out map
// of topic to registered handlers. It completes the adapter the events
// package's documentation always described but never shipped.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chris-alexander-pop/queuebacca/events"
)

// Bus is an in-memory, in-process events.Bus. Publish fans out
// synchronously to every handler subscribed to topic at call time; a
// handler that returns an error only has that error logged, it never
// blocks or fails the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]events.Handler
	logger   *slog.Logger
	closed   bool
}

// New returns an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[string][]events.Handler), logger: logger}
}

func (b *Bus) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *Bus) Publish(ctx context.Context, topic string, event events.Event) error {
	b.mu.RLock()
	handlers := append([]events.Handler(nil), b.handlers[topic]...)
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return errClosed
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.ErrorContext(ctx, "event handler failed", "topic", topic, "error", err)
		}
	}
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}

type busError string

func (e busError) Error() string { return string(e) }

const errClosed = busError("memory: bus is closed")
