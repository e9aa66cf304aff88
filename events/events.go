// Package events provides a small in-process event bus. Queuebacca uses
// it as an optional second observability channel for subscription
// dispositions: a SubscriptionConfiguration registered with WithNotifier
// publishes a best-effort Event after every disposition, alongside (not
// instead of) any synchronous Finalizer hook.
package events

import (
	"context"
	"time"
)

// Event is a single notification published to a Bus topic.
type Event struct {
	ID        string
	Type      string
	Source    string
	Timestamp time.Time
	Payload   any
}

// Handler handles an incoming event. An error it returns is logged by the
// Bus implementation; it never propagates back to the publisher.
type Handler func(ctx context.Context, event Event) error

// Bus is the interface a notification sink implements.
type Bus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
