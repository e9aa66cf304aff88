package queuebacca

import (
	"context"
	"sync"
)

// Subscriber is the registry of active subscription workers in a process.
// It is safe for concurrent use.
type Subscriber struct {
	mu   sync.Mutex
	subs []*Subscription
}

// NewSubscriber returns an empty Subscriber.
func NewSubscriber() *Subscriber {
	return &Subscriber{}
}

// Subscribe starts a subscription worker for cfg against broker and
// registers its cancellation handle. ctx bounds the worker's lifetime in
// addition to the returned Subscription's own Cancel.
func Subscribe[M any](ctx context.Context, s *Subscriber, broker Broker, cfg SubscriptionConfiguration[M]) *Subscription {
	sub := startSubscriptionWorker(ctx, broker, cfg)
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub
}

// CancelAll cancels every subscription registered with s. It does not
// block until they have all drained; call Wait on each Subscription (or
// WaitAll) for that.
func (s *Subscriber) CancelAll() {
	s.mu.Lock()
	subs := append([]*Subscription(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// WaitAll blocks until every subscription registered with s has reached
// TERMINATED.
func (s *Subscriber) WaitAll() {
	s.mu.Lock()
	subs := append([]*Subscription(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Wait()
	}
}
