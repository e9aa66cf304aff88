// Package concurrency provides the bounded-concurrency primitives the
// subscription worker engine is built on: a weighted semaphore for
// in-flight admission control, and a fixed-size worker pool for
// dispatching consume attempts.
package concurrency

import (
	"context"
	"fmt"
	"sync"
)

// Semaphore is a weighted, context-aware semaphore with FIFO waiters.
// Acquire(ctx, n) blocks until n units are available or ctx is done;
// Release(n) must be called exactly once per successful Acquire.
type Semaphore struct {
	size    int64
	cur     int64
	mu      sync.Mutex
	waiters []*waiter
}

type waiter struct {
	n     int64
	ready chan struct{}
}

// NewSemaphore returns a Semaphore with limit units available.
func NewSemaphore(limit int64) *Semaphore {
	return &Semaphore{size: limit}
}

// Acquire blocks until n units are available, or returns ctx.Err() if ctx
// is done first.
func (s *Semaphore) Acquire(ctx context.Context, n int64) error {
	s.mu.Lock()
	if s.size-s.cur >= n && len(s.waiters) == 0 {
		s.cur += n
		s.mu.Unlock()
		return nil
	}

	w := &waiter{n: n, ready: make(chan struct{})}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		s.mu.Lock()
		for i, other := range s.waiters {
			if other == w {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		select {
		case <-w.ready:
			// Granted concurrently with cancellation: release it back.
			s.cur -= n
			s.notifyWaiters()
		default:
		}
		s.mu.Unlock()
		return ctx.Err()
	case <-w.ready:
		return nil
	}
}

// TryAcquire acquires n units without blocking, reporting whether it
// succeeded.
func (s *Semaphore) TryAcquire(n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size-s.cur >= n && len(s.waiters) == 0 {
		s.cur += n
		return true
	}
	return false
}

// Release returns n units. It panics if more units are released than are
// currently held — for the subscription worker's in-flight permit, that
// can only mean a message was disposed or returned twice, a bug worth
// crashing loudly for rather than silently corrupting the admission
// count.
func (s *Semaphore) Release(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur -= n
	if s.cur < 0 {
		panic(fmt.Sprintf("concurrency: semaphore released %d units but only %d were held", n, s.cur+n))
	}
	s.notifyWaiters()
}

// Available reports how many units are currently free.
func (s *Semaphore) Available() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size - s.cur
}

func (s *Semaphore) notifyWaiters() {
	for len(s.waiters) > 0 {
		w := s.waiters[0]
		if s.size-s.cur >= w.n {
			s.cur += w.n
			s.waiters = s.waiters[1:]
			close(w.ready)
		} else {
			break
		}
	}
}
