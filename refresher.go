package queuebacca

import (
	"context"
	"sync"
	"time"
)

// visibilityRefresher is the process-wide scheduler that keeps extending
// the broker-side visibility lease of every in-flight envelope until its
// disposition is applied. Every subscription in the process shares one
// package-level schedule map keyed by receipt, matching §4.7's "a single
// timer is sufficient" — realized here as the Go runtime's shared timer
// heap via time.AfterFunc rather than one dedicated goroutine per entry,
// which is the idiomatic equivalent at this scale. Each refresher value
// extends leases through its own subscription's broker.
type visibilityRefresher struct {
	broker  Broker
	entries *sync.Map // receipt string -> *refreshEntry
}

type refreshEntry struct {
	timer *time.Timer
}

var globalRefreshEntries sync.Map

func sharedRefresher(broker Broker) *visibilityRefresher {
	return &visibilityRefresher{broker: broker, entries: &globalRefreshEntries}
}

// visibilityExtendDelay computes the delay before the first (and every
// subsequent) extend call, per §4.7: vt/2 if vt < 2 minutes, else vt - 1
// minute.
func visibilityExtendDelay(vt time.Duration) time.Duration {
	if vt < 2*time.Minute {
		return vt / 2
	}
	return vt - time.Minute
}

// scheduleRefresh begins (or replaces) the refresh schedule for env's
// receipt. It is idempotent: calling it again for the same receipt
// cancels the previous schedule before installing the new one.
func (r *visibilityRefresher) scheduleRefresh(bin MessageBin, receipt string, vt time.Duration) {
	r.cancelRefresh(receipt)

	delay := visibilityExtendDelay(vt)
	entry := &refreshEntry{}
	entry.timer = time.AfterFunc(delay, func() {
		r.fire(bin, receipt, vt)
	})
	r.entries.Store(receipt, entry)
}

func (r *visibilityRefresher) fire(bin MessageBin, receipt string, vt time.Duration) {
	// A redundant extend racing with cancelRefresh is harmless (§4.7); we
	// do not check whether the entry is still registered before calling
	// the broker.
	ctx := context.Background()
	if err := r.broker.ExtendVisibility(ctx, bin, receipt, vt); err != nil {
		defaultLogger().ErrorContext(ctx, "failed to extend message visibility",
			"bin", bin.Name, "error", err)
	}

	// Tail-reschedule: the new task replaces the old entry, unless
	// cancelRefresh ran concurrently and already removed it.
	if _, stillScheduled := r.entries.Load(receipt); stillScheduled {
		delay := visibilityExtendDelay(vt)
		entry := &refreshEntry{}
		entry.timer = time.AfterFunc(delay, func() {
			r.fire(bin, receipt, vt)
		})
		r.entries.Store(receipt, entry)
	}
}

// cancelRefresh removes and stops the current schedule for receipt, if
// any. Safe to call concurrently with a firing task: the firing task's
// extend call may already be in flight, which is an acceptable redundant
// extend.
func (r *visibilityRefresher) cancelRefresh(receipt string) {
	if v, ok := r.entries.LoadAndDelete(receipt); ok {
		v.(*refreshEntry).timer.Stop()
	}
}
