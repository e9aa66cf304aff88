// Package memory provides an in-memory queuebacca.Broker for tests and
// local development. It completes the adapter the teacher's messaging
// package documented via adapters/memory/memory_test.go but never shipped
// an implementation for, reworked here around queuebacca's visibility-
// lease contract instead of that package's simpler Consume(ctx, handler)
// shape.
//
// Messages become visible again — to the same or a different delivery —
// whenever their visibility deadline lapses without an explicit dispose,
// exactly like a real SQS queue; this is what gives TERMINATE and a
// cancelled subscription real at-least-once redelivery in tests instead
// of a no-op.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chris-alexander-pop/queuebacca"
	"github.com/google/uuid"
)

// Config configures a Broker.
type Config struct {
	// DefaultVisibilityTimeout is applied to a bin on first use if it
	// wasn't pre-registered with RegisterBin.
	DefaultVisibilityTimeout time.Duration
	// WaitTimeout caps how long RetrieveMessages blocks with no messages
	// available before returning an empty batch, mirroring SQS's ~20s
	// long-poll ceiling.
	WaitTimeout time.Duration
	// PollInterval is how often RetrieveMessages re-checks for newly
	// available messages while long-polling.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultVisibilityTimeout <= 0 {
		c.DefaultVisibilityTimeout = 30 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 20 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 20 * time.Millisecond
	}
	return c
}

type record struct {
	id            string
	body          string
	readCount     int
	firstReceived time.Time
	visibleAt     time.Time
	receipt       string
}

type binState struct {
	mu                sync.Mutex
	records           []*record
	visibilityTimeout time.Duration
}

// Broker is an in-memory queuebacca.Broker.
type Broker struct {
	cfg  Config
	mu   sync.Mutex
	bins map[string]*binState
}

// New returns a ready-to-use in-memory Broker.
func New(cfg Config) *Broker {
	return &Broker{cfg: cfg.withDefaults(), bins: make(map[string]*binState)}
}

// RegisterBin pre-creates bin with its own visibility timeout, overriding
// the broker's default for that bin.
func (b *Broker) RegisterBin(bin queuebacca.MessageBin, visibilityTimeout time.Duration) {
	b.stateFor(bin, visibilityTimeout)
}

func (b *Broker) stateFor(bin queuebacca.MessageBin, visibilityTimeout time.Duration) *binState {
	b.mu.Lock()
	defer b.mu.Unlock()
	bs, ok := b.bins[bin.Name]
	if !ok {
		if visibilityTimeout <= 0 {
			visibilityTimeout = b.cfg.DefaultVisibilityTimeout
		}
		bs = &binState{visibilityTimeout: visibilityTimeout}
		b.bins[bin.Name] = bs
	}
	return bs
}

func (b *Broker) SendMessage(ctx context.Context, bin queuebacca.MessageBin, body string, delay time.Duration) (queuebacca.OutgoingEnvelope[string], error) {
	bs := b.stateFor(bin, 0)
	id := uuid.NewString()

	bs.mu.Lock()
	bs.records = append(bs.records, &record{id: id, body: body, visibleAt: time.Now().Add(delay)})
	bs.mu.Unlock()

	return queuebacca.OutgoingEnvelope[string]{MessageID: id, Message: body, RawMessage: body}, nil
}

func (b *Broker) SendMessages(ctx context.Context, bin queuebacca.MessageBin, bodies []string, delay time.Duration) ([]queuebacca.OutgoingEnvelope[string], error) {
	outs := make([]queuebacca.OutgoingEnvelope[string], 0, len(bodies))
	for start := 0; start < len(bodies); start += queuebacca.MaxBatchSize {
		end := start + queuebacca.MaxBatchSize
		if end > len(bodies) {
			end = len(bodies)
		}
		for _, body := range bodies[start:end] {
			out, err := b.SendMessage(ctx, bin, body, delay)
			if err != nil {
				return outs, err
			}
			outs = append(outs, out)
		}
	}
	return outs, nil
}

func (b *Broker) RetrieveMessages(ctx context.Context, bin queuebacca.MessageBin, maxMessages int) ([]queuebacca.IncomingEnvelope[string], error) {
	if maxMessages > queuebacca.MaxBatchSize {
		maxMessages = queuebacca.MaxBatchSize
	}
	bs := b.stateFor(bin, 0)
	deadline := time.Now().Add(b.cfg.WaitTimeout)
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if envs := b.pickAvailable(bs, maxMessages); len(envs) > 0 {
			return envs, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, queuebacca.CancellationError(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *Broker) pickAvailable(bs *binState, max int) []queuebacca.IncomingEnvelope[string] {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	now := time.Now()
	var envs []queuebacca.IncomingEnvelope[string]
	for _, rec := range bs.records {
		if len(envs) >= max {
			break
		}
		if rec.visibleAt.After(now) {
			continue
		}

		rec.receipt = uuid.NewString()
		rec.readCount++
		if rec.firstReceived.IsZero() {
			rec.firstReceived = now
		}
		rec.visibleAt = now.Add(bs.visibilityTimeout)

		envs = append(envs, queuebacca.IncomingEnvelope[string]{
			MessageID:     rec.id,
			Receipt:       rec.receipt,
			ReadCount:     rec.readCount,
			FirstReceived: rec.firstReceived,
			Message:       rec.body,
			RawMessage:    rec.body,
		})
	}
	return envs
}

func (b *Broker) ReturnMessage(ctx context.Context, bin queuebacca.MessageBin, env queuebacca.IncomingEnvelope[string], delay time.Duration) error {
	bs := b.stateFor(bin, 0)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for _, rec := range bs.records {
		if rec.receipt == env.Receipt {
			rec.visibleAt = time.Now().Add(delay)
			return nil
		}
	}
	// Already redelivered to someone else or disposed: at-least-once
	// semantics mean this is not an error, just a no-op.
	return nil
}

func (b *Broker) DisposeMessage(ctx context.Context, bin queuebacca.MessageBin, env queuebacca.IncomingEnvelope[string]) error {
	bs := b.stateFor(bin, 0)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for i, rec := range bs.records {
		if rec.receipt == env.Receipt {
			bs.records = append(bs.records[:i], bs.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *Broker) ExtendVisibility(ctx context.Context, bin queuebacca.MessageBin, receipt string, visibilityTimeout time.Duration) error {
	bs := b.stateFor(bin, 0)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for _, rec := range bs.records {
		if rec.receipt == receipt {
			rec.visibleAt = time.Now().Add(visibilityTimeout)
			return nil
		}
	}
	return nil
}
