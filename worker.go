package queuebacca

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/chris-alexander-pop/queuebacca/concurrency"
	"github.com/chris-alexander-pop/queuebacca/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SubscriptionState is one of the four states a Subscription moves
// through, in order, with no transition back.
type SubscriptionState int32

const (
	StateBuilt SubscriptionState = iota
	StateRunning
	StateCancelling
	StateTerminated
)

func (s SubscriptionState) String() string {
	switch s {
	case StateBuilt:
		return "BUILT"
	case StateRunning:
		return "RUNNING"
	case StateCancelling:
		return "CANCELLING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Subscription is the cancellation handle for one running subscription
// worker, returned by Subscribe.
type Subscription struct {
	bin    MessageBin
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

// State reports the subscription's current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// Cancel stops the puller from starting new pulls and lets already
// submitted consume attempts finish, then marks the subscription
// TERMINATED. It does not block; call Wait to block until termination.
func (s *Subscription) Cancel() {
	if s.state.CompareAndSwap(int32(StateRunning), int32(StateCancelling)) {
		s.cancel()
	}
}

// Wait blocks until the subscription reaches TERMINATED.
func (s *Subscription) Wait() {
	<-s.done
}

// subscriptionWorker is the C8 state machine: one instance per active
// SubscriptionConfiguration, owning the pull/dispatch loop, the worker
// pool, the admission semaphore and a handle to the shared refresher.
type subscriptionWorker[M any] struct {
	cfg       SubscriptionConfiguration[M]
	broker    Broker
	pool      *concurrency.WorkerPool
	permits   *concurrency.Semaphore
	refresher *visibilityRefresher
	logger    *slog.Logger
	tracer    trace.Tracer
	sub       *Subscription
}

// startSubscriptionWorker builds and launches a subscription worker,
// returning its cancellation handle immediately; the pull/dispatch loop
// runs on its own goroutine.
func startSubscriptionWorker[M any](ctx context.Context, broker Broker, cfg SubscriptionConfiguration[M]) *Subscription {
	workerCtx, cancel := context.WithCancel(ctx)

	sub := &Subscription{bin: cfg.Bin, cancel: cancel, done: make(chan struct{})}
	sub.state.Store(int32(StateRunning))

	w := &subscriptionWorker[M]{
		cfg:       cfg,
		broker:    broker,
		pool:      concurrency.NewWorkerPool(cfg.MessageCapacity*2, cfg.MessageCapacity*4),
		permits:   concurrency.NewSemaphore(int64(cfg.MessageCapacity)),
		refresher: sharedRefresher(broker),
		logger:    defaultLogger(),
		tracer:    otel.Tracer("queuebacca"),
		sub:       sub,
	}

	w.pool.Start(workerCtx)
	concurrency.SafeGo(context.Background(), w.logger, func() {
		w.loop(workerCtx)
		sub.state.Store(int32(StateCancelling))
		w.pool.Stop()
		sub.state.Store(int32(StateTerminated))
		close(sub.done)
	})

	return sub
}

// loop is the puller: admission before pulling, one dedicated goroutine,
// the only caller of RetrieveMessages for this subscription.
func (w *subscriptionWorker[M]) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.permits.Acquire(ctx, 1); err != nil {
			return
		}
		available := int(w.permits.Available()) + 1
		w.permits.Release(1)

		batch, err := w.broker.RetrieveMessages(ctx, w.cfg.Bin, available)
		if err != nil {
			if IsCancellation(err) || ctx.Err() != nil {
				return
			}
			w.logger.ErrorContext(ctx, "failed to retrieve messages", "bin", w.cfg.Bin.Name, "error", err)
			continue
		}

		for _, raw := range batch {
			w.refresher.scheduleRefresh(w.cfg.Bin, raw.Receipt, w.cfg.VisibilityTimeout)

			if err := w.permits.Acquire(ctx, 1); err != nil {
				w.refresher.cancelRefresh(raw.Receipt)
				return
			}

			env := raw
			w.pool.Submit(func(taskCtx context.Context) {
				w.handle(context.WithoutCancel(taskCtx), env)
			})
		}
	}
}

// handle runs one full consume attempt for env: decode, dispatch,
// resolve, cancel the refresh, apply the disposition, run the finalizer
// and notifier, and finally release the permit admitted for it. Every
// exit path releases exactly one permit and cancels the refresh exactly
// once (invariant 3), even on a panic recovered from the consumer.
func (w *subscriptionWorker[M]) handle(ctx context.Context, raw IncomingEnvelope[string]) {
	ctx, span := w.tracer.Start(ctx, "queuebacca.handle", trace.WithAttributes(
		attribute.String("queuebacca.bin", w.cfg.Bin.Name),
		attribute.String("queuebacca.message_id", raw.MessageID),
		attribute.Int("queuebacca.read_count", raw.ReadCount),
	))
	defer span.End()

	defer w.permits.Release(1)
	// Covers a panic before the explicit cancel below; a second cancel is a
	// no-op.
	defer w.refresher.cancelRefresh(raw.Receipt)

	msgCtx := raw.Context()
	disposition := w.consume(ctx, raw, msgCtx)

	span.SetAttributes(attribute.String("queuebacca.disposition", disposition.String()))

	w.refresher.cancelRefresh(raw.Receipt)
	w.applyDisposition(ctx, raw, disposition, span)
	w.runFinalizer(ctx, msgCtx, disposition)
	w.notify(ctx, msgCtx, disposition)
}

// consume never lets a panic inside the user-supplied consumer escape: it
// is recovered, logged and treated as a ConsumerError so a single buggy
// handler cannot take the puller loop down with it.
func (w *subscriptionWorker[M]) consume(ctx context.Context, raw IncomingEnvelope[string], msgCtx MessageContext) (disposition MessageResponse) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "consumer panicked", "message_id", msgCtx.MessageID, "panic", r)
			disposition = w.cfg.ExceptionResolver.Resolve(ctx, ConsumerError(panicError{r}), msgCtx)
		}
	}()

	message, err := w.cfg.Serializer.FromString(raw.RawMessage)
	if err != nil {
		return w.cfg.ExceptionResolver.Resolve(ctx, err, msgCtx)
	}

	response, err := w.cfg.Consumer.Consume(ctx, message, msgCtx)
	if err != nil {
		return w.cfg.ExceptionResolver.Resolve(ctx, ConsumerError(err), msgCtx)
	}
	return response
}

func (w *subscriptionWorker[M]) applyDisposition(ctx context.Context, raw IncomingEnvelope[string], disposition MessageResponse, span trace.Span) {
	switch disposition {
	case Consume:
		if err := w.broker.DisposeMessage(ctx, w.cfg.Bin, raw); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			w.logger.ErrorContext(ctx, "failed to dispose message", "bin", w.cfg.Bin.Name, "message_id", raw.MessageID, "error", err)
		}
	case Retry:
		delay := w.cfg.RetryDelayGenerator.Next(raw.ReadCount)
		if err := w.broker.ReturnMessage(ctx, w.cfg.Bin, raw, delay); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			w.logger.ErrorContext(ctx, "failed to return message", "bin", w.cfg.Bin.Name, "message_id", raw.MessageID, "error", err)
		}
	case Terminate:
		// No broker call: the broker's own visibility timeout, and
		// eventually its dead-letter policy, takes over.
	}
}

func (w *subscriptionWorker[M]) runFinalizer(ctx context.Context, msgCtx MessageContext, disposition MessageResponse) {
	if w.cfg.Finalizer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "finalizer panicked", "message_id", msgCtx.MessageID, "panic", r)
		}
	}()
	w.cfg.Finalizer(ctx, msgCtx, disposition)
}

func (w *subscriptionWorker[M]) notify(ctx context.Context, msgCtx MessageContext, disposition MessageResponse) {
	if w.cfg.notifyBus == nil {
		return
	}
	event := events.Event{
		Type:    "queuebacca." + disposition.String(),
		Source:  w.cfg.Bin.Name,
		Payload: dispositionSummary{MessageID: msgCtx.MessageID, Disposition: disposition.String()},
	}
	if err := w.cfg.notifyBus.Publish(ctx, w.cfg.notifyTopic, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish disposition event", "message_id", msgCtx.MessageID, "error", err)
	}
}

// dispositionSummary is the in-process payload published to the
// notification bus; it is not a wire type.
type dispositionSummary struct {
	MessageID   string
	Disposition string
}

// panicError adapts a recovered panic value to an error so it can flow
// through the same ConsumerError/ExceptionResolver path as a regular
// error.
type panicError struct{ value any }

func (p panicError) Error() string {
	if err, ok := p.value.(error); ok {
		return "panic: " + err.Error()
	}
	return fmt.Sprintf("panic: %v", p.value)
}
