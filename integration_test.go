package queuebacca_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/queuebacca"
	"github.com/chris-alexander-pop/queuebacca/broker/memory"
	"github.com/chris-alexander-pop/queuebacca/internal/testsupport"
)

type orderPlaced struct {
	OrderID string `json:"orderId"`
}

func newOrdersBroker(visibilityTimeout time.Duration) *memory.Broker {
	return memory.New(memory.Config{
		DefaultVisibilityTimeout: visibilityTimeout,
		WaitTimeout:              2 * time.Second,
		PollInterval:             5 * time.Millisecond,
	})
}

// subscriptionSuite runs the end-to-end subscription worker scenarios
// against the in-memory broker. Each test gets a fresh background context
// from testsupport.Suite rather than reaching for context.Background()
// itself.
type subscriptionSuite struct {
	testsupport.Suite
}

func TestSubscriptionSuite(t *testing.T) {
	testsupport.Run(t, new(subscriptionSuite))
}

// S1: happy path — a published message reaches the consumer and the
// subscription then shuts down to TERMINATED.
func (s *subscriptionSuite) TestHappyPath() {
	t := s.T()
	broker := newOrdersBroker(time.Second)
	bin := queuebacca.MessageBin{Name: "orders"}
	serializer := queuebacca.NewJSONSerializer[orderPlaced]()

	publisher := queuebacca.NewPublisher(broker, bin, serializer)
	_, err := publisher.Publish(s.Ctx, orderPlaced{OrderID: "o-1"}, 0)
	require.NoError(t, err)

	var consumed atomic.Int32
	consumer := queuebacca.MessageConsumerFunc[orderPlaced](func(_ context.Context, message orderPlaced, _ queuebacca.MessageContext) (queuebacca.MessageResponse, error) {
		consumed.Add(1)
		assert.Equal(t, "o-1", message.OrderID)
		return queuebacca.Consume, nil
	})

	cfg, err := queuebacca.NewSubscriptionConfiguration[orderPlaced](bin, serializer, consumer).
		WithMessageCapacity(2).
		Build()
	require.NoError(t, err)

	subscriber := queuebacca.NewSubscriber()
	ctx, cancel := context.WithCancel(s.Ctx)
	sub := queuebacca.Subscribe(ctx, subscriber, broker, cfg)

	require.Eventually(t, func() bool { return consumed.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	sub.Cancel()
	sub.Wait()
	assert.Equal(t, queuebacca.StateTerminated, sub.State())
}

// S2: a transient consumer failure is retried and eventually succeeds.
func (s *subscriptionSuite) TestTransientFailureIsRetried() {
	t := s.T()
	broker := newOrdersBroker(200 * time.Millisecond)
	bin := queuebacca.MessageBin{Name: "orders"}
	serializer := queuebacca.NewJSONSerializer[orderPlaced]()

	publisher := queuebacca.NewPublisher(broker, bin, serializer)
	_, err := publisher.Publish(s.Ctx, orderPlaced{OrderID: "o-2"}, 0)
	require.NoError(t, err)

	var attempts atomic.Int32
	consumer := queuebacca.MessageConsumerFunc[orderPlaced](func(_ context.Context, _ orderPlaced, _ queuebacca.MessageContext) (queuebacca.MessageResponse, error) {
		if attempts.Add(1) < 3 {
			return 0, errors.New("transient failure")
		}
		return queuebacca.Consume, nil
	})

	cfg, err := queuebacca.NewSubscriptionConfiguration[orderPlaced](bin, serializer, consumer).
		WithRetryDelayGenerator(queuebacca.NewConstantRetryDelay(10 * time.Millisecond)).
		Build()
	require.NoError(t, err)

	subscriber := queuebacca.NewSubscriber()
	ctx, cancel := context.WithCancel(s.Ctx)
	sub := queuebacca.Subscribe(ctx, subscriber, broker, cfg)

	require.Eventually(t, func() bool { return attempts.Load() == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	sub.Cancel()
	sub.Wait()
}

// S3: Terminate drops the message without a broker call; it becomes
// redeliverable once its visibility lapses, never before.
func (s *subscriptionSuite) TestTerminateDropsMessageUntilVisibilityLapses() {
	t := s.T()
	visibilityTimeout := 80 * time.Millisecond
	broker := newOrdersBroker(visibilityTimeout)
	bin := queuebacca.MessageBin{Name: "orders"}
	serializer := queuebacca.NewJSONSerializer[orderPlaced]()

	publisher := queuebacca.NewPublisher(broker, bin, serializer)
	_, err := publisher.Publish(s.Ctx, orderPlaced{OrderID: "o-3"}, 0)
	require.NoError(t, err)

	var attempts atomic.Int32
	consumer := queuebacca.MessageConsumerFunc[orderPlaced](func(_ context.Context, _ orderPlaced, _ queuebacca.MessageContext) (queuebacca.MessageResponse, error) {
		attempts.Add(1)
		return queuebacca.Terminate, nil
	})

	cfg, err := queuebacca.NewSubscriptionConfiguration[orderPlaced](bin, serializer, consumer).
		WithVisibilityTimeout(visibilityTimeout).
		Build()
	require.NoError(t, err)

	subscriber := queuebacca.NewSubscriber()
	ctx, cancel := context.WithCancel(s.Ctx)
	sub := queuebacca.Subscribe(ctx, subscriber, broker, cfg)

	require.Eventually(t, func() bool { return attempts.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(visibilityTimeout / 2)
	assert.Equal(t, int32(1), attempts.Load(), "terminated message must not be redelivered before its visibility lapses")

	require.Eventually(t, func() bool { return attempts.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	sub.Cancel()
	sub.Wait()
}

// S4: the subscription's MessageCapacity bounds how many consume attempts
// run concurrently, regardless of how many messages are available.
func (s *subscriptionSuite) TestRespectsMessageCapacity() {
	t := s.T()
	broker := newOrdersBroker(2 * time.Second)
	bin := queuebacca.MessageBin{Name: "orders"}
	serializer := queuebacca.NewJSONSerializer[orderPlaced]()

	publisher := queuebacca.NewPublisher(broker, bin, serializer)
	for i := 0; i < 10; i++ {
		_, err := publisher.Publish(s.Ctx, orderPlaced{OrderID: "o"}, 0)
		require.NoError(t, err)
	}

	const capacity = 2
	var inFlight atomic.Int32
	var maxObserved atomic.Int32
	var mu sync.Mutex
	release := make(chan struct{})

	consumer := queuebacca.MessageConsumerFunc[orderPlaced](func(_ context.Context, _ orderPlaced, _ queuebacca.MessageContext) (queuebacca.MessageResponse, error) {
		current := inFlight.Add(1)
		mu.Lock()
		if current > maxObserved.Load() {
			maxObserved.Store(current)
		}
		mu.Unlock()
		<-release
		inFlight.Add(-1)
		return queuebacca.Consume, nil
	})

	cfg, err := queuebacca.NewSubscriptionConfiguration[orderPlaced](bin, serializer, consumer).
		WithMessageCapacity(capacity).
		Build()
	require.NoError(t, err)

	subscriber := queuebacca.NewSubscriber()
	ctx, cancel := context.WithCancel(s.Ctx)
	sub := queuebacca.Subscribe(ctx, subscriber, broker, cfg)

	require.Eventually(t, func() bool { return inFlight.Load() == capacity }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(capacity), maxObserved.Load(), "concurrency must reach but never exceed MessageCapacity")
	assert.Equal(t, int32(capacity), inFlight.Load(), "never more than MessageCapacity consume attempts in flight")

	close(release)
	cancel()
	sub.Cancel()
	sub.Wait()
}

// S5: a scope can short-circuit the chain before the terminal consumer runs.
func (s *subscriptionSuite) TestScopeShortCircuitsBeforeTerminal() {
	t := s.T()
	broker := newOrdersBroker(time.Second)
	bin := queuebacca.MessageBin{Name: "orders"}
	serializer := queuebacca.NewJSONSerializer[orderPlaced]()

	publisher := queuebacca.NewPublisher(broker, bin, serializer)
	_, err := publisher.Publish(s.Ctx, orderPlaced{OrderID: "dup-1"}, 0)
	require.NoError(t, err)

	var terminalCalled atomic.Bool
	terminal := queuebacca.MessageConsumerFunc[orderPlaced](func(context.Context, orderPlaced, queuebacca.MessageContext) (queuebacca.MessageResponse, error) {
		terminalCalled.Store(true)
		return queuebacca.Consume, nil
	})
	dedupe := queuebacca.MessageScopeFunc[orderPlaced](func(ctx context.Context, message orderPlaced, msgCtx queuebacca.MessageContext, next queuebacca.Next[orderPlaced]) (queuebacca.MessageResponse, error) {
		return queuebacca.Consume, nil // never calls next: duplicate already handled
	})
	scoped := queuebacca.NewScopedMessageConsumer(terminal, dedupe)

	cfg, err := queuebacca.NewSubscriptionConfiguration[orderPlaced](bin, serializer, scoped).Build()
	require.NoError(t, err)

	subscriber := queuebacca.NewSubscriber()
	ctx, cancel := context.WithCancel(s.Ctx)
	sub := queuebacca.Subscribe(ctx, subscriber, broker, cfg)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, terminalCalled.Load())

	cancel()
	sub.Cancel()
	sub.Wait()
}

// S6: routing dispatches a decoded message to an interface-matched
// consumer. The Serializer decodes into a concrete type; RoutingMessageConsumer
// then resolves that concrete type against its registered interface route,
// exactly the resolution path routing_test.go exercises directly.
func (s *subscriptionSuite) TestRoutesByInterface() {
	t := s.T()
	broker := newOrdersBroker(time.Second)
	bin := queuebacca.MessageBin{Name: "events"}
	serializer := dispatchSerializer{}

	handled := make(chan *shipmentCreated, 1)
	router := queuebacca.NewRoutingMessageConsumer[dispatchable]()
	router.RegisterInterface((*dispatchable)(nil), queuebacca.MessageConsumerFunc[dispatchable](func(_ context.Context, message dispatchable, _ queuebacca.MessageContext) (queuebacca.MessageResponse, error) {
		handled <- message.(*shipmentCreated)
		return queuebacca.Consume, nil
	}))

	cfg, err := queuebacca.NewSubscriptionConfiguration[dispatchable](bin, serializer, router).Build()
	require.NoError(t, err)

	raw, err := serializer.ToString(&shipmentCreated{OrderID: "o-4"})
	require.NoError(t, err)
	_, err = broker.SendMessage(s.Ctx, bin, raw, 0)
	require.NoError(t, err)

	subscriber := queuebacca.NewSubscriber()
	ctx, cancel := context.WithCancel(s.Ctx)
	sub := queuebacca.Subscribe(ctx, subscriber, broker, cfg)

	select {
	case got := <-handled:
		assert.Equal(t, "o-4", got.OrderID)
	case <-time.After(time.Second):
		t.Fatal("message was never routed")
	}

	cancel()
	sub.Cancel()
	sub.Wait()
}

type dispatchable interface {
	Kind() string
}

type shipmentCreated struct {
	OrderID string `json:"orderId"`
}

func (s *shipmentCreated) Kind() string { return "shipment-created" }

// dispatchSerializer always decodes into *shipmentCreated; a real
// multi-type bin would inspect an envelope attribute to pick the target
// type, which is outside what Serializer's body-only contract models.
type dispatchSerializer struct{}

func (dispatchSerializer) ToString(message dispatchable) (string, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return "", queuebacca.SerializationError(err)
	}
	return string(body), nil
}

func (dispatchSerializer) FromString(body string) (dispatchable, error) {
	var m shipmentCreated
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return nil, queuebacca.SerializationError(err)
	}
	return &m, nil
}
