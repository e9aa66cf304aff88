/*
Package queuebacca is a client library for publishing into, and subscribing
consumers to, remote message bins backed by an SQS-style queue with
visibility-timeout semantics.

It is built around a subscription worker engine: for each active
SubscriptionConfiguration it pulls batches of messages from a bin, enforces
a per-subscription in-flight cap, dispatches each message to a typed
consumer on a bounded worker pool, extends the broker-side visibility lease
while work is in progress, and applies a disposition (delete, retry with a
computed delay, or terminate) based on the consumer's result.

# Usage

	broker := memory.New(memory.Config{})
	bin := queuebacca.MessageBin{Name: "orders"}
	serializer := queuebacca.NewJSONSerializer[OrderPlaced]()
	publisher := queuebacca.NewPublisher(broker, bin, serializer)
	subscriber := queuebacca.NewSubscriber()

	cfg, err := queuebacca.NewSubscriptionConfiguration(bin, serializer, consumer).
		WithMessageCapacity(10).
		Build()
	if err != nil {
		return err
	}

	sub := queuebacca.Subscribe(ctx, subscriber, broker, cfg)

The broker is the only collaborator the engine treats as external; see
Broker for the contract a concrete adapter must satisfy. This module ships
two: broker/memory for tests and local development, and broker/sqs for
production use against Amazon SQS.
*/
package queuebacca
