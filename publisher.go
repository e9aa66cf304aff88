package queuebacca

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Publisher publishes typed messages of type M into a single bin.
type Publisher[M any] struct {
	broker     Broker
	bin        MessageBin
	serializer Serializer[M]
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewPublisher returns a Publisher that encodes messages with serializer
// and sends them to bin via broker.
func NewPublisher[M any](broker Broker, bin MessageBin, serializer Serializer[M]) *Publisher[M] {
	return &Publisher[M]{
		broker:     broker,
		bin:        bin,
		serializer: serializer,
		tracer:     otel.Tracer("queuebacca"),
		logger:     defaultLogger(),
	}
}

// Publish sends a single message, encoded by the Publisher's Serializer,
// with the given delay before it becomes visible.
func (p *Publisher[M]) Publish(ctx context.Context, message M, delay time.Duration) (OutgoingEnvelope[M], error) {
	ctx, span := p.tracer.Start(ctx, "queuebacca.Publish", trace.WithAttributes(
		attribute.String("queuebacca.bin", p.bin.Name),
	))
	defer span.End()

	body, err := p.serializer.ToString(message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return OutgoingEnvelope[M]{}, err
	}

	if err := validateBodySize(body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return OutgoingEnvelope[M]{}, err
	}

	out, err := p.broker.SendMessage(ctx, p.bin, body, delay)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "failed to publish message", "bin", p.bin.Name, "error", err)
		return OutgoingEnvelope[M]{}, BrokerErrorf(err, "failed to send message to bin %q", p.bin.Name)
	}

	return OutgoingEnvelope[M]{MessageID: out.MessageID, Message: message, RawMessage: body}, nil
}

// PublishBatch sends multiple messages in one broker call, delegating to
// the broker's own batching (SQS: chunks of 10, per spec.md §6.1). All
// messages share the same delay.
func (p *Publisher[M]) PublishBatch(ctx context.Context, messages []M, delay time.Duration) ([]OutgoingEnvelope[M], error) {
	ctx, span := p.tracer.Start(ctx, "queuebacca.PublishBatch", trace.WithAttributes(
		attribute.String("queuebacca.bin", p.bin.Name),
		attribute.Int("queuebacca.batch_size", len(messages)),
	))
	defer span.End()

	bodies := make([]string, len(messages))
	for i, message := range messages {
		body, err := p.serializer.ToString(message)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if err := validateBodySize(body); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		bodies[i] = body
	}

	outs, err := p.broker.SendMessages(ctx, p.bin, bodies, delay)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "failed to publish message batch", "bin", p.bin.Name, "error", err)
		return nil, BrokerErrorf(err, "failed to send message batch to bin %q", p.bin.Name)
	}

	results := make([]OutgoingEnvelope[M], len(outs))
	for i, out := range outs {
		results[i] = OutgoingEnvelope[M]{MessageID: out.MessageID, Message: messages[i], RawMessage: bodies[i]}
	}
	return results, nil
}
