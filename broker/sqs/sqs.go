// Package sqs implements queuebacca.Broker over Amazon SQS, the
// production counterpart to broker/memory. Grounded on the AWS SDK v2
// call shapes other SQS-backed Go services in this corpus use
// (ReceiveMessage/DeleteMessage/ChangeMessageVisibility/SendMessage/
// SendMessageBatch), with queuebacca.BinRegistry standing in for the
// per-consumer queue-URL field those implementations hardcode.
package sqs

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/chris-alexander-pop/queuebacca"
	"github.com/chris-alexander-pop/queuebacca/resilience"
)

// API is the subset of *sqs.Client the broker depends on, narrow enough
// to fake in tests without standing up a real client.
type API interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *awssqs.SendMessageBatchInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
}

// Broker adapts queuebacca.Broker to Amazon SQS.
type Broker struct {
	client      API
	bins        queuebacca.BinRegistry
	waitSeconds int32
	retry       resilience.RetryConfig
	logger      *slog.Logger
}

// Option customizes a Broker built with New.
type Option func(*Broker)

// WithWaitSeconds overrides the long-poll WaitTimeSeconds (default 20,
// the SQS maximum).
func WithWaitSeconds(seconds int32) Option {
	return func(b *Broker) { b.waitSeconds = seconds }
}

// WithRetryConfig overrides the backoff used for transient AWS API
// errors on every operation (default resilience.DefaultRetryConfig()).
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(b *Broker) { b.retry = cfg }
}

// WithLogger overrides the broker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// New returns a Broker that resolves MessageBins via bins and talks to
// SQS through client.
func New(client API, bins queuebacca.BinRegistry, opts ...Option) *Broker {
	b := &Broker{
		client:      client,
		bins:        bins,
		waitSeconds: 20,
		retry:       resilience.DefaultRetryConfig(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) resolve(bin queuebacca.MessageBin) (queuebacca.BinAddress, error) {
	addr, ok := b.bins.Lookup(bin)
	if !ok {
		return queuebacca.BinAddress{}, queuebacca.ConfigurationError("bin is not registered: "+bin.Name, nil)
	}
	return addr, nil
}

func (b *Broker) withRetry(ctx context.Context, op string, fn resilience.Executor) error {
	cfg := b.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		b.logger.WarnContext(ctx, "retrying sqs operation", "operation", op, "attempt", attempt+1, "delay", delay, "error", err)
	}

	err := resilience.Retry(ctx, cfg, fn)
	if err != nil && ctx.Err() == nil {
		return queuebacca.BrokerErrorf(err, "sqs %s failed", op)
	}
	return err
}

func (b *Broker) SendMessage(ctx context.Context, bin queuebacca.MessageBin, body string, delay time.Duration) (queuebacca.OutgoingEnvelope[string], error) {
	addr, err := b.resolve(bin)
	if err != nil {
		return queuebacca.OutgoingEnvelope[string]{}, err
	}

	var out *awssqs.SendMessageOutput
	err = b.withRetry(ctx, "SendMessage", func(ctx context.Context) error {
		var sendErr error
		out, sendErr = b.client.SendMessage(ctx, &awssqs.SendMessageInput{
			QueueUrl:     &addr.Address,
			MessageBody:  &body,
			DelaySeconds: int32(delay.Seconds()),
		})
		return sendErr
	})
	if err != nil {
		return queuebacca.OutgoingEnvelope[string]{}, err
	}

	return queuebacca.OutgoingEnvelope[string]{MessageID: *out.MessageId, Message: body, RawMessage: body}, nil
}

func (b *Broker) SendMessages(ctx context.Context, bin queuebacca.MessageBin, bodies []string, delay time.Duration) ([]queuebacca.OutgoingEnvelope[string], error) {
	addr, err := b.resolve(bin)
	if err != nil {
		return nil, err
	}

	outs := make([]queuebacca.OutgoingEnvelope[string], 0, len(bodies))
	for start := 0; start < len(bodies); start += queuebacca.MaxBatchSize {
		end := start + queuebacca.MaxBatchSize
		if end > len(bodies) {
			end = len(bodies)
		}
		chunk := bodies[start:end]

		entries := make([]types.SendMessageBatchRequestEntry, len(chunk))
		for i, body := range chunk {
			id := strconv.Itoa(i)
			entries[i] = types.SendMessageBatchRequestEntry{
				Id:           &id,
				MessageBody:  &body,
				DelaySeconds: int32(delay.Seconds()),
			}
		}

		var out *awssqs.SendMessageBatchOutput
		err = b.withRetry(ctx, "SendMessageBatch", func(ctx context.Context) error {
			var sendErr error
			out, sendErr = b.client.SendMessageBatch(ctx, &awssqs.SendMessageBatchInput{
				QueueUrl: &addr.Address,
				Entries:  entries,
			})
			return sendErr
		})
		if err != nil {
			return outs, err
		}
		if len(out.Failed) > 0 {
			return outs, queuebacca.BrokerErrorf(nil, "sqs SendMessageBatch: %d of %d entries failed", len(out.Failed), len(chunk))
		}

		for _, entry := range out.Successful {
			idx, _ := strconv.Atoi(*entry.Id)
			outs = append(outs, queuebacca.OutgoingEnvelope[string]{MessageID: *entry.MessageId, Message: chunk[idx], RawMessage: chunk[idx]})
		}
	}
	return outs, nil
}

func (b *Broker) RetrieveMessages(ctx context.Context, bin queuebacca.MessageBin, maxMessages int) ([]queuebacca.IncomingEnvelope[string], error) {
	addr, err := b.resolve(bin)
	if err != nil {
		return nil, err
	}
	if maxMessages > queuebacca.MaxBatchSize {
		maxMessages = queuebacca.MaxBatchSize
	}
	if maxMessages < 1 {
		maxMessages = 1
	}

	visibilityTimeout := addr.DefaultVisibilityTimeout
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}

	var out *awssqs.ReceiveMessageOutput
	err = b.withRetry(ctx, "ReceiveMessage", func(ctx context.Context) error {
		var recvErr error
		out, recvErr = b.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:              &addr.Address,
			MaxNumberOfMessages:   int32(maxMessages),
			WaitTimeSeconds:       b.waitSeconds,
			VisibilityTimeout:     int32(visibilityTimeout.Seconds()),
			MessageAttributeNames: []string{"All"},
			AttributeNames:        []types.QueueAttributeName{types.QueueAttributeNameApproximateReceiveCount, types.QueueAttributeNameSentTimestamp},
		})
		return recvErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, queuebacca.CancellationError(ctx.Err())
		}
		return nil, err
	}

	envs := make([]queuebacca.IncomingEnvelope[string], 0, len(out.Messages))
	for _, msg := range out.Messages {
		envs = append(envs, toEnvelope(msg))
	}
	return envs, nil
}

func toEnvelope(msg types.Message) queuebacca.IncomingEnvelope[string] {
	readCount := 1
	if raw, ok := msg.Attributes[string(types.QueueAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			readCount = n
		}
	}

	firstReceived := time.Now()
	if raw, ok := msg.Attributes[string(types.QueueAttributeNameSentTimestamp)]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			firstReceived = time.UnixMilli(ms)
		}
	}

	body := ""
	if msg.Body != nil {
		body = *msg.Body
	}

	return queuebacca.IncomingEnvelope[string]{
		MessageID:     derefOr(msg.MessageId, ""),
		Receipt:       derefOr(msg.ReceiptHandle, ""),
		ReadCount:     readCount,
		FirstReceived: firstReceived,
		Message:       body,
		RawMessage:    body,
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func (b *Broker) ReturnMessage(ctx context.Context, bin queuebacca.MessageBin, env queuebacca.IncomingEnvelope[string], delay time.Duration) error {
	addr, err := b.resolve(bin)
	if err != nil {
		return err
	}
	seconds := int32(delay.Seconds())
	if seconds > queuebacca.MaxVisibilityTimeoutSeconds {
		seconds = queuebacca.MaxVisibilityTimeoutSeconds
	}
	return b.withRetry(ctx, "ChangeMessageVisibility", func(ctx context.Context) error {
		_, err := b.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
			QueueUrl:          &addr.Address,
			ReceiptHandle:     &env.Receipt,
			VisibilityTimeout: seconds,
		})
		return err
	})
}

func (b *Broker) DisposeMessage(ctx context.Context, bin queuebacca.MessageBin, env queuebacca.IncomingEnvelope[string]) error {
	addr, err := b.resolve(bin)
	if err != nil {
		return err
	}
	return b.withRetry(ctx, "DeleteMessage", func(ctx context.Context) error {
		_, err := b.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
			QueueUrl:      &addr.Address,
			ReceiptHandle: &env.Receipt,
		})
		return err
	})
}

func (b *Broker) ExtendVisibility(ctx context.Context, bin queuebacca.MessageBin, receipt string, visibilityTimeout time.Duration) error {
	addr, err := b.resolve(bin)
	if err != nil {
		return err
	}
	seconds := int32(visibilityTimeout.Seconds())
	if seconds > queuebacca.MaxVisibilityTimeoutSeconds {
		seconds = queuebacca.MaxVisibilityTimeoutSeconds
	}
	return b.withRetry(ctx, "ChangeMessageVisibility", func(ctx context.Context) error {
		_, err := b.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
			QueueUrl:          &addr.Address,
			ReceiptHandle:     &receipt,
			VisibilityTimeout: seconds,
		})
		return err
	})
}
