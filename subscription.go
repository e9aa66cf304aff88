package queuebacca

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/queuebacca/events"
	"github.com/go-playground/validator/v10"
)

// Finalizer is invoked after a disposition has been applied, with the
// envelope (as its decoded MessageContext) and the disposition that was
// applied. It is a hook, not a gate: it returns nothing, and a panic
// inside it is recovered and logged, never allowed to affect the
// permit/refresh bookkeeping in handle().
type Finalizer[M any] func(ctx context.Context, msgCtx MessageContext, disposition MessageResponse)

// subscriptionOptions holds everything validate-able about a
// SubscriptionConfiguration; it exists only so go-playground/validator can
// be pointed at a plain struct independent of the generic consumer/
// serializer fields a validator can't usefully inspect.
type subscriptionOptions struct {
	BinName         string `validate:"required"`
	MessageCapacity int    `validate:"required,gt=0"`
}

// SubscriptionConfiguration is the immutable result of building a
// subscription: a bin, a typed consumer, and the policies governing its
// concurrency and failure handling. Construct one with
// NewSubscriptionConfiguration(...).Build().
type SubscriptionConfiguration[M any] struct {
	Bin                 MessageBin
	Serializer          Serializer[M]
	Consumer            MessageConsumer[M]
	MessageCapacity     int
	VisibilityTimeout   time.Duration
	ExceptionResolver   *ExceptionResolver
	RetryDelayGenerator RetryDelayGenerator
	Finalizer           Finalizer[M]

	notifyBus   events.Bus
	notifyTopic string
}

// SubscriptionConfigurationBuilder builds a SubscriptionConfiguration.
type SubscriptionConfigurationBuilder[M any] struct {
	cfg      SubscriptionConfiguration[M]
	validate *validator.Validate
}

// NewSubscriptionConfiguration starts building a SubscriptionConfiguration
// for bin, decoding/encoding messages with serializer and handing
// successful decodes to consumer.
func NewSubscriptionConfiguration[M any](bin MessageBin, serializer Serializer[M], consumer MessageConsumer[M]) *SubscriptionConfigurationBuilder[M] {
	return &SubscriptionConfigurationBuilder[M]{
		cfg: SubscriptionConfiguration[M]{
			Bin:                 bin,
			Serializer:          serializer,
			Consumer:            consumer,
			MessageCapacity:     1,
			VisibilityTimeout:   30 * time.Second,
			ExceptionResolver:   NewExceptionResolver(),
			RetryDelayGenerator: NewConstantRetryDelay(5 * time.Second),
		},
		validate: validator.New(),
	}
}

// WithMessageCapacity sets the maximum number of in-flight messages for
// this subscription. Must be positive; Build returns a ConfigurationError
// otherwise.
func (b *SubscriptionConfigurationBuilder[M]) WithMessageCapacity(capacity int) *SubscriptionConfigurationBuilder[M] {
	b.cfg.MessageCapacity = capacity
	return b
}

// WithVisibilityTimeout overrides the visibility window (default 30s) the
// refresher extends in-flight messages by. It should match, or be derived
// from, the bin's own default visibility timeout.
func (b *SubscriptionConfigurationBuilder[M]) WithVisibilityTimeout(vt time.Duration) *SubscriptionConfigurationBuilder[M] {
	b.cfg.VisibilityTimeout = vt
	return b
}

// WithExceptionResolver overrides the default exception resolver (which
// retries everything it doesn't recognize).
func (b *SubscriptionConfigurationBuilder[M]) WithExceptionResolver(resolver *ExceptionResolver) *SubscriptionConfigurationBuilder[M] {
	b.cfg.ExceptionResolver = resolver
	return b
}

// WithRetryDelayGenerator overrides the default retry delay generator
// (ConstantRetryDelay(5s)).
func (b *SubscriptionConfigurationBuilder[M]) WithRetryDelayGenerator(generator RetryDelayGenerator) *SubscriptionConfigurationBuilder[M] {
	b.cfg.RetryDelayGenerator = generator
	return b
}

// WithFinalizer registers a hook invoked after every disposition.
func (b *SubscriptionConfigurationBuilder[M]) WithFinalizer(finalizer Finalizer[M]) *SubscriptionConfigurationBuilder[M] {
	b.cfg.Finalizer = finalizer
	return b
}

// WithNotifier makes the subscription publish a best-effort disposition
// event to bus under topic after every disposition, in addition to any
// Finalizer. Publish failures are logged, never escalated.
func (b *SubscriptionConfigurationBuilder[M]) WithNotifier(bus events.Bus, topic string) *SubscriptionConfigurationBuilder[M] {
	b.cfg.notifyBus = bus
	b.cfg.notifyTopic = topic
	return b
}

// Build validates and returns the SubscriptionConfiguration, or a
// ConfigurationError if the bin name is empty, the consumer is nil, or
// the message capacity is not positive.
func (b *SubscriptionConfigurationBuilder[M]) Build() (SubscriptionConfiguration[M], error) {
	if b.cfg.Consumer == nil {
		return SubscriptionConfiguration[M]{}, ConfigurationError("consumer must not be nil", nil)
	}
	opts := subscriptionOptions{
		BinName:         b.cfg.Bin.Name,
		MessageCapacity: b.cfg.MessageCapacity,
	}
	if err := b.validate.Struct(opts); err != nil {
		return SubscriptionConfiguration[M]{}, ConfigurationError("invalid subscription configuration", err)
	}
	return b.cfg, nil
}
