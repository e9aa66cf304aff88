package queuebacca

import "context"

// MessageConsumer is the terminal handler for messages of type M. Its
// return value (or raised error) becomes the consume attempt's
// disposition, subject to ScopedMessageConsumer's chain-of-responsibility
// policy (see MessageScope).
type MessageConsumer[M any] interface {
	Consume(ctx context.Context, message M, msgCtx MessageContext) (MessageResponse, error)
}

// MessageConsumerFunc adapts a plain function to a MessageConsumer.
type MessageConsumerFunc[M any] func(ctx context.Context, message M, msgCtx MessageContext) (MessageResponse, error)

func (f MessageConsumerFunc[M]) Consume(ctx context.Context, message M, msgCtx MessageContext) (MessageResponse, error) {
	return f(ctx, message, msgCtx)
}
