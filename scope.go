package queuebacca

import "context"

// Next continues a ScopedMessageConsumer's chain. Calling it more than
// once is a no-op after the first call: the chain is single-use.
type Next[M any] func(ctx context.Context, message M, msgCtx MessageContext) (MessageResponse, error)

// MessageScope is a pre-processor wrapped around a terminal
// MessageConsumer. A scope that returns without calling next is
// considered to have successfully consumed the message (CONSUME) without
// the terminal consumer ever running. A scope may return an error instead,
// which propagates out of ScopedMessageConsumer.Consume unchanged; the
// subscription worker wraps it in a ConsumerError before resolving it.
type MessageScope[M any] interface {
	Handle(ctx context.Context, message M, msgCtx MessageContext, next Next[M]) (MessageResponse, error)
}

// MessageScopeFunc adapts a plain function to a MessageScope.
type MessageScopeFunc[M any] func(ctx context.Context, message M, msgCtx MessageContext, next Next[M]) (MessageResponse, error)

func (f MessageScopeFunc[M]) Handle(ctx context.Context, message M, msgCtx MessageContext, next Next[M]) (MessageResponse, error) {
	return f(ctx, message, msgCtx, next)
}

// ScopedMessageConsumer wraps a terminal MessageConsumer with an ordered,
// non-empty chain of MessageScope pre-processors. On Consume it builds a
// fresh, single-use chain and invokes the first scope.
type ScopedMessageConsumer[M any] struct {
	scopes   []MessageScope[M]
	terminal MessageConsumer[M]
}

// NewScopedMessageConsumer builds a ScopedMessageConsumer. scopes must be
// non-empty; it runs before terminal, in order.
func NewScopedMessageConsumer[M any](terminal MessageConsumer[M], scopes ...MessageScope[M]) *ScopedMessageConsumer[M] {
	if len(scopes) == 0 {
		panic("queuebacca: ScopedMessageConsumer requires at least one scope")
	}
	return &ScopedMessageConsumer[M]{scopes: scopes, terminal: terminal}
}

func (c *ScopedMessageConsumer[M]) Consume(ctx context.Context, message M, msgCtx MessageContext) (MessageResponse, error) {
	cursor := &scopeCursor[M]{scopes: c.scopes, terminal: c.terminal}
	return cursor.invoke(0, ctx, message, msgCtx)
}

// scopeCursor realizes the single-use "did you call next()" policy as an
// index into the immutable scope list, walked by a fresh next closure per
// invoke call.
type scopeCursor[M any] struct {
	scopes   []MessageScope[M]
	terminal MessageConsumer[M]
}

func (c *scopeCursor[M]) invoke(index int, ctx context.Context, message M, msgCtx MessageContext) (MessageResponse, error) {
	if index >= len(c.scopes) {
		return c.terminal.Consume(ctx, message, msgCtx)
	}

	scope := c.scopes[index]
	used := false
	var cachedResponse MessageResponse
	var cachedErr error
	next := func(ctx context.Context, message M, msgCtx MessageContext) (MessageResponse, error) {
		if used {
			// Second call to next() within the same scope invocation: a true
			// no-op, returning the first call's outcome without re-running
			// the downstream chain.
			return cachedResponse, cachedErr
		}
		used = true
		cachedResponse, cachedErr = c.invoke(index+1, ctx, message, msgCtx)
		return cachedResponse, cachedErr
	}

	response, err := scope.Handle(ctx, message, msgCtx, next)
	if err != nil {
		return 0, err
	}
	if !used {
		// The scope returned without calling next(): treat as successfully
		// consumed without running the remainder of the chain.
		return Consume, nil
	}
	return response, nil
}
