package queuebacca

import (
	"context"
	"log/slog"
)

// ExceptionHandler maps a raised error to a disposition.
type ExceptionHandler func(err error, ctx MessageContext) MessageResponse

// exceptionRule is one entry of the resolver's ordered registry: matches
// reports whether handler applies to err. Go has no runtime exception
// class hierarchy to walk, so in place of "ascend to supertype and retry"
// the resolver consults an ordered list of (matcher, handler) pairs and
// takes the first match — the most-specific rule should be registered
// first. A matcher built with errors.As still gets "walk to the wrapped
// cause" behavior for free, since errors.As unwraps.
type exceptionRule struct {
	matches func(error) bool
	handle  ExceptionHandler
}

// ExceptionResolver maps a raised error to a MessageResponse. An
// unmatched error is logged at error level (including the message ID) and
// resolves to Retry, per spec.
type ExceptionResolver struct {
	rules  []exceptionRule
	logger *slog.Logger
}

// NewExceptionResolver returns an ExceptionResolver with no rules
// registered: every error resolves to Retry until rules are added with
// On.
func NewExceptionResolver() *ExceptionResolver {
	return &ExceptionResolver{logger: defaultLogger()}
}

// On registers handler for errors matched by matches, appended to the end
// of the resolution order. Register the most specific matchers first.
func (r *ExceptionResolver) On(matches func(error) bool, handler ExceptionHandler) *ExceptionResolver {
	r.rules = append(r.rules, exceptionRule{matches: matches, handle: handler})
	return r
}

// Resolve returns the disposition for err, per ctx. It is never itself
// allowed to panic out of the subscription worker: an unmatched error, or
// a matcher or handler that panics, is logged and resolved as Retry.
func (r *ExceptionResolver) Resolve(ctx context.Context, err error, msgCtx MessageContext) (response MessageResponse) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "exception handler panicked, retrying",
				"message_id", msgCtx.MessageID, "error", err, "panic", p)
			response = Retry
		}
	}()

	for _, rule := range r.rules {
		if rule.matches(err) {
			return rule.handle(err, msgCtx)
		}
	}
	r.logger.ErrorContext(ctx, "unhandled consumer error, retrying",
		"message_id", msgCtx.MessageID, "error", err)
	return Retry
}
