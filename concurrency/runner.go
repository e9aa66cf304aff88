package concurrency

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// SafeGo runs fn in a new goroutine, recovering any panic and logging it
// through logger instead of crashing the process. The subscription
// worker's puller loop runs this way: a panic in a single iteration must
// not take down every other subscription sharing the process.
func SafeGo(ctx context.Context, logger *slog.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic recovered: %v", r)
				logger.ErrorContext(ctx, "goroutine panic", "error", err, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
