package queuebacca

import (
	"context"
	"fmt"
	"time"
)

// Broker is the abstract capability the subscription worker engine
// requires of a concrete message-queue client. RetrieveMessages is a
// long-poll that blocks up to roughly 20s and must return a
// CancellationError (via errors.As/*AppError) when ctx is cancelled
// mid-poll, so the subscription worker can unblock on shutdown; every
// other operation is synchronous. All operations may fail; failures are
// surfaced to the caller, which for RetrieveMessages/ReturnMessage/
// DisposeMessage is always the subscription worker, and for
// ExtendVisibility the visibility refresher.
//
// Implementations must be safe for concurrent use: the puller calls
// RetrieveMessages, consumer goroutines call ReturnMessage/DisposeMessage,
// and the visibility refresher calls ExtendVisibility, all against the
// same Broker value at once.
type Broker interface {
	// SendMessage delivers a single message body to bin, visible after
	// delay.
	SendMessage(ctx context.Context, bin MessageBin, body string, delay time.Duration) (OutgoingEnvelope[string], error)

	// SendMessages delivers multiple message bodies to bin. Implementations
	// may chunk internally (the SQS adapter sends 10 per batch call).
	SendMessages(ctx context.Context, bin MessageBin, bodies []string, delay time.Duration) ([]OutgoingEnvelope[string], error)

	// RetrieveMessages long-polls bin for up to maxMessages deliveries,
	// capped at the broker's own per-call limit (10, for SQS).
	RetrieveMessages(ctx context.Context, bin MessageBin, maxMessages int) ([]IncomingEnvelope[string], error)

	// ReturnMessage changes the message's visibility so it becomes
	// re-deliverable after delay. Used for the Retry disposition.
	ReturnMessage(ctx context.Context, bin MessageBin, env IncomingEnvelope[string], delay time.Duration) error

	// DisposeMessage deletes/acknowledges the message. Used for the
	// Consume disposition.
	DisposeMessage(ctx context.Context, bin MessageBin, env IncomingEnvelope[string]) error

	// ExtendVisibility extends the visibility lease on receipt by
	// visibilityTimeout. Used only by the visibility refresher.
	ExtendVisibility(ctx context.Context, bin MessageBin, receipt string, visibilityTimeout time.Duration) error
}

// MaxMessageSizeBytes is the broker's accepted message body size ceiling.
// Named (and valued) in bytes, not kilobytes: the reference implementation
// this module's spec was distilled from declared a same-valued constant
// named as if it were kilobytes. The byte comparison is preserved here;
// only the name is corrected.
const MaxMessageSizeBytes = 256 * 1024

// validateBodySize rejects a serialized message body that exceeds
// MaxMessageSizeBytes before it ever reaches a Broker call, the same
// boundary SendMessage/SendMessageBatch enforce server-side on SQS.
func validateBodySize(body string) error {
	if len(body) > MaxMessageSizeBytes {
		return SerializationError(fmt.Errorf("message body is %d bytes, exceeds the %d byte limit", len(body), MaxMessageSizeBytes))
	}
	return nil
}

// MaxBatchSize is the broker's accepted per-call batch size for both
// SendMessages and RetrieveMessages (SQS: 10).
const MaxBatchSize = 10

// MaxVisibilityTimeoutSeconds is the broker's accepted upper bound for a
// visibility timeout or retry delay, in seconds (SQS: 0-900).
const MaxVisibilityTimeoutSeconds = 900
