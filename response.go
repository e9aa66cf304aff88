package queuebacca

// MessageResponse is the engine's disposition for a consume attempt.
type MessageResponse int

const (
	// Consume deletes the message from the broker; it was handled
	// successfully and must never be seen again.
	Consume MessageResponse = iota
	// Retry returns the message to the broker with a delay computed by the
	// subscription's RetryDelayGenerator.
	Retry
	// Terminate drops the message without deleting it. No broker call is
	// made; the broker's own visibility timeout, and eventually its
	// dead-letter policy, takes over.
	Terminate
)

func (r MessageResponse) String() string {
	switch r {
	case Consume:
		return "CONSUME"
	case Retry:
		return "RETRY"
	case Terminate:
		return "TERMINATE"
	default:
		return "UNKNOWN"
	}
}
