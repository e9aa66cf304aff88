package queuebacca

import (
	"errors"
	"fmt"
)

// Error codes for the kinds of failure the engine and its collaborators can
// raise. A caller that needs to distinguish them should use errors.As
// against *AppError and switch on Code, or use the IsXxx helpers below.
const (
	CodeConfiguration = "QUEUEBACCA_CONFIGURATION"
	CodeBroker        = "QUEUEBACCA_BROKER"
	CodeSerialization = "QUEUEBACCA_SERIALIZATION"
	CodeConsumer      = "QUEUEBACCA_CONSUMER"
	CodeCancellation  = "QUEUEBACCA_CANCELLATION"
)

// AppError is the structured error type every package-level error
// constructor in this module returns. It chains an underlying cause so
// errors.Is/errors.As keep working through it.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func newAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

func wrapAppError(code string, cause error, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a setup problem. Build returns one for an
// empty bin name, a nil consumer or a non-positive capacity, straight to
// the caller. RoutingMessageConsumer.Consume returns one for a message
// type with no registered route, which the subscription worker resolves
// like any other consumer failure. A duplicate routing registration is not
// reported this way: Register and RegisterInterface panic instead.
func ConfigurationError(message string, cause error) *AppError {
	return newAppError(CodeConfiguration, message, cause)
}

// BrokerErrorf reports a failure from the Broker. For send/ack/extend the
// engine logs it and propagates it to the caller of that operation; the
// engine never retries a broker call itself.
func BrokerErrorf(cause error, format string, args ...any) *AppError {
	return wrapAppError(CodeBroker, cause, fmt.Sprintf(format, args...))
}

// SerializationError reports a Serializer failure. The subscription worker
// treats it exactly like a ConsumerError: it is routed through the
// exception resolver to produce a disposition.
func SerializationError(cause error) *AppError {
	return newAppError(CodeSerialization, "failed to serialize or deserialize message", cause)
}

// ConsumerError wraps any error raised by a scope, a routed consumer or a
// terminal consumer. It is what the exception resolver sees.
func ConsumerError(cause error) *AppError {
	return newAppError(CodeConsumer, "consumer raised an error", cause)
}

// CancellationError unblocks the puller loop. It is never surfaced to a
// library caller as a user-visible failure; the subscription worker checks
// for it with IsCancellation and exits its loop silently.
func CancellationError(cause error) *AppError {
	return newAppError(CodeCancellation, "operation cancelled", cause)
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool { return hasCode(err, CodeConfiguration) }

// IsBroker reports whether err is (or wraps) a broker failure.
func IsBroker(err error) bool { return hasCode(err, CodeBroker) }

// IsSerialization reports whether err is (or wraps) a SerializationError.
func IsSerialization(err error) bool { return hasCode(err, CodeSerialization) }

// IsConsumer reports whether err is (or wraps) a ConsumerError.
func IsConsumer(err error) bool { return hasCode(err, CodeConsumer) }

// IsCancellation reports whether err is (or wraps) a CancellationError.
func IsCancellation(err error) bool { return hasCode(err, CodeCancellation) }
