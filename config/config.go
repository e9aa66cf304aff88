// Package config loads and validates environment-driven configuration,
// the way the teacher's own pkg/config.Load[T] does: cleanenv for
// reading a .env file or the process environment into a struct, then
// go-playground/validator for enforcing its tags.
package config

import (
	"time"

	"github.com/chris-alexander-pop/queuebacca"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads cfg from a .env file if present, falling back to the
// process environment, then validates it. A failure at either stage is
// returned as a ConfigurationError.
func Load[T any](cfg *T) error {
	if err := cleanenv.ReadConfig(".env", cfg); err != nil {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return queuebacca.ConfigurationError("failed to read configuration", err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return queuebacca.ConfigurationError("configuration validation failed", err)
	}

	return nil
}

// SubscriberConfig is the environment-driven shape of everything a
// process running subscription workers typically needs beyond the
// SubscriptionConfiguration values set in code: broker endpoint details,
// the shared poll/visibility defaults, and the OTel/logging bootstrap
// settings.
type SubscriberConfig struct {
	// QueueEndpointURL overrides the SQS endpoint (useful for local
	// stacks like localstack or elasticmq). Empty means use the AWS SDK's
	// normal endpoint resolution.
	QueueEndpointURL string `env:"QUEUEBACCA_QUEUE_ENDPOINT_URL"`

	// Region is the AWS region the SQS client targets.
	Region string `env:"QUEUEBACCA_REGION" env-default:"us-east-1"`

	// DefaultVisibilityTimeoutSeconds is used for bins that don't specify
	// their own WithVisibilityTimeout.
	DefaultVisibilityTimeoutSeconds int `env:"QUEUEBACCA_DEFAULT_VISIBILITY_TIMEOUT_SECONDS" env-default:"30" validate:"gte=0,lte=900"`

	// MaxMessagesPerPull bounds how many messages a single RetrieveMessages
	// call asks the broker for, before the broker's own cap (10 for SQS)
	// is applied.
	MaxMessagesPerPull int `env:"QUEUEBACCA_MAX_MESSAGES_PER_PULL" env-default:"10" validate:"gte=1,lte=10"`

	// LongPollWaitSeconds is the SQS WaitTimeSeconds used for long-polling.
	LongPollWaitSeconds int `env:"QUEUEBACCA_LONG_POLL_WAIT_SECONDS" env-default:"20" validate:"gte=0,lte=20"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint traces are
	// exported to.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`

	// ServiceName identifies this process in traces and logs.
	ServiceName string `env:"QUEUEBACCA_SERVICE_NAME" env-default:"queuebacca-worker"`

	// TraceSampleRate is forwarded to telemetry.Config.SampleRate.
	TraceSampleRate float64 `env:"QUEUEBACCA_TRACE_SAMPLE_RATE" env-default:"1.0" validate:"gte=0,lte=1"`

	// LogLevel and LogFormat are forwarded to logging.Config.
	LogLevel  string `env:"QUEUEBACCA_LOG_LEVEL" env-default:"INFO"`
	LogFormat string `env:"QUEUEBACCA_LOG_FORMAT" env-default:"JSON"`
}

// DefaultVisibilityTimeout converts DefaultVisibilityTimeoutSeconds into
// the time.Duration the engine's BinAddress/SubscriptionConfiguration
// types actually take, so callers wiring a process together don't each
// repeat the same *time.Second conversion.
func (c SubscriberConfig) DefaultVisibilityTimeout() time.Duration {
	return time.Duration(c.DefaultVisibilityTimeoutSeconds) * time.Second
}

// WaitSeconds returns LongPollWaitSeconds narrowed to the int32 the SQS
// SDK's WaitTimeSeconds field and sqs.WithWaitSeconds take.
func (c SubscriberConfig) WaitSeconds() int32 {
	return int32(c.LongPollWaitSeconds)
}
