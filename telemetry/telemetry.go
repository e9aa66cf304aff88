// Package telemetry bootstraps OpenTelemetry tracing, the way the
// teacher's pkg/telemetry.Init does: an OTLP gRPC exporter, a resource
// describing this service, and a tracer provider registered as the
// global default so every otel.Tracer("queuebacca") call in this module
// picks it up. Trace/span IDs reach log/slog output through
// logging.TraceHandler, not through anything in this package.
package telemetry

import (
	"context"

	"github.com/chris-alexander-pop/queuebacca"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Config describes the service identity and collector endpoint for
// trace export.
type Config struct {
	ServiceName    string `env:"QUEUEBACCA_SERVICE_NAME" env-default:"queuebacca-worker"`
	ServiceVersion string `env:"QUEUEBACCA_SERVICE_VERSION" env-default:"0.0.1"`
	Environment    string `env:"APP_ENV" env-default:"development"`
	Endpoint       string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`

	// SampleRate is the fraction of traces kept, in [0, 1]. A subscription
	// worker pulling continuously would otherwise export a span per
	// message forever; 1 (the default) keeps every trace, appropriate for
	// development but rarely what a production deployment wants.
	SampleRate float64 `env:"QUEUEBACCA_TRACE_SAMPLE_RATE" env-default:"1.0" validate:"gte=0,lte=1"`
}

func (c Config) sampler() sdktrace.Sampler {
	if c.SampleRate <= 0 {
		return sdktrace.NeverSample()
	}
	if c.SampleRate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRate))
}

// Init registers a global tracer provider exporting to cfg.Endpoint over
// OTLP/gRPC and returns its shutdown func. Callers should defer
// shutdown(ctx) to flush pending spans on exit.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, queuebacca.ConfigurationError("failed to build telemetry resource", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, queuebacca.ConfigurationError("failed to build trace exporter", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
