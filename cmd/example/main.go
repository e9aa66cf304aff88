// Command example wires queuebacca's pieces into a runnable worker
// process: configuration, tracing, logging, an SQS broker, a publisher,
// and a subscription consuming what it publishes. It is the shape the
// now-empty worker-service template was always meant to hold.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/chris-alexander-pop/queuebacca"
	"github.com/chris-alexander-pop/queuebacca/broker/sqs"
	"github.com/chris-alexander-pop/queuebacca/config"
	"github.com/chris-alexander-pop/queuebacca/logging"
	"github.com/chris-alexander-pop/queuebacca/telemetry"
)

type orderPlaced struct {
	OrderID string `json:"order_id"`
}

var ordersBin = queuebacca.MessageBin{Name: "orders"}

func main() {
	if err := run(); err != nil {
		slog.Error("example exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.SubscriberConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return queuebacca.ConfigurationError("failed to load AWS configuration", err)
	}

	client := awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
		if cfg.QueueEndpointURL != "" {
			o.BaseEndpoint = &cfg.QueueEndpointURL
		}
	})

	bins := queuebacca.BinRegistry{
		ordersBin.Name: {
			Address:                  cfg.QueueEndpointURL + "/orders",
			DefaultVisibilityTimeout: cfg.DefaultVisibilityTimeout(),
		},
	}

	broker := sqs.New(client, bins,
		sqs.WithWaitSeconds(cfg.WaitSeconds()),
		sqs.WithLogger(logger),
	)

	serializer := queuebacca.NewJSONSerializer[orderPlaced]()

	publisher := queuebacca.NewPublisher(broker, ordersBin, serializer)
	if _, err := publisher.Publish(ctx, orderPlaced{OrderID: "example-1"}, 0); err != nil {
		logger.ErrorContext(ctx, "failed to publish seed message", "error", err)
	}

	consumer := queuebacca.MessageConsumerFunc[orderPlaced](func(ctx context.Context, msg orderPlaced, msgCtx queuebacca.MessageContext) (queuebacca.MessageResponse, error) {
		logger.InfoContext(ctx, "received order", "order_id", msg.OrderID, "read_count", msgCtx.ReadCount)
		return queuebacca.Consume, nil
	})

	subCfg, err := queuebacca.NewSubscriptionConfiguration(ordersBin, serializer, consumer).
		WithMessageCapacity(cfg.MaxMessagesPerPull).
		WithVisibilityTimeout(cfg.DefaultVisibilityTimeout()).
		Build()
	if err != nil {
		return err
	}

	subscriber := queuebacca.NewSubscriber()
	sub := queuebacca.Subscribe(ctx, subscriber, broker, subCfg)

	<-ctx.Done()
	logger.Info("shutting down")
	sub.Cancel()
	sub.Wait()
	return nil
}
