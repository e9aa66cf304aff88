package queuebacca

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionConfigurationBuilderDefaults(t *testing.T) {
	consumer := MessageConsumerFunc[greeting](func(_ context.Context, _ greeting, _ MessageContext) (MessageResponse, error) {
		return Consume, nil
	})
	cfg, err := NewSubscriptionConfiguration(MessageBin{Name: "greetings"}, NewJSONSerializer[greeting](), consumer).Build()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.MessageCapacity)
	assert.Equal(t, 30*time.Second, cfg.VisibilityTimeout)
	assert.NotNil(t, cfg.ExceptionResolver)
	assert.NotNil(t, cfg.RetryDelayGenerator)
}

func TestSubscriptionConfigurationBuilderRejectsNilConsumer(t *testing.T) {
	_, err := NewSubscriptionConfiguration[greeting](MessageBin{Name: "greetings"}, NewJSONSerializer[greeting](), nil).Build()
	assert.True(t, IsConfiguration(err))
}

func TestSubscriptionConfigurationBuilderRejectsEmptyBinName(t *testing.T) {
	consumer := MessageConsumerFunc[greeting](func(_ context.Context, _ greeting, _ MessageContext) (MessageResponse, error) {
		return Consume, nil
	})
	_, err := NewSubscriptionConfiguration(MessageBin{}, NewJSONSerializer[greeting](), consumer).Build()
	assert.True(t, IsConfiguration(err))
}

func TestSubscriptionConfigurationBuilderRejectsNonPositiveCapacity(t *testing.T) {
	consumer := MessageConsumerFunc[greeting](func(_ context.Context, _ greeting, _ MessageContext) (MessageResponse, error) {
		return Consume, nil
	})
	_, err := NewSubscriptionConfiguration(MessageBin{Name: "greetings"}, NewJSONSerializer[greeting](), consumer).
		WithMessageCapacity(0).
		Build()
	assert.True(t, IsConfiguration(err))
}
