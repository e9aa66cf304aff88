package queuebacca

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shipment struct{ OrderID string }
type refund struct{ OrderID string }

type shippable interface{ isShippable() }

func (shipment) isShippable() {}

func recordingConsumer(tag string, sink *[]string) MessageConsumer[any] {
	return MessageConsumerFunc[any](func(_ context.Context, _ any, _ MessageContext) (MessageResponse, error) {
		*sink = append(*sink, tag)
		return Consume, nil
	})
}

func TestRoutingMessageConsumerExactTypeMatch(t *testing.T) {
	var calls []string
	router := NewRoutingMessageConsumer[any]()
	router.Register(shipment{}, recordingConsumer("shipment", &calls))
	router.Register(refund{}, recordingConsumer("refund", &calls))

	_, err := router.Consume(context.Background(), shipment{OrderID: "1"}, MessageContext{})
	require.NoError(t, err)
	_, err = router.Consume(context.Background(), refund{OrderID: "2"}, MessageContext{})
	require.NoError(t, err)

	assert.Equal(t, []string{"shipment", "refund"}, calls)
}

func TestRoutingMessageConsumerInterfaceFallback(t *testing.T) {
	var calls []string
	router := NewRoutingMessageConsumer[any]()
	router.RegisterInterface((*shippable)(nil), recordingConsumer("shippable", &calls))

	_, err := router.Consume(context.Background(), shipment{OrderID: "1"}, MessageContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"shippable"}, calls)
}

func TestRoutingMessageConsumerExactTypeBeatsInterface(t *testing.T) {
	var calls []string
	router := NewRoutingMessageConsumer[any]()
	router.RegisterInterface((*shippable)(nil), recordingConsumer("shippable", &calls))
	router.Register(shipment{}, recordingConsumer("shipment", &calls))

	_, err := router.Consume(context.Background(), shipment{OrderID: "1"}, MessageContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"shipment"}, calls)
}

func TestRoutingMessageConsumerUnresolvedIsConfigurationError(t *testing.T) {
	router := NewRoutingMessageConsumer[any]()
	_, err := router.Consume(context.Background(), refund{OrderID: "1"}, MessageContext{})
	assert.True(t, IsConfiguration(err))
}

func TestRoutingMessageConsumerMemoizesResolution(t *testing.T) {
	var calls []string
	router := NewRoutingMessageConsumer[any]()
	router.RegisterInterface((*shippable)(nil), recordingConsumer("shippable", &calls))

	for i := 0; i < 5; i++ {
		_, err := router.Consume(context.Background(), shipment{OrderID: "1"}, MessageContext{})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, len(calls))

	resolved, ok := router.resolved.Load(reflect.TypeOf(shipment{}))
	require.True(t, ok)
	assert.NotNil(t, resolved)
}

func TestRoutingMessageConsumerRegisterPanicsOnDuplicate(t *testing.T) {
	router := NewRoutingMessageConsumer[any]()
	router.Register(shipment{}, recordingConsumer("a", &[]string{}))
	assert.Panics(t, func() {
		router.Register(shipment{}, recordingConsumer("b", &[]string{}))
	})
}
