package queuebacca

import (
	"context"
	"reflect"
	"sync"
)

// RoutingMessageConsumer dispatches a message of type M to a registered
// MessageConsumer keyed by M's runtime type. M is typically an interface
// (or any) so a single routing consumer can front several concrete
// payload types registered via Register.
//
// Resolution, in order: (1) the exact concrete type of the message; (2)
// each interface type registered via RegisterInterface, in registration
// order, for which the concrete type satisfies the interface. Go structs
// have no supertype to ascend to, so unlike a class-hierarchy language
// there is no further step — this is the specified behavior (spec.md §9),
// not a gap. The resolved mapping is memoised per concrete type.
type RoutingMessageConsumer[M any] struct {
	byType      map[reflect.Type]MessageConsumer[M]
	byInterface []interfaceRoute[M]
	resolved    sync.Map // reflect.Type -> MessageConsumer[M]
}

type interfaceRoute[M any] struct {
	iface    reflect.Type
	consumer MessageConsumer[M]
}

// NewRoutingMessageConsumer returns an empty RoutingMessageConsumer.
func NewRoutingMessageConsumer[M any]() *RoutingMessageConsumer[M] {
	return &RoutingMessageConsumer[M]{
		byType: make(map[reflect.Type]MessageConsumer[M]),
	}
}

// Register binds the exact concrete type of sample to consumer. It
// refuses a duplicate registration for the same type.
func (r *RoutingMessageConsumer[M]) Register(sample M, consumer MessageConsumer[M]) *RoutingMessageConsumer[M] {
	t := reflect.TypeOf(sample)
	if _, exists := r.byType[t]; exists {
		panic("queuebacca: duplicate routing registration for type " + t.String())
	}
	r.byType[t] = consumer
	return r
}

// RegisterInterface binds any concrete message type implementing iface
// (given as a nil pointer to the interface type, e.g.
// (*Shippable)(nil)) to consumer, consulted in registration order after
// exact-type matches. Duplicate registration of the same interface is
// refused.
func (r *RoutingMessageConsumer[M]) RegisterInterface(iface any, consumer MessageConsumer[M]) *RoutingMessageConsumer[M] {
	t := reflect.TypeOf(iface).Elem()
	for _, route := range r.byInterface {
		if route.iface == t {
			panic("queuebacca: duplicate routing registration for interface " + t.String())
		}
	}
	r.byInterface = append(r.byInterface, interfaceRoute[M]{iface: t, consumer: consumer})
	return r
}

func (r *RoutingMessageConsumer[M]) resolve(t reflect.Type) (MessageConsumer[M], bool) {
	if cached, ok := r.resolved.Load(t); ok {
		return cached.(MessageConsumer[M]), true
	}

	if consumer, ok := r.byType[t]; ok {
		r.resolved.Store(t, consumer)
		return consumer, true
	}

	for _, route := range r.byInterface {
		if t.Implements(route.iface) {
			r.resolved.Store(t, route.consumer)
			return route.consumer, true
		}
	}

	return nil, false
}

func (r *RoutingMessageConsumer[M]) Consume(ctx context.Context, message M, msgCtx MessageContext) (MessageResponse, error) {
	t := reflect.TypeOf(message)
	consumer, ok := r.resolve(t)
	if !ok {
		return 0, ConfigurationError("no consumer registered for type "+typeName(t), nil)
	}
	return consumer.Consume(ctx, message, msgCtx)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
