package queuebacca

import "encoding/json"

// Serializer encodes and decodes a typed message to and from the opaque
// string body the Broker deals in. Implementations must round-trip:
// FromString(ToString(m)) must be semantically equal to m. A failure on
// either side raises a SerializationError, which the subscription worker
// routes through the exception resolver exactly like a consumer failure.
type Serializer[M any] interface {
	ToString(message M) (string, error)
	FromString(body string) (M, error)
}

// jsonSerializer is the reference Serializer, backed by encoding/json.
type jsonSerializer[M any] struct{}

// NewJSONSerializer returns a Serializer that encodes messages as JSON.
func NewJSONSerializer[M any]() Serializer[M] {
	return jsonSerializer[M]{}
}

func (jsonSerializer[M]) ToString(message M) (string, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return "", SerializationError(err)
	}
	return string(body), nil
}

func (jsonSerializer[M]) FromString(body string) (M, error) {
	var message M
	if err := json.Unmarshal([]byte(body), &message); err != nil {
		var zero M
		return zero, SerializationError(err)
	}
	return message, nil
}
