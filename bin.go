package queuebacca

import "time"

// MessageBin identifies a logical queue. It is purely a key into a
// BinRegistry; the broker adapter resolves it to its own native address.
type MessageBin struct {
	Name string
}

// BinAddress is what a concrete Broker resolves a MessageBin to: its own
// native address (an SQS queue URL, for example) plus the default
// visibility timeout new messages in that bin should be received with.
type BinAddress struct {
	Address                  string
	DefaultVisibilityTimeout time.Duration
}

// BinRegistry maps bin names to their broker-native address. Broker
// implementations decide how to use it; the engine itself never looks a
// bin up, it only ever passes the MessageBin through to the Broker.
type BinRegistry map[string]BinAddress

// Lookup returns the address registered for bin, or false if it is unknown.
func (r BinRegistry) Lookup(bin MessageBin) (BinAddress, bool) {
	addr, ok := r[bin.Name]
	return addr, ok
}
