// Package pubsub is a thin in-process message bus used to decouple the
// services that produce chat events from the hub that delivers them.
package pubsub

import "context"

// Message is one event on the bus.
type Message struct {
	Topic string
	// Key groups related messages, for example every event of one room.
	Key     string
	Payload []byte
	// Headers travel with the payload and end up as span attributes.
	Headers map[string]string
}

// Handler processes one delivered message. Returning an error logs it; the
// message is not redelivered.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type Subscriber interface {
	// Subscribe registers handler for topic and returns once the
	// subscription is live. Messages are handled in the background until
	// ctx is canceled or the subscriber is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

type Bus interface {
	Publisher
	Subscriber
}
