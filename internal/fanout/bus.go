package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nfrund/hackchat/internal/pubsub"
)

// Topic is the bus topic carrying envelopes.
const Topic = "fanout.events"

// Bus publishes envelopes on the pub/sub bus. A Relay on the consuming side
// hands them to a local Channel.
type Bus struct {
	publisher pubsub.Publisher
}

func NewBus(publisher pubsub.Publisher) *Bus {
	return &Bus{publisher: publisher}
}

// Publish implements Channel.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.publisher.Publish(ctx, pubsub.Message{
		Topic:   Topic,
		Key:     env.RoomID,
		Payload: data,
		Headers: map[string]string{
			"event": env.Event,
			"scope": string(env.Scope),
		},
	})
}

// Relay consumes envelopes from the bus and delivers them locally.
type Relay struct {
	subscriber pubsub.Subscriber
	local      Channel
	logger     *slog.Logger
}

func NewRelay(subscriber pubsub.Subscriber, local Channel) *Relay {
	return &Relay{
		subscriber: subscriber,
		local:      local,
		logger:     slog.Default().With("service", "fanout-relay"),
	}
}

// Start subscribes to the envelope topic. Delivery runs until ctx is
// canceled or the bus is closed.
func (r *Relay) Start(ctx context.Context) error {
	return r.subscriber.Subscribe(ctx, Topic, func(ctx context.Context, msg pubsub.Message) error {
		var env Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			r.logger.Error("Discarding malformed envelope", "error", err)
			return nil
		}
		return r.local.Publish(ctx, env)
	})
}
