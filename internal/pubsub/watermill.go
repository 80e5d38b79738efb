package pubsub

import (
	"context"
	"log/slog"
	"maps"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel/trace"
)

// Reserved watermill metadata keys. Headers with these names are overwritten.
const (
	headerTopic = "topic"
	headerKey   = "key"
)

// Options tunes the in-memory bus.
type Options struct {
	// Ordered makes Publish block until the subscriber acknowledged the
	// message, so messages published by one goroutine are handled in order.
	Ordered bool
	// BufferSize is the output channel buffer of each subscription.
	BufferSize int64
	// Tracer, when set, wraps publishes in spans.
	Tracer trace.Tracer
}

// WatermillBridge is a Bus backed by a watermill GoChannel.
type WatermillBridge struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger *slog.Logger
}

func NewWatermillBridge(opts Options) *WatermillBridge {
	channel := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            opts.BufferSize,
		BlockPublishUntilSubscriberAck: opts.Ordered,
	}, watermill.NewStdLogger(false, false))

	b := &WatermillBridge{
		pub:    channel,
		sub:    channel,
		logger: slog.Default().With("component", "pubsub"),
	}
	if opts.Tracer != nil {
		b.pub = NewPublisherTracingMiddleware(channel, opts.Tracer)
	}
	return b
}

func encode(ctx context.Context, msg Message) *message.Message {
	out := message.NewMessage(watermill.NewUUID(), msg.Payload)
	out.SetContext(ctx)
	maps.Copy(out.Metadata, msg.Headers)
	out.Metadata.Set(headerTopic, msg.Topic)
	out.Metadata.Set(headerKey, msg.Key)
	return out
}

func decode(in *message.Message) Message {
	headers := maps.Clone(map[string]string(in.Metadata))
	delete(headers, headerTopic)
	delete(headers, headerKey)
	return Message{
		Topic:   in.Metadata.Get(headerTopic),
		Key:     in.Metadata.Get(headerKey),
		Payload: in.Payload,
		Headers: headers,
	}
}

func (b *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	return b.pub.Publish(msg.Topic, encode(ctx, msg))
}

// Subscribe handles the topic's messages one at a time in arrival order.
func (b *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for in := range messages {
			if err := handler(in.Context(), decode(in)); err != nil {
				b.logger.Error("Message handler failed", "topic", topic, "msg_id", in.UUID, "error", err)
			}
			in.Ack()
		}
		b.logger.Debug("Subscription closed", "topic", topic)
	}()
	return nil
}

// Close stops every subscription. Later publishes fail.
func (b *WatermillBridge) Close() error {
	return b.sub.Close()
}
