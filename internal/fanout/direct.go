package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Sink is a live connection able to receive events.
type Sink interface {
	// Deliver enqueues an event without blocking. An error means the event
	// was not accepted; the sink is responsible for its own eviction.
	Deliver(event string, payload json.RawMessage) error
}

// Registry resolves connection ids to sinks.
type Registry interface {
	Sink(connID string) (Sink, bool)
	Sinks() map[string]Sink
}

// Membership answers which connections are in a room.
type Membership interface {
	MembersOf(roomID string) []string
}

// Observer is notified of delivery outcomes.
type Observer interface {
	Delivered(event string, n int)
	Dropped(event string, n int)
}

// Direct delivers envelopes synchronously to in-process sinks.
type Direct struct {
	registry Registry
	members  Membership
	observer Observer
	logger   *slog.Logger
}

// NewDirect creates a Direct channel. observer may be nil.
func NewDirect(registry Registry, members Membership, observer Observer) *Direct {
	return &Direct{
		registry: registry,
		members:  members,
		observer: observer,
		logger:   slog.Default().With("service", "fanout"),
	}
}

// Publish implements Channel.
func (d *Direct) Publish(_ context.Context, env Envelope) error {
	var targets []string
	switch env.Scope {
	case ScopeRoom:
		targets = d.members.MembersOf(env.RoomID)
	case ScopeConnection:
		targets = []string{env.ConnectionID}
	case ScopeGlobal:
		sinks := d.registry.Sinks()
		targets = make([]string, 0, len(sinks))
		for id := range sinks {
			targets = append(targets, id)
		}
	default:
		return fmt.Errorf("unknown envelope scope %q", env.Scope)
	}

	delivered, dropped := 0, 0
	for _, id := range targets {
		if id == env.Exclude {
			continue
		}
		sink, ok := d.registry.Sink(id)
		if !ok {
			continue
		}
		if err := sink.Deliver(env.Event, env.Payload); err != nil {
			dropped++
			d.logger.Debug("Delivery dropped", "event", env.Event, "connection_id", id, "error", err)
			continue
		}
		delivered++
	}

	if d.observer != nil {
		d.observer.Delivered(env.Event, delivered)
		if dropped > 0 {
			d.observer.Dropped(env.Event, dropped)
		}
	}
	return nil
}
