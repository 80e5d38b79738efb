// Package fanout delivers events to the live connections of a room.
//
// Delivery is best effort: only connections that are members at publish time
// receive the event and nothing is stored for offline recipients.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
)

// Scope selects the recipients of an envelope.
type Scope string

const (
	// ScopeRoom targets every member connection of RoomID.
	ScopeRoom Scope = "room"
	// ScopeGlobal targets every live connection.
	ScopeGlobal Scope = "global"
	// ScopeConnection targets ConnectionID only.
	ScopeConnection Scope = "connection"
)

// Envelope is one event addressed to a set of connections.
type Envelope struct {
	Scope        Scope           `json:"scope"`
	RoomID       string          `json:"roomId,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Exclude      string          `json:"exclude,omitempty"` // connection that must not receive the event
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
}

// Channel publishes envelopes to their recipients.
type Channel interface {
	Publish(ctx context.Context, env Envelope) error
}

// ToRoom builds a room envelope. exclude may be empty to include every member.
func ToRoom(roomID, event string, payload any, exclude string) (Envelope, error) {
	return build(Envelope{Scope: ScopeRoom, RoomID: roomID, Exclude: exclude, Event: event}, payload)
}

// ToAll builds a global envelope.
func ToAll(event string, payload any) (Envelope, error) {
	return build(Envelope{Scope: ScopeGlobal, Event: event}, payload)
}

// ToConnection builds an envelope for a single connection.
func ToConnection(connID, event string, payload any) (Envelope, error) {
	return build(Envelope{Scope: ScopeConnection, ConnectionID: connID, Event: event}, payload)
}

func build(env Envelope, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", env.Event, err)
	}
	env.Payload = data
	return env, nil
}

// PublishToRoom is a helper combining ToRoom and Publish.
func PublishToRoom(ctx context.Context, ch Channel, roomID, event string, payload any, exclude string) error {
	env, err := ToRoom(roomID, event, payload, exclude)
	if err != nil {
		return err
	}
	return ch.Publish(ctx, env)
}

// PublishToAll is a helper combining ToAll and Publish.
func PublishToAll(ctx context.Context, ch Channel, event string, payload any) error {
	env, err := ToAll(event, payload)
	if err != nil {
		return err
	}
	return ch.Publish(ctx, env)
}
