// Package typing tracks which users are typing in which room.
package typing

import (
	"context"
	"log/slog"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/fanout"
)

// Tracker owns the ephemeral typing state and announces changes to the room.
type Tracker struct {
	store  Store
	fan    fanout.Channel
	logger *slog.Logger
}

func NewTracker(store Store, fan fanout.Channel) *Tracker {
	return &Tracker{
		store:  store,
		fan:    fan,
		logger: slog.Default().With("service", "typing"),
	}
}

// Start marks who as typing in roomID and publishes typing-started to the
// room, excluding the actor's connection.
func (t *Tracker) Start(ctx context.Context, roomID string, who domain.Identity, connID string) error {
	if _, err := t.store.Add(ctx, roomID, who.UserID); err != nil {
		return domain.Persistence("typing.Start", err)
	}
	t.publish(ctx, domain.EventTypingStarted, roomID, who, connID)
	return nil
}

// Stop clears who's typing entry in roomID and publishes typing-stopped.
// Stopping a user that is not typing does nothing.
func (t *Tracker) Stop(ctx context.Context, roomID string, who domain.Identity, connID string) error {
	removed, err := t.store.Remove(ctx, roomID, who.UserID)
	if err != nil {
		return domain.Persistence("typing.Stop", err)
	}
	if removed {
		t.publish(ctx, domain.EventTypingStopped, roomID, who, connID)
	}
	return nil
}

// Typing returns the users currently typing in roomID.
func (t *Tracker) Typing(ctx context.Context, roomID string) ([]string, error) {
	users, err := t.store.List(ctx, roomID)
	if err != nil {
		return nil, domain.Persistence("typing.Typing", err)
	}
	return users, nil
}

func (t *Tracker) publish(ctx context.Context, event, roomID string, who domain.Identity, connID string) {
	err := fanout.PublishToRoom(ctx, t.fan, roomID, event, domain.TypingEvent{
		UserID:      who.UserID,
		DisplayName: who.DisplayName,
		RoomID:      roomID,
	}, connID)
	if err != nil {
		t.logger.Error("Failed to publish typing change", "error", err, "event", event, "room_id", roomID)
	}
}
