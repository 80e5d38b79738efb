// Package presence tracks which users are online and through which connection.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/fanout"
)

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// Registry maps users to their current live connection. The last
// registration for a user wins; a stale disconnect never evicts a newer one.
type Registry struct {
	store  Store
	fan    fanout.Channel
	logger *slog.Logger
	now    func() time.Time
}

// Option is a function that configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a presence registry publishing presence-changed on fan.
func NewRegistry(store Store, fan fanout.Channel, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		fan:    fan,
		logger: slog.Default().With("service", "presence"),
		now:    Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records connID as the live connection of the user, replacing any
// previous entry, and announces the user as online.
func (r *Registry) Register(ctx context.Context, id domain.Identity, connID string) (domain.PresenceEntry, error) {
	entry := domain.PresenceEntry{
		UserID:       id.UserID,
		ConnectionID: connID,
		DisplayName:  id.DisplayName,
		Email:        id.Email,
		ConnectedAt:  r.now(),
	}

	prev, err := r.store.Put(ctx, entry)
	if err != nil {
		return domain.PresenceEntry{}, domain.Persistence("presence.Register", err)
	}

	if prev != nil && prev.ConnectionID != connID {
		r.logger.Info("Presence superseded by newer connection",
			"user_id", id.UserID,
			"connection_id", connID,
			"previous_connection_id", prev.ConnectionID)
	} else {
		r.logger.Info("User came online", "user_id", id.UserID, "connection_id", connID)
	}

	r.announce(ctx, entry, domain.StatusOnline)
	return entry, nil
}

// Unregister removes the entry owned by connID. It reports whether an entry
// was removed; a connection that was superseded removes nothing.
func (r *Registry) Unregister(ctx context.Context, connID string) (bool, error) {
	removed, err := r.store.RemoveIfCurrent(ctx, connID)
	if err != nil {
		return false, domain.Persistence("presence.Unregister", err)
	}
	if removed == nil {
		r.logger.Debug("No current presence for connection", "connection_id", connID)
		return false, nil
	}

	r.logger.Info("User went offline", "user_id", removed.UserID, "connection_id", connID)
	r.announce(ctx, *removed, domain.StatusOffline)
	return true, nil
}

// Lookup returns the user's entry, or nil when the user is offline.
func (r *Registry) Lookup(ctx context.Context, userID string) (*domain.PresenceEntry, error) {
	entry, err := r.store.Get(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("presence.Lookup", err)
	}
	return entry, nil
}

// ListAll returns every online user, oldest connection first.
func (r *Registry) ListAll(ctx context.Context) ([]domain.PresenceEntry, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return nil, domain.Persistence("presence.ListAll", err)
	}
	return entries, nil
}

func (r *Registry) announce(ctx context.Context, entry domain.PresenceEntry, status string) {
	err := fanout.PublishToAll(ctx, r.fan, domain.EventPresenceChanged, domain.PresenceChanged{
		UserID:      entry.UserID,
		DisplayName: entry.DisplayName,
		Status:      status,
	})
	if err != nil {
		r.logger.Error("Failed to publish presence change",
			"error", err,
			"user_id", entry.UserID,
			"status", status)
	}
}
