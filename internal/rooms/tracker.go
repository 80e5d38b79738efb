// Package rooms tracks which connections are subscribed to which rooms.
package rooms

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/fanout"
)

// Tracker is the many-to-many association between connections and rooms.
type Tracker struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]struct{} // roomID -> connectionIDs
	byConn map[string]map[string]struct{} // connectionID -> roomIDs
	fan    fanout.Channel
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker announcing membership changes on fan.
func NewTracker(fan fanout.Channel) *Tracker {
	return &Tracker{
		byRoom: make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
		fan:    fan,
		logger: slog.Default().With("service", "rooms"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Join subscribes connID to roomID and tells the other members. Joining a
// room twice is a no-op and reports false.
func (t *Tracker) Join(ctx context.Context, connID, roomID string, who domain.Identity) bool {
	t.mu.Lock()
	added := t.addLocked(connID, roomID)
	t.mu.Unlock()

	if !added {
		return false
	}
	t.logger.Debug("Joined room", "connection_id", connID, "room_id", roomID, "user_id", who.UserID)
	t.announce(ctx, domain.EventMemberJoined, connID, roomID, who)
	return true
}

// Leave unsubscribes connID from roomID and tells the remaining members.
// Leaving a room the connection is not in is a no-op and reports false.
func (t *Tracker) Leave(ctx context.Context, connID, roomID string, who domain.Identity) bool {
	t.mu.Lock()
	removed := t.removeLocked(connID, roomID)
	t.mu.Unlock()

	if !removed {
		return false
	}
	t.logger.Debug("Left room", "connection_id", connID, "room_id", roomID, "user_id", who.UserID)
	t.announce(ctx, domain.EventMemberLeft, connID, roomID, who)
	return true
}

// LeaveAll removes every membership of connID, publishing member-left for
// each room, and returns the rooms that were left.
func (t *Tracker) LeaveAll(ctx context.Context, connID string, who domain.Identity) []string {
	t.mu.Lock()
	rooms := sortedKeys(t.byConn[connID])
	for _, roomID := range rooms {
		t.removeLocked(connID, roomID)
	}
	t.mu.Unlock()

	for _, roomID := range rooms {
		t.announce(ctx, domain.EventMemberLeft, connID, roomID, who)
	}
	return rooms
}

// MembersOf returns the connections subscribed to roomID.
func (t *Tracker) MembersOf(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.byRoom[roomID])
}

// RoomsOf returns the rooms connID is subscribed to.
func (t *Tracker) RoomsOf(connID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.byConn[connID])
}

// IsMember reports whether connID is subscribed to roomID.
func (t *Tracker) IsMember(connID, roomID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byRoom[roomID][connID]
	return ok
}

func (t *Tracker) addLocked(connID, roomID string) bool {
	members, ok := t.byRoom[roomID]
	if !ok {
		members = make(map[string]struct{})
		t.byRoom[roomID] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}

	rooms, ok := t.byConn[connID]
	if !ok {
		rooms = make(map[string]struct{})
		t.byConn[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

func (t *Tracker) removeLocked(connID, roomID string) bool {
	members, ok := t.byRoom[roomID]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(t.byRoom, roomID)
	}

	if rooms, ok := t.byConn[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(t.byConn, connID)
		}
	}
	return true
}

func (t *Tracker) announce(ctx context.Context, event, connID, roomID string, who domain.Identity) {
	err := fanout.PublishToRoom(ctx, t.fan, roomID, event, domain.MemberEvent{
		UserID:      who.UserID,
		DisplayName: who.DisplayName,
		RoomID:      roomID,
		Timestamp:   t.now(),
	}, connID)
	if err != nil {
		t.logger.Error("Failed to publish membership change",
			"error", err,
			"event", event,
			"room_id", roomID,
			"connection_id", connID)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
