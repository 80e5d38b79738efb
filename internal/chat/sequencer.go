package chat

import (
	"context"
	"sync"
	"time"

	"github.com/nfrund/hackchat/internal/store"
)

// roomClock is the ordering state of one room. mu is held from timestamp
// assignment until the message has been handed to the fan-out channel.
type roomClock struct {
	mu      sync.Mutex
	seeded  bool
	lastAt  time.Time
	lastSeq int64

	// users counts callers holding or waiting for mu. Guarded by sequencer.mu.
	users int
}

// maxIdleClocks bounds how many clocks of rooms with no send in flight are
// kept. A dropped clock is seeded again from the store on next use.
const maxIdleClocks = 4096

// sequencer hands out per-room clocks.
type sequencer struct {
	mu      sync.Mutex
	rooms   map[string]*roomClock
	maxIdle int
}

func newSequencer(maxIdle int) *sequencer {
	return &sequencer{rooms: make(map[string]*roomClock), maxIdle: maxIdle}
}

// lock returns the clock of roomID with its mutex held. Every lock must be
// paired with release.
func (s *sequencer) lock(roomID string) *roomClock {
	s.mu.Lock()
	rc, ok := s.rooms[roomID]
	if !ok {
		rc = &roomClock{}
		s.rooms[roomID] = rc
	}
	rc.users++
	s.mu.Unlock()

	rc.mu.Lock()
	return rc
}

// release unlocks rc and drops it once nobody uses it and too many clocks
// are held.
func (s *sequencer) release(roomID string, rc *roomClock) {
	rc.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	rc.users--
	if rc.users == 0 && len(s.rooms) > s.maxIdle {
		delete(s.rooms, roomID)
	}
}

// seed loads the newest stored message of the room the first time the clock
// is used. Callers hold rc.mu.
func (rc *roomClock) seed(ctx context.Context, st store.MessageStore, roomID string) error {
	if rc.seeded {
		return nil
	}
	latest, err := st.Latest(ctx, roomID)
	if err != nil {
		return err
	}
	if latest != nil {
		rc.lastAt = latest.CreatedAt
		rc.lastSeq = latest.Seq
	}
	rc.seeded = true
	return nil
}

// next returns the timestamp and sequence number for a message written now.
// Timestamps are strictly increasing at storage precision.
func (rc *roomClock) next(now time.Time) (time.Time, int64) {
	at := store.FromMicros(store.ToMicros(now))
	if !at.After(rc.lastAt) {
		at = rc.lastAt.Add(time.Microsecond)
	}
	return at, rc.lastSeq + 1
}

// advance records a committed message.
func (rc *roomClock) advance(at time.Time, seq int64) {
	rc.lastAt = at
	rc.lastSeq = seq
}
