package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/nfrund/hackchat/internal/domain"
)

// Store holds presence entries keyed by user.
//
// Implementations must keep at most one entry per user and must only remove
// an entry when the removing connection is still the one on record.
type Store interface {
	// Put upserts entry and returns the entry it replaced, if any.
	Put(ctx context.Context, entry domain.PresenceEntry) (*domain.PresenceEntry, error)
	// RemoveIfCurrent deletes the entry owned by connID and returns it.
	// It returns nil when connID no longer owns any entry.
	RemoveIfCurrent(ctx context.Context, connID string) (*domain.PresenceEntry, error)
	Get(ctx context.Context, userID string) (*domain.PresenceEntry, error)
	List(ctx context.Context) ([]domain.PresenceEntry, error)
}

// MemoryStore is the single-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.PresenceEntry // userID -> entry
	conns map[string]string               // connectionID -> userID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.PresenceEntry),
		conns: make(map[string]string),
	}
}

func (s *MemoryStore) Put(_ context.Context, entry domain.PresenceEntry) (*domain.PresenceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *domain.PresenceEntry
	if old, ok := s.users[entry.UserID]; ok {
		prev = &old
		if old.ConnectionID != entry.ConnectionID {
			delete(s.conns, old.ConnectionID)
		}
	}
	s.users[entry.UserID] = entry
	s.conns[entry.ConnectionID] = entry.UserID
	return prev, nil
}

func (s *MemoryStore) RemoveIfCurrent(_ context.Context, connID string) (*domain.PresenceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.conns[connID]
	if !ok {
		return nil, nil
	}
	delete(s.conns, connID)

	entry, ok := s.users[userID]
	if !ok || entry.ConnectionID != connID {
		return nil, nil
	}
	delete(s.users, userID)
	return &entry, nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*domain.PresenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.PresenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PresenceEntry, 0, len(s.users))
	for _, e := range s.users {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []domain.PresenceEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ConnectedAt.Equal(entries[j].ConnectedAt) {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].ConnectedAt.Before(entries[j].ConnectedAt)
	})
}
