// Package memory is an in-process MessageStore.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/store"
)

// Store keeps messages in memory. It is also the replay target of the
// append-only log store.
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Message
	byRoom map[string][]*domain.Message // insertion order
	folded map[string]string            // id -> folded text
	now    func() time.Time
}

var _ store.MessageStore = (*Store)(nil)

func New() *Store {
	return &Store{
		byID:   make(map[string]*domain.Message),
		byRoom: make(map[string][]*domain.Message),
		folded: make(map[string]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(msg)
}

func (s *Store) createLocked(msg *domain.Message) error {
	if _, exists := s.byID[msg.ID]; exists {
		return domain.Persistence("memory.Create", errDuplicate(msg.ID))
	}
	m := msg.Clone()
	s.byID[m.ID] = &m
	s.byRoom[m.RoomID] = append(s.byRoom[m.RoomID], &m)
	s.folded[m.ID] = store.Fold(m.Text)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, domain.NotFound("memory.Get", "message not found")
	}
	c := m.Clone()
	return &c, nil
}

func (s *Store) Latest(_ context.Context, roomID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Message
	for _, m := range s.byRoom[roomID] {
		if latest == nil || latest.Before(m) {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := latest.Clone()
	return &c, nil
}

func (s *Store) AddReader(_ context.Context, ids []string, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addReaderLocked(ids, userID, s.now()), nil
}

func (s *Store) addReaderLocked(ids []string, userID string, at time.Time) int {
	changed := 0
	for _, id := range ids {
		m, ok := s.byID[id]
		if !ok {
			continue
		}
		if m.AddReader(userID) {
			m.UpdatedAt = at
			changed++
		}
	}
	return changed
}

func (s *Store) MarkDeleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.markDeletedLocked(id, s.now()) {
		return domain.NotFound("memory.MarkDeleted", "message not found")
	}
	return nil
}

func (s *Store) markDeletedLocked(id string, at time.Time) bool {
	m, ok := s.byID[id]
	if !ok {
		return false
	}
	if !m.IsDeleted {
		m.IsDeleted = true
		m.UpdatedAt = at
	}
	return true
}

func (s *Store) List(_ context.Context, q store.Query) ([]domain.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filterLocked(q.RoomID, func(m *domain.Message) bool {
		return q.Before == nil || m.CreatedAt.Before(*q.Before)
	})
	store.SortNewestFirst(matched)
	return store.Page(matched, q.Offset, q.Limit), len(matched), nil
}

func (s *Store) CountUnread(_ context.Context, roomID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filterLocked(roomID, func(m *domain.Message) bool {
		return !m.HasReader(userID)
	})
	return len(matched), nil
}

func (s *Store) Search(_ context.Context, roomID, needle string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folded := store.Fold(needle)
	matched := s.filterLocked(roomID, func(m *domain.Message) bool {
		return strings.Contains(s.folded[m.ID], folded)
	})
	store.SortNewestFirst(matched)
	return store.Page(matched, 0, limit), nil
}

func (s *Store) RoomsBySender(_ context.Context, userID string) ([]domain.RoomSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sent []domain.Message
	for _, m := range s.byID {
		if m.SenderID == userID && !m.IsDeleted {
			sent = append(sent, m.Clone())
		}
	}
	store.SortNewestFirst(sent)
	for i, j := 0, len(sent)-1; i < j; i, j = i+1, j-1 {
		sent[i], sent[j] = sent[j], sent[i]
	}
	return store.SummarizeRooms(sent), nil
}

func (s *Store) Close() error { return nil }

// filterLocked returns clones of the room's non-deleted messages matching keep.
func (s *Store) filterLocked(roomID string, keep func(*domain.Message) bool) []domain.Message {
	var out []domain.Message
	for _, m := range s.byRoom[roomID] {
		if m.IsDeleted || !keep(m) {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}
