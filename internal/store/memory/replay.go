package memory

import (
	"fmt"
	"time"

	"github.com/nfrund/hackchat/internal/domain"
)

type duplicateError string

func (e duplicateError) Error() string { return fmt.Sprintf("message %s already exists", string(e)) }

func errDuplicate(id string) error { return duplicateError(id) }

// Apply methods mutate the store without consulting the clock. They are used
// to rebuild state from a log.

// ApplyCreate inserts msg as recorded.
func (s *Store) ApplyCreate(msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(msg)
}

// ApplyRead records a read receipt at the recorded time.
func (s *Store) ApplyRead(ids []string, userID string, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addReaderLocked(ids, userID, at)
}

// ApplyDelete records a soft delete at the recorded time.
func (s *Store) ApplyDelete(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markDeletedLocked(id, at)
}

// Has reports whether id exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Unread reports which of ids exist and do not yet list userID as a reader.
func (s *Store) Unread(ids []string, userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range ids {
		if m, ok := s.byID[id]; ok && !m.HasReader(userID) {
			out = append(out, id)
		}
	}
	return out
}
