// Package jsonl is a MessageStore backed by an append-only JSON lines log.
//
// Every mutation is appended to the log and synced before it is applied to
// the in-memory index. Opening the store replays the log.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/store"
	"github.com/nfrund/hackchat/internal/store/memory"
)

const (
	opCreate = "create"
	opRead   = "read"
	opDelete = "delete"
)

// record is one line of the log.
type record struct {
	Op      string          `json:"op"`
	Message *domain.Message `json:"message,omitempty"`
	IDs     []string        `json:"ids,omitempty"`
	ID      string          `json:"id,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	At      time.Time       `json:"at"`
}

// Store appends to a log file on an afero filesystem.
type Store struct {
	mu    sync.Mutex
	file  afero.File
	index *memory.Store
	now   func() time.Time

	// size is the length of the log up to the last complete record.
	size int64
	// broken is set when a failed append could not be rolled back. The log
	// then refuses further writes.
	broken error
}

var _ store.MessageStore = (*Store)(nil)

// Open opens or creates the log at path and replays it.
func Open(fs afero.Fs, path string) (*Store, error) {
	index := memory.New()
	if err := replay(fs, path, index); err != nil {
		return nil, err
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	if err := terminate(fs, path, f); err != nil {
		_ = f.Close()
		return nil, err
	}
	info, err := fs.Stat(path)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat message log: %w", err)
	}
	return &Store{
		file:  f,
		index: index,
		now:   func() time.Time { return time.Now().UTC() },
		size:  info.Size(),
	}, nil
}

func replay(fs afero.Fs, path string, index *memory.Store) error {
	f, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open message log for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			// Usually a torn final write.
			slog.Warn("Skipping unreadable message log line", "path", path, "line", line, "error", err)
			continue
		}
		switch rec.Op {
		case opCreate:
			if rec.Message == nil {
				continue
			}
			if err := index.ApplyCreate(rec.Message); err != nil {
				return fmt.Errorf("replay line %d: %w", line, err)
			}
		case opRead:
			index.ApplyRead(rec.IDs, rec.UserID, rec.At)
		case opDelete:
			index.ApplyDelete(rec.ID, rec.At)
		default:
			return fmt.Errorf("replay line %d: unknown op %q", line, rec.Op)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read message log: %w", err)
	}
	return nil
}

// terminate ends a torn last line so the next record starts on its own line.
func terminate(fs afero.Fs, path string, w afero.File) error {
	info, err := fs.Stat(path)
	if err != nil {
		return fmt.Errorf("stat message log: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	r, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	defer r.Close()

	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("read message log tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

// appendLocked writes rec as one line and syncs it. A failed write or sync
// is cut off again, so the log holds only records whose append succeeded.
func (s *Store) appendLocked(rec record) error {
	if s.broken != nil {
		return s.broken
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}
	data = append(data, '\n')
	_, err = s.file.Write(data)
	if err == nil {
		err = s.file.Sync()
	}
	if err != nil {
		if rerr := s.rollbackLocked(); rerr != nil {
			s.broken = fmt.Errorf("message log unusable after failed append: %w", rerr)
			slog.Error("Failed to roll back message log append", "error", rerr, "size", s.size)
			return errors.Join(err, rerr)
		}
		return err
	}
	s.size += int64(len(data))
	return nil
}

func (s *Store) rollbackLocked() error {
	if err := s.file.Truncate(s.size); err != nil {
		return err
	}
	if _, err := s.file.Seek(s.size, io.SeekStart); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *Store) Create(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index.Has(msg.ID) {
		return domain.Persistence("jsonl.Create", fmt.Errorf("message %s already exists", msg.ID))
	}
	if err := s.appendLocked(record{Op: opCreate, Message: msg, At: msg.CreatedAt}); err != nil {
		return domain.Persistence("jsonl.Create", err)
	}
	return s.index.ApplyCreate(msg)
}

func (s *Store) AddReader(_ context.Context, ids []string, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.index.Unread(ids, userID)
	if len(pending) == 0 {
		return 0, nil
	}
	at := s.now()
	if err := s.appendLocked(record{Op: opRead, IDs: pending, UserID: userID, At: at}); err != nil {
		return 0, domain.Persistence("jsonl.AddReader", err)
	}
	return s.index.ApplyRead(pending, userID, at), nil
}

func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.index.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.IsDeleted {
		return nil
	}
	at := s.now()
	if err := s.appendLocked(record{Op: opDelete, ID: id, At: at}); err != nil {
		return domain.Persistence("jsonl.MarkDeleted", err)
	}
	s.index.ApplyDelete(id, at)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Message, error) {
	return s.index.Get(ctx, id)
}

func (s *Store) Latest(ctx context.Context, roomID string) (*domain.Message, error) {
	return s.index.Latest(ctx, roomID)
}

func (s *Store) List(ctx context.Context, q store.Query) ([]domain.Message, int, error) {
	return s.index.List(ctx, q)
}

func (s *Store) CountUnread(ctx context.Context, roomID, userID string) (int, error) {
	return s.index.CountUnread(ctx, roomID, userID)
}

func (s *Store) Search(ctx context.Context, roomID, needle string, limit int) ([]domain.Message, error) {
	return s.index.Search(ctx, roomID, needle, limit)
}

func (s *Store) RoomsBySender(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	return s.index.RoomsBySender(ctx, userID)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
