// Package sqlite provides a SQLite-backed MessageStore.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/store"
	"github.com/nfrund/hackchat/internal/store/sqlite/migrations"
)

// Store persists messages in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ store.MessageStore = (*Store)(nil)

const messageColumns = `id, room_id, room_type, sender_id, sender_name, sender_email, text,
	message_type, attachment_url, is_deleted, created_at, updated_at, seq`

// Open opens a SQLite store at path and applies the embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{
		sqlDB: sqlDB,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Migrate applies the schema to the database at path and closes it.
func Migrate(ctx context.Context, path string) error {
	s, err := Open(ctx, path)
	if err != nil {
		return err
	}
	return s.Close()
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, msg *domain.Message) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persistence("sqlite.Create", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (
		   id, room_id, room_type, sender_id, sender_name, sender_email,
		   text, text_folded, message_type, attachment_url, is_deleted,
		   created_at, updated_at, seq
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, string(msg.RoomType), msg.SenderID, msg.SenderName, msg.SenderEmail,
		msg.Text, store.Fold(msg.Text), string(msg.MessageType), msg.AttachmentURL, msg.IsDeleted,
		store.ToMicros(msg.CreatedAt), store.ToMicros(msg.UpdatedAt), msg.Seq,
	)
	if err != nil {
		return domain.Persistence("sqlite.Create", err)
	}
	for _, userID := range msg.ReadBy {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_readers (message_id, user_id, read_at) VALUES (?, ?, ?)`,
			msg.ID, userID, store.ToMicros(msg.CreatedAt),
		); err != nil {
			return domain.Persistence("sqlite.Create", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Persistence("sqlite.Create", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Message, error) {
	msgs, err := s.query(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	if err != nil {
		return nil, domain.Persistence("sqlite.Get", err)
	}
	if len(msgs) == 0 {
		return nil, domain.NotFound("sqlite.Get", "message not found")
	}
	return &msgs[0], nil
}

func (s *Store) Latest(ctx context.Context, roomID string) (*domain.Message, error) {
	msgs, err := s.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE room_id = ?
		 ORDER BY created_at DESC, seq DESC LIMIT 1`, roomID)
	if err != nil {
		return nil, domain.Persistence("sqlite.Latest", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func (s *Store) AddReader(ctx context.Context, ids []string, userID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.Persistence("sqlite.AddReader", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := store.ToMicros(s.now())
	changed := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_readers (message_id, user_id, read_at)
			 SELECT id, ?, ? FROM messages WHERE id = ?`,
			userID, now, id)
		if err != nil {
			return 0, domain.Persistence("sqlite.AddReader", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, domain.Persistence("sqlite.AddReader", err)
		}
		if n == 0 {
			continue
		}
		changed++
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET updated_at = ? WHERE id = ?`, now, id); err != nil {
			return 0, domain.Persistence("sqlite.AddReader", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, domain.Persistence("sqlite.AddReader", err)
	}
	return changed, nil
}

func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE messages
		 SET is_deleted = 1,
		     updated_at = CASE WHEN is_deleted = 0 THEN ? ELSE updated_at END
		 WHERE id = ?`,
		store.ToMicros(s.now()), id)
	if err != nil {
		return domain.Persistence("sqlite.MarkDeleted", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("sqlite.MarkDeleted", err)
	}
	if n == 0 {
		return domain.NotFound("sqlite.MarkDeleted", "message not found")
	}
	return nil
}

func (s *Store) List(ctx context.Context, q store.Query) ([]domain.Message, int, error) {
	where := `room_id = ? AND is_deleted = 0`
	args := []any{q.RoomID}
	if q.Before != nil {
		where += ` AND created_at < ?`
		args = append(args, store.CursorMicros(*q.Before))
	}

	var total int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, domain.Persistence("sqlite.List", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	msgs, err := s.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE `+where+`
		 ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`,
		append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, domain.Persistence("sqlite.List", err)
	}
	return msgs, total, nil
}

func (s *Store) CountUnread(ctx context.Context, roomID, userID string) (int, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages m
		 WHERE m.room_id = ? AND m.is_deleted = 0
		   AND NOT EXISTS (
		     SELECT 1 FROM message_readers r WHERE r.message_id = m.id AND r.user_id = ?
		   )`, roomID, userID).Scan(&n)
	if err != nil {
		return 0, domain.Persistence("sqlite.CountUnread", err)
	}
	return n, nil
}

func (s *Store) Search(ctx context.Context, roomID, needle string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	msgs, err := s.query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE room_id = ? AND is_deleted = 0 AND instr(text_folded, ?) > 0
		 ORDER BY created_at DESC, seq DESC LIMIT ?`,
		roomID, store.Fold(needle), limit)
	if err != nil {
		return nil, domain.Persistence("sqlite.Search", err)
	}
	return msgs, nil
}

func (s *Store) RoomsBySender(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT room_id, room_type, text, created_at FROM messages
		 WHERE sender_id = ? AND is_deleted = 0
		 ORDER BY created_at ASC, seq ASC`, userID)
	if err != nil {
		return nil, domain.Persistence("sqlite.RoomsBySender", err)
	}
	defer rows.Close()

	var sent []domain.Message
	for rows.Next() {
		var (
			m         domain.Message
			roomType  string
			createdAt int64
		)
		if err := rows.Scan(&m.RoomID, &roomType, &m.Text, &createdAt); err != nil {
			return nil, domain.Persistence("sqlite.RoomsBySender", err)
		}
		m.RoomType = domain.RoomType(roomType)
		m.CreatedAt = store.FromMicros(createdAt)
		sent = append(sent, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("sqlite.RoomsBySender", err)
	}
	return store.SummarizeRooms(sent), nil
}

// query runs a message SELECT and attaches read receipts.
func (s *Store) query(ctx context.Context, q string, args ...any) ([]domain.Message, error) {
	rows, err := s.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var (
			m                    domain.Message
			roomType, msgType    string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(
			&m.ID, &m.RoomID, &roomType, &m.SenderID, &m.SenderName, &m.SenderEmail, &m.Text,
			&msgType, &m.AttachmentURL, &m.IsDeleted, &createdAt, &updatedAt, &m.Seq,
		); err != nil {
			return nil, err
		}
		m.RoomType = domain.RoomType(roomType)
		m.MessageType = domain.MessageType(msgType)
		m.CreatedAt = store.FromMicros(createdAt)
		m.UpdatedAt = store.FromMicros(updatedAt)
		m.ReadBy = []string{}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachReaders(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) attachReaders(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	index := make(map[string]int, len(msgs))
	placeholders := make([]string, len(msgs))
	args := make([]any, len(msgs))
	for i, m := range msgs {
		index[m.ID] = i
		placeholders[i] = "?"
		args[i] = m.ID
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT message_id, user_id FROM message_readers
		 WHERE message_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY read_at ASC, rowid ASC`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var msgID, userID string
		if err := rows.Scan(&msgID, &userID); err != nil {
			return err
		}
		if i, ok := index[msgID]; ok {
			msgs[i].ReadBy = append(msgs[i].ReadBy, userID)
		}
	}
	return rows.Err()
}
