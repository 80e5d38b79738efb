// Package surreal provides a SurrealDB-backed MessageStore.
package surreal

import (
	"context"
	"time"

	"github.com/nfrund/hackchat/internal/database"
	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/store"
)

// record is the stored shape of a message. The SurrealDB record id is
// derived from MsgID and never decoded.
type record struct {
	MsgID         string   `json:"msg_id"`
	RoomID        string   `json:"room_id"`
	RoomType      string   `json:"room_type"`
	SenderID      string   `json:"sender_id"`
	SenderName    string   `json:"sender_name"`
	SenderEmail   string   `json:"sender_email"`
	Text          string   `json:"text"`
	TextFolded    string   `json:"text_folded"`
	MessageType   string   `json:"message_type"`
	AttachmentURL string   `json:"attachment_url"`
	ReadBy        []string `json:"read_by"`
	IsDeleted     bool     `json:"is_deleted"`
	CreatedUS     int64    `json:"created_us"`
	UpdatedUS     int64    `json:"updated_us"`
	Seq           int64    `json:"seq"`
}

func toRecord(m *domain.Message) record {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return record{
		MsgID:         m.ID,
		RoomID:        m.RoomID,
		RoomType:      string(m.RoomType),
		SenderID:      m.SenderID,
		SenderName:    m.SenderName,
		SenderEmail:   m.SenderEmail,
		Text:          m.Text,
		TextFolded:    store.Fold(m.Text),
		MessageType:   string(m.MessageType),
		AttachmentURL: m.AttachmentURL,
		ReadBy:        readBy,
		IsDeleted:     m.IsDeleted,
		CreatedUS:     store.ToMicros(m.CreatedAt),
		UpdatedUS:     store.ToMicros(m.UpdatedAt),
		Seq:           m.Seq,
	}
}

func (r record) message() domain.Message {
	readBy := r.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return domain.Message{
		ID:            r.MsgID,
		RoomID:        r.RoomID,
		RoomType:      domain.RoomType(r.RoomType),
		SenderID:      r.SenderID,
		SenderName:    r.SenderName,
		SenderEmail:   r.SenderEmail,
		Text:          r.Text,
		MessageType:   domain.MessageType(r.MessageType),
		AttachmentURL: r.AttachmentURL,
		ReadBy:        readBy,
		IsDeleted:     r.IsDeleted,
		CreatedAt:     store.FromMicros(r.CreatedUS),
		UpdatedAt:     store.FromMicros(r.UpdatedUS),
		Seq:           r.Seq,
	}
}

func messages(rs []record) []domain.Message {
	out := make([]domain.Message, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.message())
	}
	return out
}

type countRow struct {
	Total int `json:"total"`
}

const schema = `
DEFINE TABLE IF NOT EXISTS message SCHEMALESS;
DEFINE INDEX IF NOT EXISTS message_msg_id ON TABLE message COLUMNS msg_id UNIQUE;
DEFINE INDEX IF NOT EXISTS message_room_seq ON TABLE message COLUMNS room_id, seq UNIQUE;
DEFINE INDEX IF NOT EXISTS message_room_order ON TABLE message COLUMNS room_id, created_us;
DEFINE INDEX IF NOT EXISTS message_sender ON TABLE message COLUMNS sender_id;
`

// Store persists messages in SurrealDB.
type Store struct {
	exec *database.Executor
	now  func() time.Time
}

var _ store.MessageStore = (*Store)(nil)

// New defines the message table and indexes and returns a Store.
func New(ctx context.Context, exec *database.Executor) (*Store, error) {
	if err := database.Execute(ctx, exec, schema, nil); err != nil {
		return nil, domain.Persistence("surreal.New", err)
	}
	return &Store{
		exec: exec,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.exec.DB().Close(ctx)
}

func (s *Store) Create(ctx context.Context, msg *domain.Message) error {
	_, err := database.Mutate[record](ctx, s.exec,
		`CREATE type::thing('message', $id) CONTENT $content`,
		map[string]any{"id": msg.ID, "content": toRecord(msg)})
	if err != nil {
		return domain.Persistence("surreal.Create", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Message, error) {
	rs, err := database.Query[record](ctx, s.exec,
		`SELECT * FROM message WHERE msg_id = $id LIMIT 1`,
		map[string]any{"id": id})
	if err != nil {
		return nil, domain.Persistence("surreal.Get", err)
	}
	if len(rs) == 0 {
		return nil, domain.NotFound("surreal.Get", "message not found")
	}
	m := rs[0].message()
	return &m, nil
}

func (s *Store) Latest(ctx context.Context, roomID string) (*domain.Message, error) {
	rs, err := database.Query[record](ctx, s.exec,
		`SELECT * FROM message WHERE room_id = $room ORDER BY created_us DESC, seq DESC LIMIT 1`,
		map[string]any{"room": roomID})
	if err != nil {
		return nil, domain.Persistence("surreal.Latest", err)
	}
	if len(rs) == 0 {
		return nil, nil
	}
	m := rs[0].message()
	return &m, nil
}

type idRow struct {
	MsgID string `json:"msg_id"`
}

func (s *Store) AddReader(ctx context.Context, ids []string, userID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	rows, err := database.Mutate[idRow](ctx, s.exec,
		`UPDATE message SET read_by += $user, updated_us = $now
		 WHERE msg_id IN $ids AND read_by CONTAINSNOT $user
		 RETURN msg_id`,
		map[string]any{"ids": ids, "user": userID, "now": store.ToMicros(s.now())})
	if err != nil {
		return 0, domain.Persistence("surreal.AddReader", err)
	}
	return len(rows), nil
}

func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	_, err := database.Mutate[idRow](ctx, s.exec,
		`UPDATE message SET is_deleted = true, updated_us = $now
		 WHERE msg_id = $id AND is_deleted = false
		 RETURN msg_id`,
		map[string]any{"id": id, "now": store.ToMicros(s.now())})
	if err != nil {
		return domain.Persistence("surreal.MarkDeleted", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, q store.Query) ([]domain.Message, int, error) {
	where := `room_id = $room AND is_deleted = false`
	params := map[string]any{"room": q.RoomID, "offset": q.Offset}
	if q.Before != nil {
		where += ` AND created_us < $before`
		params["before"] = store.CursorMicros(*q.Before)
	}

	counts, err := database.Query[countRow](ctx, s.exec,
		`SELECT count() AS total FROM message WHERE `+where+` GROUP ALL`, params)
	if err != nil {
		return nil, 0, domain.Persistence("surreal.List", err)
	}
	total := 0
	if len(counts) > 0 {
		total = counts[0].Total
	}

	sql := `SELECT * FROM message WHERE ` + where + ` ORDER BY created_us DESC, seq DESC`
	if q.Limit > 0 {
		sql += ` LIMIT $limit`
		params["limit"] = q.Limit
	}
	sql += ` START $offset`

	rs, err := database.Query[record](ctx, s.exec, sql, params)
	if err != nil {
		return nil, 0, domain.Persistence("surreal.List", err)
	}
	return messages(rs), total, nil
}

func (s *Store) CountUnread(ctx context.Context, roomID, userID string) (int, error) {
	counts, err := database.Query[countRow](ctx, s.exec,
		`SELECT count() AS total FROM message
		 WHERE room_id = $room AND is_deleted = false AND read_by CONTAINSNOT $user
		 GROUP ALL`,
		map[string]any{"room": roomID, "user": userID})
	if err != nil {
		return 0, domain.Persistence("surreal.CountUnread", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0].Total, nil
}

func (s *Store) Search(ctx context.Context, roomID, needle string, limit int) ([]domain.Message, error) {
	params := map[string]any{"room": roomID, "needle": store.Fold(needle)}
	sql := `SELECT * FROM message
		 WHERE room_id = $room AND is_deleted = false AND string::contains(text_folded, $needle)
		 ORDER BY created_us DESC, seq DESC`
	if limit > 0 {
		sql += ` LIMIT $limit`
		params["limit"] = limit
	}
	rs, err := database.Query[record](ctx, s.exec, sql, params)
	if err != nil {
		return nil, domain.Persistence("surreal.Search", err)
	}
	return messages(rs), nil
}

func (s *Store) RoomsBySender(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	rs, err := database.Query[record](ctx, s.exec,
		`SELECT * FROM message WHERE sender_id = $user AND is_deleted = false
		 ORDER BY created_us ASC, seq ASC`,
		map[string]any{"user": userID})
	if err != nil {
		return nil, domain.Persistence("surreal.RoomsBySender", err)
	}
	return store.SummarizeRooms(messages(rs)), nil
}
