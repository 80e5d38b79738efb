// Package store defines durable storage for chat messages.
package store

import (
	"context"
	"sort"
	"time"

	"golang.org/x/text/cases"

	"github.com/nfrund/hackchat/internal/domain"
)

// Query selects a page of non-deleted messages of one room.
type Query struct {
	RoomID string
	// Before, when set, restricts to messages created strictly earlier.
	Before *time.Time
	Offset int
	Limit  int
}

// MessageStore persists messages. Implementations order messages by
// CreatedAt then Seq and never physically delete a message.
type MessageStore interface {
	// Create persists a new message. The caller has assigned every field.
	Create(ctx context.Context, msg *domain.Message) error
	// Get returns the message with id, deleted or not, or a NotFound error.
	Get(ctx context.Context, id string) (*domain.Message, error)
	// Latest returns the newest message of roomID including deleted ones,
	// or nil when the room is empty.
	Latest(ctx context.Context, roomID string) (*domain.Message, error)
	// AddReader adds userID to the read set of every existing message in ids
	// and returns how many messages changed. Unknown ids are skipped.
	AddReader(ctx context.Context, ids []string, userID string) (int, error)
	// MarkDeleted flips IsDeleted to true.
	MarkDeleted(ctx context.Context, id string) error
	// List returns the matching page newest first and the total number of
	// messages matching the room and Before filter.
	List(ctx context.Context, q Query) ([]domain.Message, int, error)
	// CountUnread counts non-deleted messages in roomID not read by userID.
	CountUnread(ctx context.Context, roomID, userID string) (int, error)
	// Search returns non-deleted messages whose folded text contains the
	// folded needle, newest first.
	Search(ctx context.Context, roomID, needle string, limit int) ([]domain.Message, error)
	// RoomsBySender summarizes the rooms userID has sent non-deleted messages to.
	RoomsBySender(ctx context.Context, userID string) ([]domain.RoomSummary, error)
	Close() error
}

// Fold returns the case-folded form of s used for search.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ToMicros converts t to the storage precision.
func ToMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

// CursorMicros converts an exclusive upper bound to the storage precision,
// rounding up so "created < before" keeps its meaning for stored values.
func CursorMicros(before time.Time) int64 {
	us := ToMicros(before)
	if FromMicros(us).Before(before) {
		us++
	}
	return us
}

// FromMicros is the inverse of ToMicros.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// SortNewestFirst orders msgs by CreatedAt then Seq, descending.
func SortNewestFirst(msgs []domain.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[j].Before(&msgs[i])
	})
}

// SummarizeRooms groups messages by room. msgs must be in ascending order.
// Each summary takes its room type from the first message and its text and
// time from the last; summaries are sorted most recent first.
func SummarizeRooms(msgs []domain.Message) []domain.RoomSummary {
	index := make(map[string]int)
	var out []domain.RoomSummary
	for _, m := range msgs {
		i, ok := index[m.RoomID]
		if !ok {
			index[m.RoomID] = len(out)
			out = append(out, domain.RoomSummary{RoomID: m.RoomID, RoomType: m.RoomType})
			i = len(out) - 1
		}
		out[i].LastMessage = m.Text
		out[i].LastMessageTime = m.CreatedAt
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

// Page applies offset and limit to msgs.
func Page(msgs []domain.Message, offset, limit int) []domain.Message {
	if offset >= len(msgs) {
		return []domain.Message{}
	}
	msgs = msgs[offset:]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs
}
