package chat

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/store"
)

// HistoryQuery selects a history page. A zero Page selects cursor paging:
// the newest Limit messages before Before, with NextBefore set for the next
// call. A positive Page additionally skips (Page-1)*Limit messages.
type HistoryQuery struct {
	RoomID string
	Page   int
	Limit  int
	Before *time.Time
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, MaxLimit)
}

func requireRoom(op, roomID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", domain.Validation(op, "roomId", "is required")
	}
	return roomID, nil
}

// Recent returns the newest limit messages of roomID in ascending order.
func (s *Service) Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	const op = "chat.Recent"

	roomID, err := requireRoom(op, roomID)
	if err != nil {
		return nil, err
	}
	msgs, _, err := s.store.List(ctx, store.Query{RoomID: roomID, Limit: clampLimit(limit, DefaultRecentLimit)})
	if err != nil {
		return nil, domain.Persistence(op, err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// History returns one page of room history in ascending order.
//
// TotalMessages counts every non-deleted message matching the room and the
// Before cursor. HasMore is true while older messages remain past this page.
func (s *Service) History(ctx context.Context, q HistoryQuery) (*domain.HistoryPage, error) {
	const op = "chat.History"

	roomID, err := requireRoom(op, q.RoomID)
	if err != nil {
		return nil, err
	}
	if q.Page < 0 {
		return nil, domain.Validation(op, "page", "must be positive")
	}
	limit := clampLimit(q.Limit, DefaultHistoryLimit)
	page := max(q.Page, 1)

	msgs, total, err := s.store.List(ctx, store.Query{
		RoomID: roomID,
		Before: q.Before,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, domain.Persistence(op, err)
	}

	pg := domain.Pagination{
		CurrentPage:   page,
		TotalPages:    (total + limit - 1) / limit,
		TotalMessages: total,
		HasMore:       page*limit < total,
	}
	if pg.HasMore && len(msgs) > 0 {
		oldest := msgs[len(msgs)-1].CreatedAt
		pg.NextBefore = &oldest
	}

	slices.Reverse(msgs)
	return &domain.HistoryPage{Messages: msgs, Pagination: pg}, nil
}

// UnreadCount counts the non-deleted messages of roomID that userID has not read.
func (s *Service) UnreadCount(ctx context.Context, roomID, userID string) (int, error) {
	const op = "chat.UnreadCount"

	roomID, err := requireRoom(op, roomID)
	if err != nil {
		return 0, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, domain.Validation(op, "userId", "is required")
	}
	n, err := s.store.CountUnread(ctx, roomID, userID)
	if err != nil {
		return 0, domain.Persistence(op, err)
	}
	return n, nil
}

// Search returns messages of roomID containing query, ignoring case, newest first.
func (s *Service) Search(ctx context.Context, roomID, query string, limit int) ([]domain.Message, error) {
	const op = "chat.Search"

	roomID, err := requireRoom(op, roomID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.Validation(op, "query", "is required")
	}
	msgs, err := s.store.Search(ctx, roomID, query, clampLimit(limit, DefaultSearchLimit))
	if err != nil {
		return nil, domain.Persistence(op, err)
	}
	return msgs, nil
}

// RoomsFor lists the rooms userID has sent messages to, most recent first.
func (s *Service) RoomsFor(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	const op = "chat.RoomsFor"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.Validation(op, "userId", "is required")
	}
	rooms, err := s.store.RoomsBySender(ctx, userID)
	if err != nil {
		return nil, domain.Persistence(op, err)
	}
	if rooms == nil {
		rooms = []domain.RoomSummary{}
	}
	return rooms, nil
}
