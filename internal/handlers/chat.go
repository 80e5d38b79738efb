package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/chat"
	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/middleware"
)

// ChatHandler serves the chat query and mutation routes under /api/chat.
type ChatHandler struct {
	chat       *chat.Service
	authorizer auth.RoomAuthorizer
}

// NewChatHandler creates a new ChatHandler. A nil authorizer allows every room.
func NewChatHandler(svc *chat.Service, authorizer auth.RoomAuthorizer) *ChatHandler {
	if authorizer == nil {
		authorizer = auth.AllowAll{}
	}
	return &ChatHandler{chat: svc, authorizer: authorizer}
}

// Register mounts the chat routes on g.
func (h *ChatHandler) Register(g *echo.Group) {
	g.GET("/history/:roomId", h.History)
	g.GET("/recent/:roomId", h.Recent)
	g.GET("/rooms/:userId", h.Rooms)
	g.POST("/read", h.MarkRead)
	g.DELETE("/message/:messageId", h.Delete)
	g.GET("/unread/:roomId/:userId", h.Unread)
	g.GET("/search/:roomId", h.Search)
}

// History handles GET /api/chat/history/:roomId?page&limit&before.
func (h *ChatHandler) History(c echo.Context) error {
	const op = "handlers.History"

	roomID, err := h.room(c)
	if err != nil {
		return fail(c, err)
	}
	page, err := intParam(c, op, "page")
	if err != nil {
		return fail(c, err)
	}
	limit, err := intParam(c, op, "limit")
	if err != nil {
		return fail(c, err)
	}
	var before *time.Time
	if raw := strings.TrimSpace(c.QueryParam("before")); raw != "" {
		t, perr := time.Parse(time.RFC3339Nano, raw)
		if perr != nil {
			return fail(c, domain.Validation(op, "before", "must be an RFC 3339 timestamp"))
		}
		before = &t
	}

	result, err := h.chat.History(c.Request().Context(), chat.HistoryQuery{
		RoomID: roomID,
		Page:   page,
		Limit:  limit,
		Before: before,
	})
	if err != nil {
		return fail(c, err)
	}
	return respond(c, map[string]any{
		"messages":   nonNil(result.Messages),
		"pagination": result.Pagination,
	})
}

// Recent handles GET /api/chat/recent/:roomId?limit.
func (h *ChatHandler) Recent(c echo.Context) error {
	roomID, err := h.room(c)
	if err != nil {
		return fail(c, err)
	}
	limit, err := intParam(c, "handlers.Recent", "limit")
	if err != nil {
		return fail(c, err)
	}
	msgs, err := h.chat.Recent(c.Request().Context(), roomID, limit)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, map[string]any{"messages": nonNil(msgs)})
}

// Rooms handles GET /api/chat/rooms/:userId. Callers may only list their own rooms.
func (h *ChatHandler) Rooms(c echo.Context) error {
	userID, err := actingUser(c, "handlers.Rooms", c.Param("userId"))
	if err != nil {
		return fail(c, err)
	}
	rooms, err := h.chat.RoomsFor(c.Request().Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, map[string]any{"rooms": rooms})
}

// MarkRead handles POST /api/chat/read. The acting user is the caller.
func (h *ChatHandler) MarkRead(c echo.Context) error {
	const op = "handlers.MarkRead"

	var req MarkReadRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, domain.Protocol(op, "malformed request body"))
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, err)
	}
	userID, err := actingUser(c, op, req.UserID)
	if err != nil {
		return fail(c, err)
	}
	if req.RoomID != "" {
		if err := h.authorizer.Authorize(c.Request().Context(), userID, req.RoomID); err != nil {
			return fail(c, err)
		}
	}

	changed, err := h.chat.MarkRead(c.Request().Context(), chat.MarkReadInput{
		MessageIDs: req.MessageIDs,
		UserID:     userID,
		RoomID:     req.RoomID,
	}, "")
	if err != nil {
		return fail(c, err)
	}
	return respond(c, map[string]any{
		"message": "Messages marked as read",
		"changed": changed,
	})
}

// Delete handles DELETE /api/chat/message/:messageId.
func (h *ChatHandler) Delete(c echo.Context) error {
	const op = "handlers.Delete"

	var req DeleteMessageRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return fail(c, domain.Protocol(op, "malformed request body"))
		}
	}
	userID, err := actingUser(c, op, req.UserID)
	if err != nil {
		return fail(c, err)
	}

	msg, err := h.chat.SoftDelete(c.Request().Context(), c.Param("messageId"), userID)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, map[string]any{
		"message":   "Message deleted successfully",
		"messageId": msg.ID,
		"roomId":    msg.RoomID,
	})
}

// Unread handles GET /api/chat/unread/:roomId/:userId.
func (h *ChatHandler) Unread(c echo.Context) error {
	roomID, err := h.room(c)
	if err != nil {
		return fail(c, err)
	}
	userID, err := actingUser(c, "handlers.Unread", c.Param("userId"))
	if err != nil {
		return fail(c, err)
	}
	n, err := h.chat.UnreadCount(c.Request().Context(), roomID, userID)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, map[string]any{"unreadCount": n})
}

// Search handles GET /api/chat/search/:roomId?query&limit.
func (h *ChatHandler) Search(c echo.Context) error {
	roomID, err := h.room(c)
	if err != nil {
		return fail(c, err)
	}
	limit, err := intParam(c, "handlers.Search", "limit")
	if err != nil {
		return fail(c, err)
	}
	query := c.QueryParam("query")
	msgs, err := h.chat.Search(c.Request().Context(), roomID, query, limit)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, map[string]any{
		"messages":    nonNil(msgs),
		"searchQuery": query,
	})
}

// room returns the :roomId parameter after checking the caller may read it.
func (h *ChatHandler) room(c echo.Context) (string, error) {
	roomID := strings.TrimSpace(c.Param("roomId"))
	if roomID == "" {
		return "", domain.Validation("handlers", "roomId", "is required")
	}
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return roomID, nil
	}
	if err := h.authorizer.Authorize(c.Request().Context(), id.UserID, roomID); err != nil {
		return "", err
	}
	return roomID, nil
}

// actingUser resolves the user performing a mutation. A claimed userId must
// match the authenticated caller.
func actingUser(c echo.Context, op, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		if claimed == "" {
			return "", domain.Validation(op, "userId", "is required")
		}
		return claimed, nil
	}
	if claimed != "" && claimed != id.UserID {
		return "", domain.Authorization(op, "userId does not match the authenticated user")
	}
	return id.UserID, nil
}

func intParam(c echo.Context, op, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validation(op, name, "must be an integer")
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
