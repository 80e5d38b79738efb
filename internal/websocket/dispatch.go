package websocket

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nfrund/hackchat/internal/chat"
	"github.com/nfrund/hackchat/internal/domain"
)

// dispatch handles one client event on the connection's worker.
func (h *Hub) dispatch(ctx context.Context, c *Conn, f Frame) {
	var (
		result any
		err    error
	)
	switch f.Event {
	case domain.EventIdentify:
		result, err = h.identify(ctx, c, f.Data)
	case domain.EventJoinRoom:
		result, err = h.joinRoom(ctx, c, f.Data)
	case domain.EventLeaveRoom:
		result, err = h.leaveRoom(ctx, c, f.Data)
	case domain.EventSendMessage:
		result, err = h.sendMessage(ctx, c, f.Data)
	case domain.EventTypingStart, domain.EventTypingStop:
		result, err = h.typing(ctx, c, f.Event, f.Data)
	case domain.EventMarkRead:
		result, err = h.markRead(ctx, c, f.Data)
	case domain.EventListOnline:
		result, err = h.listOnline(ctx)
	case domain.EventDeleteMessage:
		result, err = h.deleteMessage(ctx, c, f.Data)
	case domain.EventHeartbeat:
		result = ackResult{Success: true}
	default:
		err = domain.Protocol("websocket.dispatch", "unknown event "+f.Event)
	}

	if err != nil {
		if domain.KindOf(err) == nil || domain.KindOf(err) == domain.ErrPersistence {
			c.logger.Error("Event failed", "event", f.Event, "error", err)
		} else {
			c.logger.Debug("Event rejected", "event", f.Event, "error", err)
		}
		c.fail(f, err)
		return
	}
	if f.Ack != "" || f.Event == domain.EventListOnline {
		c.reply(domain.EventAck, result, f.Ack)
	}
}

func decode(op string, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return domain.Protocol(op, "missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.Protocol(op, "malformed data")
	}
	return nil
}

// claim checks a user id carried by an event against the bound identity.
// An empty claim stands for the bound user.
func claim(op string, c *Conn, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID != "" && userID != c.identity.UserID {
		return domain.Authorization(op, "user does not match the connection identity")
	}
	return nil
}

// authorize asks the room authorizer whether the bound user may act in
// roomID. An empty room id is left to the operation's own validation.
func (h *Hub) authorize(ctx context.Context, c *Conn, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil
	}
	return h.deps.Authorizer.Authorize(ctx, c.identity.UserID, roomID)
}

func (h *Hub) identify(ctx context.Context, c *Conn, data json.RawMessage) (any, error) {
	const op = "websocket.identify"

	var p identifyPayload
	if len(data) > 0 {
		if err := decode(op, data, &p); err != nil {
			return nil, err
		}
	}
	if err := claim(op, c, p.UserID); err != nil {
		return nil, err
	}
	if c.identity.DisplayName == "" {
		c.identity.DisplayName = strings.TrimSpace(p.DisplayName)
	}
	if c.identity.Email == "" {
		c.identity.Email = strings.TrimSpace(p.Email)
	}
	return h.deps.Presence.Register(ctx, c.identity, c.id)
}

func (h *Hub) listOnline(ctx context.Context) (any, error) {
	entries, err := h.deps.Presence.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.PresenceEntry{}
	}
	return entries, nil
}

func (h *Hub) joinRoom(ctx context.Context, c *Conn, data json.RawMessage) (any, error) {
	const op = "websocket.joinRoom"

	var p roomPayload
	if err := decode(op, data, &p); err != nil {
		return nil, err
	}
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		return nil, domain.Validation(op, "roomId", "is required")
	}
	if p.RoomType != "" {
		if _, ok := domain.ParseRoomType(p.RoomType); !ok {
			return nil, domain.Validation(op, "roomType", "must be one of: team project hackathon direct")
		}
	}
	if err := claim(op, c, p.UserID); err != nil {
		return nil, err
	}
	if err := h.authorize(ctx, c, roomID); err != nil {
		return nil, err
	}
	h.deps.Rooms.Join(ctx, c.id, roomID, c.identity)
	return ackResult{Success: true}, nil
}

func (h *Hub) leaveRoom(ctx context.Context, c *Conn, data json.RawMessage) (any, error) {
	const op = "websocket.leaveRoom"

	var p roomPayload
	if err := decode(op, data, &p); err != nil {
		return nil, err
	}
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		return nil, domain.Validation(op, "roomId", "is required")
	}
	if err := claim(op, c, p.UserID); err != nil {
		return nil, err
	}
	h.deps.Rooms.Leave(ctx, c.id, roomID, c.identity)
	return ackResult{Success: true}, nil
}

func (h *Hub) sendMessage(ctx context.Context, c *Conn, data json.RawMessage) (any, error) {
	const op = "websocket.sendMessage"

	var in chat.SendInput
	if err := decode(op, data, &in); err != nil {
		return nil, err
	}
	if err := claim(op, c, in.SenderID); err != nil {
		return nil, err
	}
	if err := h.authorize(ctx, c, in.RoomID); err != nil {
		return nil, err
	}
	in.SenderID = c.identity.UserID
	if strings.TrimSpace(in.SenderName) == "" {
		in.SenderName = c.identity.DisplayName
	}
	if strings.TrimSpace(in.SenderEmail) == "" {
		in.SenderEmail = c.identity.Email
	}

	msg, err := h.deps.Chat.Send(ctx, in, c.id)
	if err != nil {
		return nil, err
	}
	delete(c.typingRooms, msg.RoomID)
	return msg, nil
}

func (h *Hub) typing(ctx context.Context, c *Conn, event string, data json.RawMessage) (any, error) {
	op := "websocket." + event

	var p roomPayload
	if err := decode(op, data, &p); err != nil {
		return nil, err
	}
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		return nil, domain.Validation(op, "roomId", "is required")
	}
	if err := claim(op, c, p.UserID); err != nil {
		return nil, err
	}
	if err := h.authorize(ctx, c, roomID); err != nil {
		return nil, err
	}

	if event == domain.EventTypingStart {
		if err := h.deps.Typing.Start(ctx, roomID, c.identity, c.id); err != nil {
			return nil, err
		}
		c.typingRooms[roomID] = struct{}{}
	} else {
		if err := h.deps.Typing.Stop(ctx, roomID, c.identity, c.id); err != nil {
			return nil, err
		}
		delete(c.typingRooms, roomID)
	}
	return ackResult{Success: true}, nil
}

func (h *Hub) markRead(ctx context.Context, c *Conn, data json.RawMessage) (any, error) {
	const op = "websocket.markRead"

	var in chat.MarkReadInput
	if err := decode(op, data, &in); err != nil {
		return nil, err
	}
	if err := claim(op, c, in.UserID); err != nil {
		return nil, err
	}
	if err := h.authorize(ctx, c, in.RoomID); err != nil {
		return nil, err
	}
	in.UserID = c.identity.UserID

	changed, err := h.deps.Chat.MarkRead(ctx, in, c.id)
	if err != nil {
		return nil, err
	}
	return ackResult{Success: true, Changed: &changed}, nil
}

func (h *Hub) deleteMessage(ctx context.Context, c *Conn, data json.RawMessage) (any, error) {
	const op = "websocket.deleteMessage"

	var p deletePayload
	if err := decode(op, data, &p); err != nil {
		return nil, err
	}
	if err := claim(op, c, p.UserID); err != nil {
		return nil, err
	}
	return h.deps.Chat.SoftDelete(ctx, p.MessageID, c.identity.UserID)
}
