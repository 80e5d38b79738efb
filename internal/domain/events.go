package domain

import (
	"encoding/json"
	"time"
)

// Client to server events.
const (
	EventIdentify      = "identify"
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventSendMessage   = "send-message"
	EventTypingStart   = "typing-start"
	EventTypingStop    = "typing-stop"
	EventMarkRead      = "mark-read"
	EventListOnline    = "list-online"
	EventDeleteMessage = "delete-message"
	EventHeartbeat     = "heartbeat"
)

// Server to client events.
const (
	EventPresenceChanged = "presence-changed"
	EventMemberJoined    = "member-joined"
	EventMemberLeft      = "member-left"
	EventMessageReceived = "message-received"
	EventMessageError    = "message-error"
	EventTypingStarted   = "typing-started"
	EventTypingStopped   = "typing-stopped"
	EventMessagesRead    = "messages-read"
	EventMessageDeleted  = "message-deleted"
	EventError           = "error"
	EventAck             = "ack"
)

type PresenceChanged struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
}

// MemberEvent is the payload of member-joined and member-left.
type MemberEvent struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	RoomID      string    `json:"roomId"`
	Timestamp   time.Time `json:"timestamp"`
}

// TypingEvent is the payload of typing-started and typing-stopped.
type TypingEvent struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	RoomID      string `json:"roomId"`
}

type MessagesRead struct {
	MessageIDs []string `json:"messageIds"`
	UserID     string   `json:"userId"`
	RoomID     string   `json:"roomId"`
}

type MessageDeleted struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// MessageError is sent to the originator of a failed send-message.
type MessageError struct {
	Error           string          `json:"error"`
	Kind            string          `json:"kind,omitempty"`
	OriginalPayload json.RawMessage `json:"originalPayload,omitempty"`
}

// ErrorEvent reports a failed client event other than send-message.
type ErrorEvent struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
