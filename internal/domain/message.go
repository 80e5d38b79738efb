package domain

import (
	"slices"
	"strings"
	"time"
)

// RoomType classifies a room.
type RoomType string

const (
	RoomTeam      RoomType = "team"
	RoomProject   RoomType = "project"
	RoomHackathon RoomType = "hackathon"
	RoomDirect    RoomType = "direct"
)

// Valid reports whether t is one of the known room types.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTeam, RoomProject, RoomHackathon, RoomDirect:
		return true
	}
	return false
}

// ParseRoomType parses s, defaulting an empty value to RoomDirect.
func ParseRoomType(s string) (RoomType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RoomDirect, true
	}
	t := RoomType(s)
	return t, t.Valid()
}

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageImage, MessageSystem:
		return true
	}
	return false
}

// ParseMessageType parses s, defaulting an empty value to MessageText.
func ParseMessageType(s string) (MessageType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MessageText, true
	}
	t := MessageType(s)
	return t, t.Valid()
}

// Message is a persisted chat message.
//
// RoomID, SenderID, Text, CreatedAt and Seq never change after creation.
// ReadBy only grows and IsDeleted only flips from false to true.
type Message struct {
	ID            string      `json:"id"`
	RoomID        string      `json:"roomId"`
	RoomType      RoomType    `json:"roomType"`
	SenderID      string      `json:"senderId"`
	SenderName    string      `json:"senderName"`
	SenderEmail   string      `json:"senderEmail"`
	Text          string      `json:"text"`
	MessageType   MessageType `json:"messageType"`
	AttachmentURL string      `json:"attachmentUrl,omitempty"`
	ReadBy        []string    `json:"readBy"`
	IsDeleted     bool        `json:"isDeleted"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	// Seq is the per-room insertion counter, the tie-break after CreatedAt.
	Seq int64 `json:"seq"`
}

// HasReader reports whether userID is in the read set.
func (m *Message) HasReader(userID string) bool {
	return slices.Contains(m.ReadBy, userID)
}

// AddReader adds userID to the read set and reports whether it changed.
func (m *Message) AddReader(userID string) bool {
	if m.HasReader(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	m.ReadBy = slices.Clone(m.ReadBy)
	return m
}

// Before reports whether m sorts before other in room order.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// RoomSummary describes a room a user has sent into.
type RoomSummary struct {
	RoomID          string    `json:"roomId"`
	RoomType        RoomType  `json:"roomType"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
}

// Pagination describes a history page.
type Pagination struct {
	CurrentPage   int        `json:"currentPage"`
	TotalPages    int        `json:"totalPages"`
	TotalMessages int        `json:"totalMessages"`
	HasMore       bool       `json:"hasMore"`
	NextBefore    *time.Time `json:"nextBefore,omitempty"`
}

// HistoryPage is one page of room history in ascending order.
type HistoryPage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}
