// Package chat ingests messages, aggregates read receipts and answers
// history queries.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/fanout"
	"github.com/nfrund/hackchat/internal/store"
	"github.com/nfrund/hackchat/internal/validation"
)

// Query limits.
const (
	DefaultRecentLimit  = 30
	DefaultHistoryLimit = 50
	DefaultSearchLimit  = 20
	MaxLimit            = 200
)

// TypingStopper clears a user's typing indicator after a send.
type TypingStopper interface {
	Stop(ctx context.Context, roomID string, who domain.Identity, connID string) error
}

// Observer is notified about ingestion outcomes.
type Observer interface {
	MessageIngested(roomType domain.RoomType)
	MessageRejected(kind string)
}

type nopObserver struct{}

func (nopObserver) MessageIngested(domain.RoomType) {}
func (nopObserver) MessageRejected(string)          {}

// SendInput is the input contract of Send.
type SendInput struct {
	RoomID        string `json:"roomId" validate:"required"`
	RoomType      string `json:"roomType" validate:"omitempty,oneof=team project hackathon direct"`
	SenderID      string `json:"senderId" validate:"required"`
	SenderName    string `json:"senderName" validate:"required"`
	SenderEmail   string `json:"senderEmail" validate:"required"`
	Text          string `json:"text" validate:"required"`
	MessageType   string `json:"messageType" validate:"omitempty,oneof=text file image system"`
	AttachmentURL string `json:"attachmentUrl,omitempty" validate:"omitempty,url"`
}

// MarkReadInput is the input contract of MarkRead.
type MarkReadInput struct {
	MessageIDs []string `json:"messageIds" validate:"min=1,dive,required"`
	UserID     string   `json:"userId" validate:"required"`
	RoomID     string   `json:"roomId"`
}

// Service implements message ingestion, read receipts and history queries.
type Service struct {
	store     store.MessageStore
	fan       fanout.Channel
	typing    TypingStopper
	validator *validation.Validator
	seq       *sequencer
	observer  Observer
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver reports ingestion outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a Service. typing may be nil.
func NewService(st store.MessageStore, fan fanout.Channel, typing TypingStopper, opts ...Option) *Service {
	s := &Service{
		store:     st,
		fan:       fan,
		typing:    typing,
		validator: validation.New(),
		seq:       newSequencer(maxIdleClocks),
		observer:  nopObserver{},
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default().With("service", "chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send validates in, persists it as a new message and publishes
// message-received to the whole room, sender included. connID identifies the
// sending connection and may be empty.
//
// Nothing is stored or published when validation fails, and a message whose
// write failed is never published. The write and the publish are not
// cancelled when ctx is, so a sender that disconnects mid-send still commits.
func (s *Service) Send(ctx context.Context, in SendInput, connID string) (*domain.Message, error) {
	const op = "chat.Send"

	msg, err := s.build(in)
	if err != nil {
		s.observer.MessageRejected(kindName(err))
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.commit(ctx, msg); err != nil {
		s.observer.MessageRejected(kindName(err))
		s.logger.ErrorContext(ctx, "Failed to persist message", "error", err, "room_id", msg.RoomID, "user_id", msg.SenderID)
		return nil, err
	}
	s.observer.MessageIngested(msg.RoomType)

	if s.typing != nil {
		who := domain.Identity{UserID: msg.SenderID, DisplayName: msg.SenderName, Email: msg.SenderEmail}
		if err := s.typing.Stop(ctx, msg.RoomID, who, connID); err != nil {
			s.logger.WarnContext(ctx, "Failed to clear typing state", "error", err, "op", op, "room_id", msg.RoomID)
		}
	}
	return msg, nil
}

func (s *Service) build(in SendInput) (*domain.Message, error) {
	const op = "chat.Send"

	in.RoomID = strings.TrimSpace(in.RoomID)
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.SenderName = strings.TrimSpace(in.SenderName)
	in.SenderEmail = strings.TrimSpace(in.SenderEmail)
	in.RoomType = strings.TrimSpace(in.RoomType)
	in.MessageType = strings.TrimSpace(in.MessageType)
	if strings.TrimSpace(in.Text) == "" {
		in.Text = ""
	}
	if err := s.validator.Struct(op, in); err != nil {
		return nil, err
	}

	roomType, _ := domain.ParseRoomType(in.RoomType)
	msgType, _ := domain.ParseMessageType(in.MessageType)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, domain.Persistence(op, err)
	}
	return &domain.Message{
		ID:            id.String(),
		RoomID:        in.RoomID,
		RoomType:      roomType,
		SenderID:      in.SenderID,
		SenderName:    in.SenderName,
		SenderEmail:   in.SenderEmail,
		Text:          in.Text,
		MessageType:   msgType,
		AttachmentURL: in.AttachmentURL,
		ReadBy:        []string{in.SenderID},
	}, nil
}

// commit assigns the room order, writes msg and publishes it while holding
// the room's sequencing lock.
func (s *Service) commit(ctx context.Context, msg *domain.Message) error {
	const op = "chat.Send"

	rc := s.seq.lock(msg.RoomID)
	defer s.seq.release(msg.RoomID, rc)

	if err := rc.seed(ctx, s.store, msg.RoomID); err != nil {
		return domain.Persistence(op, err)
	}
	msg.CreatedAt, msg.Seq = rc.next(s.now())
	msg.UpdatedAt = msg.CreatedAt

	if err := s.store.Create(ctx, msg); err != nil {
		return domain.Persistence(op, err)
	}
	rc.advance(msg.CreatedAt, msg.Seq)

	if err := fanout.PublishToRoom(ctx, s.fan, msg.RoomID, domain.EventMessageReceived, msg, ""); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish message", "error", err, "room_id", msg.RoomID, "message_id", msg.ID)
	}
	return nil
}

// MarkRead adds the user to the read set of every listed message and
// publishes messages-read to the room, excluding connID, whether or not any
// message changed. Unknown ids are skipped. It returns how many messages
// changed.
func (s *Service) MarkRead(ctx context.Context, in MarkReadInput, connID string) (int, error) {
	const op = "chat.MarkRead"

	in.UserID = strings.TrimSpace(in.UserID)
	in.RoomID = strings.TrimSpace(in.RoomID)
	if err := s.validator.Struct(op, in); err != nil {
		return 0, err
	}

	ctx = context.WithoutCancel(ctx)
	changed, err := s.store.AddReader(ctx, in.MessageIDs, in.UserID)
	if err != nil {
		return 0, domain.Persistence(op, err)
	}

	if in.RoomID != "" {
		err = fanout.PublishToRoom(ctx, s.fan, in.RoomID, domain.EventMessagesRead, domain.MessagesRead{
			MessageIDs: in.MessageIDs,
			UserID:     in.UserID,
			RoomID:     in.RoomID,
		}, connID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish read receipts", "error", err, "room_id", in.RoomID)
		}
	}
	return changed, nil
}

// SoftDelete marks the message deleted if actingUserID sent it and publishes
// message-deleted to the room. Deleting an already deleted message succeeds
// without a second notification.
func (s *Service) SoftDelete(ctx context.Context, messageID, actingUserID string) (*domain.Message, error) {
	const op = "chat.SoftDelete"

	messageID = strings.TrimSpace(messageID)
	actingUserID = strings.TrimSpace(actingUserID)
	if messageID == "" {
		return nil, domain.Validation(op, "messageId", "is required")
	}
	if actingUserID == "" {
		return nil, domain.Validation(op, "userId", "is required")
	}

	ctx = context.WithoutCancel(ctx)
	msg, err := s.store.Get(ctx, messageID)
	if err != nil {
		return nil, domain.Persistence(op, err)
	}
	if msg.SenderID != actingUserID {
		return nil, domain.Authorization(op, "only the sender can delete a message")
	}
	if msg.IsDeleted {
		return msg, nil
	}

	if err := s.store.MarkDeleted(ctx, messageID); err != nil {
		return nil, domain.Persistence(op, err)
	}
	msg.IsDeleted = true

	err = fanout.PublishToRoom(ctx, s.fan, msg.RoomID, domain.EventMessageDeleted, domain.MessageDeleted{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
	}, "")
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish deletion", "error", err, "room_id", msg.RoomID, "message_id", msg.ID)
	}
	return msg, nil
}

func kindName(err error) string {
	switch domain.KindOf(err) {
	case domain.ErrValidation:
		return "validation"
	case domain.ErrAuthorization:
		return "authorization"
	case domain.ErrNotFound:
		return "not_found"
	case domain.ErrPersistence:
		return "persistence"
	case domain.ErrProtocol:
		return "protocol"
	default:
		return "internal"
	}
}
