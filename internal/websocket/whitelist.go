package websocket

import (
	"slices"

	"github.com/nfrund/hackchat/internal/domain"
)

// eventWhitelist is the set of events clients are allowed to send.
type eventWhitelist struct {
	allowed []string
}

func newEventWhitelist(events ...string) *eventWhitelist {
	valid := make([]string, 0, len(events))
	for _, e := range events {
		if e != "" {
			valid = append(valid, e)
		}
	}
	return &eventWhitelist{allowed: valid}
}

// IsAllowed reports whether clients may send event.
func (w *eventWhitelist) IsAllowed(event string) bool {
	if event == "" {
		return false
	}
	return slices.Contains(w.allowed, event)
}

func defaultWhitelist() *eventWhitelist {
	return newEventWhitelist(
		domain.EventIdentify,
		domain.EventJoinRoom,
		domain.EventLeaveRoom,
		domain.EventSendMessage,
		domain.EventTypingStart,
		domain.EventTypingStop,
		domain.EventMarkRead,
		domain.EventListOnline,
		domain.EventDeleteMessage,
		domain.EventHeartbeat,
	)
}
