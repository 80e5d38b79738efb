package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/domain"
)

// PresenceLister is the part of the presence registry the handler reads.
type PresenceLister interface {
	ListAll(ctx context.Context) ([]domain.PresenceEntry, error)
}

// PresenceHandler handles presence-related HTTP requests
type PresenceHandler struct {
	presence PresenceLister
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(presence PresenceLister) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetPresence returns the current online users as JSON
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	entries, err := h.presence.ListAll(c.Request().Context())
	if err != nil {
		return fail(c, domain.Persistence("handlers.GetPresence", err))
	}
	return respond(c, map[string]any{
		"users": nonNil(entries),
		"count": len(entries),
	})
}
