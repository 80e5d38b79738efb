// Package auth binds a verified identity to incoming requests and decides
// who may join which room.
//
// Identities are issued by an external auth service. This package only
// verifies what that service hands out: a signed token, a shared cookie
// session or, behind a trusted proxy, plain headers.
package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/domain"
)

// Provider resolves the identity of the caller of a request.
type Provider interface {
	Identify(c echo.Context) (domain.Identity, error)
}

// RoomAuthorizer decides whether userID may subscribe to roomID.
type RoomAuthorizer interface {
	Authorize(ctx context.Context, userID, roomID string) error
}

// AllowAll admits every user to every room.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, string) error { return nil }

// DirectRoomAuthorizer restricts direct rooms named <prefix><a>:<b> to the
// users a and b. Other rooms are admitted.
type DirectRoomAuthorizer struct {
	Prefix string
}

func (d DirectRoomAuthorizer) Authorize(_ context.Context, userID, roomID string) error {
	const op = "auth.Authorize"

	if d.Prefix == "" || !strings.HasPrefix(roomID, d.Prefix) {
		return nil
	}
	a, b, ok := strings.Cut(strings.TrimPrefix(roomID, d.Prefix), ":")
	if !ok || a == "" || b == "" {
		return domain.Validation(op, "roomId", "is not a valid direct room")
	}
	if userID != a && userID != b {
		return domain.Authorization(op, "not a participant of this direct room")
	}
	return nil
}

// DirectRoomID returns the direct room of two users. The order of the users
// does not matter.
func DirectRoomID(prefix, userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return prefix + userA + ":" + userB
}

func unauthenticated(msg string) error {
	return domain.Authorization("auth.Identify", msg)
}
