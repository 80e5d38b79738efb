package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/domain"
)

// Identity headers set by a trusted proxy.
const (
	HeaderUserID      = "X-User-Id"
	HeaderDisplayName = "X-User-Name"
	HeaderEmail       = "X-User-Email"
)

// HeaderProvider trusts identity headers. Use it only behind a proxy that
// strips them from client requests.
type HeaderProvider struct{}

func (HeaderProvider) Identify(c echo.Context) (domain.Identity, error) {
	h := c.Request().Header
	userID := strings.TrimSpace(h.Get(HeaderUserID))
	if userID == "" {
		return domain.Identity{}, unauthenticated("missing " + HeaderUserID)
	}
	return domain.Identity{
		UserID:      userID,
		DisplayName: strings.TrimSpace(h.Get(HeaderDisplayName)),
		Email:       strings.TrimSpace(h.Get(HeaderEmail)),
	}, nil
}
