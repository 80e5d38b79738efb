package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/domain"
)

// IdentityContextKey holds the caller's domain.Identity.
const IdentityContextKey = "identity"

// Identity resolves the caller through provider and rejects anonymous
// requests with 401.
func Identity(provider auth.Provider) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := provider.Identify(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"success": false,
					"error":   domain.PublicMessage(err),
				})
			}
			c.Set(IdentityContextKey, id)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by Identity.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(IdentityContextKey).(domain.Identity)
	return id, ok
}
