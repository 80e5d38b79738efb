package auth

import (
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/domain"
)

// Session value keys written by the auth service.
const (
	SessionUserID      = "user_id"
	SessionDisplayName = "display_name"
	SessionEmail       = "email"
)

// SessionProvider reads the identity from a cookie session shared with the
// auth service. It requires the echo-contrib session middleware.
type SessionProvider struct {
	name string
}

func NewSessionProvider(name string) *SessionProvider {
	return &SessionProvider{name: name}
}

// NewCookieStore returns the session store for secret.
func NewCookieStore(secret string) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	}
	return store
}

// Middleware installs the session store for NewSessionProvider.
func Middleware(store sessions.Store) echo.MiddlewareFunc {
	return session.Middleware(store)
}

func (p *SessionProvider) Identify(c echo.Context) (domain.Identity, error) {
	sess, err := session.Get(p.name, c)
	if err != nil {
		return domain.Identity{}, unauthenticated("no session")
	}
	userID, _ := sess.Values[SessionUserID].(string)
	if userID == "" {
		return domain.Identity{}, unauthenticated("not signed in")
	}
	name, _ := sess.Values[SessionDisplayName].(string)
	email, _ := sess.Values[SessionEmail].(string)
	return domain.Identity{UserID: userID, DisplayName: name, Email: email}, nil
}
