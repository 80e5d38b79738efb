package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/domain"
)

func alice() domain.Identity {
	return domain.Identity{UserID: "alice", DisplayName: "Alice", Email: "alice@example.com"}
}

func newContext(req *http.Request) echo.Context {
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestJWTProvider(t *testing.T) {
	p := NewJWTProvider("secret")
	token, err := p.Issue(alice(), time.Hour)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		id, err := p.Identify(newContext(req))
		require.NoError(t, err)
		assert.Equal(t, alice(), id)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		id, err := p.Identify(newContext(req))
		require.NoError(t, err)
		assert.Equal(t, "alice", id.UserID)
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := p.Identify(newContext(req))
		assert.ErrorIs(t, err, domain.ErrAuthorization)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewJWTProvider("other").Issue(alice(), time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+other)
		_, err = p.Identify(newContext(req))
		assert.ErrorIs(t, err, domain.ErrAuthorization)
	})

	t.Run("expired", func(t *testing.T) {
		old, err := p.Issue(alice(), -time.Minute)
		require.NoError(t, err)
		_, err = p.Validate(old)
		assert.Error(t, err)
	})
}

func TestHeaderProvider(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "alice")
	req.Header.Set(HeaderDisplayName, "Alice")
	req.Header.Set(HeaderEmail, "alice@example.com")

	id, err := HeaderProvider{}.Identify(newContext(req))
	require.NoError(t, err)
	assert.Equal(t, alice(), id)

	_, err = HeaderProvider{}.Identify(newContext(httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.ErrorIs(t, err, domain.ErrAuthorization)
}

func TestSessionProvider(t *testing.T) {
	store := NewCookieStore("session-secret")
	p := NewSessionProvider("session")

	e := echo.New()
	e.Use(Middleware(store))
	e.POST("/login", func(c echo.Context) error {
		sess, err := session.Get("session", c)
		if err != nil {
			return err
		}
		sess.Values[SessionUserID] = "alice"
		sess.Values[SessionDisplayName] = "Alice"
		sess.Values[SessionEmail] = "alice@example.com"
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/me", func(c echo.Context) error {
		id, err := p.Identify(c)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		return c.JSON(http.StatusOK, id)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"userId":"alice"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDirectRoomAuthorizer(t *testing.T) {
	ctx := context.Background()
	a := DirectRoomAuthorizer{Prefix: "dm:"}

	room := DirectRoomID("dm:", "bob", "alice")
	assert.Equal(t, "dm:alice:bob", room)

	assert.NoError(t, a.Authorize(ctx, "alice", room))
	assert.NoError(t, a.Authorize(ctx, "bob", room))
	assert.ErrorIs(t, a.Authorize(ctx, "carol", room), domain.ErrAuthorization)
	assert.ErrorIs(t, a.Authorize(ctx, "alice", "dm:alice"), domain.ErrValidation)
	assert.NoError(t, a.Authorize(ctx, "carol", "team-7"))
	assert.NoError(t, AllowAll{}.Authorize(ctx, "carol", room))
}
