package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/chat"
	"github.com/nfrund/hackchat/internal/config"
	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/fanout"
	"github.com/nfrund/hackchat/internal/metrics"
	"github.com/nfrund/hackchat/internal/presence"
	"github.com/nfrund/hackchat/internal/rooms"
	"github.com/nfrund/hackchat/internal/store/memory"
	"github.com/nfrund/hackchat/internal/typing"
	"github.com/nfrund/hackchat/internal/websocket"
)

type discardChannel struct{}

func (discardChannel) Publish(context.Context, fanout.Envelope) error { return nil }

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	fan := discardChannel{}
	tt := typing.NewTracker(typing.NewMemoryStore(), fan)
	reg := presence.NewRegistry(presence.NewMemoryStore(), fan)
	svc := chat.NewService(memory.New(), fan, tt)
	hub := websocket.NewHub(websocket.Deps{
		Identity: auth.HeaderProvider{},
		Presence: reg,
		Rooms:    rooms.NewTracker(fan),
		Typing:   tt,
		Chat:     svc,
	}, websocket.Options{})
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })

	s := New(Deps{
		Config:   cfg,
		Identity: auth.HeaderProvider{},
		Chat:     svc,
		Presence: reg,
		Hub:      hub,
		Metrics:  metrics.New(),
	})
	s.RegisterRoutes()
	return s
}

func get(s *Server, target, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != "" {
		req.Header.Set(auth.HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, &config.Config{APIRatePerMinute: 600})

	rec := get(s, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = get(s, "/api/presence", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(s, "/api/presence", "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"users":[],"count":0}`, rec.Body.String())

	rec = get(s, "/ws", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(s, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestRoutes_RateLimited(t *testing.T) {
	s := newTestServer(t, &config.Config{APIRatePerMinute: 2})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(s, "/api/presence", "alice").Code)
	}
	rec := get(s, "/api/presence", "alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many requests")
}

func TestHTTPErrorHandler_WithStackTrace(t *testing.T) {
	e := echo.New()

	var logBuffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{AddSource: true}))
	originalLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(originalLogger)

	setupErrorHandling(e)

	e.GET("/test-unhandled-error", func(c echo.Context) error {
		return errors.New("a deliberate unhandled error occurred")
	})

	req := httptest.NewRequest(http.MethodGet, "/test-unhandled-error", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal Server Error"}`, rec.Body.String())

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Internal Server Error (Unhandled)")
	assert.Contains(t, logOutput, "error=\"a deliberate unhandled error occurred\"")
	assert.Contains(t, logOutput, "stack_trace=")
	assert.Contains(t, logOutput, "runtime/debug/stack.go")
}

func TestHTTPErrorHandler_DomainErrors(t *testing.T) {
	e := echo.New()
	setupErrorHandling(e)

	e.GET("/missing", func(c echo.Context) error {
		return domain.NotFound("test", "message not found")
	})
	e.GET("/teapot", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	tests := []struct {
		target   string
		wantCode int
		wantBody string
	}{
		{"/missing", http.StatusNotFound, `{"success":false,"error":"message not found"}`},
		{"/teapot", http.StatusTeapot, `{"success":false,"error":"short and stout"}`},
		{"/nowhere", http.StatusNotFound, `{"success":false,"error":"Not Found"}`},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
