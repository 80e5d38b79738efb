package server

import (
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/chat"
	"github.com/nfrund/hackchat/internal/config"
	"github.com/nfrund/hackchat/internal/handlers"
	"github.com/nfrund/hackchat/internal/metrics"
	appmw "github.com/nfrund/hackchat/internal/middleware"
	"github.com/nfrund/hackchat/internal/websocket"
)

// Deps are the services the HTTP server exposes.
type Deps struct {
	Config     config.Provider
	Identity   auth.Provider
	Authorizer auth.RoomAuthorizer
	Chat       *chat.Service
	Presence   handlers.PresenceLister
	Hub        *websocket.Hub
	Metrics    *metrics.Metrics
	// Sessions is required when the identity provider reads cookie sessions.
	Sessions sessions.Store
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	Cfg config.Provider

	identity        auth.Provider
	hub             *websocket.Hub
	metrics         *metrics.Metrics
	chatHandler     *handlers.ChatHandler
	presenceHandler *handlers.PresenceHandler
}

// New creates a new Server instance with the global middleware installed.
// Call RegisterRoutes before serving.
func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	setupErrorHandling(e)

	e.Use(middleware.RequestID())
	e.Use(appmw.Logger)
	e.Use(middleware.Recover())
	if deps.Metrics != nil {
		e.Use(deps.Metrics.Middleware())
	}
	if deps.Sessions != nil {
		e.Use(auth.Middleware(deps.Sessions))
	}

	return &Server{
		E:               e,
		Cfg:             deps.Config,
		identity:        deps.Identity,
		hub:             deps.Hub,
		metrics:         deps.Metrics,
		chatHandler:     handlers.NewChatHandler(deps.Chat, deps.Authorizer),
		presenceHandler: handlers.NewPresenceHandler(deps.Presence),
	}
}
