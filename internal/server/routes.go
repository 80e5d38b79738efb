package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	api := s.E.Group("/api",
		middleware.RateLimiter(s.Cfg.GetAPIRatePerMinute()),
		middleware.Identity(s.identity),
	)
	s.chatHandler.Register(api.Group("/chat"))
	api.GET("/presence", s.presenceHandler.GetPresence)

	// The hub binds the identity itself so it can answer 401 before upgrading.
	s.E.GET("/ws", s.hub.Handler())

	if s.metrics != nil {
		s.E.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
