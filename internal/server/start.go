package server

import (
	"errors"
	"log/slog"
	"net/http"
)

// Start runs the HTTP server on addr in the background. The returned channel
// receives the listener error, if any, and is closed when serving stops.
func (s *Server) Start(addr string) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		slog.Info("HTTP server listening", "addr", addr)
		if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	return errc
}
