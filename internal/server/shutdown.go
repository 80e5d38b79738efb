package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WaitForShutdown blocks until an interrupt or terminate signal is received,
// ctx is done, or errc yields a value. It returns the server error, if any.
func WaitForShutdown(ctx context.Context, errc <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		return nil
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

// Shutdown stops accepting requests and waits for in-flight ones.
// Upgraded websocket connections are closed by the hub, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.E.Shutdown(ctx)
}
