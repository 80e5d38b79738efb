// Package app wires the chat core together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/do/v2"

	"github.com/nfrund/hackchat/internal/config"
	"github.com/nfrund/hackchat/internal/server"
)

// Version is set at build time with -ldflags "-X github.com/nfrund/hackchat/internal/app.Version=...".
var Version = "dev"

// ShutdownTimeout bounds a graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// App owns the running components and their lifecycle.
type App struct {
	cfg  config.Provider
	deps Dependencies

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped sync.Once
}

// New builds every component for cfg. Nothing is served until Start.
func New(ctx context.Context, cfg config.Provider) (*App, error) {
	injector := do.New()
	NewModules(ctx, injector, cfg)

	deps, err := resolveDependencies(injector)
	if err != nil {
		a := &App{cfg: cfg, deps: deps}
		_ = a.closeResources()
		return nil, fmt.Errorf("build application: %w", err)
	}
	return &App{cfg: cfg, deps: deps}, nil
}

// Deps returns the resolved components.
func (a *App) Deps() Dependencies {
	return a.deps
}

// Start connects the fan-out relay and starts the heartbeat reaper.
func (a *App) Start(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	if err := a.deps.Relay.Start(bg); err != nil {
		cancel()
		return fmt.Errorf("start fan-out relay: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.deps.Hub.RunReaper(bg)
	}()
	return nil
}

// Run starts the application and serves HTTP until ctx is done, a signal
// arrives or the listener fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	errc := a.deps.Server.Start(a.cfg.GetHTTPAddr())
	runErr := server.WaitForShutdown(ctx, errc)

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops the HTTP server, closes every websocket connection, stops
// the background workers and closes the bus and the stores, in that order.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopped.Do(func() {
		if err := a.deps.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.deps.Hub.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
		}
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		errs = append(errs, a.closeResources())
	})
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if t := a.deps.tracing; t != nil {
		if err := t.bridge.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
		t.cleanup()
	}
	if a.deps.Store != nil {
		if err := a.deps.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close message store: %w", err))
		}
	}
	if e := a.deps.ephemeral; e != nil && e.client != nil {
		if err := e.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
