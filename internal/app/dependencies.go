package app

import (
	"github.com/samber/do/v2"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/chat"
	"github.com/nfrund/hackchat/internal/fanout"
	"github.com/nfrund/hackchat/internal/metrics"
	"github.com/nfrund/hackchat/internal/presence"
	"github.com/nfrund/hackchat/internal/server"
	"github.com/nfrund/hackchat/internal/store"
	"github.com/nfrund/hackchat/internal/websocket"
)

// Dependencies holds the core services the application runs.
// It is resolved from the injector once every provider is registered.
type Dependencies struct {
	Store    store.MessageStore
	Identity auth.Provider
	Chat     *chat.Service
	Presence *presence.Registry
	Hub      *websocket.Hub
	Relay    *fanout.Relay
	Metrics  *metrics.Metrics
	Server   *server.Server

	tracing   *tracing
	ephemeral *ephemeral
}

// resolveDependencies builds the components in dependency order. The
// providers that can fail are invoked first so their errors are returned
// instead of surfacing from a dependent provider.
func resolveDependencies(i do.Injector) (Dependencies, error) {
	var deps Dependencies
	var err error

	if deps.Store, err = do.Invoke[store.MessageStore](i); err != nil {
		return deps, err
	}
	if deps.ephemeral, err = do.Invoke[*ephemeral](i); err != nil {
		return deps, err
	}
	if deps.tracing, err = do.Invoke[*tracing](i); err != nil {
		return deps, err
	}
	if deps.Identity, err = do.Invoke[auth.Provider](i); err != nil {
		return deps, err
	}
	if deps.Chat, err = do.Invoke[*chat.Service](i); err != nil {
		return deps, err
	}
	if deps.Presence, err = do.Invoke[*presence.Registry](i); err != nil {
		return deps, err
	}
	if deps.Hub, err = do.Invoke[*websocket.Hub](i); err != nil {
		return deps, err
	}
	if deps.Relay, err = do.Invoke[*fanout.Relay](i); err != nil {
		return deps, err
	}
	if deps.Metrics, err = do.Invoke[*metrics.Metrics](i); err != nil {
		return deps, err
	}
	if deps.Server, err = do.Invoke[*server.Server](i); err != nil {
		return deps, err
	}
	return deps, nil
}
