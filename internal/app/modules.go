package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/chat"
	"github.com/nfrund/hackchat/internal/config"
	"github.com/nfrund/hackchat/internal/database"
	"github.com/nfrund/hackchat/internal/fanout"
	"github.com/nfrund/hackchat/internal/metrics"
	"github.com/nfrund/hackchat/internal/presence"
	"github.com/nfrund/hackchat/internal/pubsub"
	"github.com/nfrund/hackchat/internal/rooms"
	"github.com/nfrund/hackchat/internal/server"
	"github.com/nfrund/hackchat/internal/store"
	"github.com/nfrund/hackchat/internal/store/jsonl"
	"github.com/nfrund/hackchat/internal/store/memory"
	"github.com/nfrund/hackchat/internal/store/sqlite"
	"github.com/nfrund/hackchat/internal/store/surreal"
	"github.com/nfrund/hackchat/internal/typing"
	"github.com/nfrund/hackchat/internal/websocket"
)

// connectRetries bounds the startup attempts against SurrealDB.
const connectRetries = 5

// tracing is the bus tracer together with its exporter cleanup.
type tracing struct {
	bridge  *pubsub.WatermillBridge
	cleanup func()
}

// ephemeral groups the presence and typing stores, which share a backend.
type ephemeral struct {
	presence presence.Store
	typing   typing.Store
	client   redis.UniversalClient
}

// NewModules registers a provider for every component on i. Components are
// built lazily on first Invoke.
func NewModules(ctx context.Context, i do.Injector, cfg config.Provider) {
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, metrics.New())

	do.Provide(i, func(i do.Injector) (store.MessageStore, error) {
		return openStore(ctx, cfg)
	})
	do.Provide(i, func(i do.Injector) (*ephemeral, error) {
		return openEphemeral(ctx, cfg)
	})
	do.Provide(i, func(i do.Injector) (*tracing, error) {
		return openBus(ctx, cfg)
	})
	do.Provide(i, func(i do.Injector) (*fanout.Bus, error) {
		t := do.MustInvoke[*tracing](i)
		return fanout.NewBus(t.bridge), nil
	})

	do.Provide(i, func(i do.Injector) (*rooms.Tracker, error) {
		return rooms.NewTracker(do.MustInvoke[*fanout.Bus](i)), nil
	})
	do.Provide(i, func(i do.Injector) (*presence.Registry, error) {
		eph := do.MustInvoke[*ephemeral](i)
		return presence.NewRegistry(eph.presence, do.MustInvoke[*fanout.Bus](i)), nil
	})
	do.Provide(i, func(i do.Injector) (*typing.Tracker, error) {
		eph := do.MustInvoke[*ephemeral](i)
		return typing.NewTracker(eph.typing, do.MustInvoke[*fanout.Bus](i)), nil
	})
	do.Provide(i, func(i do.Injector) (*chat.Service, error) {
		st, err := do.Invoke[store.MessageStore](i)
		if err != nil {
			return nil, err
		}
		return chat.NewService(st,
			do.MustInvoke[*fanout.Bus](i),
			do.MustInvoke[*typing.Tracker](i),
			chat.WithObserver(do.MustInvoke[*metrics.Metrics](i)),
		), nil
	})

	do.Provide(i, func(i do.Injector) (auth.Provider, error) {
		return identityProvider(cfg)
	})
	do.Provide(i, func(i do.Injector) (auth.RoomAuthorizer, error) {
		return auth.DirectRoomAuthorizer{Prefix: cfg.GetDirectRoomPrefix()}, nil
	})

	do.Provide(i, func(i do.Injector) (*websocket.Hub, error) {
		return websocket.NewHub(websocket.Deps{
			Identity:   do.MustInvoke[auth.Provider](i),
			Authorizer: do.MustInvoke[auth.RoomAuthorizer](i),
			Presence:   do.MustInvoke[*presence.Registry](i),
			Rooms:      do.MustInvoke[*rooms.Tracker](i),
			Typing:     do.MustInvoke[*typing.Tracker](i),
			Chat:       do.MustInvoke[*chat.Service](i),
			Observer:   do.MustInvoke[*metrics.Metrics](i),
		}, websocket.Options{
			HeartbeatInterval: cfg.GetHeartbeatInterval(),
			SendBuffer:        cfg.GetSendBuffer(),
			InboundBuffer:     cfg.GetInboundBuffer(),
			EventsPerSecond:   cfg.GetEventsPerSecond(),
			EventBurst:        cfg.GetEventBurst(),
		}), nil
	})
	do.Provide(i, func(i do.Injector) (*fanout.Relay, error) {
		direct := fanout.NewDirect(
			do.MustInvoke[*websocket.Hub](i),
			do.MustInvoke[*rooms.Tracker](i),
			do.MustInvoke[*metrics.Metrics](i),
		)
		return fanout.NewRelay(do.MustInvoke[*tracing](i).bridge, direct), nil
	})

	do.Provide(i, func(i do.Injector) (*server.Server, error) {
		var sessStore sessions.Store
		if cfg.GetAuthMode() == config.AuthSession {
			sessStore = auth.NewCookieStore(cfg.GetSessionSecret())
		}
		s := server.New(server.Deps{
			Config:     cfg,
			Identity:   do.MustInvoke[auth.Provider](i),
			Authorizer: do.MustInvoke[auth.RoomAuthorizer](i),
			Chat:       do.MustInvoke[*chat.Service](i),
			Presence:   do.MustInvoke[*presence.Registry](i),
			Hub:        do.MustInvoke[*websocket.Hub](i),
			Metrics:    do.MustInvoke[*metrics.Metrics](i),
			Sessions:   sessStore,
		})
		s.RegisterRoutes()
		return s, nil
	})
}

func openStore(ctx context.Context, cfg config.Provider) (store.MessageStore, error) {
	slog.Info("Opening message store", "driver", cfg.GetStoreDriver())
	switch cfg.GetStoreDriver() {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreJSONL:
		st, err := jsonl.Open(afero.NewOsFs(), cfg.GetJSONLPath())
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.GetSQLitePath())
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreSurreal:
		db, err := database.Connect(ctx, cfg, database.NewExponentialBackoffRetryer(connectRetries))
		if err != nil {
			return nil, err
		}
		exec := database.NewExecutor(db, cfg.GetDBQueryTimeout(), cfg.GetDBExecuteTimeout())
		st, err := surreal.New(ctx, exec)
		if err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.GetStoreDriver())
	}
}

func openEphemeral(ctx context.Context, cfg config.Provider) (*ephemeral, error) {
	if cfg.GetEphemeralDriver() != config.EphemeralRedis {
		return &ephemeral{presence: presence.NewMemoryStore(), typing: typing.NewMemoryStore()}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.GetRedisAddr(), err)
	}
	prefix := cfg.GetRedisPrefix()
	return &ephemeral{
		presence: presence.NewRedisStore(client, prefix),
		typing:   typing.NewRedisStore(client, prefix),
		client:   client,
	}, nil
}

func openBus(ctx context.Context, cfg config.Provider) (*tracing, error) {
	tracer, cleanup, err := pubsub.SetupOTel(ctx, pubsub.TracingConfig{
		Enabled:     cfg.GetTracingEnabled(),
		ServiceName: cfg.GetTracingServiceName(),
		ZipkinURL:   cfg.GetTracingZipkinURL(),
		Version:     Version,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	opts := pubsub.Options{Ordered: true}
	if cfg.GetTracingEnabled() {
		opts.Tracer = tracer
	}
	return &tracing{bridge: pubsub.NewWatermillBridge(opts), cleanup: cleanup}, nil
}

func identityProvider(cfg config.Provider) (auth.Provider, error) {
	switch cfg.GetAuthMode() {
	case config.AuthJWT:
		return auth.NewJWTProvider(cfg.GetJWTSecret()), nil
	case config.AuthSession:
		return auth.NewSessionProvider(cfg.GetSessionName()), nil
	case config.AuthHeader:
		return auth.HeaderProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.GetAuthMode())
	}
}
