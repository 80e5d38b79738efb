// Package websocket serves the real-time event protocol over websockets.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/chat"
	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/fanout"
)

// Presence is the presence registry as seen by the hub.
type Presence interface {
	Register(ctx context.Context, who domain.Identity, connID string) (domain.PresenceEntry, error)
	Unregister(ctx context.Context, connID string) (bool, error)
	ListAll(ctx context.Context) ([]domain.PresenceEntry, error)
}

// Rooms is the room membership tracker as seen by the hub.
type Rooms interface {
	Join(ctx context.Context, connID, roomID string, who domain.Identity) bool
	Leave(ctx context.Context, connID, roomID string, who domain.Identity) bool
	LeaveAll(ctx context.Context, connID string, who domain.Identity) []string
}

// Typing is the typing tracker as seen by the hub.
type Typing interface {
	Start(ctx context.Context, roomID string, who domain.Identity, connID string) error
	Stop(ctx context.Context, roomID string, who domain.Identity, connID string) error
}

// Chat is the message service as seen by the hub.
type Chat interface {
	Send(ctx context.Context, in chat.SendInput, connID string) (*domain.Message, error)
	MarkRead(ctx context.Context, in chat.MarkReadInput, connID string) (int, error)
	SoftDelete(ctx context.Context, messageID, actingUserID string) (*domain.Message, error)
}

// Observer is notified about connection lifecycle.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	ConnectionEvicted(reason string)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()        {}
func (nopObserver) ConnectionClosed()        {}
func (nopObserver) ConnectionEvicted(string) {}

// Options tune connection handling.
type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	InboundBuffer     int
	EventsPerSecond   float64
	EventBurst        int
	// OriginPatterns restricts cross-origin upgrades. Empty accepts any origin.
	OriginPatterns []string
}

func (o *Options) defaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = 64
	}
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = 20
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 40
	}
}

// Deps are the collaborators of the hub.
type Deps struct {
	Identity   auth.Provider
	Authorizer auth.RoomAuthorizer
	Presence   Presence
	Rooms      Rooms
	Typing     Typing
	Chat       Chat
	Observer   Observer
}

// Hub tracks live connections and routes client events to the services.
// It is the fanout.Registry of the process.
type Hub struct {
	deps      Deps
	opts      Options
	whitelist *eventWhitelist
	observer  Observer
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	conns map[string]*Conn

	logger *slog.Logger
}

var _ fanout.Registry = (*Hub)(nil)

func NewHub(deps Deps, opts Options) *Hub {
	opts.defaults()
	if deps.Authorizer == nil {
		deps.Authorizer = auth.AllowAll{}
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		deps:      deps,
		opts:      opts,
		whitelist: defaultWhitelist(),
		observer:  observer,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[string]*Conn),
		logger:    slog.Default().With("service", "websocket"),
	}
}

// Sink implements fanout.Registry.
func (h *Hub) Sink(connID string) (fanout.Sink, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	if !ok {
		return nil, false
	}
	return c, true
}

// Sinks implements fanout.Registry.
func (h *Hub) Sinks() map[string]fanout.Sink {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]fanout.Sink, len(h.conns))
	for id, c := range h.conns {
		out[id] = c
	}
	return out
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Handler upgrades an authenticated request to a websocket connection.
func (h *Hub) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		who, err := h.deps.Identity.Identify(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, domain.PublicMessage(err))
		}
		if h.ctx.Err() != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "server shutting down")
		}

		ws, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: len(h.opts.OriginPatterns) == 0,
			OriginPatterns:     h.opts.OriginPatterns,
		})
		if err != nil {
			h.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
			return nil
		}

		conn := newConn(h, ws, uuid.NewString(), who)
		h.attach(conn)
		conn.logger.Info("Client connected")

		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			conn.writePump()
		}()
		go func() {
			defer h.wg.Done()
			conn.readPump()
		}()
		return nil
	}
}

func (h *Hub) attach(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.observer.ConnectionOpened()
}

// detach stops deliveries to c.
func (h *Hub) detach(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()
	if ok {
		h.observer.ConnectionClosed()
	}
}

// teardown releases the ephemeral state of a closed connection: typing
// entries first, then room memberships, then presence.
func (h *Hub) teardown(c *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for roomID := range c.typingRooms {
		if err := h.deps.Typing.Stop(ctx, roomID, c.identity, c.id); err != nil {
			c.logger.Warn("Failed to clear typing state", "room_id", roomID, "error", err)
		}
	}
	left := h.deps.Rooms.LeaveAll(ctx, c.id, c.identity)
	if _, err := h.deps.Presence.Unregister(ctx, c.id); err != nil {
		c.logger.Warn("Failed to unregister presence", "error", err)
	}
	c.logger.Info("Client disconnected", "rooms_left", len(left))
}

// RunReaper closes connections that have been silent for four heartbeat
// intervals. It returns when ctx is done.
func (h *Hub) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reap()
		}
	}
}

func (h *Hub) reap() int {
	timeout := 4 * h.opts.HeartbeatInterval
	now := h.now()

	var stale []*Conn
	h.mu.RLock()
	for _, c := range h.conns {
		if c.idleSince(now) > timeout {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		go c.evict(websocket.StatusPolicyViolation, "heartbeat_timeout")
	}
	return len(stale)
}

// Shutdown closes every connection and waits for their teardown.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		go c.evict(websocket.StatusGoingAway, "server_shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
