package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/nfrund/hackchat/internal/domain"
)

// errSlowConsumer is returned by Deliver when the outbound buffer is full.
var errSlowConsumer = errors.New("outbound buffer full")

// Conn is one live websocket connection.
//
// The reader goroutine parses frames into the inbound queue and a single
// worker handles them in order, so a pending store write never causes later
// events of the same connection to be dropped. Everything sent to the client
// goes through the send queue and the writer goroutine.
type Conn struct {
	id  string
	hub *Hub
	ws  *websocket.Conn

	// identity is fixed at upgrade; identify may fill in blank profile
	// fields but never the user id. Only the worker touches it after start.
	identity domain.Identity

	inbound chan Frame
	limiter *rate.Limiter

	mu     sync.RWMutex
	send   chan []byte
	closed bool

	lastSeen  atomic.Int64
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	// typingRooms are rooms this connection announced typing in. Worker only.
	typingRooms map[string]struct{}

	logger *slog.Logger
}

func newConn(h *Hub, ws *websocket.Conn, id string, who domain.Identity) *Conn {
	ctx, cancel := context.WithCancel(h.ctx)
	c := &Conn{
		id:          id,
		hub:         h,
		ws:          ws,
		identity:    who,
		inbound:     make(chan Frame, h.opts.InboundBuffer),
		limiter:     rate.NewLimiter(rate.Limit(h.opts.EventsPerSecond), h.opts.EventBurst),
		send:        make(chan []byte, h.opts.SendBuffer),
		ctx:         ctx,
		cancel:      cancel,
		typingRooms: make(map[string]struct{}),
		logger:      h.logger.With("connection_id", id, "user_id", who.UserID),
	}
	c.touch()
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

func (c *Conn) touch() {
	c.lastSeen.Store(c.hub.now().UnixNano())
}

func (c *Conn) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastSeen.Load()))
}

// Deliver implements fanout.Sink. A connection that cannot keep up is
// evicted rather than allowed to stall the room.
func (c *Conn) Deliver(event string, payload json.RawMessage) error {
	frame, err := encodeFrame(event, payload, "")
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Conn) enqueue(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return net.ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		go c.evict(websocket.StatusPolicyViolation, "slow_consumer")
		return errSlowConsumer
	}
}

// reply sends event to this connection only.
func (c *Conn) reply(event string, data any, ack string) {
	frame, err := encodeFrame(event, data, ack)
	if err != nil {
		c.logger.Error("Failed to encode frame", "event", event, "error", err)
		return
	}
	if err := c.enqueue(frame); err != nil {
		c.logger.Debug("Reply dropped", "event", event, "error", err)
	}
}

// fail reports err for the client event that caused it.
func (c *Conn) fail(f Frame, err error) {
	kind := ""
	if k := domain.KindOf(err); k != nil {
		kind = k.Error()
	}
	if f.Event == domain.EventSendMessage {
		c.reply(domain.EventMessageError, domain.MessageError{
			Error:           domain.PublicMessage(err),
			Kind:            kind,
			OriginalPayload: f.Data,
		}, f.Ack)
		return
	}
	c.reply(domain.EventError, domain.ErrorEvent{
		Event: f.Event,
		Error: domain.PublicMessage(err),
		Kind:  kind,
	}, f.Ack)
}

// evict closes the connection from the server side. The read loop then
// runs the regular disconnect teardown.
func (c *Conn) evict(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.logger.Info("Closing connection", "reason", reason)
		c.hub.observer.ConnectionEvicted(reason)
		c.cancel()
		_ = c.ws.Close(code, reason)
	})
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump parses frames until the connection fails, then tears it down.
func (c *Conn) readPump() {
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		c.work()
	}()

	defer func() {
		close(c.inbound)
		c.hub.detach(c)
		c.cancel()
		<-workerDone
		c.hub.teardown(c)
		c.closeSend()
	}()

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway,
				errors.Is(err, io.EOF),
				errors.Is(err, context.Canceled):
				c.logger.Debug("WebSocket closed", "error", err)
			default:
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		c.touch()

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			c.fail(Frame{}, domain.Protocol("websocket.read", "malformed frame"))
			continue
		}
		if !c.hub.whitelist.IsAllowed(f.Event) {
			c.fail(f, domain.Protocol("websocket.read", "unknown event "+f.Event))
			continue
		}
		if !c.limiter.Allow() {
			c.fail(f, domain.Protocol("websocket.read", "rate limit exceeded"))
			continue
		}

		select {
		case c.inbound <- f:
		case <-c.ctx.Done():
			return
		}
	}
}

// work handles queued events one at a time. Events still queued when the
// connection closes are discarded; an event already being handled finishes.
func (c *Conn) work() {
	for f := range c.inbound {
		if c.ctx.Err() != nil {
			continue
		}
		c.hub.dispatch(c.ctx, c, f)
	}
}

// writePump writes queued frames and pings the client every heartbeat.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.opts.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.hub.opts.WriteTimeout)
			err := c.ws.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.logger.Debug("WebSocket write error", "error", err)
				c.evict(websocket.StatusInternalError, "write_failed")
				c.drain()
				return
			}
		case <-ticker.C:
			go c.ping()
		}
	}
}

// drain discards frames until the send queue is closed.
func (c *Conn) drain() {
	for range c.send {
	}
}

func (c *Conn) ping() {
	ctx, cancel := context.WithTimeout(c.ctx, c.hub.opts.HeartbeatInterval)
	defer cancel()
	if err := c.ws.Ping(ctx); err == nil {
		c.touch()
	}
}
