package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/config"
	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/websocket"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:          "127.0.0.1:0",
		StoreDriver:       config.StoreMemory,
		EphemeralDriver:   config.EphemeralMemory,
		AuthMode:          config.AuthHeader,
		DirectRoomPrefix:  "dm:",
		HeartbeatInterval: time.Second,
		DBQueryTimeout:    time.Second,
		DBExecuteTimeout:  time.Second,
		SendBuffer:        16,
		InboundBuffer:     16,
		EventsPerSecond:   100,
		EventBurst:        100,
		APIRatePerMinute:  600,
	}
}

func startApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	srv := httptest.NewServer(a.Deps().Server.E)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Shutdown(ctx))
		srv.Close()
	})
	return a, srv
}

type wsClient struct {
	t    *testing.T
	conn *gws.Conn
}

func dial(t *testing.T, srv *httptest.Server, userID string) *wsClient {
	t.Helper()
	header := http.Header{}
	header.Set(auth.HeaderUserID, userID)
	header.Set(auth.HeaderDisplayName, "Name "+userID)
	header.Set(auth.HeaderEmail, userID+"@example.com")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, data any, ack string) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(websocket.Frame{Event: event, Data: raw, Ack: ack}))
}

func (c *wsClient) expect(event string) websocket.Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f websocket.Frame
		require.NoError(c.t, c.conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func TestApp_MessageFlowsThroughBus(t *testing.T) {
	_, srv := startApp(t)

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	for _, c := range []*wsClient{alice, bob} {
		c.send(domain.EventJoinRoom, map[string]string{"roomId": "team-1", "roomType": "team"}, "join")
		c.expect(domain.EventAck)
	}

	alice.send(domain.EventSendMessage, map[string]string{
		"roomId":   "team-1",
		"roomType": "team",
		"text":     "hello over the bus",
	}, "send")

	got := bob.expect(domain.EventMessageReceived)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(got.Data, &msg))
	assert.Equal(t, "hello over the bus", msg.Text)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, []string{"alice"}, msg.ReadBy)

	resp, err := http.NewRequest(http.MethodGet, srv.URL+"/api/chat/recent/team-1", nil)
	require.NoError(t, err)
	resp.Header.Set(auth.HeaderUserID, "bob")
	res, err := http.DefaultClient.Do(resp)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Success  bool             `json:"success"`
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.True(t, body.Success)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, msg.ID, body.Messages[0].ID)
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	require.NoError(t, a.Shutdown(ctx))
}

func TestNew_UnknownStore(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = "mongo"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store driver "mongo"`)
}
