package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/fanout"
	"github.com/nfrund/hackchat/internal/store/memory"
	"github.com/nfrund/hackchat/internal/typing"
)

// recordingChannel implements fanout.Channel for testing.
type recordingChannel struct {
	mu        sync.Mutex
	envelopes []fanout.Envelope
}

func (r *recordingChannel) Publish(_ context.Context, env fanout.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
	return nil
}

func (r *recordingChannel) events(name string) []fanout.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []fanout.Envelope
	for _, env := range r.envelopes {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

// failingStore rejects every write.
type failingStore struct {
	*memory.Store
}

func (failingStore) Create(context.Context, *domain.Message) error {
	return errors.New("disk full")
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	fan    *recordingChannel
	typing *typing.Tracker
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := memory.New()
	fan := &recordingChannel{}
	tt := typing.NewTracker(typing.NewMemoryStore(), fan)
	return &fixture{
		svc:    NewService(st, fan, tt, opts...),
		store:  st,
		fan:    fan,
		typing: tt,
	}
}

func input(roomID, sender, text string) SendInput {
	return SendInput{
		RoomID:      roomID,
		RoomType:    "team",
		SenderID:    sender,
		SenderName:  "Name " + sender,
		SenderEmail: sender + "@example.com",
		Text:        text,
	}
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func (f *fixture) send(t *testing.T, roomID, sender, text string) *domain.Message {
	t.Helper()
	msg, err := f.svc.Send(context.Background(), input(roomID, sender, text), "conn-"+sender)
	require.NoError(t, err)
	return msg
}

func TestSend_PersistsAndPublishes(t *testing.T) {
	f := newFixture(t)

	msg := f.send(t, "team-7", "u1", "hello")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, domain.RoomTeam, msg.RoomType)
	assert.Equal(t, domain.MessageText, msg.MessageType)
	assert.Equal(t, []string{"u1"}, msg.ReadBy)
	assert.False(t, msg.IsDeleted)
	assert.Equal(t, int64(1), msg.Seq)

	stored, err := f.store.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Text, stored.Text)

	received := f.fan.events(domain.EventMessageReceived)
	require.Len(t, received, 1)
	assert.Equal(t, fanout.ScopeRoom, received[0].Scope)
	assert.Equal(t, "team-7", received[0].RoomID)
	assert.Empty(t, received[0].Exclude, "sender receives its own message")

	var payload domain.Message
	require.NoError(t, json.Unmarshal(received[0].Payload, &payload))
	assert.Equal(t, msg.ID, payload.ID)
}

func TestSend_Defaults(t *testing.T) {
	f := newFixture(t)
	in := input("r", "u1", "hi")
	in.RoomType = ""
	in.MessageType = ""

	msg, err := f.svc.Send(context.Background(), in, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomDirect, msg.RoomType)
	assert.Equal(t, domain.MessageText, msg.MessageType)
}

func TestSend_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SendInput)
		field  string
	}{
		{"empty text", func(in *SendInput) { in.Text = "" }, "text"},
		{"blank text", func(in *SendInput) { in.Text = "   \n" }, "text"},
		{"missing room", func(in *SendInput) { in.RoomID = "" }, "roomId"},
		{"missing sender", func(in *SendInput) { in.SenderID = "" }, "senderId"},
		{"missing sender name", func(in *SendInput) { in.SenderName = "" }, "senderName"},
		{"missing sender email", func(in *SendInput) { in.SenderEmail = "" }, "senderEmail"},
		{"bad room type", func(in *SendInput) { in.RoomType = "guild" }, "roomType"},
		{"bad message type", func(in *SendInput) { in.MessageType = "video" }, "messageType"},
		{"bad attachment", func(in *SendInput) { in.AttachmentURL = "not a url" }, "attachmentUrl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := input("team-7", "u1", "hello")
			tt.mutate(&in)

			msg, err := f.svc.Send(context.Background(), in, "conn-u1")
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var de *domain.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)

			latest, err := f.store.Latest(context.Background(), "team-7")
			require.NoError(t, err)
			assert.Nil(t, latest)
			assert.Empty(t, f.fan.events(domain.EventMessageReceived))
		})
	}
}

func TestSend_PersistenceFailureIsNotPublished(t *testing.T) {
	fan := &recordingChannel{}
	svc := NewService(failingStore{memory.New()}, fan, nil)

	_, err := svc.Send(context.Background(), input("r", "u1", "hi"), "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, "storage unavailable", domain.PublicMessage(err))
	assert.Empty(t, fan.events(domain.EventMessageReceived))
}

func TestSend_SameTimestampIsStillOrdered(t *testing.T) {
	frozen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return frozen }))

	a := f.send(t, "r", "u1", "a")
	b := f.send(t, "r", "u2", "b")
	c := f.send(t, "r", "u1", "c")

	assert.True(t, a.CreatedAt.Before(b.CreatedAt))
	assert.True(t, b.CreatedAt.Before(c.CreatedAt))
	assert.Equal(t, []int64{1, 2, 3}, []int64{a.Seq, b.Seq, c.Seq})
}

func TestSend_SeedsFromStoredMessages(t *testing.T) {
	st := memory.New()
	later := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.Create(context.Background(), &domain.Message{
		ID: "old", RoomID: "r", RoomType: domain.RoomTeam, SenderID: "u1",
		Text: "from a previous run", MessageType: domain.MessageText,
		ReadBy: []string{"u1"}, CreatedAt: later, UpdatedAt: later, Seq: 41,
	}))

	svc := NewService(st, &recordingChannel{}, nil)
	msg, err := svc.Send(context.Background(), input("r", "u1", "next"), "")
	require.NoError(t, err)

	assert.Equal(t, int64(42), msg.Seq)
	assert.True(t, msg.CreatedAt.After(later))
}

func TestSend_ConcurrentSendsDeliverInCommitOrder(t *testing.T) {
	f := newFixture(t)
	const n = 40

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Send(context.Background(), input("r", fmt.Sprintf("u%d", i%4), fmt.Sprintf("m%d", i)), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var delivered []string
	var lastSeq int64
	for _, env := range f.fan.events(domain.EventMessageReceived) {
		var m domain.Message
		require.NoError(t, json.Unmarshal(env.Payload, &m))
		assert.Equal(t, lastSeq+1, m.Seq)
		lastSeq = m.Seq
		delivered = append(delivered, m.Text)
	}

	stored, err := f.svc.Recent(context.Background(), "r", n)
	require.NoError(t, err)
	assert.Equal(t, texts(stored), delivered)
}

func TestSend_CancelledContextStillCommits(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg, err := f.svc.Send(ctx, input("r", "u1", "still here"), "c1")
	require.NoError(t, err)
	assert.Len(t, f.fan.events(domain.EventMessageReceived), 1)

	_, err = f.store.Get(context.Background(), msg.ID)
	assert.NoError(t, err)
}

type countingObserver struct {
	ingested int
	rejected []string
}

func (o *countingObserver) MessageIngested(domain.RoomType) { o.ingested++ }
func (o *countingObserver) MessageRejected(kind string)     { o.rejected = append(o.rejected, kind) }

func TestSend_ReportsToObserver(t *testing.T) {
	obs := &countingObserver{}
	f := newFixture(t, WithObserver(obs))

	f.send(t, "r", "u1", "ok")
	_, _ = f.svc.Send(context.Background(), input("r", "u1", ""), "")

	assert.Equal(t, 1, obs.ingested)
	assert.Equal(t, []string{"validation"}, obs.rejected)
}
