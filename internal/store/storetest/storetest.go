// Package storetest is a conformance suite run against every MessageStore.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/store"
)

// Factory opens an empty store. The suite closes it.
type Factory func(t *testing.T) store.MessageStore

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewMessage builds the n-th message of a room, created n seconds after a
// fixed base time.
func NewMessage(roomID string, n int, sender, text string) *domain.Message {
	at := base.Add(time.Duration(n) * time.Second)
	return &domain.Message{
		ID:          fmt.Sprintf("%s-%03d", roomID, n),
		RoomID:      roomID,
		RoomType:    domain.RoomTeam,
		SenderID:    sender,
		SenderName:  "Name " + sender,
		SenderEmail: sender + "@example.com",
		Text:        text,
		MessageType: domain.MessageText,
		ReadBy:      []string{sender},
		CreatedAt:   at,
		UpdatedAt:   at,
		Seq:         int64(n),
	}
}

// Run executes the suite.
func Run(t *testing.T, open Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, open(t)) })
	t.Run("Latest", func(t *testing.T) { testLatest(t, open(t)) })
	t.Run("AddReader", func(t *testing.T) { testAddReader(t, open(t)) })
	t.Run("MarkDeleted", func(t *testing.T) { testMarkDeleted(t, open(t)) })
	t.Run("List", func(t *testing.T) { testList(t, open(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, open(t)) })
	t.Run("RoomsBySender", func(t *testing.T) { testRoomsBySender(t, open(t)) })
}

func create(t *testing.T, s store.MessageStore, msgs ...*domain.Message) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, s.Create(context.Background(), m))
	}
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func testCreateAndGet(t *testing.T, s store.MessageStore) {
	defer s.Close()
	ctx := context.Background()

	m := NewMessage("team-7", 1, "U1", "hi")
	m.AttachmentURL = "https://files.example.com/a.png"
	m.MessageType = domain.MessageImage
	create(t, s, m)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "team-7", got.RoomID)
	assert.Equal(t, domain.RoomTeam, got.RoomType)
	assert.Equal(t, "U1", got.SenderID)
	assert.Equal(t, "Name U1", got.SenderName)
	assert.Equal(t, "U1@example.com", got.SenderEmail)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, domain.MessageImage, got.MessageType)
	assert.Equal(t, m.AttachmentURL, got.AttachmentURL)
	assert.Equal(t, []string{"U1"}, got.ReadBy)
	assert.False(t, got.IsDeleted)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, int64(1), got.Seq)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testLatest(t *testing.T, s store.MessageStore) {
	defer s.Close()
	ctx := context.Background()

	latest, err := s.Latest(ctx, "empty")
	require.NoError(t, err)
	assert.Nil(t, latest)

	create(t, s,
		NewMessage("r", 1, "U1", "a"),
		NewMessage("r", 2, "U1", "b"),
		NewMessage("other", 3, "U1", "c"),
	)
	require.NoError(t, s.MarkDeleted(ctx, "r-002"))

	latest, err = s.Latest(ctx, "r")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "r-002", latest.ID, "deleted messages still count for ordering")
	assert.Equal(t, int64(2), latest.Seq)
}

func testAddReader(t *testing.T, s store.MessageStore) {
	defer s.Close()
	ctx := context.Background()

	create(t, s, NewMessage("r", 1, "U1", "m1"), NewMessage("r", 2, "U1", "m2"))

	changed, err := s.AddReader(ctx, []string{"r-001", "r-002", "unknown"}, "U2")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	changed, err = s.AddReader(ctx, []string{"r-001", "r-002"}, "U2")
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	for _, id := range []string{"r-001", "r-002"} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"U1", "U2"}, got.ReadBy)
	}

	unread, err := s.CountUnread(ctx, "r", "U3")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	unread, err = s.CountUnread(ctx, "r", "U2")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func testMarkDeleted(t *testing.T, s store.MessageStore) {
	defer s.Close()
	ctx := context.Background()

	create(t, s,
		NewMessage("r", 1, "U1", "keep me"),
		NewMessage("r", 2, "U1", "delete me"),
	)
	require.NoError(t, s.MarkDeleted(ctx, "r-002"))
	require.NoError(t, s.MarkDeleted(ctx, "r-002"), "deleting twice is harmless")
	assert.ErrorIs(t, s.MarkDeleted(ctx, "missing"), domain.ErrNotFound)

	got, err := s.Get(ctx, "r-002")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	page, total, err := s.List(ctx, store.Query{RoomID: "r", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"keep me"}, texts(page))

	found, err := s.Search(ctx, "r", "me", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep me"}, texts(found))

	unread, err := s.CountUnread(ctx, "r", "U9")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func testList(t *testing.T, s store.MessageStore) {
	defer s.Close()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		create(t, s, NewMessage("r", i, "U1", fmt.Sprintf("m%d", i)))
	}
	create(t, s, NewMessage("elsewhere", 6, "U1", "x"))

	page, total, err := s.List(ctx, store.Query{RoomID: "r", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []string{"m5", "m4"}, texts(page))

	page, _, err = s.List(ctx, store.Query{RoomID: "r", Offset: 4, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, texts(page))

	page, _, err = s.List(ctx, store.Query{RoomID: "r", Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)

	before := base.Add(3 * time.Second)
	page, total, err = s.List(ctx, store.Query{RoomID: "r", Before: &before, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"m2", "m1"}, texts(page))

	// A cursor finer than the storage precision still includes a message
	// stored at its truncated instant.
	before = base.Add(3*time.Second + 500*time.Nanosecond)
	page, total, err = s.List(ctx, store.Query{RoomID: "r", Before: &before, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"m3", "m2", "m1"}, texts(page))
}

func testSearch(t *testing.T, s store.MessageStore) {
	defer s.Close()
	ctx := context.Background()

	create(t, s,
		NewMessage("r", 1, "U1", "Hello World"),
		NewMessage("r", 2, "U2", "nothing here"),
		NewMessage("r", 3, "U1", "say HELLO again"),
		NewMessage("other", 4, "U1", "hello from elsewhere"),
	)

	found, err := s.Search(ctx, "r", "hello", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"say HELLO again", "Hello World"}, texts(found))

	found, err = s.Search(ctx, "r", "HeLLo", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"say HELLO again"}, texts(found))

	found, err = s.Search(ctx, "r", "absent", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testRoomsBySender(t *testing.T, s store.MessageStore) {
	defer s.Close()
	ctx := context.Background()

	first := NewMessage("team-1", 1, "U1", "first")
	dm := NewMessage("dm:U1:U2", 2, "U1", "hey")
	dm.RoomType = domain.RoomDirect
	last := NewMessage("team-1", 3, "U1", "latest in team")
	other := NewMessage("team-2", 4, "U2", "not mine")
	deleted := NewMessage("team-3", 5, "U1", "gone")
	create(t, s, first, dm, last, other, deleted)
	require.NoError(t, s.MarkDeleted(ctx, deleted.ID))

	rooms, err := s.RoomsBySender(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	assert.Equal(t, "team-1", rooms[0].RoomID)
	assert.Equal(t, domain.RoomTeam, rooms[0].RoomType)
	assert.Equal(t, "latest in team", rooms[0].LastMessage)
	assert.True(t, last.CreatedAt.Equal(rooms[0].LastMessageTime))

	assert.Equal(t, "dm:U1:U2", rooms[1].RoomID)
	assert.Equal(t, domain.RoomDirect, rooms[1].RoomType)
	assert.Equal(t, "hey", rooms[1].LastMessage)

	none, err := s.RoomsBySender(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
