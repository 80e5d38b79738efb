package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/domain"
)

func TestRecent_ScenarioA(t *testing.T) {
	f := newFixture(t)
	f.send(t, "team-7", "U1", "hi")
	f.send(t, "team-7", "U2", "yo")
	f.send(t, "team-7", "U1", "sup")

	msgs, err := f.svc.Recent(context.Background(), "team-7", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"yo", "sup"}, texts(msgs))
}

func TestRecent_RequiresRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Recent(context.Background(), " ", 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMarkRead_ScenarioC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m1 := f.send(t, "r", "U1", "one")
	m2 := f.send(t, "r", "U1", "two")

	in := MarkReadInput{MessageIDs: []string{m1.ID, m2.ID}, UserID: "U2", RoomID: "r"}
	changed, err := f.svc.MarkRead(ctx, in, "conn-U2")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	changed, err = f.svc.MarkRead(ctx, in, "conn-U2")
	require.NoError(t, err)
	assert.Zero(t, changed)

	for _, id := range []string{m1.ID, m2.ID} {
		m, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"U1", "U2"}, m.ReadBy)
	}

	reads := f.fan.events(domain.EventMessagesRead)
	require.Len(t, reads, 2)
	for _, env := range reads {
		assert.Equal(t, "conn-U2", env.Exclude)
		assert.Equal(t, "r", env.RoomID)
	}
}

func TestMarkRead_SkipsUnknownIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.send(t, "r", "U1", "one")

	changed, err := f.svc.MarkRead(ctx, MarkReadInput{MessageIDs: []string{"missing", m.ID}, UserID: "U2", RoomID: "r"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
}

func TestMarkRead_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkRead(context.Background(), MarkReadInput{UserID: "U2"}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.MarkRead(context.Background(), MarkReadInput{MessageIDs: []string{"x"}}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSoftDelete_ScenarioD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.send(t, "r", "U4", "mine")

	_, err := f.svc.SoftDelete(ctx, m.ID, "U3")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	stored, err := f.store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted)
	assert.Empty(t, f.fan.events(domain.EventMessageDeleted))
}

func TestSoftDelete_BySender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.send(t, "r", "U4", "oops")

	deleted, err := f.svc.SoftDelete(ctx, m.ID, "U4")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	require.Len(t, f.fan.events(domain.EventMessageDeleted), 1)

	_, err = f.svc.SoftDelete(ctx, m.ID, "U4")
	require.NoError(t, err)
	assert.Len(t, f.fan.events(domain.EventMessageDeleted), 1, "no second notification")

	_, err = f.svc.SoftDelete(ctx, "missing", "U4")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeletedMessagesAreHidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.send(t, "r", "U1", "keep apple")
	gone := f.send(t, "r", "U1", "drop apple")
	_, err := f.svc.SoftDelete(ctx, gone.ID, "U1")
	require.NoError(t, err)

	recent, err := f.svc.Recent(ctx, "r", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep apple"}, texts(recent))

	page, err := f.svc.History(ctx, HistoryQuery{RoomID: "r", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep apple"}, texts(page.Messages))
	assert.Equal(t, 1, page.Pagination.TotalMessages)

	found, err := f.svc.Search(ctx, "r", "APPLE", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep apple"}, texts(found))

	unread, err := f.svc.UnreadCount(ctx, "r", "U2")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestTyping_ScenarioE(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := domain.Identity{UserID: "U1", DisplayName: "Name U1"}

	require.NoError(t, f.typing.Start(ctx, "R", u1, "conn-U1"))
	users, err := f.typing.Typing(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, users)

	f.send(t, "R", "U1", "done typing")

	users, err = f.typing.Typing(ctx, "R")
	require.NoError(t, err)
	assert.Empty(t, users)

	stopped := f.fan.events(domain.EventTypingStopped)
	require.Len(t, stopped, 1)
	assert.Equal(t, "conn-U1", stopped[0].Exclude)
}

func TestHistory_OffsetPagesConcatenate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var want []string
	for i := 0; i < 7; i++ {
		text := fmt.Sprintf("m%d", i)
		f.send(t, "r", "U1", text)
		want = append(want, text)
	}

	const limit = 3
	var pages [][]string
	for page := 1; page <= 3; page++ {
		res, err := f.svc.History(ctx, HistoryQuery{RoomID: "r", Page: page, Limit: limit})
		require.NoError(t, err)
		assert.Equal(t, page, res.Pagination.CurrentPage)
		assert.Equal(t, 3, res.Pagination.TotalPages)
		assert.Equal(t, 7, res.Pagination.TotalMessages)
		assert.Equal(t, page*limit < 7, res.Pagination.HasMore)
		pages = append(pages, texts(res.Messages))
	}

	// Page 1 holds the newest messages, so reading pages oldest-first
	// reproduces the room.
	var got []string
	for i := len(pages) - 1; i >= 0; i-- {
		got = append(got, pages[i]...)
	}
	assert.Equal(t, want, got)
}

func TestHistory_CursorPaging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.send(t, "r", "U1", fmt.Sprintf("m%d", i))
	}

	first, err := f.svc.History(ctx, HistoryQuery{RoomID: "r", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4"}, texts(first.Messages))
	require.True(t, first.Pagination.HasMore)
	require.NotNil(t, first.Pagination.NextBefore)

	// A message arriving between calls does not shift the cursor.
	f.send(t, "r", "U2", "late")

	second, err := f.svc.History(ctx, HistoryQuery{RoomID: "r", Limit: 2, Before: first.Pagination.NextBefore})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, texts(second.Messages))
	assert.Equal(t, 3, second.Pagination.TotalMessages)

	third, err := f.svc.History(ctx, HistoryQuery{RoomID: "r", Limit: 2, Before: second.Pagination.NextBefore})
	require.NoError(t, err)
	assert.Equal(t, []string{"m0"}, texts(third.Messages))
	assert.False(t, third.Pagination.HasMore)
	assert.Nil(t, third.Pagination.NextBefore)
}

func TestHistory_ClampsLimit(t *testing.T) {
	f := newFixture(t)
	f.send(t, "r", "U1", "x")

	res, err := f.svc.History(context.Background(), HistoryQuery{RoomID: "r", Limit: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pagination.TotalPages)

	_, err = f.svc.History(context.Background(), HistoryQuery{RoomID: "r", Page: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSearch_EmptyQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Search(context.Background(), "r", "  ", 5)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRoomsFor(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time {
		at = at.Add(time.Second)
		return at
	}))
	f.send(t, "a", "U1", "first in a")
	f.send(t, "b", "U1", "only in b")
	f.send(t, "a", "U1", "last in a")
	f.send(t, "c", "U2", "not mine")

	rooms, err := f.svc.RoomsFor(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "a", rooms[0].RoomID)
	assert.Equal(t, "last in a", rooms[0].LastMessage)
	assert.Equal(t, "b", rooms[1].RoomID)

	none, err := f.svc.RoomsFor(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}
