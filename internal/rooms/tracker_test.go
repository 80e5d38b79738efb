package rooms

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/fanout"
)

type mockChannel struct {
	mu        sync.Mutex
	envelopes []fanout.Envelope
}

func (m *mockChannel) Publish(_ context.Context, env fanout.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelopes = append(m.envelopes, env)
	return nil
}

func (m *mockChannel) all() []fanout.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fanout.Envelope(nil), m.envelopes...)
}

var bob = domain.Identity{UserID: "bob", DisplayName: "Bob"}

func TestTracker_JoinIsIdempotent(t *testing.T) {
	ch := &mockChannel{}
	tr := NewTracker(ch)
	ctx := context.Background()

	assert.True(t, tr.Join(ctx, "c1", "team-7", bob))
	assert.False(t, tr.Join(ctx, "c1", "team-7", bob))

	assert.Equal(t, []string{"c1"}, tr.MembersOf("team-7"))
	assert.Equal(t, []string{"team-7"}, tr.RoomsOf("c1"))
	assert.True(t, tr.IsMember("c1", "team-7"))

	envs := ch.all()
	require.Len(t, envs, 1)
	assert.Equal(t, domain.EventMemberJoined, envs[0].Event)
	assert.Equal(t, "team-7", envs[0].RoomID)
	assert.Equal(t, "c1", envs[0].Exclude, "joining connection is excluded")

	var p domain.MemberEvent
	require.NoError(t, json.Unmarshal(envs[0].Payload, &p))
	assert.Equal(t, "bob", p.UserID)
	assert.Equal(t, "Bob", p.DisplayName)
	assert.Equal(t, "team-7", p.RoomID)
	assert.False(t, p.Timestamp.IsZero())
}

func TestTracker_LeaveIsIdempotent(t *testing.T) {
	ch := &mockChannel{}
	tr := NewTracker(ch)
	ctx := context.Background()

	assert.False(t, tr.Leave(ctx, "c1", "team-7", bob))
	tr.Join(ctx, "c1", "team-7", bob)
	tr.Join(ctx, "c2", "team-7", domain.Identity{UserID: "carol"})

	assert.True(t, tr.Leave(ctx, "c1", "team-7", bob))
	assert.False(t, tr.Leave(ctx, "c1", "team-7", bob))

	assert.Equal(t, []string{"c2"}, tr.MembersOf("team-7"))
	assert.Empty(t, tr.RoomsOf("c1"))

	envs := ch.all()
	require.Len(t, envs, 3)
	assert.Equal(t, domain.EventMemberLeft, envs[2].Event)
	assert.Equal(t, "c1", envs[2].Exclude)
}

func TestTracker_LeaveAll(t *testing.T) {
	ch := &mockChannel{}
	tr := NewTracker(ch)
	ctx := context.Background()

	tr.Join(ctx, "c1", "r1", bob)
	tr.Join(ctx, "c1", "r2", bob)
	tr.Join(ctx, "c2", "r2", domain.Identity{UserID: "carol"})

	left := tr.LeaveAll(ctx, "c1", bob)
	assert.Equal(t, []string{"r1", "r2"}, left)
	assert.Empty(t, tr.RoomsOf("c1"))
	assert.Empty(t, tr.MembersOf("r1"))
	assert.Equal(t, []string{"c2"}, tr.MembersOf("r2"))

	var leftEvents []string
	for _, env := range ch.all() {
		if env.Event == domain.EventMemberLeft {
			leftEvents = append(leftEvents, env.RoomID)
		}
	}
	assert.Equal(t, []string{"r1", "r2"}, leftEvents)

	assert.Empty(t, tr.LeaveAll(ctx, "c1", bob))
}

func TestTracker_ConcurrentJoinLeave(t *testing.T) {
	tr := NewTracker(&mockChannel{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := "c" + string(rune('a'+i%26))
			tr.Join(ctx, conn, "busy", bob)
			tr.Leave(ctx, conn, "busy", bob)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, tr.MembersOf("busy"))
}
