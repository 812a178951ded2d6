package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/plaza-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewWithSetup(":memory:", ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoomCreateAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FindRoom(ctx, "lobby")
	require.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	room := &store.Room{ID: "lobby", Name: "Room lobby", Capacity: 20, Active: true, CreatedBy: "u1"}
	require.NoError(t, s.CreateRoom(ctx, room))

	got, err := s.FindRoom(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, "Room lobby", got.Name)
	assert.Equal(t, 20, got.Capacity)
	assert.True(t, got.Active)
	assert.Equal(t, "u1", got.CreatedBy)

	err = s.CreateRoom(ctx, &store.Room{ID: "lobby", Name: "dup", Capacity: 5, Active: true})
	assert.True(t, errors.Is(err, store.ErrConflict), "duplicate room must map to ErrConflict, got %v", err)
}

func TestUpsertMembershipKeepsJoinedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	require.NoError(t, s.UpsertMembership(ctx, &store.Membership{
		RoomID: "r1", UserID: "u1", Username: "alice", Role: store.RoleAdmin,
		Online: true, JoinedAt: first, LastSeen: first,
	}))
	require.NoError(t, s.UpsertMembership(ctx, &store.Membership{
		RoomID: "r1", UserID: "u1", Username: "alice2", Avatar: "cat", Role: store.RoleAdmin,
		Online: true, JoinedAt: later, LastSeen: later,
	}))

	members, err := s.FindMemberships(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, members, 1, "one row per (room,user)")

	m := members[0]
	assert.Equal(t, "alice2", m.Username)
	assert.Equal(t, "cat", m.Avatar)
	assert.True(t, m.JoinedAt.Equal(first), "joinedAt must survive updates, got %v", m.JoinedAt)
	assert.True(t, m.LastSeen.Equal(later))
}

func TestMembershipLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"u1", "u2", "u3"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.UpsertMembership(ctx, &store.Membership{
			RoomID: "r1", UserID: id, Username: id, Role: store.RoleAdmin,
			Online: true, JoinedAt: ts, LastSeen: ts,
		}))
	}

	n, err := s.DemoteAdminsExcept(ctx, "r1", "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	members, err := s.FindMemberships(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, []string{"u1", "u2", "u3"}, []string{members[0].UserID, members[1].UserID, members[2].UserID})
	assert.Equal(t, store.RoleAdmin, members[0].Role)
	assert.Equal(t, store.RoleMember, members[1].Role)
	assert.Equal(t, store.RoleMember, members[2].Role)

	require.NoError(t, s.SetMembershipOffline(ctx, "r1", "u2", base.Add(time.Hour)))
	require.NoError(t, s.TouchMembership(ctx, "r1", "u3", "u3-renamed", "fox", base.Add(time.Hour)))
	require.NoError(t, s.SetMemberRole(ctx, "r1", "u3", store.RoleAdmin))

	members, err = s.FindMemberships(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, members[1].Online)
	assert.Equal(t, "u3-renamed", members[2].Username)
	assert.Equal(t, store.RoleAdmin, members[2].Role)

	require.NoError(t, s.DeleteMembership(ctx, "r1", "u2"))
	assert.True(t, errors.Is(s.DeleteMembership(ctx, "r1", "u2"), store.ErrNotFound))
	assert.True(t, errors.Is(s.SetMemberRole(ctx, "r1", "ghost", store.RoleAdmin), store.ErrNotFound))
	assert.True(t, errors.Is(s.TouchMembership(ctx, "r1", "ghost", "g", "", base), store.ErrNotFound))
}

func TestChatMessagesHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	msgs := []*store.ChatMessage{
		{ID: "m1", RoomID: "r1", SenderID: "u1", SenderName: "alice", Type: store.ChatGlobal, Content: "hi", Recipients: []string{"u2", "u3"}, Timestamp: base},
		{ID: "m2", RoomID: "r1", SenderID: "u2", SenderName: "bob", Type: store.ChatDM, Content: "psst", TargetUserID: "u1", Recipients: []string{"u1"}, Timestamp: base.Add(time.Second)},
		{ID: "m3", RoomID: "r1", SenderID: "u3", SenderName: "carol", Type: store.ChatNearby, Content: "anyone?", Timestamp: base.Add(2 * time.Second)},
		{ID: "m4", RoomID: "r2", SenderID: "u9", SenderName: "zed", Type: store.ChatGlobal, Content: "elsewhere", Timestamp: base},
	}
	for _, m := range msgs {
		require.NoError(t, s.InsertChatMessage(ctx, m))
	}

	got, err := s.ListChatMessages(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID, "oldest of the latest page first")
	assert.Equal(t, "m3", got[1].ID)
	assert.Equal(t, "u1", got[0].TargetUserID)
	assert.Equal(t, []string{"u1"}, got[0].Recipients)
	assert.Empty(t, got[1].Recipients)

	all, err := s.ListChatMessages(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, store.ChatGlobal, all[0].Type)
	assert.Equal(t, []string{"u2", "u3"}, all[0].Recipients)

	err = s.InsertChatMessage(ctx, msgs[0])
	assert.True(t, errors.Is(err, store.ErrConflict))
}
