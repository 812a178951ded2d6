package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/plaza-server/internal/ratelimit"
	"github.com/vovakirdan/plaza-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind arrives within wait.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// drain discards queued events.
func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type testHub struct {
	*Hub
	clock *clock.Mock
	store *memStore
}

func newTestHub(t *testing.T, mutate func(*Options)) *testHub {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := zerolog.Nop()
	opts := DefaultOptions()
	opts.Logger = &logger
	opts.Clock = mock
	opts.ChatLimiter = ratelimit.Unlimited{}
	opts.VoiceLimiter = ratelimit.Unlimited{}
	if mutate != nil {
		mutate(&opts)
	}

	st := newMemStore()
	hub := NewHub(st, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &testHub{Hub: hub, clock: mock, store: st}
}

// connect registers a client and joins it to roomID, waiting for its own
// member-joined event.
func (th *testHub) connect(t *testing.T, id, userID, username, roomID string, pos *Position) *Client {
	t.Helper()

	c := NewClient(id, "", username)
	th.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandJoin, Join: &JoinCommand{
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		Position: pos,
	}}
	ev := mustEvent(t, c.Events, EventMemberJoined)
	require.Equal(t, userID, ev.Member.UserID)
	mustEvent(t, c.Events, EventRoomInfo)
	return c
}

func (th *testHub) advance(d time.Duration) {
	th.clock.Add(d)
}

// memStore is an in-memory store.Store with failure injection.
type memStore struct {
	mu       sync.Mutex
	rooms    map[string]*store.Room
	members  map[string]map[string]*store.Membership
	messages []*store.ChatMessage

	failFindRoom     error
	failMemberships  error
	failUpsert       error
	failInsertChat   error
	chatInserted     chan *store.ChatMessage
	createRoomCalled int
}

func newMemStore() *memStore {
	return &memStore{
		rooms:        make(map[string]*store.Room),
		members:      make(map[string]map[string]*store.Membership),
		chatInserted: make(chan *store.ChatMessage, 64),
	}
}

// inject mutates failure switches under the store lock.
func (s *memStore) inject(f func(s *memStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s)
}

func (s *memStore) setRoom(r *store.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rooms[r.ID] = &cp
}

func (s *memStore) setMembership(m *store.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[m.RoomID] == nil {
		s.members[m.RoomID] = make(map[string]*store.Membership)
	}
	cp := *m
	s.members[m.RoomID][m.UserID] = &cp
}

func (s *memStore) membership(roomID, userID string) *store.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[roomID][userID]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

func (s *memStore) admins(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, m := range s.members[roomID] {
		if m.Role == store.RoleAdmin {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (s *memStore) FindRoom(_ context.Context, roomID string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFindRoom != nil {
		return nil, s.failFindRoom
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) CreateRoom(_ context.Context, r *store.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createRoomCalled++
	if _, ok := s.rooms[r.ID]; ok {
		return store.ErrConflict
	}
	cp := *r
	s.rooms[r.ID] = &cp
	return nil
}

func (s *memStore) UpsertMembership(_ context.Context, m *store.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return s.failUpsert
	}
	if s.members[m.RoomID] == nil {
		s.members[m.RoomID] = make(map[string]*store.Membership)
	}
	cp := *m
	if prev, ok := s.members[m.RoomID][m.UserID]; ok {
		cp.JoinedAt = prev.JoinedAt
	}
	s.members[m.RoomID][m.UserID] = &cp
	return nil
}

func (s *memStore) TouchMembership(_ context.Context, roomID, userID, username, avatar string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[roomID][userID]
	if !ok {
		return store.ErrNotFound
	}
	m.Username, m.Avatar, m.Online, m.LastSeen = username, avatar, true, seen
	return nil
}

func (s *memStore) SetMembershipOffline(_ context.Context, roomID, userID string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[roomID][userID]
	if !ok {
		return store.ErrNotFound
	}
	m.Online, m.LastSeen = false, seen
	return nil
}

func (s *memStore) FindMemberships(_ context.Context, roomID string) ([]*store.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMemberships != nil {
		return nil, s.failMemberships
	}
	out := make([]*store.Membership, 0, len(s.members[roomID]))
	for _, m := range s.members[roomID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *memStore) SetMemberRole(_ context.Context, roomID, userID string, role store.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[roomID][userID]
	if !ok {
		return store.ErrNotFound
	}
	m.Role = role
	return nil
}

func (s *memStore) DemoteAdminsExcept(_ context.Context, roomID, keepUserID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.members[roomID] {
		if id != keepUserID && m.Role == store.RoleAdmin {
			m.Role = store.RoleMember
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteMembership(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[roomID][userID]; !ok {
		return store.ErrNotFound
	}
	delete(s.members[roomID], userID)
	return nil
}

func (s *memStore) InsertChatMessage(_ context.Context, msg *store.ChatMessage) error {
	s.mu.Lock()
	if s.failInsertChat != nil {
		s.mu.Unlock()
		return s.failInsertChat
	}
	cp := *msg
	s.messages = append(s.messages, &cp)
	s.mu.Unlock()

	select {
	case s.chatInserted <- &cp:
	default:
	}
	return nil
}

func (s *memStore) ListChatMessages(_ context.Context, roomID string, limit int) ([]*store.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.ChatMessage
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

var errStoreDown = errors.New("store down")

func (s *memStore) mustInserted(t *testing.T) *store.ChatMessage {
	t.Helper()
	select {
	case m := <-s.chatInserted:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("chat message was not persisted")
		return nil
	}
}
