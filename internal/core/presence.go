package core

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/vovakirdan/plaza-server/internal/eventbus"
	"github.com/vovakirdan/plaza-server/internal/store"
)

// userKey identifies a user within a room.
type userKey struct {
	room string
	user string
}

// graceTimer delays the offline transition of a disconnected user.
type graceTimer struct {
	timer    *clock.Timer
	gen      uint64
	username string
}

func (h *Hub) join(c *Client, j *JoinCommand) {
	userID := strings.TrimSpace(j.UserID)
	roomID := strings.TrimSpace(j.RoomID)
	if c.UserID != "" {
		if userID == "" {
			userID = c.UserID
		} else if userID != c.UserID {
			h.reject(c, roomID, coreError(ErrCodeNotAuthorized, "user id does not match the authenticated identity"))
			return
		}
	}
	if roomID == "" || userID == "" {
		h.reject(c, roomID, coreError(ErrCodeBadRequest, "roomId and userId are required"))
		return
	}

	username := strings.TrimSpace(j.Username)
	if username == "" {
		h.reject(c, roomID, coreError(ErrCodeInvalidUsername, "username must not be empty"))
		return
	}

	rm, err := h.loadRoom(roomID, userID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("load room")
		h.reject(c, roomID, coreError(ErrCodeInternal, "failed to join room"))
		return
	}
	if !rm.Active {
		h.reject(c, roomID, coreError(ErrCodeRoomLocked, "room is locked"))
		return
	}

	// Connections of the same user are evicted below, so they neither
	// clash on username nor count against capacity.
	live := 0
	for _, other := range h.registry.Connections(roomID) {
		if other.ID == c.ID || other.UserID == userID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(other.Username), username) {
			h.reject(c, roomID, coreError(ErrCodeDuplicateUsername, "username "+username+" is already taken in this room"))
			return
		}
		live++
	}

	capacity := rm.Capacity
	if capacity <= 0 {
		capacity = h.opts.DefaultCapacity
	}
	if live >= capacity {
		h.log.Debug().Str("room", roomID).Int("current", live).Int("max", capacity).Msg("room full")
		c.deliver(&Event{
			Kind:      EventRoomFull,
			Room:      roomID,
			Occupancy: &Occupancy{Current: live, Max: capacity},
			Error:     coreError(ErrCodeRoomFull, "room is full"),
		})
		return
	}

	// A connection switching rooms or identities leaves its old registration
	// first. Re-joining the same room as the same user keeps voice and the
	// room broadcaster.
	if prev := h.registry.Get(c.ID); prev != nil {
		if prev.RoomID == roomID && prev.UserID == userID {
			h.registry.Remove(prev.ID)
		} else {
			h.detach(prev)
		}
	}

	pos := h.opts.Spawn
	if j.Position != nil && j.Position.Valid() {
		pos = *j.Position
	}
	avatar := strings.TrimSpace(j.Avatar)
	if avatar == "" {
		avatar = initial(username)
	}
	now := h.clock.Now()

	conn := &Connection{
		ID:           c.ID,
		Client:       c,
		UserID:       userID,
		Username:     username,
		RoomID:       roomID,
		Avatar:       avatar,
		AvatarConfig: j.AvatarConfig,
		Role:         string(store.RoleMember),
		Position:     pos,
		VoiceChannel: h.voice.channelOf(userKey{roomID, userID}),
		JoinedAt:     now,
	}
	h.registry.Put(conn)
	state := h.roomState(roomID, capacity)

	key := userKey{roomID, userID}
	h.cancelGrace(key)

	for _, other := range h.registry.UserConnections(roomID, userID) {
		if other.ID == c.ID {
			continue
		}
		h.registry.Remove(other.ID)
		h.log.Debug().Str("room", roomID).Str("user", userID).Str("evicted", other.ID).Msg("evicted duplicate session")
	}

	h.upsertMembership(conn)
	members := h.loadMembers(roomID)
	members = h.resolveAdmins(roomID, members)
	h.syncRoles(roomID, members)

	h.log.Info().Str("room", roomID).Str("user", userID).Str("username", username).
		Int("current", h.registry.Count(roomID)).Int("max", capacity).Msg("member joined")

	joined := liveView(conn)
	h.broadcast(roomID, &Event{Kind: EventMemberJoined, Room: roomID, Member: &joined})
	h.broadcast(roomID, &Event{Kind: EventRosterSnapshot, Room: roomID, Roster: h.roster(roomID, members)})
	c.deliver(&Event{Kind: EventPositionBatch, Room: roomID, Positions: h.positions(roomID)})
	h.broadcastRoomInfo(roomID)
	h.startBroadcaster(state)

	h.publish(eventbus.MemberJoined, roomID, userID, map[string]string{"username": username, "role": conn.Role})
}

// loadRoom finds the room or lazily creates it. A creation race re-reads.
func (h *Hub) loadRoom(roomID, userID string) (*store.Room, error) {
	ctx, cancel := h.storeCtx()
	defer cancel()

	rm, err := h.store.FindRoom(ctx, roomID)
	if err == nil {
		return rm, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rm = &store.Room{
		ID:        roomID,
		Name:      "Room " + roomID,
		Capacity:  h.opts.DefaultCapacity,
		Active:    true,
		CreatedBy: userID,
		CreatedAt: h.clock.Now(),
	}
	if err := h.store.CreateRoom(ctx, rm); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return h.store.FindRoom(ctx, roomID)
		}
		return nil, err
	}
	h.log.Info().Str("room", roomID).Int("capacity", rm.Capacity).Msg("room created")
	return rm, nil
}

// upsertMembership marks the user online. The role is admin when the room
// has no admin, else the stored role. Failures are logged only.
func (h *Hub) upsertMembership(conn *Connection) {
	ctx, cancel := h.storeCtx()
	defer cancel()

	members, err := h.store.FindMemberships(ctx, conn.RoomID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", conn.RoomID).Str("user", conn.UserID).Msg("load memberships before upsert")
		return
	}

	var existing *store.Membership
	hasAdmin := false
	for _, m := range members {
		if m.UserID == conn.UserID {
			existing = m
		}
		if m.Role == store.RoleAdmin {
			hasAdmin = true
		}
	}

	role := store.RoleMember
	switch {
	case !hasAdmin:
		role = store.RoleAdmin
	case existing != nil && existing.Role != "":
		role = existing.Role
	}

	now := h.clock.Now()
	m := &store.Membership{
		RoomID:   conn.RoomID,
		UserID:   conn.UserID,
		Username: conn.Username,
		Avatar:   conn.Avatar,
		Role:     role,
		Online:   true,
		JoinedAt: now,
		LastSeen: now,
	}
	if existing != nil {
		m.JoinedAt = existing.JoinedAt
	}

	err = h.store.UpsertMembership(ctx, m)
	if errors.Is(err, store.ErrConflict) {
		err = h.store.TouchMembership(ctx, conn.RoomID, conn.UserID, conn.Username, conn.Avatar, now)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("room", conn.RoomID).Str("user", conn.UserID).Msg("upsert membership")
	}
}

// loadMembers returns the durable roster, or nil when the store fails.
func (h *Hub) loadMembers(roomID string) []*store.Membership {
	ctx, cancel := h.storeCtx()
	defer cancel()

	members, err := h.store.FindMemberships(ctx, roomID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("load memberships")
		return nil
	}
	return members
}

// syncRoles copies durable roles onto live connections.
func (h *Hub) syncRoles(roomID string, members []*store.Membership) {
	for _, m := range members {
		for _, conn := range h.registry.UserConnections(roomID, m.UserID) {
			conn.Role = string(m.Role)
		}
	}
}

// detach removes a connection with disconnect semantics: voice is released
// and, if the user has no other live connection, the grace timer starts.
func (h *Hub) detach(conn *Connection) {
	h.registry.Remove(conn.ID)
	roomID := conn.RoomID

	if !h.registry.HasUser(roomID, conn.UserID) {
		h.releaseVoice(roomID, conn.UserID)
		h.startGrace(userKey{roomID, conn.UserID}, conn.Username)
	}

	if h.registry.Count(roomID) == 0 {
		h.closeRoom(roomID)
	} else {
		h.broadcastRoomInfo(roomID)
	}
	h.log.Debug().Str("room", roomID).Str("user", conn.UserID).Str("client_id", conn.ID).Msg("connection detached")
}

func (h *Hub) startGrace(key userKey, username string) {
	h.cancelGrace(key)
	h.graceGen++
	gen := h.graceGen
	g := &graceTimer{gen: gen, username: username}
	g.timer = h.clock.AfterFunc(h.opts.GracePeriod, func() {
		h.post(envelope{fn: func() { h.graceExpired(key, gen) }})
	})
	h.graces[key] = g
}

func (h *Hub) cancelGrace(key userKey) {
	if g, ok := h.graces[key]; ok {
		g.timer.Stop()
		delete(h.graces, key)
	}
}

// graceExpired turns a disconnect into a departure unless the user came back.
func (h *Hub) graceExpired(key userKey, gen uint64) {
	g, ok := h.graces[key]
	if !ok || g.gen != gen {
		return
	}
	delete(h.graces, key)
	if h.registry.HasUser(key.room, key.user) {
		return
	}

	ctx, cancel := h.storeCtx()
	err := h.store.SetMembershipOffline(ctx, key.room, key.user, h.clock.Now())
	cancel()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Warn().Err(err).Str("room", key.room).Str("user", key.user).Msg("mark membership offline")
	}

	h.log.Info().Str("room", key.room).Str("user", key.user).Msg("member left")
	h.broadcast(key.room, &Event{
		Kind: EventMemberLeft,
		Room: key.room,
		Member: &MemberView{
			UserID:   key.user,
			Username: g.username,
			Status:   StatusOffline,
		},
	})

	members := h.loadMembers(key.room)
	members = h.electSuccessor(key.room, key.user, members)
	h.syncRoles(key.room, members)
	h.broadcast(key.room, &Event{Kind: EventRosterSnapshot, Room: key.room, Roster: h.roster(key.room, members)})

	h.publish(eventbus.MemberLeft, key.room, key.user, map[string]string{"username": g.username})
}

func (h *Hub) kick(conn *Connection, k *KickCommand) {
	roomID := conn.RoomID
	target := strings.TrimSpace(k.TargetUserID)
	if target == "" {
		h.reject(conn.Client, roomID, coreError(ErrCodeBadRequest, "targetUserId is required"))
		return
	}

	ctx, cancel := h.storeCtx()
	members, err := h.store.FindMemberships(ctx, roomID)
	cancel()
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("load memberships for kick")
		h.reject(conn.Client, roomID, coreError(ErrCodeInternal, "failed to kick member"))
		return
	}

	requester := findMember(members, conn.UserID)
	if requester == nil || requester.Role != store.RoleAdmin {
		h.reject(conn.Client, roomID, coreError(ErrCodeNotAuthorized, "only the room admin can kick members"))
		return
	}
	if target == conn.UserID {
		h.reject(conn.Client, roomID, coreError(ErrCodeSelfKick, "cannot kick yourself"))
		return
	}
	if findMember(members, target) == nil {
		h.reject(conn.Client, roomID, coreError(ErrCodeMemberNotFound, "member not found in this room"))
		return
	}

	for _, tc := range h.registry.UserConnections(roomID, target) {
		h.registry.Remove(tc.ID)
		tc.Client.deliverTerminal(&Event{
			Kind:     EventKicked,
			Room:     roomID,
			Kicked:   &KickedView{RoomID: roomID, ByUserID: conn.UserID},
			Terminal: true,
		})
	}
	h.releaseVoice(roomID, target)
	h.cancelGrace(userKey{roomID, target})

	ctx, cancel = h.storeCtx()
	err = h.store.DeleteMembership(ctx, roomID, target)
	cancel()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Warn().Err(err).Str("room", roomID).Str("user", target).Msg("delete membership")
	}

	h.log.Info().Str("room", roomID).Str("user", target).Str("by", conn.UserID).Msg("member kicked")
	members = h.loadMembers(roomID)
	h.broadcast(roomID, &Event{Kind: EventRosterSnapshot, Room: roomID, Roster: h.roster(roomID, members)})
	h.broadcastRoomInfo(roomID)

	h.publish(eventbus.MemberKicked, roomID, target, map[string]string{"by": conn.UserID})
}

// roster merges durable memberships with live state, one entry per user.
// Live users missing from the store (e.g. after a store failure) are appended.
func (h *Hub) roster(roomID string, members []*store.Membership) []MemberView {
	out := make([]MemberView, 0, len(members))
	seen := make(map[string]struct{}, len(members))

	for _, m := range members {
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}

		view := MemberView{
			UserID:   m.UserID,
			Username: m.Username,
			Avatar:   m.Avatar,
			Role:     string(m.Role),
			Status:   StatusOffline,
		}
		if view.Role == "" {
			view.Role = string(store.RoleMember)
		}
		if conn := h.registry.FindUser(roomID, m.UserID); conn != nil {
			view.Status = StatusOnline
			view.AvatarConfig = conn.AvatarConfig
			view.Position = conn.Position
			view.Direction = conn.Direction
		}
		out = append(out, view)
	}

	for _, conn := range h.registry.Connections(roomID) {
		if _, ok := seen[conn.UserID]; ok {
			continue
		}
		seen[conn.UserID] = struct{}{}
		out = append(out, liveView(conn))
	}
	return out
}

func liveView(conn *Connection) MemberView {
	role := conn.Role
	if role == "" {
		role = string(store.RoleMember)
	}
	return MemberView{
		UserID:       conn.UserID,
		Username:     conn.Username,
		Avatar:       conn.Avatar,
		AvatarConfig: conn.AvatarConfig,
		Role:         role,
		Status:       StatusOnline,
		Position:     conn.Position,
		Direction:    conn.Direction,
	}
}

func findMember(members []*store.Membership, userID string) *store.Membership {
	for _, m := range members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

// initial is the default avatar: the upper-cased first letter of the name.
func initial(username string) string {
	r, _ := utf8.DecodeRuneInString(username)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}
