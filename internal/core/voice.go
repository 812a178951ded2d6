package core

import (
	"strings"
)

type channelKey struct {
	room    string
	channel string
}

// voiceChannels tracks voice membership. A user is in at most one channel
// per room.
type voiceChannels struct {
	members map[channelKey][]string
	active  map[userKey]string
}

func newVoiceChannels() *voiceChannels {
	return &voiceChannels{
		members: make(map[channelKey][]string),
		active:  make(map[userKey]string),
	}
}

func (v *voiceChannels) channelOf(key userKey) string {
	return v.active[key]
}

func (v *voiceChannels) users(roomID, channelID string) []string {
	return append([]string(nil), v.members[channelKey{roomID, channelID}]...)
}

func (v *voiceChannels) contains(roomID, channelID, userID string) bool {
	for _, id := range v.members[channelKey{roomID, channelID}] {
		if id == userID {
			return true
		}
	}
	return false
}

func (v *voiceChannels) add(roomID, channelID, userID string) {
	if v.contains(roomID, channelID, userID) {
		v.active[userKey{roomID, userID}] = channelID
		return
	}
	key := channelKey{roomID, channelID}
	v.members[key] = append(v.members[key], userID)
	v.active[userKey{roomID, userID}] = channelID
}

// remove reports whether userID was in the channel; emptied is true when
// the channel was deleted as a result.
func (v *voiceChannels) remove(roomID, channelID, userID string) (removed, emptied bool) {
	key := channelKey{roomID, channelID}
	ids := v.members[key]
	for i, id := range ids {
		if id != userID {
			continue
		}
		ids = append(ids[:i:i], ids[i+1:]...)
		removed = true
		break
	}
	if !removed {
		return false, false
	}
	if uk := (userKey{roomID, userID}); v.active[uk] == channelID {
		delete(v.active, uk)
	}
	if len(ids) == 0 {
		delete(v.members, key)
		return true, true
	}
	v.members[key] = ids
	return true, false
}

// roomChannels returns channel rosters of roomID.
func (v *voiceChannels) roomChannels(roomID string) map[string][]string {
	out := make(map[string][]string)
	for key, ids := range v.members {
		if key.room == roomID {
			out[key.channel] = append([]string(nil), ids...)
		}
	}
	return out
}

func (h *Hub) joinVoice(conn *Connection, cmd *VoiceCommand) {
	if !h.allow(conn, actionJoinVoice, h.opts.VoiceLimiter) {
		return
	}
	channelID := strings.TrimSpace(cmd.ChannelID)
	if channelID == "" {
		h.reject(conn.Client, conn.RoomID, coreError(ErrCodeBadRequest, "channelId is required"))
		return
	}
	roomID := conn.RoomID

	if prev := h.voice.channelOf(userKey{roomID, conn.UserID}); prev != "" && prev != channelID {
		h.leaveChannel(roomID, prev, conn.UserID)
	}

	if !h.voice.contains(roomID, channelID, conn.UserID) &&
		len(h.voice.users(roomID, channelID)) >= h.opts.VoiceCapacity {
		h.log.Debug().Str("room", roomID).Str("channel", channelID).Str("user", conn.UserID).Msg("voice channel full")
		conn.Client.deliver(&Event{
			Kind:  EventVoiceChannelFull,
			Room:  roomID,
			Voice: &VoiceView{ChannelID: channelID, MaxUsers: h.opts.VoiceCapacity},
			Error: coreError(ErrCodeChannelFull, "voice channel is full"),
		})
		return
	}

	h.voice.add(roomID, channelID, conn.UserID)
	h.setVoiceChannel(roomID, conn.UserID, channelID)
	users := h.voice.users(roomID, channelID)

	echo := &VoiceView{ChannelID: channelID, Users: users}
	if h.opts.Calls != nil {
		ctx, cancel := h.storeCtx()
		info, err := h.opts.Calls.GenerateJoinInfo(ctx, roomID, channelID, conn.UserID, conn.Username)
		cancel()
		if err != nil {
			h.log.Warn().Err(err).Str("room", roomID).Str("channel", channelID).Msg("generate call credentials")
		} else {
			echo.Join = info
		}
	}

	h.log.Debug().Str("room", roomID).Str("channel", channelID).Str("user", conn.UserID).Int("users", len(users)).Msg("voice joined")
	h.broadcastExcept(roomID, conn.ID, &Event{
		Kind:  EventVoiceRoster,
		Room:  roomID,
		Voice: &VoiceView{ChannelID: channelID, Users: users},
	})
	conn.Client.deliver(&Event{Kind: EventVoiceRoster, Room: roomID, Voice: echo})
}

func (h *Hub) leaveVoice(conn *Connection, cmd *VoiceCommand) {
	if !h.allow(conn, actionLeaveVoice, h.opts.VoiceLimiter) {
		return
	}
	channelID := strings.TrimSpace(cmd.ChannelID)
	if channelID == "" {
		channelID = h.voice.channelOf(userKey{conn.RoomID, conn.UserID})
	}
	if channelID == "" {
		return
	}
	h.leaveChannel(conn.RoomID, channelID, conn.UserID)
}

// releaseVoice drops userID from whatever channel it occupies in roomID.
func (h *Hub) releaseVoice(roomID, userID string) {
	if channelID := h.voice.channelOf(userKey{roomID, userID}); channelID != "" {
		h.leaveChannel(roomID, channelID, userID)
	}
}

func (h *Hub) leaveChannel(roomID, channelID, userID string) {
	removed, emptied := h.voice.remove(roomID, channelID, userID)
	if !removed {
		return
	}
	h.setVoiceChannel(roomID, userID, "")
	h.broadcast(roomID, &Event{
		Kind:  EventVoiceRoster,
		Room:  roomID,
		Voice: &VoiceView{ChannelID: channelID, Users: h.voice.users(roomID, channelID)},
	})
	h.log.Debug().Str("room", roomID).Str("channel", channelID).Str("user", userID).Msg("voice left")

	if emptied && h.opts.Calls != nil {
		ctx, cancel := h.storeCtx()
		defer cancel()
		if err := h.opts.Calls.CloseChannel(ctx, roomID, channelID); err != nil {
			h.log.Warn().Err(err).Str("room", roomID).Str("channel", channelID).Msg("close call channel")
		}
	}
}

func (h *Hub) setVoiceChannel(roomID, userID, channelID string) {
	for _, conn := range h.registry.UserConnections(roomID, userID) {
		conn.VoiceChannel = channelID
	}
}
