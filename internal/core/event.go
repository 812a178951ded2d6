package core

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/plaza-server/internal/callengine"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMemberJoined announces a join to the room.
	EventMemberJoined EventKind = iota
	// EventRosterSnapshot carries durable members merged with live state.
	EventRosterSnapshot
	// EventMemberLeft announces a departure after the grace period.
	EventMemberLeft
	// EventAdminChanged announces the room's admin after an election.
	EventAdminChanged
	// EventRoomFull rejects a join at capacity.
	EventRoomFull
	// EventRoomInfo reports live occupancy.
	EventRoomInfo
	// EventError notifies a client about a rejected command.
	EventError
	// EventPositionBatch carries the periodic position snapshot.
	EventPositionBatch
	// EventChat delivers a chat message.
	EventChat
	// EventReaction delivers an emote.
	EventReaction
	// EventVoiceRoster carries a voice channel's members.
	EventVoiceRoster
	// EventVoiceChannelFull rejects a voice join at capacity.
	EventVoiceChannelFull
	// EventKicked tells a connection it was removed by an admin. Terminal.
	EventKicked
	// EventSignal relays a WebRTC payload.
	EventSignal
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind        EventKind
	Room        string
	Member      *MemberView    // member-joined, member-left
	Roster      []MemberView   // roster-snapshot
	AdminUserID string         // admin-changed
	Occupancy   *Occupancy     // room-full, room-info
	Positions   []PositionView // position-batch
	Chat        *ChatMessage
	Reaction    *ReactionView
	Voice       *VoiceView
	Kicked      *KickedView
	Signal      *SignalView
	Error       *CoreError

	// Terminal marks the last event of a session; the transport closes after it.
	Terminal bool
}

// MemberStatus reports whether a member has a live connection.
type MemberStatus string

const (
	StatusOnline  MemberStatus = "online"
	StatusOffline MemberStatus = "offline"
)

// MemberView is a roster entry.
type MemberView struct {
	UserID       string
	Username     string
	Avatar       string
	AvatarConfig json.RawMessage
	Role         string
	Status       MemberStatus
	Position     Position
	Direction    string
}

// Occupancy is the live member count against capacity.
type Occupancy struct {
	Current int
	Max     int
}

// PositionView is one entry of a position batch.
type PositionView struct {
	UserID       string
	Username     string
	Avatar       string
	AvatarConfig json.RawMessage
	Position     Position
	Direction    string
}

type ReactionView struct {
	UserID    string
	Reaction  string
	Timestamp time.Time
}

// VoiceView is a voice channel roster. Join and MaxUsers are set only
// on the caller's echo and on voice-channel-full respectively.
type VoiceView struct {
	ChannelID string
	Users     []string
	MaxUsers  int
	Join      *callengine.JoinInfo
}

type KickedView struct {
	RoomID   string
	ByUserID string
}

type SignalView struct {
	Kind       SignalKind
	FromUserID string
	Payload    json.RawMessage
}

func errorEvent(room string, err *CoreError) *Event {
	return &Event{Kind: EventError, Room: room, Error: err}
}
