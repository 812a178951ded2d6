package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin         = "join"
	InboundTypeMove         = "move"
	InboundTypeChat         = "chat"
	InboundTypeReaction     = "reaction"
	InboundTypeJoinVoice    = "join-voice"
	InboundTypeLeaveVoice   = "leave-voice"
	InboundTypeKick         = "kick"
	InboundTypeOffer        = "webrtc-offer"
	InboundTypeAnswer       = "webrtc-answer"
	InboundTypeICECandidate = "webrtc-ice-candidate"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventMemberJoined     = "member-joined"
	EventRosterSnapshot   = "roster-snapshot"
	EventMemberLeft       = "member-left"
	EventAdminChanged     = "admin-changed"
	EventRoomFull         = "room-full"
	EventRoomInfo         = "room-info"
	EventAppError         = "app-error"
	EventPositionBatch    = "position-batch"
	EventChat             = "chat"
	EventReaction         = "reaction"
	EventVoiceRoster      = "voice-roster"
	EventVoiceChannelFull = "voice-channel-full"
	EventKicked           = "kicked"
)

// Position is a point in room coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// JoinData requests to enter a room.
type JoinData struct {
	UserID       string          `json:"userId"`
	Username     string          `json:"username"`
	RoomID       string          `json:"roomId"`
	Avatar       string          `json:"avatar,omitempty"`
	AvatarConfig json.RawMessage `json:"avatarConfig,omitempty"`
	Position     *Position       `json:"position,omitempty"`
}

// MoveData accepts either a nested position or flat x/y.
type MoveData struct {
	Position  *Position `json:"position,omitempty"`
	X         *float64  `json:"x,omitempty"`
	Y         *float64  `json:"y,omitempty"`
	Direction string    `json:"direction,omitempty"`
}

// ChatData is a chat message from the client.
type ChatData struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

// ReactionData is an emote. Timestamp is unix milliseconds.
type ReactionData struct {
	Reaction  string `json:"reaction"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// VoiceData names a voice channel.
type VoiceData struct {
	ChannelID string `json:"channelId"`
}

// KickData names the member to remove.
type KickData struct {
	TargetUserID string `json:"targetUserId"`
}

// SignalData carries a WebRTC payload to a peer.
type SignalData struct {
	TargetUserID string          `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Member is a roster entry.
type Member struct {
	UserID       string          `json:"userId"`
	Username     string          `json:"username"`
	Avatar       string          `json:"avatar,omitempty"`
	AvatarConfig json.RawMessage `json:"avatarConfig,omitempty"`
	Role         string          `json:"role,omitempty"`
	Status       string          `json:"status,omitempty"`
	Position     Position        `json:"position"`
	Direction    string          `json:"direction,omitempty"`
}

type EventMemberJoinedData struct {
	RoomID string `json:"roomId"`
	Member
}

type EventMemberLeftData struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

type EventRosterData struct {
	RoomID  string   `json:"roomId"`
	Members []Member `json:"members"`
}

type EventAdminChangedData struct {
	RoomID         string `json:"roomId"`
	NewAdminUserID string `json:"newAdminUserId"`
}

// EventOccupancyData backs both room-full and room-info.
type EventOccupancyData struct {
	RoomID       string `json:"roomId"`
	CurrentUsers int    `json:"currentUsers"`
	MaxUsers     int    `json:"maxUsers"`
}

type PlayerPosition struct {
	UserID       string          `json:"userId"`
	Username     string          `json:"username"`
	Avatar       string          `json:"avatar,omitempty"`
	AvatarConfig json.RawMessage `json:"avatarConfig,omitempty"`
	Position     Position        `json:"position"`
	Direction    string          `json:"direction,omitempty"`
}

type EventPositionBatchData struct {
	RoomID  string           `json:"roomId"`
	Players []PlayerPosition `json:"players"`
}

type EventChatData struct {
	ID           string   `json:"id"`
	RoomID       string   `json:"roomId"`
	UserID       string   `json:"userId"`
	Username     string   `json:"username"`
	Type         string   `json:"type"`
	Message      string   `json:"message"`
	TargetUserID string   `json:"targetUserId,omitempty"`
	Recipients   []string `json:"recipients,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

type EventReactionData struct {
	UserID    string `json:"userId"`
	Reaction  string `json:"reaction"`
	Timestamp int64  `json:"timestamp"`
}

// CallJoin carries media server credentials for a voice channel.
type CallJoin struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	RoomName string `json:"roomName"`
	Identity string `json:"identity"`
}

type EventVoiceRosterData struct {
	ChannelID string    `json:"channelId"`
	Users     []string  `json:"users"`
	Call      *CallJoin `json:"call,omitempty"`
}

type EventVoiceChannelFullData struct {
	ChannelID string `json:"channelId"`
	MaxUsers  int    `json:"maxUsers"`
	Message   string `json:"message"`
}

type EventKickedData struct {
	RoomID   string `json:"roomId"`
	ByUserID string `json:"byUserId"`
	Message  string `json:"message"`
}

type EventSignalData struct {
	FromUserID string          `json:"fromUserId"`
	Payload    json.RawMessage `json:"payload"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
