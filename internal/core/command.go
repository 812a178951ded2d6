package core

import (
	"encoding/json"
	"time"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin enters a room.
	CommandJoin CommandKind = iota
	// CommandMove updates the avatar position.
	CommandMove
	// CommandChat sends a chat message.
	CommandChat
	// CommandReaction broadcasts an emote.
	CommandReaction
	// CommandJoinVoice enters a voice channel.
	CommandJoinVoice
	// CommandLeaveVoice leaves a voice channel.
	CommandLeaveVoice
	// CommandKick removes a member from the room (admin only).
	CommandKick
	// CommandSignal relays a WebRTC signaling payload.
	CommandSignal
)

// Command represents an action requested by a client.
// Exactly one payload field matching Kind is set.
type Command struct {
	Kind     CommandKind
	Join     *JoinCommand
	Move     *MoveCommand
	Chat     *ChatCommand
	Reaction *ReactionCommand
	Voice    *VoiceCommand
	Kick     *KickCommand
	Signal   *SignalCommand
}

type JoinCommand struct {
	UserID       string
	Username     string
	RoomID       string
	Avatar       string
	AvatarConfig json.RawMessage
	Position     *Position
}

type MoveCommand struct {
	Position  Position
	Direction string
}

type ChatCommand struct {
	Type         ChatType
	Text         string
	TargetUserID string
}

type ReactionCommand struct {
	Reaction  string
	Timestamp time.Time
}

type VoiceCommand struct {
	ChannelID string
}

type KickCommand struct {
	TargetUserID string
}

// SignalKind is the WebRTC message being relayed.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

type SignalCommand struct {
	Kind         SignalKind
	TargetUserID string
	Payload      json.RawMessage
}

// payloadSet reports whether the payload for Kind is present.
func (c *Command) payloadSet() bool {
	switch c.Kind {
	case CommandJoin:
		return c.Join != nil
	case CommandMove:
		return c.Move != nil
	case CommandChat:
		return c.Chat != nil
	case CommandReaction:
		return c.Reaction != nil
	case CommandJoinVoice, CommandLeaveVoice:
		return c.Voice != nil
	case CommandKick:
		return c.Kick != nil
	case CommandSignal:
		return c.Signal != nil
	}
	return false
}
