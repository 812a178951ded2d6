package callengine

import "context"

// JoinInfo contains information needed to join a voice channel's media room.
type JoinInfo struct {
	URL      string `json:"url"`      // WebSocket URL (e.g., ws://localhost:7880)
	Token    string `json:"token"`    // JWT token for the media server
	RoomName string `json:"roomName"` // media room name
	Identity string `json:"identity"` // user identity in the media room
}

// Engine abstracts the media backend behind voice channels.
// Only credentials are issued here; media never flows through this server.
type Engine interface {
	// GenerateJoinInfo creates join credentials for a user entering a channel.
	GenerateJoinInfo(ctx context.Context, roomID, channelID, userID, username string) (*JoinInfo, error)

	// CloseChannel is called once a channel has no members left.
	CloseChannel(ctx context.Context, roomID, channelID string) error
}
