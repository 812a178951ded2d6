package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/vovakirdan/plaza-server/internal/callengine"
)

// LiveKitEngine implements callengine.Engine using LiveKit as the media backend.
type LiveKitEngine struct {
	apiKey    string
	apiSecret string
	wsURL     string
	ttl       time.Duration
}

// New creates a new LiveKitEngine.
func New(apiKey, apiSecret, wsURL string) *LiveKitEngine {
	return &LiveKitEngine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		ttl:       time.Hour,
	}
}

// RoomName maps a voice channel onto a LiveKit room: plaza-{room}-{channel}.
func RoomName(roomID, channelID string) string {
	return fmt.Sprintf("plaza-%s-%s", roomID, channelID)
}

// GenerateJoinInfo creates join credentials for a user to join the channel.
// LiveKit creates rooms on demand when the first participant connects.
func (e *LiveKitEngine) GenerateJoinInfo(_ context.Context, roomID, channelID, userID, username string) (*callengine.JoinInfo, error) {
	if channelID == "" {
		return nil, fmt.Errorf("empty channel id")
	}

	roomName := RoomName(roomID, channelID)
	identity := "user-" + userID

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(username).
		SetValidFor(e.ttl)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &callengine.JoinInfo{
		URL:      e.wsURL,
		Token:    token,
		RoomName: roomName,
		Identity: identity,
	}, nil
}

// CloseChannel is a no-op: LiveKit rooms expire once empty.
func (e *LiveKitEngine) CloseChannel(_ context.Context, _, _ string) error {
	return nil
}

// Ensure LiveKitEngine implements callengine.Engine
var _ callengine.Engine = (*LiveKitEngine)(nil)
