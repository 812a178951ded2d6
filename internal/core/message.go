package core

import (
	"math"
	"time"
)

// ChatType selects how a chat message is routed.
type ChatType string

const (
	ChatGlobal ChatType = "global"
	ChatNearby ChatType = "nearby"
	ChatDM     ChatType = "dm"
)

// Valid reports whether t is a routable chat type.
func (t ChatType) Valid() bool {
	switch t {
	case ChatGlobal, ChatNearby, ChatDM:
		return true
	}
	return false
}

// Position is a point in room coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid rejects NaN and infinite coordinates.
func (p Position) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Distance is the Euclidean distance between p and q.
func (p Position) Distance(q Position) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// ChatMessage is the domain model for a delivered chat message.
type ChatMessage struct {
	ID           string
	RoomID       string
	SenderID     string
	SenderName   string
	Type         ChatType
	Text         string
	TargetUserID string
	Recipients   []string
	CreatedAt    time.Time
}
