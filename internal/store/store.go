package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write loses a unique-key race.
	ErrConflict = errors.New("conflict")
)

// Room represents a shared virtual space.
type Room struct {
	ID        string
	Name      string
	Capacity  int
	Active    bool
	CreatedBy string
	CreatedAt time.Time
}

// Role defines a member's privileges within a room.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership is the durable per-room record of a user.
// At most one row exists per (RoomID, UserID).
type Membership struct {
	RoomID   string
	UserID   string
	Username string
	Avatar   string
	Role     Role
	Online   bool
	JoinedAt time.Time
	LastSeen time.Time
}

// ChatType classifies how a chat message was routed.
type ChatType string

const (
	ChatGlobal ChatType = "global"
	ChatNearby ChatType = "nearby"
	ChatDM     ChatType = "dm"
)

// ChatMessage is an append-only delivery record.
type ChatMessage struct {
	ID           string
	RoomID       string
	SenderID     string
	SenderName   string
	Type         ChatType
	Content      string
	TargetUserID string
	Recipients   []string
	Timestamp    time.Time
}

// RoomStore handles room persistence.
type RoomStore interface {
	// FindRoom retrieves a room by ID. Returns ErrNotFound when absent.
	FindRoom(ctx context.Context, roomID string) (*Room, error)

	// CreateRoom inserts a new room. Returns ErrConflict if the ID is taken.
	CreateRoom(ctx context.Context, room *Room) error
}

// MembershipStore handles room membership persistence.
type MembershipStore interface {
	// UpsertMembership inserts or updates the (room,user) row.
	// JoinedAt is written only on insert.
	UpsertMembership(ctx context.Context, m *Membership) error

	// TouchMembership marks an existing row online and refreshes its snapshot fields.
	TouchMembership(ctx context.Context, roomID, userID, username, avatar string, seen time.Time) error

	// SetMembershipOffline flips the online flag off and records lastSeen.
	SetMembershipOffline(ctx context.Context, roomID, userID string, seen time.Time) error

	// FindMemberships lists every membership of a room ordered by joinedAt, userID.
	FindMemberships(ctx context.Context, roomID string) ([]*Membership, error)

	// SetMemberRole updates the role of a single member. Returns ErrNotFound when absent.
	SetMemberRole(ctx context.Context, roomID, userID string, role Role) error

	// DemoteAdminsExcept demotes every admin of the room other than keepUserID.
	DemoteAdminsExcept(ctx context.Context, roomID, keepUserID string) (int64, error)

	// DeleteMembership removes the (room,user) row. Returns ErrNotFound when absent.
	DeleteMembership(ctx context.Context, roomID, userID string) error
}

// MessageStore handles chat message persistence.
type MessageStore interface {
	// InsertChatMessage appends a delivery record.
	InsertChatMessage(ctx context.Context, msg *ChatMessage) error

	// ListChatMessages returns the latest messages of a room, oldest first.
	ListChatMessages(ctx context.Context, roomID string, limit int) ([]*ChatMessage, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	MembershipStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
