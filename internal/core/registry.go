package core

import (
	"encoding/json"
	"sort"
	"time"
)

// Connection is the live state of a joined client. Owned by the registry.
type Connection struct {
	ID           string
	Client       *Client
	UserID       string
	Username     string
	RoomID       string
	Avatar       string
	AvatarConfig json.RawMessage
	Role         string
	Position     Position
	Direction    string
	VoiceChannel string
	JoinedAt     time.Time
}

// Registry maps connections to live state and rooms to their connections.
// Not safe for concurrent use; only the hub goroutine touches it.
type Registry struct {
	conns map[string]*Connection
	rooms map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Put registers conn, replacing any previous entry with the same ID.
func (r *Registry) Put(conn *Connection) {
	if prev, ok := r.conns[conn.ID]; ok {
		r.unlink(prev)
	}
	r.conns[conn.ID] = conn
	set, ok := r.rooms[conn.RoomID]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[conn.RoomID] = set
	}
	set[conn.ID] = struct{}{}
}

// Get returns the connection or nil.
func (r *Registry) Get(id string) *Connection {
	return r.conns[id]
}

// Remove drops the connection from both maps. Returns the removed entry or nil.
func (r *Registry) Remove(id string) *Connection {
	conn, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	r.unlink(conn)
	return conn
}

func (r *Registry) unlink(conn *Connection) {
	set, ok := r.rooms[conn.RoomID]
	if !ok {
		return
	}
	delete(set, conn.ID)
	if len(set) == 0 {
		delete(r.rooms, conn.RoomID)
	}
}

// MembersOf returns the connection IDs in a room, sorted.
func (r *Registry) MembersOf(roomID string) []string {
	set := r.rooms[roomID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connections returns the live connections of a room ordered by join time.
func (r *Registry) Connections(roomID string) []*Connection {
	set := r.rooms[roomID]
	out := make([]*Connection, 0, len(set))
	for id := range set {
		out = append(out, r.conns[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UserConnections returns the connections of userID in roomID.
func (r *Registry) UserConnections(roomID, userID string) []*Connection {
	var out []*Connection
	for _, conn := range r.Connections(roomID) {
		if conn.UserID == userID {
			out = append(out, conn)
		}
	}
	return out
}

// FindUser returns one live connection of userID in roomID, or nil.
func (r *Registry) FindUser(roomID, userID string) *Connection {
	for id := range r.rooms[roomID] {
		if conn := r.conns[id]; conn.UserID == userID {
			return conn
		}
	}
	return nil
}

// HasUser reports whether userID has a live connection in roomID.
func (r *Registry) HasUser(roomID, userID string) bool {
	return r.FindUser(roomID, userID) != nil
}

// Count returns the number of live connections in a room.
func (r *Registry) Count(roomID string) int {
	return len(r.rooms[roomID])
}

// Len returns the number of live connections overall.
func (r *Registry) Len() int {
	return len(r.conns)
}
