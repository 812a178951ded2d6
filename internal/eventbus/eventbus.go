// Package eventbus publishes room domain events for out-of-process consumers.
package eventbus

import (
	"context"
	"strings"
	"time"
)

// Kind names a domain event.
type Kind string

const (
	MemberJoined Kind = "member_joined"
	MemberLeft   Kind = "member_left"
	MemberKicked Kind = "member_kicked"
	ChatPosted   Kind = "chat"
	AdminChanged Kind = "admin_changed"
)

// Event is a fact about a room that already happened.
type Event struct {
	Kind      Kind      `json:"kind"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Publisher delivers events best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish discards ev.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }

var subjectReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// Subject builds <prefix>.room.<roomId>.<kind>, escaping NATS token separators in roomID.
func Subject(prefix string, ev Event) string {
	return prefix + ".room." + subjectReplacer.Replace(ev.RoomID) + "." + string(ev.Kind)
}
