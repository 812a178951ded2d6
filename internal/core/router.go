package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vovakirdan/plaza-server/internal/eventbus"
	"github.com/vovakirdan/plaza-server/internal/ratelimit"
)

const (
	actionChat       = "chat"
	actionJoinVoice  = "join-voice"
	actionLeaveVoice = "leave-voice"
)

// allow consults limiter for (action, room, user). Limiter failures allow
// the action; denials are reported to the caller.
func (h *Hub) allow(conn *Connection, action string, limiter ratelimit.Limiter) bool {
	ctx, cancel := h.storeCtx()
	defer cancel()

	d, err := limiter.Allow(ctx, ratelimit.Key(action, conn.RoomID, conn.UserID))
	if err != nil {
		h.log.Warn().Err(err).Str("action", action).Str("user", conn.UserID).Msg("rate limiter unavailable")
		return true
	}
	if d.Allowed {
		return true
	}
	h.reject(conn.Client, conn.RoomID, coreError(ErrCodeRateLimited,
		fmt.Sprintf("too many %s requests, retry in %ds", action, d.RetryAfterSeconds())))
	return false
}

func (h *Hub) chat(conn *Connection, cmd *ChatCommand) {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return
	}
	typ := cmd.Type
	if typ == "" {
		typ = ChatGlobal
	}
	if !typ.Valid() {
		h.reject(conn.Client, conn.RoomID, coreError(ErrCodeBadRequest, "unknown chat type "+string(typ)))
		return
	}
	if !h.allow(conn, actionChat, h.opts.ChatLimiter) {
		return
	}

	roomID := conn.RoomID
	msg := &ChatMessage{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   conn.UserID,
		SenderName: conn.Username,
		Type:       typ,
		Text:       text,
		CreatedAt:  h.clock.Now(),
	}

	// Targets are resolved before anything is delivered.
	var targets []*Connection
	switch typ {
	case ChatGlobal:
		for _, other := range h.registry.Connections(roomID) {
			if other.UserID != conn.UserID {
				msg.Recipients = append(msg.Recipients, other.UserID)
			}
			targets = append(targets, other)
		}

	case ChatNearby:
		for _, other := range h.registry.Connections(roomID) {
			if other.UserID == conn.UserID {
				continue
			}
			if conn.Position.Distance(other.Position) < h.opts.NearbyRadius {
				msg.Recipients = append(msg.Recipients, other.UserID)
				targets = append(targets, other)
			}
		}
		if len(targets) == 0 {
			h.log.Debug().Str("room", roomID).Str("user", conn.UserID).Msg("nearby chat without listeners")
			return
		}
		targets = append(targets, conn)

	case ChatDM:
		target := strings.TrimSpace(cmd.TargetUserID)
		if target == "" || target == conn.UserID {
			return
		}
		peer := h.registry.FindUser(roomID, target)
		if peer == nil {
			h.log.Debug().Str("room", roomID).Str("target", target).Msg("dm target offline")
			return
		}
		msg.TargetUserID = target
		msg.Recipients = []string{target}
		targets = []*Connection{peer, conn}
	}
	msg.Recipients = dedupe(msg.Recipients)

	ev := &Event{Kind: EventChat, Room: roomID, Chat: msg}
	for _, t := range targets {
		if !t.Client.deliver(ev) {
			h.log.Debug().Str("client_id", t.ID).Msg("dropped chat for slow consumer")
		}
	}

	h.journal.enqueue(msg)
	h.publish(eventbus.ChatPosted, roomID, conn.UserID, map[string]any{
		"id":         msg.ID,
		"type":       string(msg.Type),
		"recipients": msg.Recipients,
	})
}

func (h *Hub) react(conn *Connection, cmd *ReactionCommand) {
	reaction := strings.TrimSpace(cmd.Reaction)
	if reaction == "" {
		return
	}
	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = h.clock.Now()
	}
	h.broadcast(conn.RoomID, &Event{
		Kind:     EventReaction,
		Room:     conn.RoomID,
		Reaction: &ReactionView{UserID: conn.UserID, Reaction: reaction, Timestamp: ts},
	})
}

// dedupe drops empty and repeated ids, keeping first occurrences.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
