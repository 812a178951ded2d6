package http

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/plaza-server/internal/core"
	"github.com/vovakirdan/plaza-server/internal/proto"
	"github.com/vovakirdan/plaza-server/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// PresenceSource answers live room queries.
type PresenceSource interface {
	RoomPresence(ctx context.Context, roomID string) (core.RoomPresence, error)
}

// RoomHandlers serves read-only room endpoints.
type RoomHandlers struct {
	presence PresenceSource
	messages store.MessageStore
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(presence PresenceSource, messages store.MessageStore, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		presence: presence,
		messages: messages,
		log:      logger,
	}
}

// PresenceResponse is the live snapshot of a room.
type PresenceResponse struct {
	RoomID       string              `json:"roomId"`
	CurrentUsers int                 `json:"currentUsers"`
	MaxUsers     int                 `json:"maxUsers"`
	Members      []proto.Member      `json:"members"`
	Voice        map[string][]string `json:"voice"`
}

// HistoryResponse lists persisted chat messages, oldest first.
type HistoryResponse struct {
	RoomID   string                `json:"roomId"`
	Messages []proto.EventChatData `json:"messages"`
}

// Presence handles the live presence query.
// GET /api/rooms/:roomId/presence
func (h *RoomHandlers) Presence(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomId"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "roomId is required"})
		return
	}

	p, err := h.presence.RoomPresence(c.Request.Context(), roomID)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("failed to query presence")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence unavailable"})
		return
	}

	members := make([]proto.Member, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, memberFromView(m))
	}
	c.JSON(http.StatusOK, PresenceResponse{
		RoomID:       p.RoomID,
		CurrentUsers: p.Occupancy.Current,
		MaxUsers:     p.Occupancy.Max,
		Members:      members,
		Voice:        p.Voice,
	})
}

// Messages handles the chat history query.
// GET /api/rooms/:roomId/messages?limit=N
func (h *RoomHandlers) Messages(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomId"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "roomId is required"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	msgs, err := h.messages.ListChatMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	caller := c.GetString(ContextKeyUserID)
	out := make([]proto.EventChatData, 0, len(msgs))
	for _, m := range msgs {
		if !visibleTo(m, caller) {
			continue
		}
		out = append(out, proto.EventChatData{
			ID:           m.ID,
			RoomID:       m.RoomID,
			UserID:       m.SenderID,
			Username:     m.SenderName,
			Type:         string(m.Type),
			Message:      m.Content,
			TargetUserID: m.TargetUserID,
			Recipients:   m.Recipients,
			Timestamp:    m.Timestamp.UnixMilli(),
		})
	}
	c.JSON(http.StatusOK, HistoryResponse{RoomID: roomID, Messages: out})
}

// visibleTo hides targeted messages from callers outside their delivery
// set. Anonymous callers only see global chat.
func visibleTo(m *store.ChatMessage, userID string) bool {
	if m.Type == store.ChatGlobal {
		return true
	}
	if userID == "" {
		return false
	}
	return m.SenderID == userID || slices.Contains(m.Recipients, userID)
}
