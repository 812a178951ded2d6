package core

import "strings"

// relay forwards a signaling payload to the target's connection in the
// sender's room. Unknown or self targets are dropped.
func (h *Hub) relay(conn *Connection, cmd *SignalCommand) {
	target := strings.TrimSpace(cmd.TargetUserID)
	if target == "" || target == conn.UserID {
		return
	}
	peer := h.registry.FindUser(conn.RoomID, target)
	if peer == nil {
		h.log.Debug().Str("room", conn.RoomID).Str("target", target).Str("kind", string(cmd.Kind)).Msg("signal target absent")
		return
	}
	peer.Client.deliver(&Event{
		Kind: EventSignal,
		Room: conn.RoomID,
		Signal: &SignalView{
			Kind:       cmd.Kind,
			FromUserID: conn.UserID,
			Payload:    cmd.Payload,
		},
	})
}
