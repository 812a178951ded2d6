package core

// room is the hub's runtime state for a room with live members.
type room struct {
	id       string
	capacity int
	stop     chan struct{} // non-nil while the position broadcaster runs
}

// roomState returns the runtime state of roomID, creating it on first use.
func (h *Hub) roomState(roomID string, capacity int) *room {
	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &room{id: roomID}
		h.rooms[roomID] = rm
	}
	rm.capacity = capacity
	return rm
}

// closeRoom stops the broadcaster and forgets the room.
func (h *Hub) closeRoom(roomID string) {
	if rm, ok := h.rooms[roomID]; ok {
		rm.stopBroadcaster()
		delete(h.rooms, roomID)
		h.log.Debug().Str("room", roomID).Msg("room emptied")
	}
}

func (rm *room) stopBroadcaster() {
	if rm.stop != nil {
		close(rm.stop)
		rm.stop = nil
	}
}

// broadcast sends an event to all live connections in the room.
func (h *Hub) broadcast(roomID string, ev *Event) {
	h.broadcastExcept(roomID, "", ev)
}

// broadcastExcept skips the connection with ID except.
func (h *Hub) broadcastExcept(roomID, except string, ev *Event) {
	for _, conn := range h.registry.Connections(roomID) {
		if conn.ID == except {
			continue
		}
		if !conn.Client.deliver(ev) {
			h.log.Debug().Str("client_id", conn.ID).Msg("dropped event for slow consumer")
		}
	}
}

func (h *Hub) broadcastRoomInfo(roomID string) {
	rm, ok := h.rooms[roomID]
	if !ok {
		return
	}
	h.broadcast(roomID, &Event{
		Kind:      EventRoomInfo,
		Room:      roomID,
		Occupancy: &Occupancy{Current: h.registry.Count(roomID), Max: rm.capacity},
	})
}
