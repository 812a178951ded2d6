package core

// startBroadcaster runs the periodic position snapshot for rm unless it is
// already running. Ticks are posted into the inbox, so snapshots never
// interleave with handlers.
func (h *Hub) startBroadcaster(rm *room) {
	if rm.stop != nil {
		return
	}
	stop := make(chan struct{})
	rm.stop = stop
	ticker := h.clock.Ticker(h.opts.BroadcastInterval)
	roomID := rm.id

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !h.post(envelope{fn: func() { h.positionTick(roomID, stop) }}) {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

func (h *Hub) positionTick(roomID string, stop chan struct{}) {
	rm, ok := h.rooms[roomID]
	if !ok || rm.stop != stop {
		return // stale tick from a stopped broadcaster
	}

	batch := h.positions(roomID)
	if len(batch) == 0 {
		h.closeRoom(roomID)
		return
	}
	h.broadcast(roomID, &Event{Kind: EventPositionBatch, Room: roomID, Positions: batch})
}

func (h *Hub) positions(roomID string) []PositionView {
	conns := h.registry.Connections(roomID)
	batch := make([]PositionView, 0, len(conns))
	for _, conn := range conns {
		batch = append(batch, PositionView{
			UserID:       conn.UserID,
			Username:     conn.Username,
			Avatar:       conn.Avatar,
			AvatarConfig: conn.AvatarConfig,
			Position:     conn.Position,
			Direction:    conn.Direction,
		})
	}
	return batch
}

// move only updates registry state; the broadcaster publishes it.
func (h *Hub) move(conn *Connection, m *MoveCommand) {
	if !m.Position.Valid() {
		return
	}
	conn.Position = m.Position
	conn.Direction = m.Direction
}
