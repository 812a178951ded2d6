package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/plaza-server/internal/store"
)

// journal persists chat messages off the event loop. Writes are best
// effort: a full queue or a store error is logged and the message is lost.
type journal struct {
	st      store.MessageStore
	queue   chan *store.ChatMessage
	timeout time.Duration
	log     *zerolog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newJournal(st store.MessageStore, size int, timeout time.Duration, logger *zerolog.Logger) *journal {
	return &journal{
		st:      st,
		queue:   make(chan *store.ChatMessage, size),
		timeout: timeout,
		log:     logger,
	}
}

func (j *journal) start() {
	j.startOnce.Do(func() {
		j.wg.Add(1)
		go j.run()
	})
}

func (j *journal) run() {
	defer j.wg.Done()
	for msg := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		if err := j.st.InsertChatMessage(ctx, msg); err != nil {
			j.log.Warn().Err(err).Str("room", msg.RoomID).Str("message_id", msg.ID).Msg("persist chat message")
		}
		cancel()
	}
}

// enqueue must only be called from the hub goroutine before close.
func (j *journal) enqueue(msg *ChatMessage) {
	rec := &store.ChatMessage{
		ID:           msg.ID,
		RoomID:       msg.RoomID,
		SenderID:     msg.SenderID,
		SenderName:   msg.SenderName,
		Type:         store.ChatType(msg.Type),
		Content:      msg.Text,
		TargetUserID: msg.TargetUserID,
		Recipients:   append([]string(nil), msg.Recipients...),
		Timestamp:    msg.CreatedAt,
	}
	select {
	case j.queue <- rec:
	default:
		j.log.Warn().Str("room", msg.RoomID).Str("message_id", msg.ID).Msg("chat journal full, message dropped")
	}
}

// close drains pending writes and waits for the worker.
func (j *journal) close() {
	j.closeOnce.Do(func() {
		close(j.queue)
		j.start()
		j.wg.Wait()
	})
}
