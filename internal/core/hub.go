package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/plaza-server/internal/callengine"
	"github.com/vovakirdan/plaza-server/internal/eventbus"
	applog "github.com/vovakirdan/plaza-server/internal/log"
	"github.com/vovakirdan/plaza-server/internal/ratelimit"
	"github.com/vovakirdan/plaza-server/internal/store"
)

// ErrHubStopped is returned by queries once Run has exited.
var ErrHubStopped = errors.New("hub stopped")

// Options configures the hub. Non-positive numbers and nil dependencies
// fall back to DefaultOptions.
type Options struct {
	Logger *zerolog.Logger
	Clock  clock.Clock

	GracePeriod       time.Duration
	BroadcastInterval time.Duration
	DefaultCapacity   int
	NearbyRadius      float64
	VoiceCapacity     int
	Spawn             Position
	StoreTimeout      time.Duration
	JournalSize       int

	VoiceLimiter ratelimit.Limiter
	ChatLimiter  ratelimit.Limiter
	Publisher    eventbus.Publisher
	// Calls issues media credentials for voice channels; nil disables them.
	Calls callengine.Engine
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		GracePeriod:       5 * time.Second,
		BroadcastInterval: 500 * time.Millisecond,
		DefaultCapacity:   20,
		NearbyRadius:      200,
		VoiceCapacity:     20,
		Spawn:             Position{X: 100, Y: 100},
		StoreTimeout:      3 * time.Second,
		JournalSize:       1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = d.GracePeriod
	}
	if o.BroadcastInterval <= 0 {
		o.BroadcastInterval = d.BroadcastInterval
	}
	if o.DefaultCapacity <= 0 {
		o.DefaultCapacity = d.DefaultCapacity
	}
	if o.NearbyRadius <= 0 {
		o.NearbyRadius = d.NearbyRadius
	}
	if o.VoiceCapacity <= 0 {
		o.VoiceCapacity = d.VoiceCapacity
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.JournalSize <= 0 {
		o.JournalSize = d.JournalSize
	}
	if o.VoiceLimiter == nil {
		o.VoiceLimiter = ratelimit.NewSlidingWindow(20, 10*time.Second, o.Clock)
	}
	if o.ChatLimiter == nil {
		o.ChatLimiter = ratelimit.NewSlidingWindow(30, 10*time.Second, o.Clock)
	}
	if o.Publisher == nil {
		o.Publisher = eventbus.Nop{}
	}
	return o
}

// envelope is one unit of work for the event loop: a client command,
// a disconnect, or a closure posted by a timer or query.
type envelope struct {
	client     *Client
	cmd        *Command
	disconnect bool
	fn         func()
}

// Hub owns all presence state. Every mutation runs on the Run goroutine,
// one envelope at a time.
type Hub struct {
	store store.Store
	opts  Options
	log   *zerolog.Logger
	clock clock.Clock

	inbox chan envelope
	done  chan struct{}
	ctx   context.Context

	clients  map[string]*Client
	registry *Registry
	rooms    map[string]*room
	graces   map[userKey]*graceTimer
	graceGen uint64
	voice    *voiceChannels
	journal  *journal
}

// NewHub creates a hub backed by st.
func NewHub(st store.Store, opts Options) *Hub {
	opts = opts.withDefaults()
	logger := applog.Module(opts.Logger, "core.hub")
	return &Hub{
		store:    st,
		opts:     opts,
		log:      logger,
		clock:    opts.Clock,
		inbox:    make(chan envelope, 256),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		clients:  make(map[string]*Client),
		registry: NewRegistry(),
		rooms:    make(map[string]*room),
		graces:   make(map[userKey]*graceTimer),
		voice:    newVoiceChannels(),
		journal:  newJournal(st, opts.JournalSize, opts.StoreTimeout, applog.Module(opts.Logger, "core.journal")),
	}
}

// Run processes the inbox until ctx is cancelled, then stops timers and
// flushes the chat journal.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	h.journal.start()
	defer h.shutdown()

	h.log.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.inbox:
			h.dispatch(env)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for key, g := range h.graces {
		g.timer.Stop()
		delete(h.graces, key)
	}
	for id, rm := range h.rooms {
		rm.stopBroadcaster()
		delete(h.rooms, id)
	}
	h.journal.close()
	h.log.Info().Msg("hub stopped")
}

// RegisterClient attaches a transport session. Commands sent on
// c.Commands are processed in order until UnregisterClient.
func (h *Hub) RegisterClient(c *Client) {
	if !h.post(envelope{fn: func() { h.clients[c.ID] = c }}) {
		return
	}
	go h.pump(c)
}

// UnregisterClient ends the session; it is processed as a disconnect after
// every command already sent. The caller must stop sending on c.Commands.
func (h *Hub) UnregisterClient(c *Client) {
	c.closeCommands.Do(func() { close(c.Commands) })
}

func (h *Hub) pump(c *Client) {
	for cmd := range c.Commands {
		if !h.post(envelope{client: c, cmd: cmd}) {
			return
		}
	}
	h.post(envelope{client: c, disconnect: true})
}

func (h *Hub) post(env envelope) bool {
	select {
	case h.inbox <- env:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) dispatch(env envelope) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			if env.client != nil && env.cmd != nil {
				env.client.deliver(errorEvent("", coreError(ErrCodeInternal, "internal error")))
			}
		}
	}()

	switch {
	case env.fn != nil:
		env.fn()
	case env.disconnect:
		h.handleDisconnect(env.client)
	case env.cmd != nil:
		h.handleCommand(env.client, env.cmd)
	}
}

func (h *Hub) handleCommand(c *Client, cmd *Command) {
	if !cmd.payloadSet() {
		h.reject(c, "", coreError(ErrCodeBadRequest, "missing command payload"))
		return
	}
	if cmd.Kind == CommandJoin {
		h.join(c, cmd.Join)
		return
	}

	conn := h.registry.Get(c.ID)
	if conn == nil {
		if cmd.Kind != CommandMove {
			h.reject(c, "", coreError(ErrCodeNotJoined, "join a room first"))
		}
		return
	}

	switch cmd.Kind {
	case CommandMove:
		h.move(conn, cmd.Move)
	case CommandChat:
		h.chat(conn, cmd.Chat)
	case CommandReaction:
		h.react(conn, cmd.Reaction)
	case CommandJoinVoice:
		h.joinVoice(conn, cmd.Voice)
	case CommandLeaveVoice:
		h.leaveVoice(conn, cmd.Voice)
	case CommandKick:
		h.kick(conn, cmd.Kick)
	case CommandSignal:
		h.relay(conn, cmd.Signal)
	default:
		h.reject(c, conn.RoomID, coreError(ErrCodeBadRequest, fmt.Sprintf("unknown command %d", cmd.Kind)))
	}
}

func (h *Hub) handleDisconnect(c *Client) {
	delete(h.clients, c.ID)
	if conn := h.registry.Get(c.ID); conn != nil {
		h.detach(conn)
	}
}

func (h *Hub) reject(c *Client, roomID string, err *CoreError) {
	h.log.Debug().
		Str("client_id", c.ID).
		Str("room", roomID).
		Str("code", err.Code).
		Msg(err.Message)
	c.deliver(errorEvent(roomID, err))
}

// storeCtx bounds a single store call.
func (h *Hub) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, h.opts.StoreTimeout)
}

func (h *Hub) publish(kind eventbus.Kind, roomID, userID string, data any) {
	ctx, cancel := h.storeCtx()
	defer cancel()
	ev := eventbus.Event{Kind: kind, RoomID: roomID, UserID: userID, Timestamp: h.clock.Now().UTC(), Data: data}
	if err := h.opts.Publisher.Publish(ctx, ev); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Str("kind", string(kind)).Msg("publish domain event")
	}
}

// RoomPresence is a point-in-time view of a room's live state.
type RoomPresence struct {
	RoomID    string
	Occupancy Occupancy
	Members   []MemberView
	Voice     map[string][]string
}

// RoomPresence queries the live state of roomID through the event loop.
func (h *Hub) RoomPresence(ctx context.Context, roomID string) (RoomPresence, error) {
	res := make(chan RoomPresence, 1)
	env := envelope{fn: func() { res <- h.presenceSnapshot(roomID) }}

	select {
	case h.inbox <- env:
	case <-h.done:
		return RoomPresence{}, ErrHubStopped
	case <-ctx.Done():
		return RoomPresence{}, ctx.Err()
	}

	select {
	case p := <-res:
		return p, nil
	case <-h.done:
		return RoomPresence{}, ErrHubStopped
	case <-ctx.Done():
		return RoomPresence{}, ctx.Err()
	}
}

func (h *Hub) presenceSnapshot(roomID string) RoomPresence {
	p := RoomPresence{
		RoomID:    roomID,
		Occupancy: Occupancy{Current: h.registry.Count(roomID), Max: h.opts.DefaultCapacity},
		Members:   []MemberView{},
		Voice:     h.voice.roomChannels(roomID),
	}
	if rm := h.rooms[roomID]; rm != nil {
		p.Occupancy.Max = rm.capacity
	}
	for _, conn := range h.registry.Connections(roomID) {
		p.Members = append(p.Members, liveView(conn))
	}
	return p
}
