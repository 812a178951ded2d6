package core

import "sync"

// Client is one transport session as seen by the core layer.
type Client struct {
	ID string
	// UserID is the verified identity of the session; empty when auth is disabled.
	UserID   string
	Name     string
	Commands chan *Command
	Events   chan *Event

	closeCommands sync.Once
	terminate     sync.Once
	done          chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, userID, name string) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 64),
		done:     make(chan struct{}),
	}
}

// Done is closed when the core ends the session, e.g. on kick.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// deliver sends without blocking; slow consumers drop events.
func (c *Client) deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// deliverTerminal queues the last event of a session and ends it. A full
// buffer gives up its oldest event so the terminal one is never lost.
func (c *Client) deliverTerminal(ev *Event) {
	for !c.deliver(ev) {
		select {
		case <-c.Events:
		default:
		}
	}
	c.end()
}

func (c *Client) end() {
	c.terminate.Do(func() { close(c.done) })
}
