package http

import (
	"time"

	"github.com/vovakirdan/plaza-server/internal/ratelimit"
)

// floodGuard caps inbound frames per connection over a one-second window.
type floodGuard struct {
	window *ratelimit.SlidingWindow
}

func newFloodGuard(perSecond int) *floodGuard {
	if perSecond <= 0 {
		return &floodGuard{}
	}
	return &floodGuard{window: ratelimit.NewSlidingWindow(perSecond, time.Second, nil)}
}

func (g *floodGuard) allow() bool {
	return g.window.AllowNow("inbound")
}
