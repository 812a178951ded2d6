// Package ratelimit implements sliding-window hit counters keyed by
// (action, room, user).
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Decision is the outcome of a single hit.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 when denied.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter records a hit for key and reports whether it fits the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Key joins the limiter dimensions as action:room:user.
func Key(action, roomID, userID string) string {
	return strings.Join([]string{action, roomID, userID}, ":")
}

// Unlimited allows every hit. Used when a limit is disabled.
type Unlimited struct{}

// Allow always allows.
func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
