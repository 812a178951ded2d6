package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/plaza-server/internal/auth"
	"github.com/vovakirdan/plaza-server/internal/core"
	"github.com/vovakirdan/plaza-server/internal/proto"
)

const writeTimeout = 5 * time.Second

var errSessionEnded = errors.New("session ended by server")

// ClientRegistry attaches transport sessions to the core.
type ClientRegistry interface {
	RegisterClient(c *core.Client)
	UnregisterClient(c *core.Client)
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub        ClientRegistry
	verifier   *auth.Verifier
	maxMessage int64
	perSecond  int
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. A nil verifier accepts
// anonymous connections.
func NewWSHandler(hub ClientRegistry, verifier *auth.Verifier, maxMessage int64, perSecond int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:        hub,
		verifier:   verifier,
		maxMessage: maxMessage,
		perSecond:  perSecond,
		log:        logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	var identity auth.Identity
	if h.verifier != nil {
		id, err := h.verifier.Verify(requestToken(r))
		if err != nil {
			h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws auth rejected")
			stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
			return
		}
		identity = id
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.maxMessage > 0 {
		conn.SetReadLimit(h.maxMessage)
	}

	client := core.NewClient(uuid.NewString(), identity.UserID, identity.Username)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	h.log.Debug().Str("client_id", client.ID).Str("user", identity.UserID).Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	if errors.Is(err, errSessionEnded) {
		// Close first: cancelling a pending read aborts the connection.
		_ = conn.Close(websocket.StatusNormalClosure, "session ended")
		cancel()
		<-errCh
		h.log.Debug().Str("client_id", client.ID).Msg("ws session ended by server")
		return
	}
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = truncateReason(err.Error())
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
	h.log.Debug().Str("client_id", client.ID).Msg("ws disconnected")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	guard := newFloodGuard(h.perSecond)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !guard.allow() {
			if err := h.write(ctx, conn, errorOutbound(&proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages"})); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.log.Debug().Str("client_id", client.ID).Str("type", inbound.Type).Str("msg", protoErr.Msg).Msg("rejected inbound")
			if err := h.write(ctx, conn, errorOutbound(protoErr)); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case ev := <-client.Events:
			if err := h.writeEvent(ctx, conn, client, ev); err != nil {
				return err
			}
		case <-client.Done():
			// Flush what the core queued before ending the session.
			for {
				select {
				case ev := <-client.Events:
					if err := h.writeEvent(ctx, conn, client, ev); err != nil {
						return err
					}
				default:
					return errSessionEnded
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeEvent(ctx context.Context, conn *websocket.Conn, client *core.Client, ev *core.Event) error {
	if err := h.write(ctx, conn, outboundFromEvent(ev)); err != nil {
		h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
		return err
	}
	if ev.Terminal {
		return errSessionEnded
	}
	return nil
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, out)
}

// requestToken reads the token from the query string or a bearer header.
// Browsers cannot set headers on WebSocket upgrades.
func requestToken(r *stdhttp.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	t, _ := bearerToken(r.Header.Get("Authorization"))
	return t
}

// truncateReason keeps close reasons within the 123-byte frame limit.
func truncateReason(s string) string {
	const maxReason = 123
	if len(s) <= maxReason {
		return s
	}
	return s[:maxReason]
}
