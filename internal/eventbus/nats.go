package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATS publishes events on core NATS subjects.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials the NATS server at url.
func Connect(url, prefix string, logger *zerolog.Logger) (*NATS, error) {
	if prefix == "" {
		prefix = "plaza"
	}
	conn, err := nats.Connect(url,
		nats.Name("plaza-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if logger != nil && err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if logger != nil {
				logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn, prefix: prefix}, nil
}

// Publish encodes ev as JSON. Delivery is buffered by the client.
func (n *NATS) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.conn.Publish(Subject(n.prefix, ev), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
