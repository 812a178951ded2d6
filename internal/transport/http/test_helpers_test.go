package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/plaza-server/internal/auth"
	"github.com/vovakirdan/plaza-server/internal/config"
	"github.com/vovakirdan/plaza-server/internal/core"
	"github.com/vovakirdan/plaza-server/internal/proto"
	"github.com/vovakirdan/plaza-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	jwt *auth.JWTConfig
}

// startTestServer runs a hub over an in-memory SQLite store. withAuth
// enables JWT verification.
func startTestServer(t *testing.T, withAuth bool) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	opts := core.DefaultOptions()
	opts.Logger = &logger
	hub := core.NewHub(st, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	cfg := config.Default()
	cfg.Addr = ":0"

	jwtCfg := &auth.JWTConfig{Secret: []byte(testSecret), Issuer: "test", Audience: "test", TTL: time.Hour}
	var verifier *auth.Verifier
	if withAuth {
		verifier = auth.NewVerifier(jwtCfg)
	}

	server := NewServer(hub, st, verifier, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &testServer{Server: ts, jwt: jwtCfg}
}

func (ts *testServer) wsURL(query string) string {
	u := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func (ts *testServer) token(t *testing.T, userID, username string) string {
	t.Helper()
	tok, err := auth.GenerateToken(ts.jwt, userID, username)
	require.NoError(t, err)
	return tok
}

func dial(ctx context.Context, t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}))
}

// wireMessage is an outbound envelope with the data left raw.
type wireMessage struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readUntil reads until a message with the given event name arrives.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) wireMessage {
	t.Helper()
	for {
		var msg wireMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg), "waiting for %s", event)
		if msg.Event == event {
			return msg
		}
	}
}

func join(ctx context.Context, t *testing.T, conn *websocket.Conn, userID, username, roomID string) {
	t.Helper()
	send(ctx, t, conn, proto.InboundTypeJoin, proto.JoinData{UserID: userID, Username: username, RoomID: roomID})
	readUntil(ctx, t, conn, proto.EventRoomInfo)
}
