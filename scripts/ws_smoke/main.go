package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/plaza-server/internal/proto"
)

// inbound mirrors proto.Outbound with raw data for decoding per event.
type inbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer token, appended as ?token=")
	userID := flag.String("user-id", "tester", "user id to join with")
	username := flag.String("user", "Tester", "display name")
	room := flag.String("room", "plaza", "room id")
	text := flag.String("text", "hello from smoke test", "global chat message to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := *addr
	if *token != "" {
		url += "?token=" + *token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: data}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeJoin, proto.JoinData{UserID: *userID, Username: *username, RoomID: *room}); err != nil {
		return err
	}

	sent := false
	for {
		var msg inbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if msg.Error != nil {
			fmt.Printf("error: code=%s msg=%q\n", msg.Error.Code, msg.Error.Msg)
			continue
		}

		switch msg.Event {
		case proto.EventMemberJoined:
			var evt proto.EventMemberJoinedData
			if err := json.Unmarshal(msg.Data, &evt); err == nil {
				fmt.Printf("joined: room=%s user=%s role=%s\n", evt.RoomID, evt.UserID, evt.Role)
			}
		case proto.EventMemberLeft:
			var evt proto.EventMemberLeftData
			if err := json.Unmarshal(msg.Data, &evt); err == nil {
				fmt.Printf("left: room=%s user=%s\n", evt.RoomID, evt.UserID)
			}
		case proto.EventRoomInfo:
			var evt proto.EventOccupancyData
			if err := json.Unmarshal(msg.Data, &evt); err == nil {
				fmt.Printf("room: %s %d/%d\n", evt.RoomID, evt.CurrentUsers, evt.MaxUsers)
			}
			if !sent {
				if err := send(proto.InboundTypeChat, proto.ChatData{Type: "global", Message: *text}); err != nil {
					return err
				}
				sent = true
			}
		case proto.EventChat:
			var evt proto.EventChatData
			if err := json.Unmarshal(msg.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal chat: %w", err)
			}
			fmt.Printf("chat: room=%s user=%s type=%s text=%q ts=%d\n", evt.RoomID, evt.Username, evt.Type, evt.Message, evt.Timestamp)
			if evt.UserID == *userID {
				return nil
			}
		case proto.EventPositionBatch:
			// high volume; skip
		default:
			fmt.Printf("event: %s %s\n", msg.Event, string(msg.Data))
		}
	}
}
