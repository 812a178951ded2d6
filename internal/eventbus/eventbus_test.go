package eventbus

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		roomID string
		kind   Kind
		want   string
	}{
		{"lobby", MemberJoined, "plaza.room.lobby.member_joined"},
		{"a.b", ChatPosted, "plaza.room.a_b.chat"},
		{"x *>", MemberKicked, "plaza.room.x___.member_kicked"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject("plaza", Event{Kind: tt.kind, RoomID: tt.roomID}))
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Kind: MemberLeft}))
	assert.NoError(t, p.Close())
}

func TestNATSPublish(t *testing.T) {
	url := os.Getenv("PLAZA_TEST_NATS_URL")
	if url == "" {
		t.Skip("PLAZA_TEST_NATS_URL not set")
	}

	pub, err := Connect(url, "plaza-test", nil)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("plaza-test.room.r1.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	ev := Event{Kind: ChatPosted, RoomID: "r1", UserID: "u1", Timestamp: time.Now().UTC()}
	require.NoError(t, pub.Publish(context.Background(), ev))

	select {
	case msg := <-msgs:
		assert.Equal(t, "plaza-test.room.r1.chat", msg.Subject)
		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "u1", got.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}
