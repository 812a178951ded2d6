package http

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/vovakirdan/plaza-server/internal/core"
	"github.com/vovakirdan/plaza-server/internal/proto"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func decode(data json.RawMessage, v any) *proto.Error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return badRequest("data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("malformed payload: " + err.Error())
	}
	return nil
}

// inboundToCommand maps a wire message to a core command. Malformed
// payloads are rejected here and never reach the hub.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if perr := decode(inbound.Data, &join); perr != nil {
			return nil, perr
		}
		if join.RoomID == "" {
			return nil, badRequest("roomId is required")
		}
		cmd := &core.JoinCommand{
			UserID:       join.UserID,
			Username:     join.Username,
			RoomID:       join.RoomID,
			Avatar:       join.Avatar,
			AvatarConfig: join.AvatarConfig,
		}
		if join.Position != nil {
			cmd.Position = &core.Position{X: join.Position.X, Y: join.Position.Y}
		}
		return &core.Command{Kind: core.CommandJoin, Join: cmd}, nil

	case proto.InboundTypeMove:
		var move proto.MoveData
		if perr := decode(inbound.Data, &move); perr != nil {
			return nil, perr
		}
		var pos core.Position
		switch {
		case move.Position != nil:
			pos = core.Position{X: move.Position.X, Y: move.Position.Y}
		case move.X != nil && move.Y != nil:
			pos = core.Position{X: *move.X, Y: *move.Y}
		default:
			return nil, badRequest("position is required")
		}
		return &core.Command{Kind: core.CommandMove, Move: &core.MoveCommand{Position: pos, Direction: move.Direction}}, nil

	case proto.InboundTypeChat:
		var chat proto.ChatData
		if perr := decode(inbound.Data, &chat); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandChat, Chat: &core.ChatCommand{
			Type:         core.ChatType(chat.Type),
			Text:         chat.Message,
			TargetUserID: chat.TargetUserID,
		}}, nil

	case proto.InboundTypeReaction:
		var r proto.ReactionData
		if perr := decode(inbound.Data, &r); perr != nil {
			return nil, perr
		}
		cmd := &core.ReactionCommand{Reaction: r.Reaction}
		if r.Timestamp > 0 {
			cmd.Timestamp = time.UnixMilli(r.Timestamp)
		}
		return &core.Command{Kind: core.CommandReaction, Reaction: cmd}, nil

	case proto.InboundTypeJoinVoice, proto.InboundTypeLeaveVoice:
		var v proto.VoiceData
		if perr := decode(inbound.Data, &v); perr != nil {
			return nil, perr
		}
		kind := core.CommandJoinVoice
		if inbound.Type == proto.InboundTypeLeaveVoice {
			kind = core.CommandLeaveVoice
		}
		return &core.Command{Kind: kind, Voice: &core.VoiceCommand{ChannelID: v.ChannelID}}, nil

	case proto.InboundTypeKick:
		var k proto.KickData
		if perr := decode(inbound.Data, &k); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandKick, Kick: &core.KickCommand{TargetUserID: k.TargetUserID}}, nil

	case proto.InboundTypeOffer, proto.InboundTypeAnswer, proto.InboundTypeICECandidate:
		var s proto.SignalData
		if perr := decode(inbound.Data, &s); perr != nil {
			return nil, perr
		}
		kind := signalKinds[inbound.Type]
		if err := validateSignal(kind, s.Payload); err != nil {
			return nil, badRequest(err.Error())
		}
		return &core.Command{Kind: core.CommandSignal, Signal: &core.SignalCommand{
			Kind:         kind,
			TargetUserID: s.TargetUserID,
			Payload:      s.Payload,
		}}, nil

	default:
		return nil, badRequest("unknown message type " + inbound.Type)
	}
}

var signalKinds = map[string]core.SignalKind{
	proto.InboundTypeOffer:        core.SignalOffer,
	proto.InboundTypeAnswer:       core.SignalAnswer,
	proto.InboundTypeICECandidate: core.SignalICECandidate,
}

var signalEvents = map[core.SignalKind]string{
	core.SignalOffer:        proto.InboundTypeOffer,
	core.SignalAnswer:       proto.InboundTypeAnswer,
	core.SignalICECandidate: proto.InboundTypeICECandidate,
}

func memberFromView(m core.MemberView) proto.Member {
	return proto.Member{
		UserID:       m.UserID,
		Username:     m.Username,
		Avatar:       m.Avatar,
		AvatarConfig: m.AvatarConfig,
		Role:         m.Role,
		Status:       string(m.Status),
		Position:     proto.Position{X: m.Position.X, Y: m.Position.Y},
		Direction:    m.Direction,
	}
}

func event(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

// withCode attaches the rejection code carried by capacity events.
func withCode(out proto.Outbound, err *core.CoreError) proto.Outbound {
	if err != nil {
		out.Error = &proto.Error{Code: err.Code, Msg: err.Message}
	}
	return out
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventMemberJoined:
		return event(proto.EventMemberJoined, proto.EventMemberJoinedData{RoomID: ev.Room, Member: memberFromView(*ev.Member)})

	case core.EventMemberLeft:
		return event(proto.EventMemberLeft, proto.EventMemberLeftData{
			RoomID:    ev.Room,
			UserID:    ev.Member.UserID,
			Username:  ev.Member.Username,
			Timestamp: time.Now().UnixMilli(),
		})

	case core.EventRosterSnapshot:
		members := make([]proto.Member, 0, len(ev.Roster))
		for _, m := range ev.Roster {
			members = append(members, memberFromView(m))
		}
		return event(proto.EventRosterSnapshot, proto.EventRosterData{RoomID: ev.Room, Members: members})

	case core.EventAdminChanged:
		return event(proto.EventAdminChanged, proto.EventAdminChangedData{RoomID: ev.Room, NewAdminUserID: ev.AdminUserID})

	case core.EventRoomFull, core.EventRoomInfo:
		name := proto.EventRoomInfo
		if ev.Kind == core.EventRoomFull {
			name = proto.EventRoomFull
		}
		return withCode(event(name, proto.EventOccupancyData{
			RoomID:       ev.Room,
			CurrentUsers: ev.Occupancy.Current,
			MaxUsers:     ev.Occupancy.Max,
		}), ev.Error)

	case core.EventPositionBatch:
		players := make([]proto.PlayerPosition, 0, len(ev.Positions))
		for _, p := range ev.Positions {
			players = append(players, proto.PlayerPosition{
				UserID:       p.UserID,
				Username:     p.Username,
				Avatar:       p.Avatar,
				AvatarConfig: p.AvatarConfig,
				Position:     proto.Position{X: p.Position.X, Y: p.Position.Y},
				Direction:    p.Direction,
			})
		}
		return event(proto.EventPositionBatch, proto.EventPositionBatchData{RoomID: ev.Room, Players: players})

	case core.EventChat:
		m := ev.Chat
		return event(proto.EventChat, proto.EventChatData{
			ID:           m.ID,
			RoomID:       m.RoomID,
			UserID:       m.SenderID,
			Username:     m.SenderName,
			Type:         string(m.Type),
			Message:      m.Text,
			TargetUserID: m.TargetUserID,
			Timestamp:    m.CreatedAt.UnixMilli(),
		})

	case core.EventReaction:
		return event(proto.EventReaction, proto.EventReactionData{
			UserID:    ev.Reaction.UserID,
			Reaction:  ev.Reaction.Reaction,
			Timestamp: ev.Reaction.Timestamp.UnixMilli(),
		})

	case core.EventVoiceRoster:
		data := proto.EventVoiceRosterData{ChannelID: ev.Voice.ChannelID, Users: ev.Voice.Users}
		if data.Users == nil {
			data.Users = []string{}
		}
		if j := ev.Voice.Join; j != nil {
			data.Call = &proto.CallJoin{URL: j.URL, Token: j.Token, RoomName: j.RoomName, Identity: j.Identity}
		}
		return event(proto.EventVoiceRoster, data)

	case core.EventVoiceChannelFull:
		return withCode(event(proto.EventVoiceChannelFull, proto.EventVoiceChannelFullData{
			ChannelID: ev.Voice.ChannelID,
			MaxUsers:  ev.Voice.MaxUsers,
			Message:   "voice channel is full",
		}), ev.Error)

	case core.EventKicked:
		return event(proto.EventKicked, proto.EventKickedData{
			RoomID:   ev.Kicked.RoomID,
			ByUserID: ev.Kicked.ByUserID,
			Message:  "you were removed from the room by an admin",
		})

	case core.EventSignal:
		return event(signalEvents[ev.Signal.Kind], proto.EventSignalData{
			FromUserID: ev.Signal.FromUserID,
			Payload:    ev.Signal.Payload,
		})

	case core.EventError:
		if ev.Error == nil {
			return errorOutbound(&proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"})
		}
		return errorOutbound(&proto.Error{Code: ev.Error.Code, Msg: ev.Error.Message})

	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func errorOutbound(e *proto.Error) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, Event: proto.EventAppError, Error: e}
}
