// Package server defines the JSON event types exchanged with clients. Each
// websocket text frame carries exactly one event; the Type field selects the
// variant and the remaining fields depend on it.
package server

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Inbound event type names.
const (
	EventSetUsername = "set_username"
	EventCreateRoom  = "create_room"
	EventListRooms   = "list_rooms"
	EventJoinRoom    = "join_room"
	EventChatMessage = "chat_message"
	EventLeaveRoom   = "leave_room"
)

// ClientEvent is the envelope for every inbound client event. Unused fields
// are left empty by the sender.
type ClientEvent struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	RoomName string `json:"roomName,omitempty"`
	Text     string `json:"text,omitempty"`
}

// SystemUser is the author name attached to server-generated notices.
const SystemUser = "System"

// ErrorEvent reports a failed request back to the offending session only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AuthEvent reports the outcome of an identity-binding attempt.
type AuthEvent struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// JoinedRoomEvent confirms a successful join to the joining session.
type JoinedRoomEvent struct {
	Type     string `json:"type"`
	RoomName string `json:"roomName"`
	IsHost   bool   `json:"isHost"`
}

// RoomStatusEvent carries the current visibility flag of a room.
type RoomStatusEvent struct {
	Type      string `json:"type"`
	IsPrivate bool   `json:"isPrivate"`
}

// MessageEvent is a chat message or system notice delivered to room members.
type MessageEvent struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	Text      string `json:"text"`
	IsHostMsg bool   `json:"isHostMsg"`
}

// RoomSummary is one entry of the public room list.
type RoomSummary struct {
	Name      string `json:"name"`
	UserCount int    `json:"userCount"`
}

// RoomListEvent is the public room list snapshot, sent to a single caller on
// request and broadcast to every connection after state changes.
type RoomListEvent struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

func errorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message}
}

func authEvent(success bool, message string) AuthEvent {
	return AuthEvent{Type: "auth", Success: success, Message: message}
}

func joinedRoomEvent(roomName string, isHost bool) JoinedRoomEvent {
	return JoinedRoomEvent{Type: "joined_room", RoomName: roomName, IsHost: isHost}
}

func roomStatusEvent(isPrivate bool) RoomStatusEvent {
	return RoomStatusEvent{Type: "room_status", IsPrivate: isPrivate}
}

func messageEvent(user, text string, isHostMsg bool) MessageEvent {
	return MessageEvent{Type: "message", User: user, Text: text, IsHostMsg: isHostMsg}
}

func systemNotice(text string) MessageEvent {
	return messageEvent(SystemUser, text, false)
}

func roomListEvent(rooms []RoomSummary) RoomListEvent {
	if rooms == nil {
		rooms = []RoomSummary{}
	}
	return RoomListEvent{Type: "room_list", Rooms: rooms}
}

// encodeEvent marshals an outbound event. The event structs above cannot fail
// to marshal; a failure indicates a programming error and is logged and
// swallowed so one bad payload never takes a session down.
func encodeEvent(log zerolog.Logger, v any) ([]byte, bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Type("event", v).Msg("failed to encode outbound event")
		return nil, false
	}
	return payload, true
}
