package server

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

// newTestHub builds a hub with pinned notice phrasing and a gateway with
// authentication disabled.
func newTestHub() (*Hub, *Gateway) {
	h := NewHub(zerolog.Nop())
	h.SetNoticeFuncs(
		func(u string) string { return u + " joined the room." },
		func(u string) string { return u + " left the room." },
	)
	g := NewGateway(h, nil, false, zerolog.Nop())
	return h, g
}

// connect registers a pump-less client and binds an identity. Events are
// read straight off the send channel, so no sockets are involved.
func connect(t *testing.T, h *Hub, g *Gateway, username string) *Client {
	t.Helper()
	c := NewClient(nil, h, g, "test-"+username, DefaultConfig(), zerolog.Nop())
	h.mu.Lock()
	h.sessions.register(c)
	h.mu.Unlock()
	if username != "" {
		send(t, g, c, ClientEvent{Type: EventSetUsername, Username: username})
	}
	drain(c)
	return c
}

func send(t *testing.T, g *Gateway, c *Client, ev ClientEvent) {
	t.Helper()
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	g.Dispatch(c, raw)
}

// recvAll decodes every event currently queued for a client.
func recvAll(c *Client) []map[string]any {
	var out []map[string]any
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return out
			}
			var m map[string]any
			if err := json.Unmarshal(payload, &m); err == nil {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func drain(c *Client) {
	recvAll(c)
}

func ofType(events []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, ev := range events {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

func roomByName(h *Hub, name string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.get(name)
}

func TestSetIdentityRules(t *testing.T) {
	h, g := newTestHub()
	c := connect(t, h, g, "alice")

	// Rebinding the same name is a no-op.
	send(t, g, c, ClientEvent{Type: EventSetUsername, Username: "alice"})
	if errs := ofType(recvAll(c), "error"); len(errs) != 0 {
		t.Fatalf("rebinding same username should succeed, got %v", errs)
	}

	// A different name fails.
	send(t, g, c, ClientEvent{Type: EventSetUsername, Username: "bob"})
	errs := ofType(recvAll(c), "error")
	if len(errs) != 1 || errs[0]["message"] != "Username already set" {
		t.Fatalf("expected username conflict error, got %v", errs)
	}
}

func TestCreateRoomJoinsCreatorAsHost(t *testing.T) {
	h, g := newTestHub()
	c := connect(t, h, g, "alice")

	send(t, g, c, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	events := recvAll(c)

	joined := ofType(events, "joined_room")
	if len(joined) != 1 || joined[0]["roomName"] != "lobby" || joined[0]["isHost"] != true {
		t.Fatalf("expected host join confirmation, got %v", joined)
	}
	status := ofType(events, "room_status")
	if len(status) != 1 || status[0]["isPrivate"] != false {
		t.Fatalf("expected public room status, got %v", status)
	}
	lists := ofType(events, "room_list")
	if len(lists) == 0 {
		t.Fatal("expected a room list refresh after create")
	}
	if room := roomByName(h, "lobby"); room == nil || room.Host() != "alice" || room.MemberCount() != 1 {
		t.Fatalf("room state wrong after create: %+v", room)
	}
}

func TestCreateDuplicateRoomFails(t *testing.T) {
	h, g := newTestHub()
	alice := connect(t, h, g, "alice")
	bob := connect(t, h, g, "bob")

	send(t, g, alice, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	drain(alice)

	send(t, g, bob, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	errs := ofType(recvAll(bob), "error")
	if len(errs) != 1 || errs[0]["message"] != "Room already exists" {
		t.Fatalf("expected room conflict error, got %v", errs)
	}

	// Original room is unaffected.
	if room := roomByName(h, "lobby"); room == nil || room.Host() != "alice" || room.MemberCount() != 1 {
		t.Fatalf("original room disturbed by failed create: %+v", room)
	}
}

func TestRequiresUsernameBeforeRooms(t *testing.T) {
	h, g := newTestHub()
	c := connect(t, h, g, "")

	send(t, g, c, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	errs := ofType(recvAll(c), "error")
	if len(errs) != 1 || errs[0]["message"] != "Set username first" {
		t.Fatalf("expected login-required error on create, got %v", errs)
	}

	send(t, g, c, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	errs = ofType(recvAll(c), "error")
	if len(errs) != 1 || errs[0]["message"] != "Set username first" {
		t.Fatalf("expected login-required error on join, got %v", errs)
	}
	if roomByName(h, "lobby") != nil {
		t.Fatal("room must not exist after denied create")
	}
}

func TestJoinLeaveSymmetryAndRoomDeletion(t *testing.T) {
	h, g := newTestHub()
	alice := connect(t, h, g, "alice")
	bob := connect(t, h, g, "bob")

	send(t, g, alice, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, bob, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})

	room := roomByName(h, "lobby")
	if room.MemberCount() != 2 {
		t.Fatalf("expected 2 members, got %d", room.MemberCount())
	}

	send(t, g, bob, ClientEvent{Type: EventLeaveRoom})
	if room.MemberCount() != 1 {
		t.Fatalf("expected 1 member after leave, got %d", room.MemberCount())
	}
	h.mu.Lock()
	bobRoom := h.sessions.get(bob).RoomName()
	h.mu.Unlock()
	if bobRoom != "" {
		t.Fatalf("bob's room reference should be cleared, got %q", bobRoom)
	}

	// Last member departs: the room disappears and the list omits it.
	drain(alice)
	send(t, g, alice, ClientEvent{Type: EventLeaveRoom})
	if roomByName(h, "lobby") != nil {
		t.Fatal("empty room must be deleted")
	}
	lists := ofType(recvAll(alice), "room_list")
	if len(lists) == 0 {
		t.Fatal("expected a refresh after room deletion")
	}
	last := lists[len(lists)-1]
	if rooms, _ := last["rooms"].([]any); len(rooms) != 0 {
		t.Fatalf("deleted room still listed: %v", rooms)
	}
}

func TestRoomSwitchingDepartsOldRoom(t *testing.T) {
	h, g := newTestHub()
	alice := connect(t, h, g, "alice")
	bob := connect(t, h, g, "bob")

	send(t, g, alice, ClientEvent{Type: EventCreateRoom, RoomName: "r1"})
	send(t, g, bob, ClientEvent{Type: EventCreateRoom, RoomName: "r2"})
	send(t, g, bob, ClientEvent{Type: EventJoinRoom, RoomName: "r1"})

	if roomByName(h, "r2") != nil {
		t.Fatal("r2 should be deleted once its only member switched away")
	}
	r1 := roomByName(h, "r1")
	if r1 == nil || r1.MemberCount() != 2 {
		t.Fatalf("expected both sessions in r1, got %+v", r1)
	}
}

func TestDisconnectForcesRoomDeparture(t *testing.T) {
	h, g := newTestHub()
	alice := connect(t, h, g, "alice")
	bob := connect(t, h, g, "bob")

	send(t, g, alice, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, bob, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})

	h.Unregister(bob)
	if roomByName(h, "lobby").MemberCount() != 1 {
		t.Fatal("disconnected session still counted as member")
	}

	// Cleanup is idempotent.
	h.Unregister(bob)

	h.Unregister(alice)
	if roomByName(h, "lobby") != nil {
		t.Fatal("room should be deleted after last member disconnected")
	}
}

func TestReplayOnJoin(t *testing.T) {
	h, g := newTestHub()
	alice := connect(t, h, g, "alice")
	bob := connect(t, h, g, "bob")

	send(t, g, alice, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, alice, ClientEvent{Type: EventChatMessage, Text: "first"})
	send(t, g, alice, ClientEvent{Type: EventChatMessage, Text: "second"})
	send(t, g, alice, ClientEvent{Type: EventChatMessage, Text: "third"})

	send(t, g, bob, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	msgs := ofType(recvAll(bob), "message")

	// Exactly the three prior messages in append order, each tagged with the
	// author's host status, then the join notice.
	if len(msgs) != 4 {
		t.Fatalf("expected 3 replayed messages plus join notice, got %d: %v", len(msgs), msgs)
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i]["text"] != want || msgs[i]["user"] != "alice" || msgs[i]["isHostMsg"] != true {
			t.Fatalf("replay entry %d wrong: %v", i, msgs[i])
		}
	}
	if msgs[3]["user"] != SystemUser || msgs[3]["text"] != "bob joined the room." {
		t.Fatalf("expected join notice last, got %v", msgs[3])
	}
}

func TestBanEnforcement(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")
	user := connect(t, h, g, "U")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, user, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd ban U"})

	room := roomByName(h, "lobby")
	if room.MemberCount() != 1 {
		t.Fatalf("banned user should have been kicked, members=%d", room.MemberCount())
	}
	kicked := ofType(recvAll(user), "message")
	found := false
	for _, m := range kicked {
		if m["text"] == "You were kicked from the room." {
			found = true
		}
	}
	if !found {
		t.Fatalf("banned user never notified of the kick: %v", kicked)
	}

	// Re-joining after the kick fails and does not touch membership.
	drain(user)
	send(t, g, user, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	errs := ofType(recvAll(user), "error")
	if len(errs) != 1 || errs[0]["message"] != "You are banned from this room" {
		t.Fatalf("expected ban rejection, got %v", errs)
	}
	if room.MemberCount() != 1 {
		t.Fatalf("banned user slipped into membership, members=%d", room.MemberCount())
	}
}

func TestMuteUnmuteScenario(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")
	user := connect(t, h, g, "U")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, user, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd mute U"})
	drain(host)
	drain(user)

	// Shadow mute: no broadcast, no log append, no error reply.
	send(t, g, user, ClientEvent{Type: EventChatMessage, Text: "hello"})
	if events := recvAll(user); len(events) != 0 {
		t.Fatalf("muted sender should get silence, got %v", events)
	}
	if events := recvAll(host); len(events) != 0 {
		t.Fatalf("muted message must not broadcast, got %v", events)
	}
	room := roomByName(h, "lobby")
	if room.LogLen() != 0 {
		t.Fatalf("muted message must not be logged, log=%d", room.LogLen())
	}

	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd unmute U"})
	drain(host)
	drain(user)

	send(t, g, user, ClientEvent{Type: EventChatMessage, Text: "hi"})
	msgs := ofType(recvAll(host), "message")
	if len(msgs) != 1 || msgs[0]["user"] != "U" || msgs[0]["text"] != "hi" {
		t.Fatalf("expected broadcast after unmute, got %v", msgs)
	}
	if room.LogLen() != 1 {
		t.Fatalf("expected log length 1 after unmute, got %d", room.LogLen())
	}
}

func TestPrivatePublicScenario(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")
	other := connect(t, h, g, "O")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "r1"})
	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd private"})
	drain(other)

	send(t, g, other, ClientEvent{Type: EventListRooms})
	lists := ofType(recvAll(other), "room_list")
	if len(lists) != 1 {
		t.Fatalf("expected one room list reply, got %d", len(lists))
	}
	if rooms, _ := lists[0]["rooms"].([]any); len(rooms) != 0 {
		t.Fatalf("private room listed publicly: %v", rooms)
	}

	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd public"})
	send(t, g, other, ClientEvent{Type: EventListRooms})
	lists = ofType(recvAll(other), "room_list")
	last := lists[len(lists)-1]
	rooms, _ := last["rooms"].([]any)
	if len(rooms) != 1 {
		t.Fatalf("public room missing from list: %v", rooms)
	}
	entry := rooms[0].(map[string]any)
	if entry["name"] != "r1" || entry["userCount"] != float64(1) {
		t.Fatalf("wrong room summary: %v", entry)
	}
}

func TestShutdownScenario(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")
	user := connect(t, h, g, "U")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "r1"})
	send(t, g, user, ClientEvent{Type: EventJoinRoom, RoomName: "r1"})
	drain(host)
	drain(user)

	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd shutdown"})

	for name, c := range map[string]*Client{"host": host, "user": user} {
		events := recvAll(c)
		notified := false
		for _, m := range ofType(events, "message") {
			if m["text"] == "Room is shutting down." {
				notified = true
			}
		}
		if !notified {
			t.Fatalf("%s never received the shutdown notice: %v", name, events)
		}
		lists := ofType(events, "room_list")
		if len(lists) == 0 {
			t.Fatalf("%s missing the refresh after shutdown", name)
		}
		if rooms, _ := lists[len(lists)-1]["rooms"].([]any); len(rooms) != 0 {
			t.Fatalf("shut-down room still listed for %s: %v", name, rooms)
		}
	}

	if roomByName(h, "r1") != nil {
		t.Fatal("room should not exist after shutdown")
	}
	h.mu.Lock()
	hostRoom := h.sessions.get(host).RoomName()
	userRoom := h.sessions.get(user).RoomName()
	h.mu.Unlock()
	if hostRoom != "" || userRoom != "" {
		t.Fatalf("sessions still reference the dead room: %q %q", hostRoom, userRoom)
	}
}

func TestKickAbsentUser(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	drain(host)

	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd kick ghost"})
	msgs := ofType(recvAll(host), "message")
	if len(msgs) != 1 || msgs[0]["text"] != "ghost is not in the room." {
		t.Fatalf("expected not-found reply, got %v", msgs)
	}
}

func TestNonHostCommandIsPlainChat(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")
	user := connect(t, h, g, "U")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, user, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	drain(host)
	drain(user)

	send(t, g, user, ClientEvent{Type: EventChatMessage, Text: "!cmd mute H"})

	// No authority: the text broadcasts as an ordinary message and H is not
	// muted.
	msgs := ofType(recvAll(host), "message")
	if len(msgs) != 1 || msgs[0]["user"] != "U" || msgs[0]["text"] != "!cmd mute H" {
		t.Fatalf("expected the command text as plain chat, got %v", msgs)
	}
	if roomByName(h, "lobby").isMuted("H") {
		t.Fatal("non-host command must not mutate room state")
	}
	if errs := ofType(recvAll(user), "error"); len(errs) != 0 {
		t.Fatalf("non-host command must not produce an error, got %v", errs)
	}
}

func TestHostAuthorityOutlivesMembership(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")
	user := connect(t, h, g, "U")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, user, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	send(t, g, host, ClientEvent{Type: EventLeaveRoom})

	// The host rejoins and still moderates: authority is the recorded host
	// identity, not membership.
	send(t, g, host, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd mute U"})
	if !roomByName(h, "lobby").isMuted("U") {
		t.Fatal("rejoined host lost moderation authority")
	}
}

func TestClearCommand(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "one"})
	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "two"})
	drain(host)

	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd clear"})
	if got := roomByName(h, "lobby").LogLen(); got != 0 {
		t.Fatalf("expected empty log after clear, got %d", got)
	}
	msgs := ofType(recvAll(host), "message")
	if len(msgs) != 1 || msgs[0]["text"] != "Messages cleared." {
		t.Fatalf("expected clear confirmation, got %v", msgs)
	}
}

func TestUnknownAndMalformedCommands(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")
	user := connect(t, h, g, "U")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, user, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	drain(host)
	drain(user)

	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd explode"})
	errs := ofType(recvAll(host), "error")
	if len(errs) != 1 || errs[0]["message"] != "Unknown command" {
		t.Fatalf("expected unknown-command denial, got %v", errs)
	}

	send(t, g, host, ClientEvent{Type: EventChatMessage, Text: "!cmd mute"})
	errs = ofType(recvAll(host), "error")
	if len(errs) != 1 || errs[0]["message"] != "Missing user argument" {
		t.Fatalf("expected missing-argument denial, got %v", errs)
	}

	// Denials never broadcast.
	if events := recvAll(user); len(events) != 0 {
		t.Fatalf("command failure leaked to other members: %v", events)
	}
}

func TestHelpCommand(t *testing.T) {
	h, g := newTestHub()
	host := connect(t, h, g, "H")
	user := connect(t, h, g, "U")

	send(t, g, host, ClientEvent{Type: EventCreateRoom, RoomName: "lobby"})
	send(t, g, user, ClientEvent{Type: EventJoinRoom, RoomName: "lobby"})
	drain(host)
	drain(user)

	for _, alias := range []string{"!cmd help", "!cmd all"} {
		send(t, g, host, ClientEvent{Type: EventChatMessage, Text: alias})
		msgs := ofType(recvAll(host), "message")
		if len(msgs) != 1 || msgs[0]["text"] != helpText {
			t.Fatalf("expected command list for %q, got %v", alias, msgs)
		}
		if events := recvAll(user); len(events) != 0 {
			t.Fatalf("help reply leaked to the room: %v", events)
		}
	}
}
