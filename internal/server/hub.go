// Package server coordinates session registration, room lifecycle, message
// fanout, and the in-band moderation protocol for the Hearth chat system via
// the Hub type.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthchat/hearth/internal/metrics"
)

// Hub owns the connection registry and the room directory. Every mutation of
// shared state serializes under a single mutex; human-interactive message
// volumes do not justify per-room locking. Delivery is fire-and-forget
// through per-client buffered send channels, so holding the mutex across a
// send can never stall.
type Hub struct {
	mu       sync.Mutex
	sessions *registry
	rooms    *directory

	joinNotice  NoticeFunc
	leaveNotice NoticeFunc

	wg  sync.WaitGroup
	log zerolog.Logger
}

// NewHub creates a Hub with an empty registry and room directory.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions:    newRegistry(),
		rooms:       newDirectory(),
		joinNotice:  randomJoinNotice,
		leaveNotice: randomLeaveNotice,
		log:         logger,
	}
}

// SetNoticeFuncs swaps the join/leave notice formatters. Nil arguments keep
// the current formatter. Call before serving traffic.
func (h *Hub) SetNoticeFuncs(join, leave NoticeFunc) {
	if join != nil {
		h.joinNotice = join
	}
	if leave != nil {
		h.leaveNotice = leave
	}
}

// StartClient registers a connection and launches its read/write pumps.
func (h *Hub) StartClient(c *Client) {
	h.mu.Lock()
	s := h.sessions.register(c)
	total := h.sessions.len()
	h.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	h.log.Info().Str("addr", c.addr).Stringer("session", s.id).Int("total", total).Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// Unregister tears down the session for a connection: forced room departure
// first, then registry removal. Safe to call more than once; cleanup after
// the first call is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	s := h.sessions.unregister(c)
	if s == nil {
		h.mu.Unlock()
		return
	}
	h.leaveLocked(s)
	c.closed = true
	close(c.send)
	total := h.sessions.len()
	h.mu.Unlock()

	metrics.ConnectionsActive.Dec()
	h.log.Info().Str("addr", c.addr).Stringer("session", s.id).Int("total", total).Msg("client unregistered")
}

// SetIdentity binds a username to the connection's session. Rebinding the
// same name succeeds as a no-op; a different name fails with ErrConflict.
func (h *Hub) SetIdentity(c *Client, username string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions.get(c)
	if s == nil {
		return fmt.Errorf("%w: connection not registered", ErrNotFound)
	}
	return h.sessions.setIdentity(s, username)
}

// CreateRoom creates a room hosted by the caller's identity and joins the
// caller to it.
func (h *Hub) CreateRoom(c *Client, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions.get(c)
	if s == nil {
		return fmt.Errorf("%w: connection not registered", ErrNotFound)
	}
	if !s.authenticated() {
		return ErrAuthRequired
	}
	room, err := h.rooms.create(name, s.username)
	if err != nil {
		return err
	}
	metrics.RoomsActive.Inc()
	h.log.Info().Str("room", name).Str("host", s.username).Msg("room created")

	// The creator cannot be banned from a fresh room, so this cannot fail.
	h.joinLocked(s, room)
	return nil
}

// Join adds the caller to an existing room, leaving any previous room first.
func (h *Hub) Join(c *Client, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions.get(c)
	if s == nil {
		return fmt.Errorf("%w: connection not registered", ErrNotFound)
	}
	if !s.authenticated() {
		return ErrAuthRequired
	}
	room := h.rooms.get(name)
	if room == nil {
		return fmt.Errorf("%w: room %q", ErrNotFound, name)
	}
	if room.isBanned(s.username) {
		metrics.JoinsDenied.Inc()
		return fmt.Errorf("%w: banned from %q", ErrForbidden, name)
	}
	h.joinLocked(s, room)
	return nil
}

// joinLocked performs the join side effects in their mandatory order: depart
// the old room, add membership, confirm to the joiner, report visibility,
// replay the log, notify the room, refresh the public list. The ban check
// has already passed.
func (h *Hub) joinLocked(s *Session, room *Room) {
	if s.roomName != "" && s.roomName != room.name {
		h.leaveLocked(s)
	}

	room.members[s] = struct{}{}
	s.roomName = room.name

	h.toSessionLocked(s, joinedRoomEvent(room.name, s.username == room.host))
	h.toSessionLocked(s, roomStatusEvent(room.private))
	for _, msg := range room.log {
		h.toSessionLocked(s, messageEvent(msg.User, msg.Display, msg.User == room.host))
	}
	h.toRoomLocked(room, systemNotice(h.joinNotice(s.username)))
	h.refreshLocked()
}

// Leave removes the caller from its current room. No-op without one.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions.get(c)
	if s == nil || s.roomName == "" {
		return
	}
	h.leaveLocked(s)
}

// leaveLocked is the single membership-removal path: switching, disconnect,
// kick, and explicit leave all route through it. Deletes the room when the
// last member departs.
func (h *Hub) leaveLocked(s *Session) {
	if s.roomName == "" {
		return
	}
	room := h.rooms.get(s.roomName)
	s.roomName = ""
	if room == nil {
		return
	}

	delete(room.members, s)
	h.toRoomLocked(room, systemNotice(h.leaveNotice(s.username)))

	if len(room.members) == 0 {
		h.rooms.remove(room.name)
		metrics.RoomsActive.Dec()
		h.log.Info().Str("room", room.name).Msg("empty room deleted")
	}
	h.refreshLocked()
}

// Chat handles one chat_message input. The gateway has already parsed the
// text into its plain/command variant and decorated the display form.
func (h *Hub) Chat(c *Client, in chatInput, display string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions.get(c)
	if s == nil {
		return fmt.Errorf("%w: connection not registered", ErrNotFound)
	}
	if !s.authenticated() {
		return ErrAuthRequired
	}
	room := h.rooms.get(s.roomName)
	if s.roomName == "" || room == nil {
		return fmt.Errorf("%w: no current room", ErrValidation)
	}

	// Host authority is identity equality with the recorded host, never
	// re-validated against membership. A non-host sending command syntax is
	// treated as an ordinary message, not an error.
	if in.isCommand() && s.username == room.host {
		h.applyCommandLocked(s, room, in.cmd)
		return nil
	}

	if room.isMuted(s.username) {
		// Shadow mute: no log append, no broadcast, no error reply.
		metrics.MessagesMuted.Inc()
		return nil
	}

	room.log = append(room.log, Message{User: s.username, Text: in.text, Display: display})
	h.toRoomLocked(room, messageEvent(s.username, display, s.username == room.host))
	metrics.MessagesBroadcast.Inc()
	return nil
}

// applyCommandLocked interprets one host-issued moderation command. Failures
// reply to the issuer only and never broadcast.
func (h *Hub) applyCommandLocked(issuer *Session, room *Room, cmd *moderationCommand) {
	switch cmd.kind {
	case cmdMute:
		user, ok := cmd.userArg()
		if !ok {
			h.toSessionLocked(issuer, errorEvent("Missing user argument"))
			return
		}
		room.muted[user] = struct{}{}
		h.toRoomLocked(room, systemNotice(fmt.Sprintf("%s was muted.", user)))

	case cmdUnmute:
		user, ok := cmd.userArg()
		if !ok {
			h.toSessionLocked(issuer, errorEvent("Missing user argument"))
			return
		}
		delete(room.muted, user)
		h.toRoomLocked(room, systemNotice(fmt.Sprintf("%s was unmuted.", user)))

	case cmdKick:
		user, ok := cmd.userArg()
		if !ok {
			h.toSessionLocked(issuer, errorEvent("Missing user argument"))
			return
		}
		if h.kickLocked(room, user) {
			h.toRoomLocked(room, systemNotice(fmt.Sprintf("%s was kicked.", user)))
		} else {
			h.toSessionLocked(issuer, systemNotice(fmt.Sprintf("%s is not in the room.", user)))
		}

	case cmdBan:
		user, ok := cmd.userArg()
		if !ok {
			h.toSessionLocked(issuer, errorEvent("Missing user argument"))
			return
		}
		room.banned[user] = struct{}{}
		h.kickLocked(room, user)
		h.toRoomLocked(room, systemNotice(fmt.Sprintf("%s was banned.", user)))

	case cmdClear:
		room.log = nil
		h.toRoomLocked(room, systemNotice("Messages cleared."))

	case cmdShutdown:
		h.shutdownRoomLocked(room)

	case cmdPrivate:
		room.private = true
		h.toRoomLocked(room, roomStatusEvent(true))
		h.toRoomLocked(room, systemNotice("Room set to private."))
		h.refreshLocked()

	case cmdPublic:
		room.private = false
		h.toRoomLocked(room, roomStatusEvent(false))
		h.toRoomLocked(room, systemNotice("Room set to public."))
		h.refreshLocked()

	case cmdHelp, cmdHelpAll:
		h.toSessionLocked(issuer, systemNotice(helpText))

	default:
		h.toSessionLocked(issuer, errorEvent("Unknown command"))
		return
	}

	metrics.ModerationCommands.WithLabelValues(cmd.kind).Inc()
	h.log.Info().Str("room", room.name).Str("host", issuer.username).Str("command", cmd.kind).Msg("moderation command applied")
}

// kickLocked notifies a member and forces its departure through the standard
// leave path. Reports whether the user was a member.
func (h *Hub) kickLocked(room *Room, username string) bool {
	victim := room.memberByName(username)
	if victim == nil {
		return false
	}
	h.toSessionLocked(victim, systemNotice("You were kicked from the room."))
	h.leaveLocked(victim)
	return true
}

// shutdownRoomLocked notifies every member, detaches them all, and deletes
// the room. The notice goes out before teardown. The issuing host is always
// a member here: commands resolve against the issuer's current room.
func (h *Hub) shutdownRoomLocked(room *Room) {
	h.toRoomLocked(room, systemNotice("Room is shutting down."))

	for _, s := range room.memberSnapshot() {
		delete(room.members, s)
		s.roomName = ""
	}
	h.rooms.remove(room.name)
	metrics.RoomsActive.Dec()
	h.log.Info().Str("room", room.name).Msg("room shut down by host")
	h.refreshLocked()
}

// SendRoomList replies to one caller with the current public room snapshot.
func (h *Hub) SendRoomList(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.sessions.get(c)
	if s == nil {
		return
	}
	h.toSessionLocked(s, roomListEvent(h.rooms.listPublic()))
}

// refreshLocked pushes the public room snapshot to every registered
// connection. Invoked after any operation that changes room existence,
// membership count, or visibility.
func (h *Hub) refreshLocked() {
	payload, ok := encodeEvent(h.log, roomListEvent(h.rooms.listPublic()))
	if !ok {
		return
	}
	for _, s := range h.sessions.all() {
		s.client.trySend(payload)
	}
}

// toRoomLocked delivers an event to every current member of a room. Sessions
// whose connection is no longer writable are skipped silently; their own
// disconnect signal reaps them.
func (h *Hub) toRoomLocked(room *Room, v any) {
	payload, ok := encodeEvent(h.log, v)
	if !ok {
		return
	}
	for s := range room.members {
		if !s.client.trySend(payload) {
			h.log.Debug().Str("addr", s.client.addr).Str("room", room.name).Msg("skipped unwritable member")
		}
	}
}

// toSessionLocked delivers an event to one session.
func (h *Hub) toSessionLocked(s *Session, v any) {
	payload, ok := encodeEvent(h.log, v)
	if !ok {
		return
	}
	if !s.client.trySend(payload) {
		h.log.Debug().Str("addr", s.client.addr).Msg("skipped unwritable session")
	}
}

// Shutdown closes every client connection and waits for the pump goroutines
// to finish, or gives up after the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	clients := make([]*Client, 0, h.sessions.len())
	for _, s := range h.sessions.all() {
		clients = append(clients, s.client)
	}
	h.mu.Unlock()

	h.log.Info().Int("clients", len(clients)).Msg("shutting down hub")
	for _, c := range clients {
		c.closeConnection()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached")
		return fmt.Errorf("hub shutdown: %w", ErrUnavailable)
	}
}
