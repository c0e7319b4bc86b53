package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthchat/hearth/internal/credstore"
	"github.com/hearthchat/hearth/internal/decor"
)

const credentialTimeout = 5 * time.Second

// Gateway is the top-level dispatcher for inbound client events. It owns
// payload validation and the credential-store consultation; everything
// touching shared room state is delegated to the Hub. Validation order is
// identical for every event kind: malformed payload, then authentication,
// then event-specific preconditions, then dispatch.
type Gateway struct {
	hub         *Hub
	creds       credstore.Store
	requireAuth bool
	decorate    func(string) string
	log         zerolog.Logger
}

// NewGateway wires a Gateway to its hub and credential store. creds may be
// nil when requireAuth is false.
func NewGateway(hub *Hub, creds credstore.Store, requireAuth bool, logger zerolog.Logger) *Gateway {
	return &Gateway{
		hub:         hub,
		creds:       creds,
		requireAuth: requireAuth,
		decorate:    decor.Decorate,
		log:         logger,
	}
}

// Dispatch routes one inbound frame. Replies go to the issuing connection
// only; a malformed event never affects other sessions.
func (g *Gateway) Dispatch(c *Client, raw []byte) {
	var ev ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		g.reply(c, errorEvent("Invalid JSON"))
		return
	}

	switch ev.Type {
	case EventSetUsername:
		g.handleSetUsername(c, ev)
	case EventCreateRoom:
		g.handleCreateRoom(c, ev)
	case EventListRooms:
		g.hub.SendRoomList(c)
	case EventJoinRoom:
		g.handleJoinRoom(c, ev)
	case EventChatMessage:
		g.handleChatMessage(c, ev)
	case EventLeaveRoom:
		g.hub.Leave(c)
	default:
		g.reply(c, errorEvent("Unknown command"))
	}
}

func (g *Gateway) handleSetUsername(c *Client, ev ClientEvent) {
	username := strings.TrimSpace(ev.Username)
	if username == "" || username == SystemUser {
		g.reply(c, errorEvent("Invalid username"))
		return
	}

	if g.requireAuth {
		if !g.authenticate(c, username, ev.Password) {
			return
		}
	}

	if err := g.hub.SetIdentity(c, username); err != nil {
		if errors.Is(err, ErrConflict) {
			g.reply(c, errorEvent("Username already set"))
		} else {
			g.reply(c, errorEvent("Invalid username"))
		}
		return
	}
	if g.requireAuth {
		g.reply(c, authEvent(true, "Welcome, "+username))
	}
}

// authenticate consults the credential store: verify first, register on an
// unknown username. Store failures surface as a generic auth failure and
// never leak the internal cause. No hub lock is held while this is pending.
func (g *Gateway) authenticate(c *Client, username, password string) bool {
	if g.creds == nil {
		g.reply(c, authEvent(false, "Authentication unavailable"))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), credentialTimeout)
	defer cancel()

	err := g.creds.Verify(ctx, username, password)
	switch {
	case err == nil:
		return true
	case errors.Is(err, credstore.ErrUnknownUser):
		if regErr := g.creds.Register(ctx, username, password); regErr != nil {
			if errors.Is(regErr, credstore.ErrExists) {
				g.reply(c, authEvent(false, "Invalid credentials"))
				return false
			}
			g.log.Error().Err(regErr).Msg("credential store register failed")
			g.reply(c, authEvent(false, "Authentication unavailable"))
			return false
		}
		return true
	case errors.Is(err, credstore.ErrInvalidCredentials):
		g.reply(c, authEvent(false, "Invalid credentials"))
		return false
	default:
		g.log.Error().Err(err).Msg("credential store verify failed")
		g.reply(c, authEvent(false, "Authentication unavailable"))
		return false
	}
}

func (g *Gateway) handleCreateRoom(c *Client, ev ClientEvent) {
	name := strings.TrimSpace(ev.RoomName)
	if name == "" {
		g.reply(c, errorEvent("Invalid room name"))
		return
	}
	if err := g.hub.CreateRoom(c, name); err != nil {
		switch {
		case errors.Is(err, ErrAuthRequired):
			g.reply(c, errorEvent("Set username first"))
		case errors.Is(err, ErrConflict):
			g.reply(c, errorEvent("Room already exists"))
		default:
			g.reply(c, errorEvent("Invalid room name"))
		}
	}
}

func (g *Gateway) handleJoinRoom(c *Client, ev ClientEvent) {
	name := strings.TrimSpace(ev.RoomName)
	if name == "" {
		g.reply(c, errorEvent("Room not found"))
		return
	}
	if err := g.hub.Join(c, name); err != nil {
		switch {
		case errors.Is(err, ErrAuthRequired):
			g.reply(c, errorEvent("Set username first"))
		case errors.Is(err, ErrForbidden):
			g.reply(c, errorEvent("You are banned from this room"))
		default:
			g.reply(c, errorEvent("Room not found"))
		}
	}
}

func (g *Gateway) handleChatMessage(c *Client, ev ClientEvent) {
	if ev.Text == "" {
		g.reply(c, errorEvent("Invalid message"))
		return
	}

	// The plain/command decision is made exactly once, here at the boundary.
	// Decoration happens before any lock is taken.
	in := parseChat(ev.Text)
	display := g.decorate(ev.Text)

	if err := g.hub.Chat(c, in, display); err != nil {
		switch {
		case errors.Is(err, ErrAuthRequired):
			g.reply(c, errorEvent("Set username first"))
		default:
			g.reply(c, errorEvent("Join a room first"))
		}
	}
}

// reply sends directly to the issuing connection. Safe without the hub lock:
// Dispatch runs on the connection's own read pump, so its send channel
// cannot be closed underneath it.
func (g *Gateway) reply(c *Client, v any) {
	payload, ok := encodeEvent(g.log, v)
	if !ok {
		return
	}
	c.trySend(payload)
}
