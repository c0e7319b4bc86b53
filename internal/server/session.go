package server

import (
	"fmt"

	"github.com/google/uuid"
)

// Session is the live binding between one connection and one (possibly
// absent) identity and room. Exactly one Session exists per connection and a
// Session never outlives its connection.
type Session struct {
	id       uuid.UUID
	client   *Client
	username string
	roomName string
}

// ID returns the opaque session identifier assigned at registration.
func (s *Session) ID() uuid.UUID { return s.id }

// Username returns the bound identity, or "" while unauthenticated.
func (s *Session) Username() string { return s.username }

// RoomName returns the current room, or "" when the session is in none.
func (s *Session) RoomName() string { return s.roomName }

func (s *Session) authenticated() bool { return s.username != "" }

// registry maps live connections to their sessions. It carries no lock of its
// own: every access happens under the owning Hub's mutex.
type registry struct {
	byClient map[*Client]*Session
	byID     map[uuid.UUID]*Session
}

func newRegistry() *registry {
	return &registry{
		byClient: make(map[*Client]*Session),
		byID:     make(map[uuid.UUID]*Session),
	}
}

func (r *registry) register(c *Client) *Session {
	s := &Session{id: uuid.New(), client: c}
	r.byClient[c] = s
	r.byID[s.id] = s
	return s
}

// get returns the session for a connection, or nil if the connection was
// never registered or has already been cleaned up.
func (r *registry) get(c *Client) *Session {
	return r.byClient[c]
}

func (r *registry) lookup(id uuid.UUID) *Session {
	return r.byID[id]
}

// setIdentity binds a username to the session. Rebinding the same name is a
// no-op; rebinding a different name fails.
func (r *registry) setIdentity(s *Session, username string) error {
	if s.username != "" {
		if s.username == username {
			return nil
		}
		return fmt.Errorf("%w: username already set", ErrConflict)
	}
	s.username = username
	return nil
}

// unregister removes the session for a connection and returns it. Returns nil
// if the connection was already unregistered; callers treat that as a no-op
// so disconnect cleanup stays idempotent. The caller must force room
// departure before discarding the returned session.
func (r *registry) unregister(c *Client) *Session {
	s := r.byClient[c]
	if s == nil {
		return nil
	}
	delete(r.byClient, c)
	delete(r.byID, s.id)
	return s
}

func (r *registry) len() int { return len(r.byClient) }

// all returns a snapshot of every registered session.
func (r *registry) all() []*Session {
	sessions := make([]*Session, 0, len(r.byClient))
	for _, s := range r.byClient {
		sessions = append(sessions, s)
	}
	return sessions
}
