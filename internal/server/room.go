package server

import "fmt"

// Message is one entry of a room's log. Text is the raw input; Display is the
// decorated form delivered to clients. Entries are never mutated after
// append; the clear command replaces the whole log.
type Message struct {
	User    string
	Text    string
	Display string
}

// Room holds the state of one chat room. The name and host are fixed at
// creation; the host keeps moderation authority even after leaving or
// disconnecting, because authority is checked against the recorded host
// identity, never against current membership. All fields are guarded by the
// owning Hub's mutex.
type Room struct {
	name    string
	host    string
	members map[*Session]struct{}
	private bool
	banned  map[string]struct{}
	muted   map[string]struct{}
	log     []Message
}

// Name returns the room's unique, immutable name.
func (r *Room) Name() string { return r.name }

// Host returns the identity recorded as the room's creator.
func (r *Room) Host() string { return r.host }

// IsPrivate reports whether the room is hidden from the public list.
func (r *Room) IsPrivate() bool { return r.private }

// MemberCount returns the number of sessions currently joined.
func (r *Room) MemberCount() int { return len(r.members) }

// LogLen returns the current message log length.
func (r *Room) LogLen() int { return len(r.log) }

func (r *Room) isBanned(username string) bool {
	_, ok := r.banned[username]
	return ok
}

func (r *Room) isMuted(username string) bool {
	_, ok := r.muted[username]
	return ok
}

// memberByName finds the member session bound to an identity, or nil.
func (r *Room) memberByName(username string) *Session {
	for s := range r.members {
		if s.username == username {
			return s
		}
	}
	return nil
}

func (r *Room) memberSnapshot() []*Session {
	members := make([]*Session, 0, len(r.members))
	for s := range r.members {
		members = append(members, s)
	}
	return members
}

// directory is the room table. Like the registry it is lock-free on its own:
// the owning Hub serializes all access. The insertion-order slice keeps
// listPublic deterministic within one call.
type directory struct {
	rooms map[string]*Room
	order []string
}

func newDirectory() *directory {
	return &directory{rooms: make(map[string]*Room)}
}

// create makes a new room with the given host, public visibility, and empty
// membership, ban/mute sets, and log.
func (d *directory) create(name, host string) (*Room, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty room name", ErrValidation)
	}
	if _, taken := d.rooms[name]; taken {
		return nil, fmt.Errorf("%w: room %q", ErrConflict, name)
	}
	room := &Room{
		name:    name,
		host:    host,
		members: make(map[*Session]struct{}),
		banned:  make(map[string]struct{}),
		muted:   make(map[string]struct{}),
	}
	d.rooms[name] = room
	d.order = append(d.order, name)
	return room, nil
}

func (d *directory) get(name string) *Room {
	return d.rooms[name]
}

// listPublic snapshots the public rooms in creation order.
func (d *directory) listPublic() []RoomSummary {
	summaries := make([]RoomSummary, 0, len(d.rooms))
	for _, name := range d.order {
		room, ok := d.rooms[name]
		if !ok || room.private {
			continue
		}
		summaries = append(summaries, RoomSummary{Name: name, UserCount: len(room.members)})
	}
	return summaries
}

// remove deletes a room. Members must already have been detached.
func (d *directory) remove(name string) {
	delete(d.rooms, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *directory) len() int { return len(d.rooms) }
