package relay

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrInvalidRoom     = errors.New("room id is required")
	ErrInvalidUsername = errors.New("username is required")
	ErrNotMember       = errors.New("not a member of this room")
	ErrUnknownSession  = errors.New("unknown session")
)

// Registry maps room ids to their members and connection ids to sessions.
//
// A Registry is not safe for concurrent use. The Hub owns one and touches
// it only from its Run goroutine.
type Registry struct {
	rooms    map[string]*Room
	sessions map[uuid.UUID]*Session

	// maxMembers caps room size. Zero means unlimited.
	maxMembers int
}

// NewRegistry creates an empty registry. maxMembers <= 0 disables the cap.
func NewRegistry(maxMembers int) *Registry {
	if maxMembers < 0 {
		maxMembers = 0
	}
	return &Registry{
		rooms:      make(map[string]*Room),
		sessions:   make(map[uuid.UUID]*Session),
		maxMembers: maxMembers,
	}
}

// Register creates the session record for a new connection.
func (r *Registry) Register(id uuid.UUID, out Outbox) *Session {
	s := &Session{ID: id, out: out}
	r.sessions[id] = s
	return s
}

// Session looks up a session by connection id.
func (r *Registry) Session(id uuid.UUID) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Room looks up a room by id.
func (r *Registry) Room(id string) (*Room, bool) {
	room, ok := r.rooms[id]
	return room, ok
}

// Join adds s to roomID, creating the room if unseen, and returns the
// usernames of all other members at the moment of joining.
//
// A session already in another room leaves it first. Joining the room the
// session is already in only refreshes the username. Another session in
// roomID holding the same username is evicted before the capacity check;
// it is a connection the client already replaced.
func (r *Registry) Join(roomID, username string, s *Session) ([]string, error) {
	if roomID == "" {
		return nil, ErrInvalidRoom
	}
	if username == "" {
		return nil, ErrInvalidUsername
	}

	if s.RoomID == roomID {
		if room, ok := r.rooms[roomID]; ok && room.has(s) {
			s.Username = username
			return room.usernames(s), nil
		}
	}

	r.evictStale(roomID, username, s)

	room, ok := r.rooms[roomID]
	if ok && r.maxMembers > 0 && room.Len() >= r.maxMembers {
		return nil, ErrRoomFull
	}

	if s.InRoom() {
		r.Leave(s.RoomID, s)
	}

	if !ok {
		room = newRoom(roomID)
		r.rooms[roomID] = room
		slog.Info("room created", "room", roomID)
	}

	participants := room.usernames(s)
	room.add(s)
	s.RoomID = roomID
	s.Username = username

	return participants, nil
}

func (r *Registry) evictStale(roomID, username string, s *Session) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for _, m := range room.members {
		if m != s && m.Username == username {
			slog.Info("evicting stale session", "client", m.ID, "room", roomID, "username", username)
			r.Leave(roomID, m)
			return
		}
	}
}

// Leave removes s from roomID. An emptied room is discarded; otherwise the
// remaining members are told the username left. Unknown rooms and
// non-members are ignored.
func (r *Registry) Leave(roomID string, s *Session) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if !room.remove(s) {
		return
	}
	if s.RoomID == roomID {
		s.RoomID = ""
	}

	if room.Len() == 0 {
		delete(r.rooms, roomID)
		slog.Info("room deleted", "room", roomID)
		return
	}

	r.Broadcast(roomID, presenceFrame(TypeUserLeft, s.Username, roomID), s)
}

// Disconnect leaves the session's last known room and forgets the session.
// Safe for sessions that never joined.
func (r *Registry) Disconnect(s *Session) {
	if s.InRoom() {
		r.Leave(s.RoomID, s)
	}
	delete(r.sessions, s.ID)
}

// Broadcast delivers frame to every member of roomID except exclude and
// returns the number of successful deliveries. Closed or congested
// outboxes are skipped.
func (r *Registry) Broadcast(roomID string, frame []byte, exclude *Session) int {
	room, ok := r.rooms[roomID]
	if !ok {
		return 0
	}

	delivered := 0
	for _, m := range room.members {
		if m == exclude {
			continue
		}
		if m.deliver(frame) {
			delivered++
		}
	}
	return delivered
}

// RoomStats describes one room for the stats endpoint.
type RoomStats struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Sessions   int         `json:"sessions"`
	MaxMembers int         `json:"maxMembers"`
	Rooms      []RoomStats `json:"rooms"`
}

// Snapshot returns the rooms sorted by id.
func (r *Registry) Snapshot() Stats {
	stats := Stats{
		Sessions:   len(r.sessions),
		MaxMembers: r.maxMembers,
		Rooms:      make([]RoomStats, 0, len(r.rooms)),
	}
	for id, room := range r.rooms {
		stats.Rooms = append(stats.Rooms, RoomStats{ID: id, Members: room.usernames(nil)})
	}
	sort.Slice(stats.Rooms, func(i, j int) bool {
		return stats.Rooms[i].ID < stats.Rooms[j].ID
	})
	return stats
}
