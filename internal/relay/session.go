package relay

import "github.com/google/uuid"

// Outbox delivers encoded frames to one live connection.
// Deliver must not block; it reports false when the frame was skipped.
type Outbox interface {
	Deliver(frame []byte) bool
}

// Session is the relay's record of one live connection.
// It is owned by the Registry and keyed by the connection id; the
// transport only carries the id.
type Session struct {
	ID       uuid.UUID
	RoomID   string
	Username string

	out Outbox
}

// InRoom reports whether the session is currently a member of a room.
func (s *Session) InRoom() bool {
	return s.RoomID != ""
}

func (s *Session) deliver(frame []byte) bool {
	if s.out == nil {
		return false
	}
	return s.out.Deliver(frame)
}
