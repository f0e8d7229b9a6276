package relay

// Room is a named set of sessions sharing one broadcast scope.
// Members are kept in join order so participant lists are deterministic.
type Room struct {
	// ID is the caller-chosen or suggested identifier. Case-sensitive.
	ID string

	members []*Session
}

func newRoom(id string) *Room {
	return &Room{ID: id}
}

// Len returns the number of members.
func (r *Room) Len() int {
	return len(r.members)
}

func (r *Room) has(s *Session) bool {
	for _, m := range r.members {
		if m == s {
			return true
		}
	}
	return false
}

func (r *Room) add(s *Session) {
	if !r.has(s) {
		r.members = append(r.members, s)
	}
}

// remove reports whether s was a member.
func (r *Room) remove(s *Session) bool {
	for i, m := range r.members {
		if m == s {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// usernames returns member names in join order, skipping exclude.
func (r *Room) usernames(exclude *Session) []string {
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		if m != exclude {
			names = append(names, m.Username)
		}
	}
	return names
}
