package relay

import (
	"context"
	"errors"
	"log/slog"
)

// ErrHubStopped is returned by Hub calls made after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// Hub is the relay's event loop. Its Run goroutine is the only code that
// touches the Registry, so joins, leaves and fan-out happen strictly in
// arrival order without locking.
type Hub struct {
	registry *Registry

	registerCh   chan *Client
	unregisterCh chan *Client
	inboundCh    chan Inbound
	statsCh      chan chan Stats

	done chan struct{}
}

// NewHub creates a hub that owns registry.
func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry:     registry,
		registerCh:   make(chan *Client),
		unregisterCh: make(chan *Client),
		inboundCh:    make(chan Inbound),
		statsCh:      make(chan chan Stats),
		done:         make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.registerCh:
			h.registry.Register(client.ID, client)
			client.open = true
			slog.Debug("client registered", "client", client.ID, "addr", client.conn.RemoteAddr())

		case client := <-h.unregisterCh:
			if s, ok := h.registry.Session(client.ID); ok {
				h.registry.Disconnect(s)
			}
			if client.open {
				client.open = false
				close(client.send)
			}
			slog.Debug("client unregistered", "client", client.ID)

		case in := <-h.inboundCh:
			h.handle(in)

		case reply := <-h.statsCh:
			reply <- h.registry.Snapshot()
		}
	}
}

// Stats asks the hub goroutine for a registry snapshot.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.statsCh <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.registerCh <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.unregisterCh <- c:
	case <-h.done:
	}
}

func (h *Hub) forward(in Inbound) bool {
	select {
	case h.inboundCh <- in:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) shutdown() {
	for _, s := range h.registry.sessions {
		if c, ok := s.out.(*Client); ok && c.open {
			c.open = false
			close(c.send)
		}
	}
}

// handle routes one inbound frame. It never blocks: replies and fan-out go
// through Outbox.Deliver.
func (h *Hub) handle(in Inbound) {
	s, ok := h.registry.Session(in.Client.ID)
	if !ok {
		return
	}

	if in.Data == nil {
		s.deliver(errorFrame("Too many messages, slow down"))
		return
	}

	header, err := parseHeader(in.Data)
	if err != nil {
		slog.Warn("dropping malformed frame", "client", s.ID, "err", err)
		return
	}

	slog.Debug("frame received", "type", header.Type, "client", s.ID, "room", header.RoomID)

	switch header.Type {
	case TypeJoinRoom:
		h.handleJoin(s, header)

	case TypeLeaveRoom:
		roomID := header.RoomID
		if roomID == "" {
			roomID = s.RoomID
		}
		h.registry.Leave(roomID, s)

	case TypeChatMessage, TypeTimerSync, TypeWebRTCSignal:
		roomID := header.RoomID
		if roomID == "" {
			roomID = s.RoomID
		}
		if !s.InRoom() || s.RoomID != roomID {
			slog.Debug("relay refused", "client", s.ID, "room", roomID, "err", ErrNotMember)
			s.deliver(errorFrame("You must join the room first"))
			return
		}
		n := h.registry.Broadcast(roomID, in.Data, s)
		slog.Debug("relayed", "type", header.Type, "room", roomID, "recipients", n)

	case TypeSuggestRoom:
		s.deliver(encode(SuggestedMessage{Type: TypeRoomSuggested, RoomID: h.registry.SuggestRoomID()}))

	default:
		slog.Warn("unknown message type", "type", header.Type, "client", s.ID)
		s.deliver(errorFrame("Unknown message type: " + header.Type))
	}
}

func (h *Hub) handleJoin(s *Session, header Header) {
	rejoin := s.InRoom() && s.RoomID == header.RoomID

	participants, err := h.registry.Join(header.RoomID, header.Username, s)
	if err != nil {
		slog.Info("join refused", "client", s.ID, "room", header.RoomID, "err", err)
		s.deliver(joinErrorFrame(header.RoomID, joinErrorText(err)))
		return
	}

	slog.Info("joined room", "client", s.ID, "room", s.RoomID, "username", s.Username, "others", len(participants))

	s.deliver(encode(JoinedMessage{
		Type:         TypeRoomJoined,
		RoomID:       s.RoomID,
		Username:     s.Username,
		Participants: participants,
	}))

	if !rejoin {
		h.registry.Broadcast(s.RoomID, presenceFrame(TypeUserJoined, s.Username, s.RoomID), s)
	}
}

func joinErrorText(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return "Room is full"
	case errors.Is(err, ErrInvalidRoom):
		return "Please enter a room ID"
	case errors.Is(err, ErrInvalidUsername):
		return "Please enter your name"
	default:
		return err.Error()
	}
}
