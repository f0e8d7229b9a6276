// Package studyroom is the client-side view of one study room. It ties
// the relay transport, the call coordinator and the shared timer together
// behind the API the terminal UI consumes.
package studyroom

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/studystim/studystim/internal/call"
	"github.com/studystim/studystim/internal/loop"
	"github.com/studystim/studystim/internal/signaling"
	"github.com/studystim/studystim/internal/timer"
)

var (
	ErrInvalidRoom     = errors.New("room id is required")
	ErrInvalidUsername = errors.New("username is required")
	ErrNotJoined       = errors.New("not in a room")
	ErrEmptyMessage    = errors.New("message is empty")
)

// Callbacks deliver room events. They run on the loop; any may be nil.
type Callbacks struct {
	// OnJoined reports a confirmed join. participants includes this user.
	OnJoined       func(roomID string, participants []string)
	OnPeerJoined   func(username string)
	OnPeerLeft     func(username string)
	OnMessage      func(username, text string)
	OnTimer        func(timer.Snapshot)
	OnRemoteStream func(*call.RemoteStream)
	OnStatus       func(notice string)
	OnConnection   func(signaling.State)
	OnCallState    func(call.State)
	OnSuggested    func(roomID string)
	OnPeerInfo     func(call.DeviceInfo)
	// OnRemoved reports that the server refused to take a confirmed room
	// back, typically a rejoin after a reconnect.
	OnRemoved      func(roomID string)
}

// Options configures a Room.
type Options struct {
	Dialer    signaling.Dialer
	Transport signaling.Options
	Call      call.Options
}

// Room is one participant's session in a study room.
//
// All methods must be called from the owning loop.
type Room struct {
	transport *signaling.Transport
	call      *call.Coordinator
	cb        Callbacks

	roomID       string
	username     string
	participants []string

	// confirmed is set once the server acknowledged the join. Only a
	// confirmed room is joined again after a reconnect.
	confirmed bool
}

// New creates a room session bound to l. Nothing is sent until Join.
func New(l *loop.Loop, opts Options, cb Callbacks) *Room {
	r := &Room{cb: cb}

	r.transport = signaling.NewTransport(l, opts.Dialer, opts.Transport)
	r.transport.SetPrelude(r.rejoin)
	r.transport.OnState(r.connectionChanged)
	r.transport.OnAbandoned(func() {
		r.status("Could not reach the study server; giving up")
	})

	callOpts := opts.Call
	callOpts.Send = r.sendSignal
	r.call = call.NewCoordinator(l, callOpts, call.Callbacks{
		OnState:        cb.OnCallState,
		OnRemoteStream: cb.OnRemoteStream,
		OnStatus:       r.status,
		OnPeerInfo:     cb.OnPeerInfo,
	})

	r.transport.Handle(signaling.MessageTypeRoomJoined, r.handleRoomJoined)
	r.transport.Handle(signaling.MessageTypeUserJoined, r.handleUserJoined)
	r.transport.Handle(signaling.MessageTypeUserLeft, r.handleUserLeft)
	r.transport.Handle(signaling.MessageTypeChatMessage, r.handleChat)
	r.transport.Handle(signaling.MessageTypeTimerSync, r.handleTimer)
	r.transport.Handle(signaling.MessageTypeWebRTCSignal, r.handleSignal)
	r.transport.Handle(signaling.MessageTypeRoomSuggested, r.handleSuggested)
	r.transport.Handle(signaling.MessageTypeError, r.handleError)

	return r
}

func (r *Room) RoomID() string   { return r.roomID }
func (r *Room) Username() string { return r.username }

// Joined reports whether the server confirmed the current room.
func (r *Room) Joined() bool { return r.confirmed }

// Participants returns everyone in the room, this user first.
func (r *Room) Participants() []string {
	return slices.Clone(r.participants)
}

func (r *Room) ConnectionState() signaling.State { return r.transport.State() }

func (r *Room) CallState() call.State { return r.call.State() }

// Connect opens the relay connection ahead of the first send.
func (r *Room) Connect() {
	r.transport.Connect()
}

// Join enters roomID as username. The server moves a session that is
// already in another room.
func (r *Room) Join(roomID, username string) error {
	roomID = strings.TrimSpace(roomID)
	username = strings.TrimSpace(username)
	if roomID == "" {
		return ErrInvalidRoom
	}
	if username == "" {
		return ErrInvalidUsername
	}

	if r.roomID != "" && r.roomID != roomID {
		r.call.Leave()
	}
	r.roomID = roomID
	r.username = username
	r.participants = nil
	r.confirmed = false

	slog.Debug("joining room", "room", roomID, "username", username)
	return r.transport.Send(signaling.NewJoin(roomID, username))
}

// Leave exits the current room and ends any call.
func (r *Room) Leave() error {
	if r.roomID == "" {
		return nil
	}
	roomID := r.roomID

	r.call.Leave()
	r.roomID = ""
	r.participants = nil
	r.confirmed = false

	return r.transport.Send(signaling.NewLeave(roomID))
}

// SendChat relays text to the other members.
func (r *Room) SendChat(text string) error {
	if r.roomID == "" {
		return ErrNotJoined
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return r.transport.Send(signaling.NewChat(r.roomID, r.username, text))
}

// SendTimerState shares the local timer with the other members.
func (r *Room) SendTimerState(s timer.Snapshot) error {
	if r.roomID == "" {
		return ErrNotJoined
	}
	env, err := signaling.NewTimerSync(r.roomID, s)
	if err != nil {
		return err
	}
	return r.transport.Send(env)
}

// SuggestRoom asks the server for an unused room id; the answer arrives
// through OnSuggested.
func (r *Room) SuggestRoom() error {
	return r.transport.Send(&signaling.Envelope{Type: signaling.MessageTypeSuggestRoom})
}

// Close leaves the room and drops the connection.
func (r *Room) Close() {
	r.call.Leave()
	if r.roomID != "" && r.transport.State() == signaling.StateOpen {
		if err := r.transport.Send(signaling.NewLeave(r.roomID)); err != nil {
			slog.Debug("failed to send leave", "error", err)
		}
	}
	r.roomID = ""
	r.participants = nil
	r.confirmed = false
	r.transport.Close()
}

func (r *Room) rejoin() []*signaling.Envelope {
	if !r.confirmed || r.roomID == "" {
		return nil
	}
	slog.Info("rejoining room after reconnect", "room", r.roomID)
	return []*signaling.Envelope{signaling.NewJoin(r.roomID, r.username)}
}

func (r *Room) connectionChanged(s signaling.State) {
	if s == signaling.StateDisconnected && r.confirmed {
		r.status("Connection to the study server lost, reconnecting")
	}
	if r.cb.OnConnection != nil {
		r.cb.OnConnection(s)
	}
}

func (r *Room) handleRoomJoined(env *signaling.Envelope) {
	if env.RoomID != r.roomID {
		slog.Debug("ignoring stale room_joined", "room", env.RoomID, "current", r.roomID)
		return
	}
	r.confirmed = true

	others := make([]string, 0, len(env.Participants))
	for _, name := range env.Participants {
		if name != "" {
			others = append(others, name)
		}
	}
	r.participants = append([]string{r.username}, others...)
	slog.Info("joined room", "room", r.roomID, "participants", len(r.participants))

	if r.cb.OnJoined != nil {
		r.cb.OnJoined(r.roomID, r.Participants())
	}
	r.call.Join(others)
}

func (r *Room) handleUserJoined(env *signaling.Envelope) {
	if !r.confirmed || env.Username == "" {
		return
	}
	if !slices.Contains(r.participants, env.Username) {
		r.participants = append(r.participants, env.Username)
	}
	if r.cb.OnPeerJoined != nil {
		r.cb.OnPeerJoined(env.Username)
	}
	r.call.PeerJoined(env.Username)
}

func (r *Room) handleUserLeft(env *signaling.Envelope) {
	if !r.confirmed || env.Username == "" {
		return
	}
	if i := slices.Index(r.participants[1:], env.Username); i >= 0 {
		r.participants = slices.Delete(r.participants, i+1, i+2)
	}
	if r.cb.OnPeerLeft != nil {
		r.cb.OnPeerLeft(env.Username)
	}
	r.call.PeerLeft(env.Username)
}

func (r *Room) handleChat(env *signaling.Envelope) {
	if r.cb.OnMessage != nil {
		r.cb.OnMessage(env.Username, env.Message)
	}
}

func (r *Room) handleTimer(env *signaling.Envelope) {
	var s timer.Snapshot
	if err := json.Unmarshal(env.TimerState, &s); err != nil {
		slog.Warn("dropping malformed timer state", "error", err)
		return
	}
	if r.cb.OnTimer != nil {
		r.cb.OnTimer(s)
	}
}

func (r *Room) handleSignal(env *signaling.Envelope) {
	r.call.HandleSignal(env.Signal)
}

func (r *Room) handleSuggested(env *signaling.Envelope) {
	if r.cb.OnSuggested != nil {
		r.cb.OnSuggested(env.RoomID)
	}
}

func (r *Room) handleError(env *signaling.Envelope) {
	slog.Warn("server error", "message", env.Message, "room", env.RoomID)
	if env.RoomID != "" && env.RoomID == r.roomID {
		// A join for the current room was refused. After a reconnect this
		// is the rejoin, so the room is lost as well.
		wasJoined := r.confirmed
		r.call.Leave()
		r.roomID = ""
		r.participants = nil
		r.confirmed = false
		if wasJoined && r.cb.OnRemoved != nil {
			r.cb.OnRemoved(env.RoomID)
		}
	}
	r.status(env.Message)
}

func (r *Room) sendSignal(sig call.Signal) error {
	if r.roomID == "" {
		return ErrNotJoined
	}
	env, err := signaling.NewSignal(r.roomID, sig)
	if err != nil {
		return err
	}
	return r.transport.Send(env)
}

func (r *Room) status(notice string) {
	if r.cb.OnStatus != nil {
		r.cb.OnStatus(notice)
	}
}
