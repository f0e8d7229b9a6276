package signaling

import "encoding/json"

// Envelope is one frame exchanged with the relay. Only Type is always
// present; the other fields depend on it.
type Envelope struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"roomId,omitempty"`
	Username     string          `json:"username,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	Message      string          `json:"message,omitempty"`
	TimerState   json.RawMessage `json:"timerState,omitempty"`
	Signal       json.RawMessage `json:"signal,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoinRoom     = "join_room"
	MessageTypeLeaveRoom    = "leave_room"
	MessageTypeChatMessage  = "chat_message"
	MessageTypeTimerSync    = "timer_sync"
	MessageTypeWebRTCSignal = "webrtc_signal"
	MessageTypeSuggestRoom  = "suggest_room"

	MessageTypeRoomJoined    = "room_joined"
	MessageTypeUserJoined    = "user_joined"
	MessageTypeUserLeft      = "user_left"
	MessageTypeRoomSuggested = "room_suggested"
	MessageTypeError         = "error"
)

// NewJoin builds a join_room envelope.
func NewJoin(roomID, username string) *Envelope {
	return &Envelope{Type: MessageTypeJoinRoom, RoomID: roomID, Username: username}
}

// NewLeave builds a leave_room envelope.
func NewLeave(roomID string) *Envelope {
	return &Envelope{Type: MessageTypeLeaveRoom, RoomID: roomID}
}

// NewChat builds a chat_message envelope.
func NewChat(roomID, username, text string) *Envelope {
	return &Envelope{Type: MessageTypeChatMessage, RoomID: roomID, Username: username, Message: text}
}

// NewTimerSync builds a timer_sync envelope around an encoded snapshot.
func NewTimerSync(roomID string, state any) (*Envelope, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: MessageTypeTimerSync, RoomID: roomID, TimerState: raw}, nil
}

// NewSignal builds a webrtc_signal envelope around an encoded signal.
func NewSignal(roomID string, signal any) (*Envelope, error) {
	raw, err := json.Marshal(signal)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: MessageTypeWebRTCSignal, RoomID: roomID, Signal: raw}, nil
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Encode serialises the envelope into a frame.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
