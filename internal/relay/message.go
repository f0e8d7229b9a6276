package relay

import "encoding/json"

// Message type constants.
const (
	TypeJoinRoom     = "join_room"
	TypeLeaveRoom    = "leave_room"
	TypeChatMessage  = "chat_message"
	TypeTimerSync    = "timer_sync"
	TypeWebRTCSignal = "webrtc_signal"
	TypeSuggestRoom  = "suggest_room"

	TypeRoomJoined    = "room_joined"
	TypeUserJoined    = "user_joined"
	TypeUserLeft      = "user_left"
	TypeRoomSuggested = "room_suggested"
	TypeError         = "error"
)

// Header is the part of an inbound frame the hub routes on.
// Everything else in the frame is opaque and relayed byte-for-byte.
type Header struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// Inbound is a raw frame read from a client, tagged with its sender.
type Inbound struct {
	Client *Client
	Data   []byte
}

// PresenceMessage announces a member arriving or leaving.
type PresenceMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

// JoinedMessage is the reply to a successful join_room.
// Participants is always encoded, as [] for the first joiner.
type JoinedMessage struct {
	Type         string   `json:"type"`
	RoomID       string   `json:"roomId"`
	Username     string   `json:"username"`
	Participants []string `json:"participants"`
}

// SuggestedMessage carries a fresh, unused room id.
type SuggestedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ErrorMessage is a non-fatal notice sent to a single connection. RoomID
// is set when a join for that room was refused.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	RoomID  string `json:"roomId,omitempty"`
}

func parseHeader(data []byte) (Header, error) {
	var h Header
	err := json.Unmarshal(data, &h)
	return h, err
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only fixed struct types are encoded here.
		panic(err)
	}
	return b
}

func presenceFrame(typ, username, roomID string) []byte {
	return encode(PresenceMessage{Type: typ, Username: username, RoomID: roomID})
}

func errorFrame(msg string) []byte {
	return encode(ErrorMessage{Type: TypeError, Message: msg})
}

func joinErrorFrame(roomID, msg string) []byte {
	return encode(ErrorMessage{Type: TypeError, Message: msg, RoomID: roomID})
}
