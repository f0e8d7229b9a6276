package call

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	dataChannelLabel = "studystim"

	MessageTypeDeviceInfo = "device_info"
)

// Message is one data channel frame.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// DeviceInfo identifies the client on the other end of the call.
type DeviceInfo struct {
	DeviceName    string `msgpack:"deviceName"`
	DeviceVersion string `msgpack:"deviceVersion"`
}

func (d DeviceInfo) String() string {
	if d.DeviceVersion == "" {
		return d.DeviceName
	}
	return fmt.Sprintf("%s %s", d.DeviceName, d.DeviceVersion)
}

// DecodePayload decodes the message payload into v.
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage wraps payload in a Message of type t.
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: b}, nil
}

func encodeMessage(t string, payload any) ([]byte, error) {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

func decodeDeviceInfo(data []byte) (DeviceInfo, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return DeviceInfo{}, err
	}
	if msg.Type != MessageTypeDeviceInfo {
		return DeviceInfo{}, WrapError("decode data channel message", ErrUnexpectedMessage, msg.Type)
	}
	var info DeviceInfo
	if err := msg.DecodePayload(&info); err != nil {
		return DeviceInfo{}, err
	}
	return info, nil
}
