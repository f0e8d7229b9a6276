package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type hubClient struct {
	client *Client
	out    *fakeOutbox
}

func newHubClient(h *Hub) hubClient {
	c := &Client{ID: uuid.New()}
	out := &fakeOutbox{}
	h.registry.Register(c.ID, out)
	return hubClient{client: c, out: out}
}

func (hc hubClient) send(h *Hub, frame string) {
	h.handle(Inbound{Client: hc.client, Data: []byte(frame)})
}

func TestHubJoinAnnouncesPresence(t *testing.T) {
	h := NewHub(NewRegistry(2))
	alice, bob := newHubClient(h), newHubClient(h)

	alice.send(h, `{"type":"join_room","roomId":"study-1","username":"alice"}`)
	if got := string(alice.out.frames[0]); got != `{"type":"room_joined","roomId":"study-1","username":"alice","participants":[]}` {
		t.Errorf("alice room_joined = %s", got)
	}

	bob.send(h, `{"type":"join_room","roomId":"study-1","username":"bob"}`)
	if got := string(bob.out.frames[0]); got != `{"type":"room_joined","roomId":"study-1","username":"bob","participants":["alice"]}` {
		t.Errorf("bob room_joined = %s", got)
	}
	if got := string(alice.out.frames[1]); got != `{"type":"user_joined","username":"bob","roomId":"study-1"}` {
		t.Errorf("alice user_joined = %s", got)
	}

	// A repeated join answers again without a second announcement.
	bob.send(h, `{"type":"join_room","roomId":"study-1","username":"bob"}`)
	if len(bob.out.frames) != 2 || len(alice.out.frames) != 2 {
		t.Errorf("after rejoin: bob %v, alice %v", bob.out.types(t), alice.out.types(t))
	}
}

func TestHubRelaysToOthersOnly(t *testing.T) {
	h := NewHub(NewRegistry(2))
	alice, bob := newHubClient(h), newHubClient(h)
	alice.send(h, `{"type":"join_room","roomId":"study","username":"alice"}`)
	bob.send(h, `{"type":"join_room","roomId":"study","username":"bob"}`)
	alice.out.frames, bob.out.frames = nil, nil

	frames := []string{
		`{"type":"chat_message","roomId":"study","username":"bob","message":"hi","extra":true}`,
		`{"type":"timer_sync","roomId":"study","timerState":{"minutes":24,"seconds":59,"isRunning":true}}`,
		`{"type":"webrtc_signal","roomId":"study","signal":{"type":"offer","sdp":"v=0"}}`,
	}
	for _, f := range frames {
		bob.send(h, f)
	}

	if len(bob.out.frames) != 0 {
		t.Errorf("sender received %v", bob.out.types(t))
	}
	if len(alice.out.frames) != len(frames) {
		t.Fatalf("alice received %d frames, want %d", len(alice.out.frames), len(frames))
	}
	for i, f := range frames {
		if got := string(alice.out.frames[i]); got != f {
			t.Errorf("frame %d = %s, want %s", i, got, f)
		}
	}
}

func TestHubRefusals(t *testing.T) {
	tests := []struct {
		name    string
		setup   []string
		frame   string
		message string
		roomID  any
	}{
		{
			name:    "chat before join",
			frame:   `{"type":"chat_message","roomId":"study","message":"hi"}`,
			message: "You must join the room first",
		},
		{
			name:    "chat to another room",
			setup:   []string{`{"type":"join_room","roomId":"mine","username":"eve"}`},
			frame:   `{"type":"chat_message","roomId":"study","message":"hi"}`,
			message: "You must join the room first",
		},
		{
			name:    "room full",
			frame:   `{"type":"join_room","roomId":"study","username":"carol"}`,
			message: "Room is full",
			roomID:  "study",
		},
		{
			name:    "missing username",
			frame:   `{"type":"join_room","roomId":"other"}`,
			message: "Please enter your name",
			roomID:  "other",
		},
		{
			name:    "unknown type",
			frame:   `{"type":"dance"}`,
			message: "Unknown message type: dance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(NewRegistry(2))
			alice, bob := newHubClient(h), newHubClient(h)
			alice.send(h, `{"type":"join_room","roomId":"study","username":"alice"}`)
			bob.send(h, `{"type":"join_room","roomId":"study","username":"bob"}`)
			alice.out.frames, bob.out.frames = nil, nil

			eve := newHubClient(h)
			for _, f := range tt.setup {
				eve.send(h, f)
			}
			eve.out.frames = nil
			eve.send(h, tt.frame)

			last := eve.out.last(t)
			if last["type"] != TypeError || last["message"] != tt.message {
				t.Errorf("reply = %v, want error %q", last, tt.message)
			}
			if last["roomId"] != tt.roomID {
				t.Errorf("roomId = %v, want %v", last["roomId"], tt.roomID)
			}
			if len(alice.out.frames)+len(bob.out.frames) != 0 {
				t.Error("refused frame reached room members")
			}
		})
	}
}

func TestHubDropsMalformedFrames(t *testing.T) {
	h := NewHub(NewRegistry(2))
	alice := newHubClient(h)

	alice.send(h, `not json`)
	alice.send(h, `{"type":`)
	if len(alice.out.frames) != 0 {
		t.Errorf("malformed frames produced %v", alice.out.types(t))
	}

	alice.send(h, `{"type":"join_room","roomId":"study","username":"alice"}`)
	if got := alice.out.types(t); len(got) != 1 || got[0] != TypeRoomJoined {
		t.Errorf("join after malformed frames = %v", got)
	}
}

func TestHubThrottleNotice(t *testing.T) {
	h := NewHub(NewRegistry(2))
	alice := newHubClient(h)

	h.handle(Inbound{Client: alice.client})
	if last := alice.out.last(t); last["message"] != "Too many messages, slow down" {
		t.Errorf("throttle notice = %v", last)
	}
}

func TestHubLeaveUsesSessionRoom(t *testing.T) {
	h := NewHub(NewRegistry(2))
	alice, bob := newHubClient(h), newHubClient(h)
	alice.send(h, `{"type":"join_room","roomId":"study","username":"alice"}`)
	bob.send(h, `{"type":"join_room","roomId":"study","username":"bob"}`)

	bob.send(h, `{"type":"leave_room"}`)
	if last := alice.out.last(t); last["type"] != TypeUserLeft || last["username"] != "bob" {
		t.Errorf("alice last frame = %v, want user_left bob", last)
	}
	if s, _ := h.registry.Session(bob.client.ID); s.InRoom() {
		t.Error("bob still in a room")
	}
}

func TestHubSuggestRoom(t *testing.T) {
	h := NewHub(NewRegistry(2))
	alice := newHubClient(h)

	alice.send(h, `{"type":"suggest_room"}`)
	last := alice.out.last(t)
	if last["type"] != TypeRoomSuggested {
		t.Fatalf("reply = %v, want room_suggested", last)
	}
	if id, _ := last["roomId"].(string); id == "" {
		t.Error("suggested room id is empty")
	}
}

func TestHubStats(t *testing.T) {
	h := NewHub(NewRegistry(2))
	alice := newHubClient(h)
	alice.send(h, `{"type":"join_room","roomId":"study","username":"alice"}`)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	statsCtx, statsCancel := context.WithTimeout(context.Background(), time.Second)
	defer statsCancel()
	stats, err := h.Stats(statsCtx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Sessions != 1 || len(stats.Rooms) != 1 || stats.Rooms[0].ID != "study" {
		t.Errorf("Stats() = %+v", stats)
	}

	cancel()
	<-h.done
	if _, err := h.Stats(context.Background()); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Stats() after stop error = %v, want ErrHubStopped", err)
	}
}
