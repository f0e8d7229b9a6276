package studyroom

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/studystim/studystim/internal/call"
	"github.com/studystim/studystim/internal/loop"
	"github.com/studystim/studystim/internal/relay"
	"github.com/studystim/studystim/internal/server"
	"github.com/studystim/studystim/internal/signaling"
	"github.com/studystim/studystim/internal/timer"
)

func startRelay(t *testing.T, maxMembers int) string {
	t.Helper()
	hub := relay.NewHub(relay.NewRegistry(maxMembers))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(hub, relay.ClientOptions{MaxMessageSize: 64 * 1024}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// member is one client with its own loop. Events are rendered as strings
// in the order the room reported them.
type member struct {
	loop   *loop.Loop
	room   *Room
	events chan string
}

func newMember(t *testing.T, url string) *member {
	t.Helper()
	return newMemberWith(t, url, signaling.NewWebSocketDialer())
}

func newMemberWith(t *testing.T, url string, dialer signaling.Dialer) *member {
	t.Helper()

	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	m := &member{loop: l, events: make(chan string, 256)}
	push := func(format string, args ...any) {
		select {
		case m.events <- fmt.Sprintf(format, args...):
		default:
			t.Errorf("event buffer full, dropped %q", fmt.Sprintf(format, args...))
		}
	}

	l.Call(func() {
		m.room = New(l, Options{
			Dialer: dialer,
			Transport: signaling.Options{
				URL:                  url,
				MaxReconnectAttempts: 3,
				ReconnectDelay:       50 * time.Millisecond,
			},
			Call: call.Options{Media: call.NoMedia{}},
		}, Callbacks{
			OnJoined: func(roomID string, participants []string) {
				push("joined %s [%s]", roomID, strings.Join(participants, " "))
			},
			OnPeerJoined: func(username string) { push("peer joined %s", username) },
			OnPeerLeft:   func(username string) { push("peer left %s", username) },
			OnMessage:    func(username, text string) { push("%s says %s", username, text) },
			OnTimer:      func(s timer.Snapshot) { push("timer %s running=%v", s, s.IsRunning) },
			OnStatus:     func(notice string) { push("status %s", notice) },
			OnRemoved:    func(roomID string) { push("removed from %s", roomID) },
		})
	})

	t.Cleanup(func() {
		l.Call(m.room.Close)
		cancel()
		<-l.Done()
	})
	return m
}

func (m *member) do(fn func(r *Room) error) error {
	var err error
	if callErr := m.loop.Call(func() { err = fn(m.room) }); callErr != nil {
		return callErr
	}
	return err
}

// expect skips events until want arrives.
func (m *member) expect(t *testing.T, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	var seen []string
	for {
		select {
		case ev := <-m.events:
			if ev == want {
				return
			}
			seen = append(seen, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for %q; saw %q", want, seen)
		}
	}
}

func TestStudySessionThroughRelay(t *testing.T) {
	url := startRelay(t, 2)
	alice := newMember(t, url)
	bob := newMember(t, url)

	if err := alice.do(func(r *Room) error { return r.Join("study-1", "alice") }); err != nil {
		t.Fatalf("alice Join() error = %v", err)
	}
	alice.expect(t, "joined study-1 [alice]")

	if err := bob.do(func(r *Room) error { return r.Join("study-1", "bob") }); err != nil {
		t.Fatalf("bob Join() error = %v", err)
	}
	bob.expect(t, "joined study-1 [bob alice]")
	alice.expect(t, "peer joined bob")

	if err := bob.do(func(r *Room) error { return r.SendChat("hello") }); err != nil {
		t.Fatalf("SendChat() error = %v", err)
	}
	alice.expect(t, "bob says hello")

	snapshot := timer.Snapshot{Minutes: 24, Seconds: 59, IsRunning: true}
	if err := alice.do(func(r *Room) error { return r.SendTimerState(snapshot) }); err != nil {
		t.Fatalf("SendTimerState() error = %v", err)
	}
	bob.expect(t, "timer 24:59 running=true")

	carol := newMember(t, url)
	if err := carol.do(func(r *Room) error { return r.Join("study-1", "carol") }); err != nil {
		t.Fatalf("carol Join() error = %v", err)
	}
	carol.expect(t, "status Room is full")
	carol.do(func(r *Room) error {
		if r.RoomID() != "" {
			t.Errorf("carol RoomID() = %q after refusal", r.RoomID())
		}
		return nil
	})

	if err := bob.do(func(r *Room) error { return r.Leave() }); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	alice.expect(t, "peer left bob")

	alice.do(func(r *Room) error {
		if got := r.Participants(); len(got) != 1 || got[0] != "alice" {
			t.Errorf("alice Participants() = %v, want [alice]", got)
		}
		return nil
	})
}

func TestChatBeforeJoinRefused(t *testing.T) {
	url := startRelay(t, 2)
	alice := newMember(t, url)
	bob := newMember(t, url)

	alice.do(func(r *Room) error { return r.Join("study-2", "alice") })
	alice.expect(t, "joined study-2 [alice]")

	// bob never joined; the relay answers with an error instead of
	// relaying.
	bob.do(func(r *Room) error {
		r.roomID = "study-2"
		r.username = "bob"
		return r.SendChat("sneaky")
	})
	bob.expect(t, "status You must join the room first")

	select {
	case ev := <-alice.events:
		if strings.Contains(ev, "sneaky") {
			t.Errorf("non-member chat was relayed: %q", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// halfOpenDialer hands out a first connection whose link can be cut on the
// client side only: the client sees a read error while the relay keeps the
// socket, and the session, alive. Later dials are plain.
type halfOpenDialer struct {
	dialer signaling.Dialer

	mu    sync.Mutex
	first *halfOpenConn
}

func (d *halfOpenDialer) Dial(ctx context.Context, url string) (signaling.Conn, error) {
	conn, err := d.dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.first != nil {
		return conn, nil
	}
	d.first = newHalfOpenConn(conn)
	return d.first, nil
}

func (d *halfOpenDialer) cut() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.first.once.Do(func() { close(d.first.cut) })
}

func (d *halfOpenDialer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.first != nil {
		d.first.conn.Close()
	}
}

type halfOpenConn struct {
	conn   signaling.Conn
	frames chan []byte
	cut    chan struct{}
	once   sync.Once
}

func newHalfOpenConn(conn signaling.Conn) *halfOpenConn {
	c := &halfOpenConn{conn: conn, frames: make(chan []byte, 64), cut: make(chan struct{})}
	go func() {
		for {
			data, err := conn.ReadFrame()
			if err != nil {
				return
			}
			select {
			case c.frames <- data:
			case <-c.cut:
				return
			}
		}
	}()
	return c
}

func (c *halfOpenConn) ReadFrame() ([]byte, error) {
	select {
	case <-c.cut:
		return nil, errors.New("link cut")
	default:
	}
	select {
	case data := <-c.frames:
		return data, nil
	case <-c.cut:
		return nil, errors.New("link cut")
	}
}

func (c *halfOpenConn) WriteFrame(data []byte) error {
	select {
	case <-c.cut:
		return errors.New("link cut")
	default:
		return c.conn.WriteFrame(data)
	}
}

// Close leaves the underlying socket open so the relay does not notice.
func (c *halfOpenConn) Close() error {
	c.once.Do(func() { close(c.cut) })
	return nil
}

func TestRejoinWhileStaleSessionHoldsSeat(t *testing.T) {
	url := startRelay(t, 2)
	dialer := &halfOpenDialer{dialer: signaling.NewWebSocketDialer()}
	t.Cleanup(dialer.close)

	alice := newMemberWith(t, url, dialer)
	bob := newMember(t, url)

	alice.do(func(r *Room) error { return r.Join("study-3", "alice") })
	alice.expect(t, "joined study-3 [alice]")
	bob.do(func(r *Room) error { return r.Join("study-3", "bob") })
	bob.expect(t, "joined study-3 [bob alice]")
	alice.expect(t, "peer joined bob")

	dialer.cut()

	alice.expect(t, "joined study-3 [alice bob]")
	bob.expect(t, "peer left alice")
	bob.expect(t, "peer joined alice")

	alice.do(func(r *Room) error {
		if !r.Joined() || r.RoomID() != "study-3" {
			t.Errorf("Joined() = %v, RoomID() = %q after reconnect", r.Joined(), r.RoomID())
		}
		return r.SendChat("back again")
	})
	bob.expect(t, "alice says back again")
}
