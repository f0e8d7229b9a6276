package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/studystim/studystim/internal/config"
	"github.com/studystim/studystim/internal/relay"
)

func startTestServer(t *testing.T, opts relay.ClientOptions) *httptest.Server {
	t.Helper()
	hub := relay.NewHub(relay.NewRegistry(2))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, opts))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestHealth(t *testing.T) {
	srv := startTestServer(t, relay.ClientOptions{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "healthy") {
		t.Errorf("GET /health = %d %q", resp.StatusCode, body)
	}
}

func TestRelayOverWebSocket(t *testing.T) {
	srv := startTestServer(t, relay.ClientOptions{MaxMessageSize: 64 * 1024})
	alice, bob := dial(t, srv), dial(t, srv)

	alice.WriteJSON(map[string]string{"type": "join_room", "roomId": "study-1", "username": "alice"})
	if m := readJSON(t, alice); m["type"] != "room_joined" {
		t.Fatalf("alice got %v, want room_joined", m)
	}

	bob.WriteJSON(map[string]string{"type": "join_room", "roomId": "study-1", "username": "bob"})
	m := readJSON(t, bob)
	if participants, _ := m["participants"].([]any); len(participants) != 1 || participants[0] != "alice" {
		t.Errorf("bob room_joined = %v, want participants [alice]", m)
	}
	if m := readJSON(t, alice); m["type"] != "user_joined" || m["username"] != "bob" {
		t.Errorf("alice got %v, want user_joined bob", m)
	}

	bob.WriteJSON(map[string]string{"type": "chat_message", "roomId": "study-1", "username": "bob", "message": "hello"})
	if m := readJSON(t, alice); m["type"] != "chat_message" || m["message"] != "hello" {
		t.Errorf("alice got %v, want the chat", m)
	}

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()
	var stats relay.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Sessions != 2 || len(stats.Rooms) != 1 || len(stats.Rooms[0].Members) != 2 {
		t.Errorf("stats = %+v", stats)
	}

	// Dropping the socket counts as leaving.
	bob.Close()
	if m := readJSON(t, alice); m["type"] != "user_left" || m["username"] != "bob" {
		t.Errorf("alice got %v, want user_left bob", m)
	}
}

func TestRateLimitedClientIsWarned(t *testing.T) {
	srv := startTestServer(t, relay.ClientOptions{Rate: 1, Burst: 2})
	conn := dial(t, srv)

	for i := 0; i < 6; i++ {
		conn.WriteJSON(map[string]string{"type": "suggest_room"})
	}

	suggested, warned := 0, 0
	for i := 0; i < 3; i++ {
		m := readJSON(t, conn)
		switch m["type"] {
		case "room_suggested":
			suggested++
		case "error":
			if m["message"] == "Too many messages, slow down" {
				warned++
			}
		}
	}
	if suggested != 2 || warned != 1 {
		t.Errorf("suggested=%d warned=%d, want 2 and 1", suggested, warned)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(&config.ServerConfig{MaxRoomMembers: 2, MaxMessageSize: 64 * 1024})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	var conn *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after shutdown")
	}
}
