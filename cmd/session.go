package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/studystim/studystim/internal/call"
	"github.com/studystim/studystim/internal/config"
	"github.com/studystim/studystim/internal/loop"
	"github.com/studystim/studystim/internal/signaling"
	"github.com/studystim/studystim/internal/studyroom"
	"github.com/studystim/studystim/internal/timer"
	"github.com/studystim/studystim/internal/ui"
	"github.com/studystim/studystim/internal/version"
)

// Session runs a study room on its own event loop and forwards the room's
// events to the terminal UI. It implements ui.Actions.
type Session struct {
	loop   *loop.Loop
	cancel context.CancelFunc
	room   *studyroom.Room

	// Owned by the loop.
	program   *tea.Program
	suggested chan string

	closeOnce sync.Once
}

func LoadClientConfig(opts config.Options) (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// NewSession starts the loop and creates the room. Nothing is sent until
// Join or Suggest.
func NewSession(cfg *config.ClientConfig, media call.MediaSource) *Session {
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	s := &Session{loop: l, cancel: cancel}

	opts := studyroom.Options{
		Dialer: signaling.NewWebSocketDialer(),
		Transport: signaling.Options{
			URL:                  cfg.WebSocketURL(),
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			ReconnectDelay:       cfg.ReconnectDelay,
		},
		Call: call.Options{
			ICE:   call.ICEConfigFrom(cfg),
			Media: media,
			Device: call.DeviceInfo{
				DeviceName:    "studystim-cli",
				DeviceVersion: fmt.Sprintf("%s (%s)", version.Version, runtime.GOOS),
			},
		},
	}

	l.Call(func() {
		s.room = studyroom.New(l, opts, s.callbacks())
	})
	return s
}

func (s *Session) callbacks() studyroom.Callbacks {
	return studyroom.Callbacks{
		OnJoined: func(roomID string, participants []string) {
			s.emit(ui.JoinedMsg{RoomID: roomID, Participants: participants})
		},
		OnPeerJoined: func(username string) { s.emit(ui.PeerJoinedMsg{Username: username}) },
		OnPeerLeft:   func(username string) { s.emit(ui.PeerLeftMsg{Username: username}) },
		OnRemoved:    func(roomID string) { s.emit(ui.RemovedMsg{RoomID: roomID}) },
		OnMessage: func(username, text string) {
			s.emit(ui.ChatMsg{Username: username, Text: text})
		},
		OnTimer: func(snap timer.Snapshot) { s.emit(ui.TimerMsg{Snapshot: snap}) },
		OnRemoteStream: func(rs *call.RemoteStream) {
			s.emit(ui.RemoteMediaMsg{Tracks: len(rs.Tracks), Video: rs.HasVideo()})
		},
		OnStatus:     func(notice string) { s.emit(ui.StatusMsg{Text: notice}) },
		OnConnection: func(st signaling.State) { s.emit(ui.ConnectionMsg{State: st.String()}) },
		OnCallState:  func(st call.State) { s.emit(ui.CallStateMsg{State: st.String()}) },
		OnPeerInfo:   func(info call.DeviceInfo) { s.emit(ui.PeerDeviceMsg{Device: info.String()}) },
		OnSuggested: func(roomID string) {
			if s.suggested != nil {
				s.suggested <- roomID
				s.suggested = nil
			}
		},
	}
}

// emit runs on the loop. Program.Send returns once the program has exited,
// so a closed screen never stalls the loop.
func (s *Session) emit(msg tea.Msg) {
	if s.program != nil {
		s.program.Send(msg)
	}
}

// Attach routes room events to p from now on.
func (s *Session) Attach(p *tea.Program) {
	s.loop.Call(func() { s.program = p })
}

// Join asks the room to join roomID. It does not wait: the loop may be
// blocked handing events to a program that has not started yet. Refusals
// surface as status messages.
func (s *Session) Join(roomID, username string) {
	s.loop.Post(func() {
		if err := s.room.Join(roomID, username); err != nil {
			s.emit(ui.StatusMsg{Text: err.Error()})
		}
	})
}

// Suggest asks the relay for an unused room id.
func (s *Session) Suggest(ctx context.Context) (string, error) {
	ch := make(chan string, 1)
	var err error
	callErr := s.loop.Call(func() {
		s.suggested = ch
		err = s.room.SuggestRoom()
	})
	if callErr != nil {
		return "", callErr
	}
	if err != nil {
		return "", err
	}

	select {
	case id := <-ch:
		return id, nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for a room suggestion: %w", ctx.Err())
	}
}

func (s *Session) Chat(text string) {
	s.loop.Post(func() {
		if err := s.room.SendChat(text); err != nil {
			s.emit(ui.StatusMsg{Text: err.Error()})
		}
	})
}

func (s *Session) ShareTimer(snap timer.Snapshot) {
	s.loop.Post(func() {
		if err := s.room.SendTimerState(snap); err != nil {
			s.emit(ui.StatusMsg{Text: err.Error()})
		}
	})
}

func (s *Session) Leave() {
	s.loop.Post(func() {
		s.program = nil
		s.room.Close()
	})
}

// Close leaves the room, drops the connection and stops the loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.loop.Call(func() {
			s.program = nil
			s.room.Close()
		})
		s.cancel()
		<-s.loop.Done()
	})
}
