package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/studystim/studystim/internal/loop"
)

const dialTimeout = 15 * time.Second

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// State is the connection state of a Transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Transport.
type Options struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// Transport keeps one logical connection to the relay alive. Outbound
// envelopes are queued while the connection is down and written in order
// once it reopens.
//
// All methods must be called from the owning loop.
type Transport struct {
	loop       *loop.Loop
	dialer     Dialer
	url        string
	dispatcher *Dispatcher
	backoff    backoff.BackOff

	state      State
	conn       Conn
	gen        uint64
	queue      [][]byte
	retry      *time.Timer
	cancelDial context.CancelFunc
	abandoned  bool
	closed     bool

	prelude     func() []*Envelope
	onState     func(State)
	onAbandoned func()
}

// NewTransport creates a disconnected transport bound to l.
func NewTransport(l *loop.Loop, dialer Dialer, opts Options) *Transport {
	return &Transport{
		loop:       l,
		dialer:     dialer,
		url:        opts.URL,
		dispatcher: NewDispatcher(),
		backoff:    newReconnectBackOff(opts.ReconnectDelay, opts.MaxReconnectAttempts),
	}
}

// Handle registers the handler for an inbound message type.
func (t *Transport) Handle(msgType string, fn HandlerFunc) {
	t.dispatcher.Handle(msgType, fn)
}

// SetPrelude sets a function whose envelopes are written on every open,
// before the queued ones.
func (t *Transport) SetPrelude(fn func() []*Envelope) {
	t.prelude = fn
}

// OnState registers a state change callback.
func (t *Transport) OnState(fn func(State)) {
	t.onState = fn
}

// OnAbandoned registers a callback run once reconnect attempts run out.
func (t *Transport) OnAbandoned(fn func()) {
	t.onAbandoned = fn
}

func (t *Transport) State() State { return t.state }

// Abandoned reports whether the transport gave up reconnecting.
func (t *Transport) Abandoned() bool { return t.abandoned }

// Pending returns the number of queued frames.
func (t *Transport) Pending() int { return len(t.queue) }

// Connect starts a connection attempt unless one is already running or
// scheduled.
func (t *Transport) Connect() {
	if t.closed || t.abandoned || t.state != StateDisconnected || t.retry != nil {
		return
	}
	t.dial()
}

// Send writes env now if the connection is open, otherwise queues it and
// makes sure a connection attempt is under way.
func (t *Transport) Send(env *Envelope) error {
	if t.closed {
		return ErrClosed
	}
	frame, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}

	if t.state == StateOpen {
		if err := t.conn.WriteFrame(frame); err != nil {
			slog.Warn("write failed, requeueing", "type", env.Type, "error", err)
			t.queue = append(t.queue, frame)
			t.fault()
		}
		return nil
	}

	t.queue = append(t.queue, frame)
	t.Connect()
	return nil
}

// Close drops the connection and the queue. The transport cannot be reused.
func (t *Transport) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.gen++
	if t.retry != nil {
		t.retry.Stop()
		t.retry = nil
	}
	if t.cancelDial != nil {
		t.cancelDial()
		t.cancelDial = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.queue = nil
	t.setState(StateDisconnected)
}

func (t *Transport) dial() {
	t.gen++
	gen := t.gen
	t.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	t.cancelDial = cancel
	slog.Debug("dialing relay", "url", t.url)

	go func() {
		conn, err := t.dialer.Dial(ctx, t.url)
		cancel()
		if !t.loop.Post(func() { t.dialed(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (t *Transport) dialed(gen uint64, conn Conn, err error) {
	if gen != t.gen || t.closed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	t.cancelDial = nil
	if err != nil {
		slog.Warn("connection attempt failed", "url", t.url, "error", err)
		t.fault()
		return
	}

	t.conn = conn
	t.backoff.Reset()
	go t.read(gen, conn)

	if t.prelude != nil {
		for _, env := range t.prelude() {
			frame, err := env.Encode()
			if err != nil {
				slog.Error("failed to encode prelude", "type", env.Type, "error", err)
				continue
			}
			if err := conn.WriteFrame(frame); err != nil {
				slog.Warn("prelude write failed", "error", err)
				t.fault()
				return
			}
		}
	}

	for len(t.queue) > 0 {
		if err := conn.WriteFrame(t.queue[0]); err != nil {
			slog.Warn("queue drain failed", "pending", len(t.queue), "error", err)
			t.fault()
			return
		}
		t.queue[0] = nil
		t.queue = t.queue[1:]
	}

	slog.Info("connected to relay", "url", t.url)
	t.setState(StateOpen)
}

// read pumps frames from conn to the loop until the connection fails.
func (t *Transport) read(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			t.loop.Post(func() { t.readFailed(gen, err) })
			return
		}
		t.loop.Post(func() { t.receive(gen, data) })
	}
}

func (t *Transport) receive(gen uint64, data []byte) {
	if gen != t.gen {
		return
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		slog.Warn("dropping malformed frame", "error", err)
		return
	}
	t.dispatcher.Dispatch(env)
}

func (t *Transport) readFailed(gen uint64, err error) {
	if gen != t.gen || t.closed {
		return
	}
	slog.Warn("connection lost", "error", err)
	t.fault()
}

// fault tears down the current connection and schedules the next attempt.
func (t *Transport) fault() {
	t.gen++
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.setState(StateDisconnected)

	delay := t.backoff.NextBackOff()
	if delay == backoff.Stop {
		t.abandoned = true
		slog.Error("giving up on relay connection", "url", t.url, "pending", len(t.queue))
		if t.onAbandoned != nil {
			t.onAbandoned()
		}
		return
	}

	slog.Info("reconnecting", "delay", delay)
	t.retry = t.loop.After(delay, func() {
		t.retry = nil
		if t.closed {
			return
		}
		t.dial()
	})
}

func (t *Transport) setState(s State) {
	if t.state == s {
		return
	}
	t.state = s
	if t.onState != nil {
		t.onState(s)
	}
}
