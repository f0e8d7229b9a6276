package relay

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Frames buffered per connection before the hub starts skipping it.
	sendBuffer = 256
)

// ClientOptions tunes a single connection.
type ClientOptions struct {
	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64

	// Rate and Burst limit inbound frames per connection. Rate <= 0
	// disables limiting.
	Rate  float64
	Burst int
}

// Client is the transport side of one websocket connection. The relay's
// per-connection state lives in the Registry's Session keyed by ID.
type Client struct {
	ID uuid.UUID

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	opts    ClientOptions

	// open is owned by the hub goroutine.
	open bool
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, opts ClientOptions) *Client {
	c := &Client{
		ID:   uuid.New(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		opts: opts,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return c
}

// Deliver queues a frame for the write pump without blocking. Called only
// from the hub goroutine.
func (c *Client) Deliver(frame []byte) bool {
	if !c.open {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		slog.Warn("outbox full, skipping frame", "client", c.ID)
		return false
	}
}

// Serve registers the client and runs its pumps until the connection ends.
func (c *Client) Serve() {
	if !c.hub.register(c) {
		c.conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// readPump pumps frames from the websocket connection to the hub.
//
// There is at most one reader on a connection: all reads happen here.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if c.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	throttled := false
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("read failed", "client", c.ID, "err", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			if !throttled {
				throttled = true
				slog.Warn("rate limit exceeded, dropping frames", "client", c.ID)
				c.hub.forward(Inbound{Client: c, Data: nil})
			}
			continue
		}
		throttled = false

		if !c.hub.forward(Inbound{Client: c, Data: data}) {
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
//
// There is at most one writer on a connection: all writes happen here.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Warn("write failed", "client", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
