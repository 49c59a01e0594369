package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/pkg/protocol"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Client is one WebSocket connection: a frame reader/writer pair plus the
// room membership (project, chat session) that scopes broadcasts to it.
type Client struct {
	id            string
	conn          *websocket.Conn
	server        *Server
	projectID     string
	chatSessionID string

	send chan *protocol.Frame

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(conn *websocket.Conn, s *Server) *Client {
	return &Client{
		id:     uuid.New().String(),
		conn:   conn,
		server: s,
		send:   make(chan *protocol.Frame, sendBuffer),
	}
}

// Run drives the connection until it closes: a writer goroutine drains
// `send`, while the calling goroutine reads and dispatches incoming frames.
func (c *Client) Run(ctx context.Context) {
	done := make(chan struct{})
	go c.writeLoop(done)
	defer close(done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("gateway: malformed frame", "client", c.id, "error", err)
			continue
		}
		c.dispatch(ctx, &frame)
	}
}

func (c *Client) dispatch(ctx context.Context, frame *protocol.Frame) {
	if frame.Type != protocol.FrameRequest && frame.Type != protocol.FrameEvent {
		return
	}

	if c.server.rateLimiter.Enabled() && !c.server.rateLimiter.Allow(c.id) {
		if frame.Type == protocol.FrameRequest {
			c.replyError(frame, apierr.Timeout("rate limit exceeded"))
		}
		return
	}

	result, err := c.server.router.dispatch(ctx, c, frame.Channel, frame.Payload)
	if frame.Type != protocol.FrameRequest {
		return
	}
	if err != nil {
		c.replyError(frame, err)
		return
	}
	c.enqueue(protocol.NewResult(frame.ID, frame.Channel, result))
}

func (c *Client) replyError(frame *protocol.Frame, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		ae = apierr.Internal(err)
	}
	c.enqueue(protocol.NewErrorResult(frame.ID, frame.Channel, string(ae.Code), ae.Message))
}

// sendEvent pushes a fire-and-forget event frame. It never blocks: if the
// connection's outbound buffer is full the client is disconnected
// (best-effort broadcast, §4.6).
func (c *Client) sendEvent(channel string, payload interface{}) {
	c.enqueue(protocol.NewEvent(channel, payload))
}

func (c *Client) enqueue(frame *protocol.Frame) {
	select {
	case c.send <- frame:
	default:
		slog.Warn("gateway: client send buffer full, dropping client", "client", c.id, "channel", frame.Channel)
		c.Close()
	}
}

func (c *Client) writeLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

// Close tears down the connection's write side.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}
