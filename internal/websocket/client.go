package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"retailsales/internal/infrastructure"
)

// pumpTiming holds the keepalive intervals of one client
type pumpTiming struct {
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

var defaultTiming = pumpTiming{
	writeWait:  10 * time.Second,
	pongWait:   60 * time.Second,
	pingPeriod: 54 * time.Second, // below pongWait
}

const (
	// The socket is push only; browsers send nothing but control frames.
	maxInboundSize = 512
	sendBufferSize = 64
)

var shutdownFrame = websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")

// Client is one browser subscribed to status notifications
type Client struct {
	hub  *Hub
	conn Connection

	// send is closed by the hub on unregister or shutdown
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time
	timing      pumpTiming

	logger *slog.Logger
}

// NewClient wraps conn. traceID is the id of the upgrade request and is
// stamped on every log line of the client.
func NewClient(hub *Hub, conn Connection, traceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	id := uuid.NewString()

	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		id:          id,
		traceID:     traceID,
		remoteAddr:  addrString(conn.RemoteAddr()),
		connectedAt: time.Now(),
		timing:      defaultTiming,
		logger:      infrastructure.WithComponent(logger, "websocket.client").With(slog.String("client_id", id)),
	}
}

// ID returns the client id
func (c *Client) ID() string {
	return c.id
}

func (c *Client) ctx() context.Context {
	if c.traceID == "" {
		return context.Background()
	}
	return infrastructure.WithTraceID(context.Background(), c.traceID)
}

// ReadPump consumes control frames so pongs and close frames are
// processed, and unregisters the client once the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(c.timing.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.timing.pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			c.logger.WarnContext(c.ctx(), "notification socket closed unexpectedly",
				slog.String("error", err.Error()))
		}
		return
	}
}

// WritePump writes queued notifications and keepalive pings until the hub
// closes send, then says goodbye with a going-away close frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.timing.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, shutdownFrame)
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.WarnContext(c.ctx(), "notification write failed",
					slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.ctx(), "ping failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.timing.writeWait))
	return c.conn.WriteMessage(messageType, data)
}
