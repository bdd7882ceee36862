package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"retailsales/internal/infrastructure"
	"retailsales/pkg/contracts/events"
)

const broadcastQueueSize = 256

// HubStats reports hub activity
type HubStats struct {
	Clients int   `json:"clients"`
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
}

// outbound is one queued status frame. An empty target reaches every client.
type outbound struct {
	target string
	data   []byte
}

// Hub maintains the set of active clients and delivers status messages to
// them. It implements census.Notifier.
type Hub struct {
	// Registered clients, owned by the Run goroutine
	clients map[*Client]bool
	byID    map[string]*Client

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	// guards running and the client count snapshot
	mu      sync.RWMutex
	running bool
	count   int

	logger  *slog.Logger
	metrics *hubMetrics

	sent    atomic.Int64
	dropped atomic.Int64

	quit chan struct{}
	done chan struct{}
}

// NewHub creates a new Hub. A nil meter uses the global meter provider.
func NewHub(logger *slog.Logger, meter metric.Meter) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = infrastructure.WithComponent(logger, "websocket.hub")

	metrics, err := newHubMetrics(meter)
	if err != nil {
		logger.Warn("websocket metrics disabled", slog.String("error", err.Error()))
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		byID:       make(map[string]*Client),
		broadcast:  make(chan outbound, broadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in a new goroutine. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)
	ctx := context.Background()

	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				h.drop(client)
				h.metrics.recordDisconnect(ctx)
			}
			h.setCount(0)
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.byID[client.id] = client
			h.setCount(len(h.clients))
			h.metrics.recordConnect(ctx)

			h.logger.InfoContext(client.ctx(), "Client registered",
				slog.Int("total_clients", len(h.clients)),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.sendWelcome(client)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			h.drop(client)
			h.setCount(len(h.clients))
			h.metrics.recordDisconnect(ctx)

			h.logger.InfoContext(client.ctx(), "Client unregistered",
				slog.Int("total_clients", len(h.clients)),
				slog.String("client_id", client.id),
				slog.Duration("connection_duration", time.Since(client.connectedAt)))

		case msg := <-h.broadcast:
			if msg.target == "" {
				for client := range h.clients {
					h.deliver(ctx, client, msg.data)
				}
				continue
			}
			client, ok := h.byID[msg.target]
			if !ok {
				h.dropped.Add(1)
				h.metrics.recordDropped(ctx, "no_client")
				continue
			}
			h.deliver(ctx, client, msg.data)
		}
	}
}

// deliver queues data on client, disconnecting it when its buffer is full
func (h *Hub) deliver(ctx context.Context, client *Client, data []byte) {
	select {
	case client.send <- data:
		h.sent.Add(1)
		h.metrics.recordSent(ctx, len(data))
	default:
		h.drop(client)
		h.setCount(len(h.clients))
		h.metrics.recordDisconnect(ctx)
		h.metrics.recordDropped(ctx, "client")
		h.logger.WarnContext(client.ctx(), "Client send buffer full, disconnecting",
			slog.String("client_id", client.id))
	}
}

// drop forgets client and closes its send channel. Run goroutine only.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	delete(h.byID, client.id)
	close(client.send)
}

// Stop stops the hub loop and closes every client. It is idempotent.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

// Register adds a client. It reports false when the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Notify sends n as a status message to the client named by ctx (see
// infrastructure.WithClientID), or to every client when ctx names none. A
// named client that is gone gets nothing. Notify never blocks: when the
// queue is full the message is dropped and counted.
func (h *Hub) Notify(ctx context.Context, n events.Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	if n.TraceID == "" {
		n.TraceID = infrastructure.GetTraceID(ctx)
	}

	data, err := json.Marshal(events.NewStatusMessage(uuid.NewString(), n))
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling status message", slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- outbound{target: infrastructure.GetClientID(ctx), data: data}:
	default:
		h.dropped.Add(1)
		h.metrics.recordDropped(ctx, "broadcast")
		h.logger.WarnContext(ctx, "Broadcast queue full, status message dropped",
			slog.String("message", n.Message))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Stats returns a snapshot of hub counters
func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients: h.ClientCount(),
		Sent:    h.sent.Load(),
		Dropped: h.dropped.Load(),
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

func (h *Hub) sendWelcome(client *Client) {
	data, err := json.Marshal(events.WebSocketMessage{
		ID:        uuid.NewString(),
		Type:      events.MessageTypeConnect,
		Timestamp: time.Now(),
		Data: map[string]string{
			"client_id": client.id,
			"status":    "connected",
		},
	})
	if err != nil {
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.WarnContext(client.ctx(), "Failed to send connection message - client buffer full",
			slog.String("client_id", client.id))
	}
}
