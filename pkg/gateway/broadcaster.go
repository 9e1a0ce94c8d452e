package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/orquestra-labs/orquestra/internal/metrics"
)

// EventMessage is the envelope sent to WebSocket subscribers.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"ts"`
	Seq       int64       `json:"seq"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// EventBroadcaster fans orchestration events out to connected WebSocket
// clients. A client that fails a write is dropped on the spot.
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	seq     int64
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewEventBroadcaster creates an empty broadcaster. Metrics may be nil.
func NewEventBroadcaster(logger zerolog.Logger, m *metrics.Metrics) *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[string]*wsClient),
		logger:  logger,
		metrics: m,
	}
}

func (b *EventBroadcaster) add(c *wsClient) {
	b.mu.Lock()
	b.clients[c.id] = c
	n := len(b.clients)
	b.mu.Unlock()
	b.metrics.SetWSClients(n)
}

func (b *EventBroadcaster) remove(id string) {
	b.mu.Lock()
	delete(b.clients, id)
	n := len(b.clients)
	b.mu.Unlock()
	b.metrics.SetWSClients(n)
}

// ClientCount reports the number of connected subscribers.
func (b *EventBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to every connected client.
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	b.mu.Lock()
	b.seq++
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       b.seq,
	}
	targets := make([]*wsClient, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	var dropped []string
	for _, c := range targets {
		if err := c.writeJSON(msg); err != nil {
			b.logger.Warn().Err(err).Str("client_id", c.id).Str("event", event).Msg("Dropping client after failed write")
			c.conn.Close()
			dropped = append(dropped, c.id)
		}
	}
	for _, id := range dropped {
		b.remove(id)
	}
}

// CloseAll disconnects every client, used during shutdown.
func (b *EventBroadcaster) CloseAll() {
	b.mu.Lock()
	for id, c := range b.clients {
		c.conn.Close()
		delete(b.clients, id)
	}
	b.mu.Unlock()
	b.metrics.SetWSClients(0)
}
