package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ClientMessage is the subscribe/unsubscribe/catchup protocol spoken
// over the Xc WebSocket.
type ClientMessage struct {
	Action      string `json:"action"`
	Channel     string `json:"channel"`
	LastEventID *int64 `json:"last_event_id,omitempty"`
}

// Connection is a single Xc WebSocket client. subscriptions is only
// ever touched from the connection's own read-loop goroutine, so it is
// unguarded by design.
type Connection struct {
	id            string
	conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

func (c *Connection) deliver(ev Event) {
	msg, err := json.Marshal(struct {
		Type    string          `json:"type"`
		Channel string          `json:"channel"`
		ID      int64           `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}{Type: "event", Channel: ev.Channel, ID: ev.ID, Payload: ev.Payload})
	if err != nil {
		return
	}
	c.sendRaw(msg)
}

func (c *Connection) sendRaw(data []byte) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("xc: failed to write to client", "connection_id", c.id, "error", err)
	}
}

func (c *Connection) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("xc: failed to marshal message", "connection_id", c.id, "error", err)
		return
	}
	c.sendRaw(data)
}

// Manager owns the process's live Xc connections and wires them to a Bus.
type Manager struct {
	mu          sync.RWMutex
	bus         *Bus
	connections map[string]*Connection
}

// NewManager constructs a Manager bound to bus.
func NewManager(bus *Bus) *Manager {
	return &Manager{bus: bus, connections: make(map[string]*Connection)}
}

// ActiveConnections reports the number of live Xc clients.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// HandleConnection manages one client's lifetime: registers it, sends
// a connection.established handshake, and reads subscribe/unsubscribe/
// catchup/ping messages until the socket closes. Blocks until then.
func (m *Manager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{id: id, conn: conn, subscriptions: make(map[string]bool), ctx: ctx, cancel: cancel}

	m.mu.Lock()
	m.connections[id] = c
	m.mu.Unlock()
	defer m.unregister(c)

	c.sendJSON(map[string]string{"type": "connection.established", "connection_id": id})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("xc: invalid client message", "connection_id", id, "error", err)
			continue
		}
		m.handle(c, &msg)
	}
}

func (m *Manager) handle(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			c.sendJSON(map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		m.bus.subscribe(msg.Channel, c)
		c.subscriptions[msg.Channel] = true
		c.sendJSON(map[string]string{"type": "subscription.confirmed", "channel": msg.Channel})
		m.sendCatchup(c, msg.Channel, 0)

	case "unsubscribe":
		if msg.Channel == "" {
			c.sendJSON(map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.bus.unsubscribe(msg.Channel, c.id)
		delete(c.subscriptions, msg.Channel)

	case "catchup":
		if msg.Channel == "" {
			c.sendJSON(map[string]string{"type": "error", "message": "channel is required for catchup"})
			return
		}
		since := int64(0)
		if msg.LastEventID != nil {
			since = *msg.LastEventID
		}
		m.sendCatchup(c, msg.Channel, since)

	case "ping":
		c.sendJSON(map[string]string{"type": "pong"})
	}
}

func (m *Manager) sendCatchup(c *Connection, channel string, sinceID int64) {
	events, hasMore := m.bus.catchup(channel, sinceID)
	for _, ev := range events {
		c.deliver(ev)
	}
	if hasMore {
		c.sendJSON(map[string]any{"type": "catchup.overflow", "channel": channel, "has_more": true})
	}
}

func (m *Manager) unregister(c *Connection) {
	channels := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		channels = append(channels, ch)
	}
	m.bus.unsubscribeAll(c.id, channels)

	m.mu.Lock()
	delete(m.connections, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
