// Package ws streams station events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/logger"
	"github.com/kilianp07/evstation/internal/eventbus"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	sendBuffer   = 16
)

// Message is the envelope written to clients.
type Message struct {
	Kind string       `json:"kind"`
	At   time.Time    `json:"at"`
	Data events.Event `json:"data"`
}

// Hub fans events out to every connected client. Slow clients lose messages
// instead of blocking the broadcast.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      logger.Logger
	// PingInterval is the keepalive period.
	PingInterval time.Duration
}

// NewHub returns a hub accepting any origin.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:          logger.OrNop(log),
		PingInterval: 30 * time.Second,
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debugf("websocket client connected from %s", r.RemoteAddr)

	go c.writePump(h.PingInterval)
	go h.readPump(c)
}

// Broadcast encodes e once and queues it for every client.
func (h *Hub) Broadcast(e events.Event) {
	payload, err := json.Marshal(Message{Kind: e.Kind(), At: e.OccurredAt(), Data: e})
	if err != nil {
		h.log.Errorf("encode %s: %v", e.Kind(), err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warnf("dropping %s for slow websocket client", e.Kind())
		}
	}
}

// Run broadcasts bus events until ctx is done or the bus closes, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context, bus *eventbus.Bus[events.Event]) {
	eventbus.Consume(ctx, bus, func(_ context.Context, e events.Event) { h.Broadcast(e) })
	h.Close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards client messages and keeps the read deadline moving on
// pongs. It unregisters the client once the connection fails.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.log.Debugf("websocket client gone: %v", err)
			return
		}
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump(ping time.Duration) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}
