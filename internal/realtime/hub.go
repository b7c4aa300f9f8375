package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	sendBufferSize = 32
)

// Named realtime streams used by dashboards to invalidate cached views.
const (
	StreamNotifications = "notifications"
	StreamTeam          = "team"
)

// Message is the JSON frame pushed to subscribers of a stream.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub fans realtime events out to connected dashboard clients. Each client
// subscribes to one or more streams; messages are addressed per user.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*connection]struct{}
	upgrader websocket.Upgrader
}

// NewHub returns an empty hub ready to accept connections.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the HTTP connection to a WebSocket and registers the client
// with the provided initial streams.
func (h *Hub) Serve(profileID string, streams []string, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &connection{
		hub:       h,
		socket:    socket,
		profileID: profileID,
		streams:   make(map[string]struct{}),
		send:      make(chan Message, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	client.setStreams(streams, true)

	go client.writeLoop()
	client.readLoop()
}

// BroadcastToUser delivers a message to all of the user's connections that
// subscribe to the stream.
func (h *Hub) BroadcastToUser(stream, profileID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || profileID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.profileID != profileID || !client.subscribed(stream) {
			continue
		}
		h.enqueue(client, message)
	}
}

// BroadcastToUsers delivers a message to each of the supplied profile IDs.
func (h *Hub) BroadcastToUsers(stream string, profileIDs []string, message Message) {
	for _, id := range profileIDs {
		h.BroadcastToUser(stream, id, message)
	}
}

func (h *Hub) enqueue(client *connection, message Message) {
	select {
	case client.send <- message:
	default:
		// Slow consumer; drop the connection rather than block the hub.
		go client.close()
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

type connection struct {
	hub       *Hub
	socket    *websocket.Conn
	profileID string

	mu      sync.RWMutex
	streams map[string]struct{}

	send chan Message
	once sync.Once
}

func (c *connection) subscribed(stream string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.streams[stream]
	return ok
}

func (c *connection) setStreams(streams []string, subscribe bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if subscribe {
			c.streams[stream] = struct{}{}
		} else {
			delete(c.streams, stream)
		}
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.setStreams(ctrl.Streams, true)
		case "unsubscribe":
			c.setStreams(ctrl.Streams, false)
		case "ping":
			c.send <- Message{Event: "pong"}
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}
