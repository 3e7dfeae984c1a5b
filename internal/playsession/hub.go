package playsession

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // controllers connect from arbitrary origins on the LAN
	},
}

// Hub fans playback events out to every connected websocket client.
type Hub struct {
	mu           sync.Mutex
	clients      map[*websocket.Conn]struct{}
	logger       *log.Logger
	pingInterval time.Duration
	stopPing     chan struct{}
	closed       bool
}

// NewHub creates a hub and starts its keepalive loop.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{
		clients:      make(map[*websocket.Conn]struct{}),
		logger:       logger,
		pingInterval: 30 * time.Second,
		stopPing:     make(chan struct{}),
	}
	go h.pingLoop()
	return h
}

// HandleWS upgrades the request and registers the client until it drops.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade failed - error already written to response
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("SESSION: websocket client connected (%d active)", count)

	go h.readLoop(conn)
}

// readLoop drains inbound frames so pings get answered; clients only listen.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()
	conn.Close()
	if ok {
		h.logger.Printf("SESSION: websocket client disconnected (%d active)", count)
	}
}

// Broadcast sends one JSON message to every client, dropping dead ones.
// Writes stay under the lock: gorilla/websocket allows only one writer per
// connection, and broadcasts come from several goroutines at once.
func (h *Hub) Broadcast(v any) {
	var dead []*websocket.Conn
	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.WriteJSON(v); err != nil {
			dead = append(dead, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range dead {
		h.drop(conn)
	}
}

// ClientCount reports how many clients are attached.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) pingLoop() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			var dead []*websocket.Conn
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					dead = append(dead, conn)
				}
			}
			h.mu.Unlock()
			for _, conn := range dead {
				h.drop(conn)
			}
		case <-h.stopPing:
			return
		}
	}
}

// Close disconnects every client and stops the keepalive loop.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.stopPing)
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
