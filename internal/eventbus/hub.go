package eventbus

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 10 * time.Second

// Hub is the Event Gateway's WebSocket fan-out: every event published via
// Publish is marshaled once and written to every registered client in turn,
// with a client whose write fails or exceeds the write deadline dropped, so
// a slow client stalls the broadcast for at most that deadline. It keeps
// one global client set, since this Core drives
// exactly one detector.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	logger  *log.Logger

	upgrader websocket.Upgrader
}

// NewHub constructs an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register adds conn to the broadcast set.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	h.logger.Printf("[eventgw] client registered (total: %d)", len(h.clients))
}

// Unregister removes conn from the broadcast set.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.logger.Printf("[eventgw] client unregistered (total: %d)", len(h.clients))
	}
}

// ClientCount reports how many clients are currently registered.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish marshals event and writes it to every registered client.
func (h *Hub) Publish(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Printf("[eventgw] marshaling event failed: %v", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Printf("[eventgw] write failed, dropping client: %v", err)
			h.Unregister(conn)
			conn.Close()
		}
	}
}

// Upgrade promotes an already-authenticated HTTP request to a WebSocket
// connection and registers it with the hub. The caller is responsible for
// authentication before calling Upgrade (see internal/authguard).
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	h.Register(conn)
	return conn, nil
}
