package rpcquery

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// PushEvent is one notification broadcast to subscribed WebSocket
// clients: a new best height, a consensus-health action change, or a
// masternode status transition. The RPC layer owns deciding when to
// call Publish; this hub only owns fan-out to connected sockets.
type PushEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PushHub fans out PushEvents to every connected WebSocket client: the
// narrow push-notification counterpart to Backend's pull-based queries.
type PushHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewPushHub constructs an empty PushHub.
func NewPushHub() *PushHub {
	return &PushHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection to a WebSocket and registers it to
// receive future Publish calls until it disconnects.
func (h *PushHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go h.readUntilClose(conn)
}

// readUntilClose drains (and discards) inbound frames so the connection
// stays alive per the gorilla/websocket read-pump convention, removing
// the client once it disconnects or errors.
func (h *PushHub) readUntilClose(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *PushHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Publish broadcasts event to every currently-connected client, dropping
// any client whose write fails (it will be cleaned up by its own
// readUntilClose goroutine once the broken connection surfaces there).
func (h *PushHub) Publish(event PushEvent) error {
	enc, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteMessage(websocket.TextMessage, enc)
	}
	return nil
}

// ClientCount returns the number of currently-connected push clients.
func (h *PushHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
