package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kwv/probemesh/mesh"
)

const wsWriteWait = 5 * time.Second

// frameHub pushes frame summaries to connected websocket clients.
// Writes to a connection only happen while holding mu, so each
// connection has a single writer.
type frameHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func newFrameHub() *frameHub {
	return &frameHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// serveWS upgrades the request, sends the current frame (if any) and keeps
// the client subscribed until it disconnects.
func (h *frameHub) serveWS(stateTracker *mesh.StateTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] Upgrade failed for %s: %v", r.RemoteAddr, err)
			return
		}

		h.mu.Lock()
		if frame := stateTracker.Frame(); frame != nil {
			if err := writeSummary(conn, frame.Summary()); err != nil {
				h.mu.Unlock()
				_ = conn.Close()
				return
			}
		}
		h.clients[conn] = true
		n := len(h.clients)
		h.mu.Unlock()
		log.Printf("[WS] Client %s connected (%d total)", r.RemoteAddr, n)

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
			h.remove(conn)
		}()
	}
}

// publish sends the frame summary to every client, dropping the ones that fail.
func (h *frameHub) publish(frame *mesh.GlobalFrame) {
	summary := frame.Summary()

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := writeSummary(conn, summary); err != nil {
			log.Printf("[WS] Dropping client %s: %v", conn.RemoteAddr(), err)
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

func (h *frameHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		log.Printf("[WS] Client %s disconnected (%d total)", conn.RemoteAddr(), len(h.clients))
	}
	_ = conn.Close()
}

// clientCount returns the number of subscribed clients.
func (h *frameHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// closeAll disconnects every client.
func (h *frameHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

func writeSummary(conn *websocket.Conn, summary mesh.FrameSummary) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(summary)
}
